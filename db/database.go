package db

import (
	"database/sql"
	"fmt"
	"log"

	"OctaMuse/config"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

var DB *sql.DB

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Successfully connected to the database.")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
// user_stats is migrated separately through GORM (see gorm.go).
func InitDB() error {
	if err := createUsersTable(); err != nil {
		return err
	}
	if err := createGeneratedTracksTable(); err != nil {
		return err
	}

	log.Println("Database initialization completed.")
	return nil
}

func createUsersTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	log.Println("Users table initialized successfully (or already exists).")
	return nil
}

func createGeneratedTracksTable() error {
	// The (user_id, provider_job_id) unique constraint backs up the dedup
	// guard; the write path still performs an existence check first so that a
	// duplicate save is an idempotent no-op rather than a conflict error.
	query := `
	CREATE TABLE IF NOT EXISTS generated_tracks (
		id VARCHAR(36) PRIMARY KEY,
		user_id INT NOT NULL,
		title VARCHAR(255),
		prompt TEXT,
		genre VARCHAR(100),
		audio_url VARCHAR(1024) NOT NULL,
		cover_url VARCHAR(1024),
		provider_job_id VARCHAR(128) NOT NULL,
		duration INT NOT NULL DEFAULT 180,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_user_generated_tracks FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT uq_user_provider_job UNIQUE (user_id, provider_job_id)
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create generated_tracks table: %w", err)
	}
	log.Println("Generated tracks table initialized successfully (or already exists).")
	return nil
}
