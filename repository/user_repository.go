package repository

import (
	"database/sql"
	"fmt"
	"time"

	"OctaMuse/model"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(user *model.User) (int64, error)
	GetByID(id int64) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByUsername(username string) (*model.User, error)
}

// mysqlUserRepository implements UserRepository for MySQL
type mysqlUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new instance of mysqlUserRepository
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{db: db}
}

// Create adds a new user to the database
func (r *mysqlUserRepository) Create(user *model.User) (int64, error) {
	query := `INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for Create user: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	result, err := stmt.Exec(user.Username, user.Email, user.PasswordHash, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute Create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return id, nil
}

// GetByID retrieves a user by their ID
func (r *mysqlUserRepository) GetByID(id int64) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = ?`
	row := r.db.QueryRow(query, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by their email address
func (r *mysqlUserRepository) GetByEmail(email string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE email = ?`
	row := r.db.QueryRow(query, email)
	return scanUser(row)
}

// GetByUsername retrieves a user by their username
func (r *mysqlUserRepository) GetByUsername(username string) (*model.User, error) {
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE username = ?`
	row := r.db.QueryRow(query, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row: %w", err)
	}
	return user, nil
}
