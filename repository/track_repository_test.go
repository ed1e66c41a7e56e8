package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"OctaMuse/model"

	_ "github.com/go-sql-driver/mysql"
)

// testDB connects to the MySQL instance named by TEST_MYSQL_DSN, or skips.
// The schema must already exist (db.InitDB against the same database).
func testDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		tb.Skip("TEST_MYSQL_DSN not set; skipping MySQL integration test")
	}
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		tb.Fatalf("open mysql: %v", err)
	}
	if err := conn.Ping(); err != nil {
		tb.Fatalf("ping mysql: %v", err)
	}
	tb.Cleanup(func() { conn.Close() })
	return conn
}

func testUser(tb testing.TB, conn *sql.DB) int64 {
	tb.Helper()
	users := NewMySQLUserRepository(conn)
	id, err := users.Create(&model.User{
		Username:     "track-repo-test",
		Email:        "track-repo-test@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		tb.Fatalf("create user: %v", err)
	}
	tb.Cleanup(func() {
		conn.Exec("DELETE FROM users WHERE id = ?", id)
	})
	return id
}

func TestTrackSaveAndDedup(t *testing.T) {
	conn := testDB(t)
	userID := testUser(t, conn)
	repo := NewMySQLTrackRepository(conn)
	ctx := context.Background()

	track := &model.GeneratedTrack{
		UserID:        userID,
		Title:         "Midnight Drive",
		Prompt:        "synthwave about a night drive",
		Genre:         "synthwave",
		AudioURL:      "https://cdn.example.com/a.mp3",
		CoverURL:      "https://cdn.example.com/a.jpg",
		ProviderJobID: "job-dedup-1",
		Duration:      210,
	}

	id, err := repo.Save(ctx, track)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned track id")
	}

	exists, err := repo.ExistsByProviderJob(ctx, "job-dedup-1", userID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected track to exist by provider job")
	}

	// Saving the same provider result again must be a silent no-op.
	dup := &model.GeneratedTrack{
		UserID:        userID,
		Title:         "Midnight Drive",
		ProviderJobID: "job-dedup-1",
	}
	dupID, err := repo.Save(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate save: %v", err)
	}
	if dupID != id {
		t.Fatalf("duplicate save returned %s, want existing id %s", dupID, id)
	}

	list, err := repo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 track after duplicate save, got %d", len(list))
	}
}

func TestTrackOwnerScoping(t *testing.T) {
	conn := testDB(t)
	userID := testUser(t, conn)
	repo := NewMySQLTrackRepository(conn)
	ctx := context.Background()

	id, err := repo.Save(ctx, &model.GeneratedTrack{
		UserID:        userID,
		Title:         "Scoped",
		ProviderJobID: "job-scope-1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	other, err := repo.GetByID(ctx, userID+1, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if other != nil {
		t.Fatal("track visible to a different user")
	}

	// Delete under a wrong owner must leave the row alone.
	if err := repo.Delete(ctx, userID+1, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := repo.GetByID(ctx, userID, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got == nil {
		t.Fatal("track deleted by a different user")
	}

	if err := repo.Delete(ctx, userID, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = repo.GetByID(ctx, userID, id)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Fatal("track still present after owner delete")
	}
}

func TestTrackDefaultDuration(t *testing.T) {
	conn := testDB(t)
	userID := testUser(t, conn)
	repo := NewMySQLTrackRepository(conn)
	ctx := context.Background()

	id, err := repo.Save(ctx, &model.GeneratedTrack{
		UserID:        userID,
		Title:         "No Duration",
		ProviderJobID: "job-duration-1",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.GetByID(ctx, userID, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Duration != model.DefaultTrackDuration {
		t.Fatalf("duration = %d, want default %d", got.Duration, model.DefaultTrackDuration)
	}
}
