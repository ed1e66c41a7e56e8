package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"OctaMuse/model"

	"github.com/redis/go-redis/v9"
)

var (
	rdbOnce sync.Once
	rdb     *redis.Client
)

func testRedis(tb testing.TB) *redis.Client {
	tb.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		tb.Skip("set TEST_REDIS_ADDR to run session store integration tests")
	}

	rdbOnce.Do(func() {
		rdb = redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		tb.Fatalf("ping test redis: %v", err)
	}
	return rdb
}

func TestPendingTaskRoundTrip(t *testing.T) {
	store := NewSessionStore(testRedis(t), 0)
	ctx := context.Background()
	userID := int64(424242)
	t.Cleanup(func() { _ = store.ClearPendingTask(ctx, userID) })

	task := &model.PendingTask{
		JobID:       "task-abc123",
		Title:       "Night Drive",
		Prompt:      "energetic synthwave",
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SavePendingTask(ctx, userID, task); err != nil {
		t.Fatalf("SavePendingTask: %v", err)
	}

	got, err := store.GetPendingTask(ctx, userID)
	if err != nil {
		t.Fatalf("GetPendingTask: %v", err)
	}
	if got == nil || got.JobID != task.JobID || got.Title != task.Title || got.Prompt != task.Prompt {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPendingTaskExpiryDeletesRecord(t *testing.T) {
	store := NewSessionStore(testRedis(t), 0)
	ctx := context.Background()
	userID := int64(424243)
	t.Cleanup(func() { _ = store.ClearPendingTask(ctx, userID) })

	stale := &model.PendingTask{
		JobID:       "task-stale",
		SubmittedAt: time.Now().Add(-25 * time.Hour),
	}
	if err := store.SavePendingTask(ctx, userID, stale); err != nil {
		t.Fatalf("SavePendingTask: %v", err)
	}

	got, err := store.GetPendingTask(ctx, userID)
	if err != nil {
		t.Fatalf("GetPendingTask: %v", err)
	}
	if got != nil {
		t.Fatalf("expected stale task to be reported absent, got %+v", got)
	}

	// 惰性清理之后记录应当已经不存在
	raw, err := testRedis(t).Exists(ctx, pendingTaskKey(userID)).Result()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if raw != 0 {
		t.Fatal("expected stale record to be deleted as a side effect")
	}
}

func TestPendingTaskConfiguredTTL(t *testing.T) {
	store := NewSessionStore(testRedis(t), time.Hour)
	ctx := context.Background()
	userID := int64(424246)
	t.Cleanup(func() { _ = store.ClearPendingTask(ctx, userID) })

	task := &model.PendingTask{
		JobID:       "task-short-ttl",
		SubmittedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := store.SavePendingTask(ctx, userID, task); err != nil {
		t.Fatalf("SavePendingTask: %v", err)
	}

	got, err := store.GetPendingTask(ctx, userID)
	if err != nil {
		t.Fatalf("GetPendingTask: %v", err)
	}
	if got != nil {
		t.Fatalf("task older than the configured 1h lifetime must be absent, got %+v", got)
	}
}

func TestClearPendingTaskIdempotent(t *testing.T) {
	store := NewSessionStore(testRedis(t), 0)
	ctx := context.Background()

	if err := store.ClearPendingTask(ctx, 424244); err != nil {
		t.Fatalf("clearing a missing record should not fail: %v", err)
	}
	if err := store.ClearPendingTask(ctx, 424244); err != nil {
		t.Fatalf("second clear should not fail either: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := NewSessionStore(testRedis(t), 0)
	ctx := context.Background()
	t.Cleanup(func() { _ = store.ClearSession(ctx, 424245) })

	sess := &Session{UserID: 424245, Email: "a@b.c", DisplayName: "a", LoggedInAt: time.Now().UTC().Truncate(time.Second)}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := store.GetSession(ctx, 424245)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.Email != sess.Email {
		t.Fatalf("session mismatch: %+v", got)
	}
}
