package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"OctaMuse/model"

	"github.com/redis/go-redis/v9"
)

// SessionStore 持久化用户会话信息和待处理的生成任务
// 每个用户最多只有一条待处理任务记录，由编排器独占写入。
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a session store on the given Redis client. A
// non-positive ttl falls back to the default pending-task lifetime.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = model.PendingTaskTTL
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Session 保存已认证用户的身份信息，与待处理任务的生命周期相互独立
type Session struct {
	UserID      int64     `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	LoggedInAt  time.Time `json:"loggedInAt"`
}

// pendingTaskKey 根据用户ID生成待处理任务的Redis键
func pendingTaskKey(userID int64) string {
	return fmt.Sprintf("pending_task:%d", userID)
}

// sessionKey 根据用户ID生成会话的Redis键
func sessionKey(userID int64) string {
	return fmt.Sprintf("session:%d", userID)
}

// SavePendingTask overwrites the user's pending-task record. The write is
// synchronous: it does not return until Redis has acknowledged it, so a caller
// may treat it as committed even if the process dies immediately after.
func (s *SessionStore) SavePendingTask(ctx context.Context, userID int64, task *model.PendingTask) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal pending task: %w", err)
	}

	// Redis 的过期时间只作兜底，权威的过期判断在读取路径上完成
	if err := s.rdb.Set(ctx, pendingTaskKey(userID), data, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save pending task: %w", err)
	}
	return nil
}

// GetPendingTask returns the user's pending task, or nil when none exists.
// A record older than the configured lifetime is deleted as a side effect and
// reported as absent.
func (s *SessionStore) GetPendingTask(ctx context.Context, userID int64) (*model.PendingTask, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	data, err := s.rdb.Get(ctx, pendingTaskKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending task: %w", err)
	}

	var task model.PendingTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending task: %w", err)
	}

	if task.ExpiredAt(time.Now(), s.ttl) {
		// 过期的任务视为废弃，惰性清理
		if err := s.ClearPendingTask(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &task, nil
}

// ClearPendingTask removes the user's pending task. Removing a record that
// does not exist is not an error.
func (s *SessionStore) ClearPendingTask(ctx context.Context, userID int64) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}

	if err := s.rdb.Del(ctx, pendingTaskKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear pending task: %w", err)
	}
	return nil
}

// SaveSession 保存用户会话，与待处理任务一样采用提交后返回的写入策略
func (s *SessionStore) SaveSession(ctx context.Context, session *Session) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKey(session.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession 获取用户会话，不存在时返回nil
func (s *SessionStore) GetSession(ctx context.Context, userID int64) (*Session, error) {
	if s.rdb == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	data, err := s.rdb.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ClearSession 删除用户会话，幂等
func (s *SessionStore) ClearSession(ctx context.Context, userID int64) error {
	if s.rdb == nil {
		return fmt.Errorf("redis client not initialized")
	}

	if err := s.rdb.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
