package model

import "time"

// JobState is the orchestrator's lifecycle state for one user session.
type JobState string

const (
	JobIdle      JobState = "Idle"
	JobSubmitted JobState = "Submitted"
	JobPolling   JobState = "Polling"
	JobSucceeded JobState = "Succeeded"
	JobFailed    JobState = "Failed"
)

// Terminal reports whether the state ends a generation attempt.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// GenerationRequest is what the UI boundary submits.
type GenerationRequest struct {
	Prompt      string `json:"prompt"`
	Genre       string `json:"genre"`
	Title       string `json:"title"`
	VocalLyrics string `json:"vocalLyrics,omitempty"` // Presence toggles vocal synthesis.
}

// PendingTaskTTL is the default recoverable lifetime of a persisted task.
const PendingTaskTTL = 24 * time.Hour

// PendingTask is the durably persisted subset of an in-flight job used for
// crash/restart recovery. At most one exists per user at a time.
type PendingTask struct {
	JobID       string    `json:"jobId"` // Empty until the provider has acknowledged the submission.
	Title       string    `json:"title"`
	Prompt      string    `json:"prompt"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ExpiredAt reports whether the task is abandoned as of now. A non-positive
// ttl means the default lifetime.
func (t *PendingTask) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = PendingTaskTTL
	}
	return now.Sub(t.SubmittedAt) > ttl
}
