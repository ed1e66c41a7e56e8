package model

import "time"

// DefaultTrackDuration is used when the provider does not report a duration.
const DefaultTrackDuration = 180

// GeneratedTrack represents a durably cataloged generation result owned by a user.
type GeneratedTrack struct {
	ID     string `json:"id"` // Assigned locally at save time, independent of the provider job.
	UserID int64  `json:"userId"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Genre  string `json:"genre"`
	// AudioURL and CoverURL point at owned storage. After a degraded
	// republish they may still point at the provider's transient host.
	AudioURL      string    `json:"audioUrl"`
	CoverURL      string    `json:"coverUrl"`
	ProviderJobID string    `json:"providerJobId"` // Retained for deduplication.
	Duration      int       `json:"duration"`      // Seconds.
	CreatedAt     time.Time `json:"createdAt"`
}
