package repository

import (
	"errors"
	"fmt"
	"time"

	"OctaMuse/model"

	"gorm.io/gorm"
)

// StatsRepository defines the interface for the per-user credit ledger and
// profile counters. Backed by GORM, 与其他仓库的 database/sql 并存.
type StatsRepository interface {
	// GetByUserID returns nil, nil when the user has no stats row yet.
	GetByUserID(userID int64) (*model.UserStats, error)
	Create(stats *model.UserStats) error
	UpdateCredits(userID int64, credits int) error
	IncrementCreatedMusics(userID int64) error
	UpdateFavoriteGenre(userID int64, genre string) error
	UpdateLastLoginDate(userID int64, date string) error
	UpdateMembership(userID int64, membershipType string, credits int) error
}

type gormStatsRepository struct {
	db *gorm.DB
}

// NewGormStatsRepository creates a new instance of gormStatsRepository
func NewGormStatsRepository(db *gorm.DB) StatsRepository {
	return &gormStatsRepository{db: db}
}

func (r *gormStatsRepository) GetByUserID(userID int64) (*model.UserStats, error) {
	var stats model.UserStats
	err := r.db.Where("user_id = ?", userID).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stats for user %d: %w", userID, err)
	}
	return &stats, nil
}

func (r *gormStatsRepository) Create(stats *model.UserStats) error {
	if stats.JoinDate == "" {
		stats.JoinDate = time.Now().Format(model.StatsDateFormat)
	}
	if err := r.db.Create(stats).Error; err != nil {
		return fmt.Errorf("failed to create stats for user %d: %w", stats.UserID, err)
	}
	return nil
}

func (r *gormStatsRepository) UpdateCredits(userID int64, credits int) error {
	return r.updateColumn(userID, "credits", credits)
}

func (r *gormStatsRepository) IncrementCreatedMusics(userID int64) error {
	result := r.db.Model(&model.UserStats{}).
		Where("user_id = ?", userID).
		UpdateColumn("created_musics", gorm.Expr("created_musics + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment created musics for user %d: %w", userID, result.Error)
	}
	return nil
}

func (r *gormStatsRepository) UpdateFavoriteGenre(userID int64, genre string) error {
	return r.updateColumn(userID, "favorite_genre", genre)
}

func (r *gormStatsRepository) UpdateLastLoginDate(userID int64, date string) error {
	return r.updateColumn(userID, "last_login_date", date)
}

func (r *gormStatsRepository) UpdateMembership(userID int64, membershipType string, credits int) error {
	result := r.db.Model(&model.UserStats{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"membership_type": membershipType,
			"credits":         credits,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update membership for user %d: %w", userID, result.Error)
	}
	return nil
}

func (r *gormStatsRepository) updateColumn(userID int64, column string, value interface{}) error {
	result := r.db.Model(&model.UserStats{}).
		Where("user_id = ?", userID).
		UpdateColumn(column, value)
	if result.Error != nil {
		return fmt.Errorf("failed to update %s for user %d: %w", column, userID, result.Error)
	}
	return nil
}
