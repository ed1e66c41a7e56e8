package credit

import (
	"errors"
	"fmt"
	"time"

	"OctaMuse/logger"
	"OctaMuse/model"
	"OctaMuse/repository"
)

// ErrInsufficientCredits is returned by Debit when the balance cannot cover
// the cost. Callers treat it as a user-facing condition, not a system error.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Ledger manages per-user credits and profile counters. Every accessor
// lazily provisions a Standard row with the default balance on first touch.
type Ledger struct {
	repo repository.StatsRepository
	cost int
}

// NewLedger creates a ledger with the configured per-generation cost.
func NewLedger(repo repository.StatsRepository, costPerGeneration int) *Ledger {
	return &Ledger{repo: repo, cost: costPerGeneration}
}

// GetOrCreate returns the user's stats row, creating the Standard default
// when none exists yet.
func (l *Ledger) GetOrCreate(userID int64) (*model.UserStats, error) {
	stats, err := l.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if stats != nil {
		return stats, nil
	}

	stats = &model.UserStats{
		UserID:         userID,
		MembershipType: model.MembershipStandard,
		Credits:        model.DefaultCredits,
		JoinDate:       time.Now().Format(model.StatsDateFormat),
	}
	if err := l.repo.Create(stats); err != nil {
		return nil, err
	}
	logger.Info("[Credit] 初始化用户积分账户",
		logger.Int64("userId", userID),
		logger.Int("credits", stats.Credits))
	return stats, nil
}

// Debit charges one generation. Max members are never charged and their
// sentinel balance is left untouched.
// 读改写之间存在竞争窗口；单实例部署下可接受，多实例需改为条件 UPDATE。
func (l *Ledger) Debit(userID int64) error {
	stats, err := l.GetOrCreate(userID)
	if err != nil {
		return err
	}

	if stats.Unlimited() {
		logger.Debug("[Credit] Max 会员免扣费", logger.Int64("userId", userID))
		return nil
	}

	if stats.Credits < l.cost {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, stats.Credits, l.cost)
	}

	remaining := stats.Credits - l.cost
	if err := l.repo.UpdateCredits(userID, remaining); err != nil {
		return err
	}
	logger.Info("[Credit] 扣除生成积分",
		logger.Int64("userId", userID),
		logger.Int("cost", l.cost),
		logger.Int("remaining", remaining))
	return nil
}

// CanAfford reports whether the user could pay for one generation right now.
func (l *Ledger) CanAfford(userID int64) (bool, error) {
	stats, err := l.GetOrCreate(userID)
	if err != nil {
		return false, err
	}
	return stats.Unlimited() || stats.Credits >= l.cost, nil
}

// IncrementCreatedMusics bumps the lifetime generation counter.
func (l *Ledger) IncrementCreatedMusics(userID int64) error {
	if _, err := l.GetOrCreate(userID); err != nil {
		return err
	}
	return l.repo.IncrementCreatedMusics(userID)
}

// SetFavoriteGenre records the user's preferred genre.
func (l *Ledger) SetFavoriteGenre(userID int64, genre string) error {
	if _, err := l.GetOrCreate(userID); err != nil {
		return err
	}
	return l.repo.UpdateFavoriteGenre(userID, genre)
}

// TouchLastLogin stamps today's date on the stats row.
func (l *Ledger) TouchLastLogin(userID int64) error {
	if _, err := l.GetOrCreate(userID); err != nil {
		return err
	}
	return l.repo.UpdateLastLoginDate(userID, time.Now().Format(model.StatsDateFormat))
}

// SetMembershipType changes the user's tier. Upgrading to Pro grants the
// one-time bonus on top of the current balance; Max pins the sentinel value.
// Repeating the current tier is a no-op so the Pro bonus cannot be farmed.
func (l *Ledger) SetMembershipType(userID int64, membershipType string) error {
	switch membershipType {
	case model.MembershipStandard, model.MembershipPro, model.MembershipMax:
	default:
		return fmt.Errorf("unknown membership type: %s", membershipType)
	}

	stats, err := l.GetOrCreate(userID)
	if err != nil {
		return err
	}
	if stats.MembershipType == membershipType {
		return nil
	}

	credits := stats.Credits
	switch membershipType {
	case model.MembershipPro:
		if stats.Unlimited() {
			// 从 Max 降级，哨兵余额重置为默认值再加赠送
			credits = model.DefaultCredits
		}
		credits += model.ProUpgradeBonus
	case model.MembershipMax:
		credits = model.UnlimitedCredits
	case model.MembershipStandard:
		if stats.Unlimited() {
			credits = model.DefaultCredits
		}
	}

	if err := l.repo.UpdateMembership(userID, membershipType, credits); err != nil {
		return err
	}
	logger.Info("[Credit] 会员等级变更",
		logger.Int64("userId", userID),
		logger.String("from", stats.MembershipType),
		logger.String("to", membershipType),
		logger.Int("credits", credits))
	return nil
}
