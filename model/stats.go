package model

// Membership tiers. The list is extensible; anything unknown is treated as Standard.
const (
	MembershipStandard = "Standard"
	MembershipPro      = "Pro"
	MembershipMax      = "Max"
)

const (
	// DefaultCredits is granted when a ledger row is lazily created.
	DefaultCredits = 20
	// ProUpgradeBonus is the one-time credit grant on upgrading to Pro.
	ProUpgradeBonus = 500
	// UnlimitedCredits is the sentinel balance for the Max tier.
	UnlimitedCredits = 99999
)

// StatsDateFormat is the calendar-date layout used for join/login dates.
const StatsDateFormat = "2006-01-02"

// UserStats is the per-user credit and usage ledger.
// 该模块使用 GORM 访问，与 database/sql 的仓库并存。
type UserStats struct {
	ID             int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID         int64  `json:"userId" gorm:"column:user_id;uniqueIndex;not null"`
	CreatedMusics  int    `json:"createdMusics" gorm:"column:created_musics;not null;default:0"`
	FavoriteGenre  string `json:"favoriteGenre" gorm:"column:favorite_genre"`
	MembershipType string `json:"membershipType" gorm:"column:membership_type;not null;default:Standard"`
	JoinDate       string `json:"joinDate" gorm:"column:join_date"`
	LastLoginDate  string `json:"lastLoginDate" gorm:"column:last_login_date"`
	Credits        int    `json:"credits" gorm:"column:credits;not null;default:20"`
}

// TableName maps UserStats onto the user_stats table.
func (UserStats) TableName() string {
	return "user_stats"
}

// Unlimited reports whether the ledger bypasses balance checks entirely.
func (s *UserStats) Unlimited() bool {
	return s.MembershipType == MembershipMax
}
