package models

import (
	"time"
)

// UserReward records that a user earned a reward. The (user_id, reward_id)
// unique index is the grant invariant: a duplicate insert is rejected by the
// database, which is what makes concurrent evaluations safe.
type UserReward struct {
	ID       string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_reward" json:"user_id"`
	RewardID string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_reward" json:"reward_id"`
	EarnedAt time.Time `gorm:"autoCreateTime" json:"earned_at"`
}

// UserCurrency is the per-user coin balance. Writes from this service are
// additive only; the increment happens in the database, never read-modify-write
// in application code.
type UserCurrency struct {
	ID     string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Coins  int64  `gorm:"not null;default:0" json:"coins"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
