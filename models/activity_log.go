package models

import (
	"time"
)

// ActivityLog is an append-only audit entry. Failures writing here never roll
// back the action that produced them.
type ActivityLog struct {
	ID      string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID  string `gorm:"type:uuid;not null;index" json:"user_id"`
	Action  string `gorm:"type:varchar(64);not null" json:"action"`  // e.g. "quest_completed", "reward_granted"
	Subject string `gorm:"type:varchar(255)" json:"subject"`         // slug of the quest/reward involved
	Locale  string `gorm:"type:varchar(16)" json:"locale,omitempty"` // resolved learner locale at event time

	Metadata string `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
