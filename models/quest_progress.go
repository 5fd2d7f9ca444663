package models

import (
	"time"

	"gorm.io/gorm"
)

// QuestStatus is a learner's standing on one quest
type QuestStatus string

const (
	QuestStatusLocked    QuestStatus = "locked"
	QuestStatusAvailable QuestStatus = "available"
	QuestStatusCompleted QuestStatus = "completed"
)

// QuestProgress is the persisted per-(user, quest) row. A row only exists
// once a quest has been attempted or unlocked — absence means the status is
// derived from the prerequisite.
type QuestProgress struct {
	ID      string      `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID  string      `gorm:"type:uuid;not null;uniqueIndex:idx_user_quest" json:"user_id"`
	QuestID string      `gorm:"type:uuid;not null;uniqueIndex:idx_user_quest" json:"quest_id"`
	Status  QuestStatus `gorm:"type:varchar(16);not null" json:"status"`

	// Set once on completion, cleared only by an administrative reset.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
