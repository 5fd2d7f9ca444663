package models

import (
	"time"
)

// Content hierarchy: books contain chapters, chapters contain quests.
// Authored by the content service; this service reads it and never mutates
// anything except the publish-status flip done by the scheduler.

type Book struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Slug     string `gorm:"uniqueIndex;not null" json:"slug"`
	Title    string `gorm:"not null" json:"title"`
	Position int    `json:"position"`

	Timestamps
}

type Chapter struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	BookID   string `gorm:"type:uuid;index;not null" json:"book_id"`
	Slug     string `gorm:"uniqueIndex;not null" json:"slug"`
	Title    string `gorm:"not null" json:"title"`
	Position int    `json:"position"`

	Timestamps
}

// VerificationType selects how a quest completion is checked
type VerificationType string

const (
	VerificationNone   VerificationType = "none"   // completion accepted as-is
	VerificationRemote VerificationType = "remote" // signed exchange with the learner's server
)

// VerificationConfig holds the per-quest parameters for a remote check.
// Stored as jsonb on the quest row.
type VerificationConfig struct {
	URL            string   `json:"url,omitempty"`
	RequiredFields []string `json:"required_fields,omitempty"`
}

// QuestPublishStatus mirrors the content service's publishing workflow
type QuestPublishStatus string

const (
	QuestDraft     QuestPublishStatus = "draft"
	QuestScheduled QuestPublishStatus = "scheduled"
	QuestPublished QuestPublishStatus = "published"
)

type Quest struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ChapterID string `gorm:"type:uuid;index;not null" json:"chapter_id"`
	Slug      string `gorm:"uniqueIndex;not null" json:"slug"`
	Title     string `gorm:"not null" json:"title"`
	Position  int    `json:"position"`

	// At most one direct predecessor — the prerequisite graph is a forest.
	PrerequisiteQuestID *string `gorm:"type:uuid;index" json:"prerequisite_quest_id,omitempty"`

	VerificationType   VerificationType   `gorm:"type:varchar(16);not null;default:'none'" json:"verification_type"`
	VerificationConfig VerificationConfig `gorm:"type:jsonb;serializer:json" json:"verification_config"`

	Status    QuestPublishStatus `gorm:"type:varchar(16);not null;default:'published';index" json:"status"`
	PublishAt *time.Time         `json:"publish_at,omitempty"`

	Timestamps
}
