package models

import (
	"time"

	"gorm.io/gorm"
)

// LearnerProfile is a local snapshot of learner data owned by the platform's
// profile service. Populated by the profile sync worker; read-only everywhere
// else in this service.
type LearnerProfile struct {
	ID             string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service UUID
	Username       string  `gorm:"index;not null" json:"username"`
	Email          string  `json:"email,omitempty"`
	DisplayName    *string `json:"display_name,omitempty"`

	// ASCII transliteration of DisplayName/Username, kept for accent-insensitive
	// LIKE search.
	AsciiName string `gorm:"index" json:"-"`

	PreferredLanguage *string `json:"preferred_language,omitempty"`
	AvatarURL         *string `json:"avatar_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
