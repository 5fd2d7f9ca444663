// services/activity.go
package services

import (
	"encoding/json"
	"log"

	"learning-quest-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
	"gorm.io/gorm"
)

type ActivityService struct {
	DB *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{DB: db}
}

// Record appends an audit entry. Fire-and-forget: a failed write is logged
// and swallowed so it can never roll back the action being audited.
func (s *ActivityService) Record(userID, action, subject, locale string, metadata map[string]interface{}) {
	entry := models.ActivityLog{
		ID:      uuid.NewString(),
		UserID:  userID,
		Action:  action,
		Subject: subject,
		Locale:  locale,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("⚠️ [ACTIVITY] failed to encode metadata for %s/%s: %v", action, subject, err)
		} else {
			entry.Metadata = string(raw)
		}
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		log.Printf("⚠️ [ACTIVITY] failed to record %s/%s for user %s: %v", action, subject, userID, err)
	}
}

// RecentForUser returns the newest entries for a user.
func (s *ActivityService) RecentForUser(userID string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var entries []models.ActivityLog
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// GetUserActivity lists the authenticated learner's recent activity.
func (s *ActivityService) GetUserActivity(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	limit := c.QueryInt("limit", 50)

	entries, err := s.RecentForUser(userID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load activity",
			"cause": err.Error(),
		})
	}
	return c.JSON(entries)
}

// AsciiName folds a display name to plain ASCII for log lines and
// accent-insensitive search columns.
func AsciiName(name string) string {
	return unidecode.Unidecode(name)
}
