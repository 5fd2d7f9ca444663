// services/learners.go
package services

import (
	"strconv"
	"strings"

	"learning-quest-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type LearnerService struct {
	DB *gorm.DB
}

func NewLearnerService(db *gorm.DB) *LearnerService {
	return &LearnerService{DB: db}
}

// SearchLearners searches the local LearnerProfile snapshot (Admin only).
// Matches against username, email and the ASCII-folded display name so
// accented names are found with plain-ASCII queries.
func (s *LearnerService) SearchLearners(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var profiles []models.LearnerProfile
	db := s.DB.Model(&models.LearnerProfile{}).Limit(limit)

	if query != "" {
		term := "%" + strings.ToLower(strings.TrimSpace(AsciiName(query))) + "%"
		db = db.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ? OR LOWER(ascii_name) LIKE ?",
			term, term, term,
		)
	}

	if err := db.Find(&profiles).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	type LearnerSummary struct {
		ID             string `json:"id"`
		ExternalUserID string `json:"external_user_id"`
		Username       string `json:"username"`
		Email          string `json:"email"`
	}

	res := make([]LearnerSummary, len(profiles))
	for i, p := range profiles {
		res[i] = LearnerSummary{
			ID:             p.ID,
			ExternalUserID: p.ExternalUserID,
			Username:       p.Username,
			Email:          p.Email,
		}
	}
	return c.JSON(res)
}
