// services/reward_service.go
package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"learning-quest-system/models"
	"learning-quest-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type RewardService struct {
	DB     *gorm.DB
	Engine *RewardEngine
}

func NewRewardService(db *gorm.DB, engine *RewardEngine) *RewardService {
	return &RewardService{DB: db, Engine: engine}
}

// --- User Handlers ---

// EarnedReward is a user's earn record joined with its reward definition
type EarnedReward struct {
	models.Reward
	EarnedAt time.Time `json:"earned_at"`
}

// GetUserRewards lists the authenticated learner's earned rewards, newest first.
func (s *RewardService) GetUserRewards(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var earned []EarnedReward
	err := s.DB.Model(&models.UserReward{}).
		Select("rewards.*, user_rewards.earned_at").
		Joins("INNER JOIN rewards ON rewards.id = user_rewards.reward_id").
		Where("user_rewards.user_id = ?", userID).
		Order("user_rewards.earned_at DESC").
		Scan(&earned).Error
	if err != nil {
		log.Printf("DB Error fetching user rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rewards"})
	}
	return c.JSON(earned)
}

// GetUserCurrency returns the learner's coin balance (zero if no row yet).
func (s *RewardService) GetUserCurrency(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var balance models.UserCurrency
	err := s.DB.Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"user_id": userID, "coins": 0})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}
	return c.JSON(fiber.Map{"user_id": userID, "coins": balance.Coins})
}

// StreamUserRewardsSSE pushes newly granted rewards to the learner in real
// time. Poll-based cursor over user_rewards.earned_at, same shape as any
// other fasthttp stream writer.
func (s *RewardService) StreamUserRewardsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		cursor := time.Now()
		var latest models.UserReward
		if err := s.DB.
			Where("user_id = ?", userID).
			Order("earned_at DESC").
			First(&latest).Error; err == nil {
			cursor = latest.EarnedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				var fresh []EarnedReward
				err := s.DB.Model(&models.UserReward{}).
					Select("rewards.*, user_rewards.earned_at").
					Joins("INNER JOIN rewards ON rewards.id = user_rewards.reward_id").
					Where("user_rewards.user_id = ? AND user_rewards.earned_at > ?", userID, cursor).
					Order("user_rewards.earned_at ASC").
					Scan(&fresh).Error
				if err != nil {
					log.Printf("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(fresh) == 0 {
					continue
				}
				cursor = fresh[len(fresh)-1].EarnedAt

				for _, r := range fresh {
					payload, _ := json.Marshal(r)
					fmt.Fprintf(w, "event: reward\ndata: %s\n\n", payload)
				}
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-c.Context().Done():
				return
			}
		}
	})

	return nil
}

// --- Admin Handlers ---

// CreateReward creates a reward definition (Admin only)
func (s *RewardService) CreateReward(c *fiber.Ctx) error {
	var req struct {
		Title           string               `json:"title" validate:"required"`
		Type            models.RewardType    `json:"type" validate:"required,oneof=badge coin perk"`
		Value           int64                `json:"value"`
		ConditionType   models.ConditionType `json:"condition_type" validate:"required,oneof=quest chapter book custom"`
		ConditionConfig json.RawMessage      `json:"condition_config" validate:"required"`
		IsActive        *bool                `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Type == models.RewardTypeCoin && req.Value <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Value is required for coin rewards"})
	}
	// Reject unparseable conditions up front instead of at evaluation time
	if _, err := DecodeCondition(req.ConditionType, string(req.ConditionConfig)); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reward := &models.Reward{
		ID:              uuid.NewString(),
		Slug:            slug.Make(req.Title),
		Title:           req.Title,
		Type:            req.Type,
		Value:           req.Value,
		ConditionType:   req.ConditionType,
		ConditionConfig: string(req.ConditionConfig),
		IsActive:        true,
	}
	if req.IsActive != nil {
		reward.IsActive = *req.IsActive
	}

	if err := s.DB.Create(reward).Error; err != nil {
		log.Printf("DB Error creating reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create reward"})
	}
	return c.Status(fiber.StatusCreated).JSON(reward)
}

// UpdateReward updates a reward definition (Admin only)
func (s *RewardService) UpdateReward(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var existing models.Reward
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title           *string               `json:"title"`
		Type            *models.RewardType    `json:"type"`
		Value           *int64                `json:"value"`
		ConditionType   *models.ConditionType `json:"condition_type"`
		ConditionConfig *json.RawMessage      `json:"condition_config"`
		IsActive        *bool                 `json:"is_active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if req.Title != nil {
		existing.Title = *req.Title
		existing.Slug = slug.Make(*req.Title)
	}
	if req.Type != nil {
		existing.Type = *req.Type
	}
	if req.Value != nil {
		existing.Value = *req.Value
	}
	if req.ConditionType != nil {
		existing.ConditionType = *req.ConditionType
	}
	if req.ConditionConfig != nil {
		existing.ConditionConfig = string(*req.ConditionConfig)
	}
	if req.ConditionType != nil || req.ConditionConfig != nil {
		if _, err := DecodeCondition(existing.ConditionType, existing.ConditionConfig); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		log.Printf("DB Error updating reward: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update reward"})
	}
	return c.JSON(existing)
}

// UploadRewardIcon stores a reward's icon in R2 and saves the CDN URL (Admin only)
func (s *RewardService) UploadRewardIcon(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid reward ID"})
	}

	var reward models.Reward
	if err := s.DB.First(&reward, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("icon")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
	}

	iconURL, err := utils.UploadRewardIcon(fileHeader, reward.ID)
	if err != nil {
		log.Printf("Icon upload failed for reward %s: %v", reward.ID, err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	reward.IconURL = iconURL
	if err := s.DB.Save(&reward).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save icon URL"})
	}
	return c.JSON(fiber.Map{"message": "Icon uploaded", "icon_url": iconURL})
}

// GetAllRewards fetches all reward definitions (Admin only)
func (s *RewardService) GetAllRewards(c *fiber.Ctx) error {
	var rewards []models.Reward
	if err := s.DB.Find(&rewards).Error; err != nil {
		log.Printf("DB Error fetching all rewards: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch rewards"})
	}
	return c.JSON(rewards)
}

// EvaluateUserRewards re-runs the engine for one user (Admin only). Safe to
// call any number of times; grants are exactly-once.
func (s *RewardService) EvaluateUserRewards(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"user_id" validate:"required,uuid"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if _, err := uuid.Parse(req.UserID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user ID"})
	}

	granted, err := s.Engine.EvaluateUser(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "reward evaluation failed",
			"cause": err.Error(),
		})
	}
	if granted == nil {
		granted = []models.Reward{}
	}
	return c.JSON(fiber.Map{"granted": granted})
}
