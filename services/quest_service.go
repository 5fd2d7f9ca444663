// services/quest_service.go
package services

import (
	"errors"
	"log"

	"learning-quest-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// QuestService is the completion workflow: classify, verify against the
// learner's server when required, persist, then evaluate rewards.
type QuestService struct {
	Content     *ContentService
	Progression *ProgressionService
	Verifier    *VerificationClient
	Secrets     *SecretServiceClient
	Rewards     *RewardEngine
	Activity    *ActivityService
}

func NewQuestService(content *ContentService, progression *ProgressionService,
	verifier *VerificationClient, secrets *SecretServiceClient,
	rewards *RewardEngine, activity *ActivityService) *QuestService {
	return &QuestService{
		Content:     content,
		Progression: progression,
		Verifier:    verifier,
		Secrets:     secrets,
		Rewards:     rewards,
		Activity:    activity,
	}
}

// ListQuests returns every published quest classified for the learner.
func (s *QuestService) ListQuests(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	quests, err := s.Progression.ListQuestsWithStatus(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load quests",
			"cause": err.Error(),
		})
	}
	return c.JSON(quests)
}

// CompleteQuest handles POST /quests/:id/complete. Locked quests are
// rejected; a failed verification returns the full verdict so the learner
// can fix their server; success persists the completion, unlocks dependents
// and returns any rewards granted by this completion.
func (s *QuestService) CompleteQuest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	locale := localeFromCtx(c)

	questID := c.Params("id")
	if _, err := uuid.Parse(questID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid quest ID"})
	}

	quest, err := s.Content.GetPublishedQuest(questID)
	if errors.Is(err, ErrQuestNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Quest not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}

	progress, err := s.Progression.LoadProgress(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error", "cause": err.Error()})
	}

	switch ClassifyQuest(quest, progress) {
	case models.QuestStatusLocked:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "quest is locked — complete its prerequisite first",
		})
	case models.QuestStatusCompleted:
		return c.JSON(fiber.Map{
			"verified":        true,
			"already_done":    true,
			"granted_rewards": []models.Reward{},
		})
	}

	if quest.VerificationType == models.VerificationRemote {
		cfg := quest.VerificationConfig
		if cfg.URL == "" {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "quest has no verification URL configured",
			})
		}

		secret, err := s.Secrets.VerificationToken(userID)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "could not resolve verification token",
				"cause": err.Error(),
			})
		}

		result, err := s.Verifier.Verify(c.Context(), cfg.URL, secret, cfg.RequiredFields)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "verification could not be attempted",
				"cause": err.Error(),
			})
		}
		if !result.Verified {
			return c.JSON(fiber.Map{
				"verified":           false,
				"message":            result.Message,
				"missing_fields":     result.MissingFields,
				"unsatisfied_fields": result.UnsatisfiedFields,
				"raw":                result.Raw,
			})
		}
	}

	row, err := s.Progression.CompleteQuest(userID, quest.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to persist completion",
			"cause": err.Error(),
		})
	}
	s.Activity.Record(userID, "quest_completed", quest.Slug, locale, map[string]interface{}{
		"quest_id": quest.ID,
	})

	granted, err := s.Rewards.EvaluateUser(userID)
	if err != nil {
		// The completion is already durable; surface the reward failure
		// without undoing it. The sweep worker will pick the grants up.
		log.Printf("⚠️ Reward evaluation failed for %s after quest %s: %v", userID, quest.Slug, err)
		return c.JSON(fiber.Map{
			"verified":        true,
			"progress":        row,
			"granted_rewards": []models.Reward{},
			"reward_error":    "reward evaluation deferred",
		})
	}
	if granted == nil {
		granted = []models.Reward{}
	}

	return c.JSON(fiber.Map{
		"verified":        true,
		"progress":        row,
		"granted_rewards": granted,
	})
}

func localeFromCtx(c *fiber.Ctx) string {
	if v, ok := c.Locals("locale").(string); ok {
		return v
	}
	return ""
}
