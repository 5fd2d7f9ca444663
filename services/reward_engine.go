// services/reward_engine.go
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"learning-quest-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardCondition is the tagged union behind Reward.ConditionConfig, one
// variant per ConditionType. Adding a condition kind means one new variant
// here plus one case in DecodeCondition.
type RewardCondition interface {
	satisfied(env *conditionEnv) (bool, error)
}

// QuestCondition: the named quest is completed
type QuestCondition struct {
	QuestID string `json:"quest_id"`
}

// ChapterCondition: every quest in the chapter is completed
type ChapterCondition struct {
	ChapterID string `json:"chapter_id"`
}

// BookCondition: every quest in every chapter of the book is completed
type BookCondition struct {
	BookID string `json:"book_id"`
}

// CustomCondition: an explicit quest id list, ALL or ANY semantics
type CustomCondition struct {
	QuestIDs   []string `json:"quest_ids"`
	RequireAll bool     `json:"require_all"`
}

// DecodeCondition parses a reward's ConditionConfig into its variant.
func DecodeCondition(conditionType models.ConditionType, raw string) (RewardCondition, error) {
	switch conditionType {
	case models.ConditionTypeQuest:
		var c QuestCondition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("invalid quest condition config: %w", err)
		}
		return &c, nil
	case models.ConditionTypeChapter:
		var c ChapterCondition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("invalid chapter condition config: %w", err)
		}
		return &c, nil
	case models.ConditionTypeBook:
		var c BookCondition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("invalid book condition config: %w", err)
		}
		return &c, nil
	case models.ConditionTypeCustom:
		var c CustomCondition
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("invalid custom condition config: %w", err)
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("unknown condition type %q", conditionType)
	}
}

// conditionEnv supplies a condition with the user's completed set and lazy
// lookups for container membership. The lookups are injected so conditions
// stay evaluable without a database in tests.
type conditionEnv struct {
	completed     map[string]struct{}
	chapterQuests func(chapterID string) ([]string, error)
	bookQuests    func(bookID string) ([]string, error)
}

func (c *QuestCondition) satisfied(env *conditionEnv) (bool, error) {
	_, ok := env.completed[c.QuestID]
	return ok, nil
}

func (c *ChapterCondition) satisfied(env *conditionEnv) (bool, error) {
	ids, err := env.chapterQuests(c.ChapterID)
	if err != nil {
		return false, err
	}
	return allCompleted(ids, env.completed), nil
}

func (c *BookCondition) satisfied(env *conditionEnv) (bool, error) {
	ids, err := env.bookQuests(c.BookID)
	if err != nil {
		return false, err
	}
	return allCompleted(ids, env.completed), nil
}

func (c *CustomCondition) satisfied(env *conditionEnv) (bool, error) {
	if c.RequireAll {
		return allCompleted(c.QuestIDs, env.completed), nil
	}
	for _, id := range c.QuestIDs {
		if _, ok := env.completed[id]; ok {
			return true, nil
		}
	}
	return false, nil
}

// allCompleted is a set-containment check. An empty id list never satisfies:
// a container with nothing to complete cannot trigger a reward.
func allCompleted(ids []string, completed map[string]struct{}) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if _, ok := completed[id]; !ok {
			return false
		}
	}
	return true
}

// RewardEngine evaluates active, unearned rewards for a user and grants each
// exactly once. The (user, reward) unique index is the only serialization
// point; no in-process locking, so concurrent invocations for the same user
// are safe.
type RewardEngine struct {
	DB       *gorm.DB
	Activity *ActivityService
}

func NewRewardEngine(db *gorm.DB, activity *ActivityService) *RewardEngine {
	return &RewardEngine{DB: db, Activity: activity}
}

// EvaluateUser checks every active reward the user has not earned and grants
// the satisfied ones. Returns only the rewards newly granted by this call;
// an empty slice is the normal no-op outcome.
func (e *RewardEngine) EvaluateUser(userID string) ([]models.Reward, error) {
	var completedIDs []string
	if err := e.DB.Model(&models.QuestProgress{}).
		Where("user_id = ? AND status = ?", userID, models.QuestStatusCompleted).
		Pluck("quest_id", &completedIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load completed quests: %w", err)
	}
	completed := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = struct{}{}
	}

	var earnedIDs []string
	if err := e.DB.Model(&models.UserReward{}).
		Where("user_id = ?", userID).
		Pluck("reward_id", &earnedIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load earned rewards: %w", err)
	}
	earned := make(map[string]struct{}, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = struct{}{}
	}

	var rewards []models.Reward
	if err := e.DB.Where("is_active = ?", true).Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("failed to load active rewards: %w", err)
	}

	env := &conditionEnv{
		completed:     completed,
		chapterQuests: e.memoized(e.questIDsInChapter),
		bookQuests:    e.memoized(e.questIDsInBook),
	}

	var granted []models.Reward
	for i := range rewards {
		reward := rewards[i]
		if _, already := earned[reward.ID]; already {
			continue
		}

		condition, err := DecodeCondition(reward.ConditionType, reward.ConditionConfig)
		if err != nil {
			// Broken content must not take the whole evaluation down.
			log.Printf("⚠️ [REWARDS] skipping reward %s: %v", reward.Slug, err)
			continue
		}
		ok, err := condition.satisfied(env)
		if err != nil {
			return granted, fmt.Errorf("failed to evaluate reward %s: %w", reward.Slug, err)
		}
		if !ok {
			continue
		}

		newlyGranted, err := e.grant(userID, &reward)
		if err != nil {
			return granted, err
		}
		if newlyGranted {
			granted = append(granted, reward)
		}
	}
	return granted, nil
}

// grant performs the earn insert and the currency accrual as one transaction.
// A duplicate-key no-op on the earn insert means another invocation got there
// first: the whole grant is skipped, currency untouched. The activity entry
// is written after commit, fire-and-forget.
func (e *RewardEngine) grant(userID string, reward *models.Reward) (bool, error) {
	var newlyGranted bool
	err := e.DB.Transaction(func(tx *gorm.DB) error {
		earn := models.UserReward{
			ID:       uuid.NewString(),
			UserID:   userID,
			RewardID: reward.ID,
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "reward_id"}},
			DoNothing: true,
		}).Create(&earn)
		if insert.Error != nil {
			return fmt.Errorf("failed to insert earn record for %s: %w", reward.Slug, insert.Error)
		}
		if insert.RowsAffected == 0 {
			// Lost the race — already granted elsewhere.
			return nil
		}
		newlyGranted = true

		if reward.Type == models.RewardTypeCoin && reward.Value > 0 {
			balance := models.UserCurrency{
				ID:     uuid.NewString(),
				UserID: userID,
				Coins:  reward.Value,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"coins":      gorm.Expr("user_currencies.coins + ?", reward.Value),
					"updated_at": time.Now(),
				}),
			}).Create(&balance).Error; err != nil {
				return fmt.Errorf("failed to accrue %d coins for %s: %w", reward.Value, reward.Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if newlyGranted {
		log.Printf("🏅 Reward granted: %s → %s", reward.Slug, userID)
		e.Activity.Record(userID, "reward_granted", reward.Slug, "", map[string]interface{}{
			"reward_id": reward.ID,
			"type":      reward.Type,
			"value":     reward.Value,
		})
	}
	return newlyGranted, nil
}

// memoized caches container lookups for the lifetime of one evaluation.
func (e *RewardEngine) memoized(lookup func(string) ([]string, error)) func(string) ([]string, error) {
	cache := make(map[string][]string)
	return func(id string) ([]string, error) {
		if ids, ok := cache[id]; ok {
			return ids, nil
		}
		ids, err := lookup(id)
		if err != nil {
			return nil, err
		}
		cache[id] = ids
		return ids, nil
	}
}

func (e *RewardEngine) questIDsInChapter(chapterID string) ([]string, error) {
	var ids []string
	err := e.DB.Model(&models.Quest{}).
		Where("chapter_id = ?", chapterID).
		Pluck("id", &ids).Error
	return ids, err
}

func (e *RewardEngine) questIDsInBook(bookID string) ([]string, error) {
	var ids []string
	err := e.DB.Model(&models.Quest{}).
		Joins("INNER JOIN chapters ON chapters.id = quests.chapter_id").
		Where("chapters.book_id = ?", bookID).
		Pluck("quests.id", &ids).Error
	return ids, err
}
