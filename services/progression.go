// services/progression.go
package services

import (
	"fmt"
	"time"

	"learning-quest-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressionService struct {
	DB *gorm.DB
}

func NewProgressionService(db *gorm.DB) *ProgressionService {
	return &ProgressionService{DB: db}
}

// ClassifyQuest derives a quest's status for one user from the quest list
// and the user's persisted progress rows. A persisted row wins verbatim —
// prerequisite re-evaluation never overrides a stored status. Otherwise the
// rule is a single-hop lookup on the direct prerequisite: the completion
// workflow keeps dependent rows in sync, so no transitive walk is needed
// (and malformed cyclic content can never cause unbounded recursion here).
func ClassifyQuest(quest *models.Quest, progress map[string]*models.QuestProgress) models.QuestStatus {
	if row, ok := progress[quest.ID]; ok {
		return row.Status
	}
	if quest.PrerequisiteQuestID == nil {
		return models.QuestStatusAvailable
	}
	prereq, ok := progress[*quest.PrerequisiteQuestID]
	if !ok || prereq.Status != models.QuestStatusCompleted {
		return models.QuestStatusLocked
	}
	return models.QuestStatusAvailable
}

// LoadProgress fetches a user's progress rows keyed by quest id.
func (s *ProgressionService) LoadProgress(userID string) (map[string]*models.QuestProgress, error) {
	var rows []models.QuestProgress
	if err := s.DB.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load quest progress for %s: %w", userID, err)
	}
	progress := make(map[string]*models.QuestProgress, len(rows))
	for i := range rows {
		progress[rows[i].QuestID] = &rows[i]
	}
	return progress, nil
}

// QuestWithStatus pairs a quest with its classified status for one user
type QuestWithStatus struct {
	models.Quest
	UserStatus  models.QuestStatus `json:"user_status"`
	CompletedAt *time.Time         `json:"user_completed_at,omitempty"`
}

// ListQuestsWithStatus returns every published quest classified for the user.
func (s *ProgressionService) ListQuestsWithStatus(userID string) ([]QuestWithStatus, error) {
	var quests []models.Quest
	if err := s.DB.Where("status = ?", models.QuestPublished).
		Order("position ASC").
		Find(&quests).Error; err != nil {
		return nil, fmt.Errorf("failed to load quests: %w", err)
	}

	progress, err := s.LoadProgress(userID)
	if err != nil {
		return nil, err
	}

	out := make([]QuestWithStatus, len(quests))
	for i := range quests {
		out[i] = QuestWithStatus{
			Quest:      quests[i],
			UserStatus: ClassifyQuest(&quests[i], progress),
		}
		if row, ok := progress[quests[i].ID]; ok {
			out[i].CompletedAt = row.CompletedAt
		}
	}
	return out, nil
}

// CompleteQuest persists a completed progress row and promotes the quest's
// direct dependents to available. Idempotent: re-completing an already
// completed quest leaves the original completed_at untouched.
func (s *ProgressionService) CompleteQuest(userID, questID string) (*models.QuestProgress, error) {
	var result models.QuestProgress
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.QuestProgress
		err := tx.Where("user_id = ? AND quest_id = ?", userID, questID).First(&existing).Error
		if err == nil && existing.Status == models.QuestStatusCompleted {
			result = existing
			return nil
		}
		if err != nil && err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to load progress row: %w", err)
		}

		now := time.Now()
		row := models.QuestProgress{
			ID:          uuid.NewString(),
			UserID:      userID,
			QuestID:     questID,
			Status:      models.QuestStatusCompleted,
			CompletedAt: &now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "quest_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":       models.QuestStatusCompleted,
				"completed_at": now,
				"updated_at":   now,
			}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to persist completion: %w", err)
		}
		result = row

		// Promote direct dependents from derived-locked to a persisted
		// available row. DoNothing keeps any row the user already has.
		var dependents []models.Quest
		if err := tx.Where("prerequisite_quest_id = ?", questID).Find(&dependents).Error; err != nil {
			return fmt.Errorf("failed to load dependent quests: %w", err)
		}
		for _, dep := range dependents {
			unlock := models.QuestProgress{
				ID:      uuid.NewString(),
				UserID:  userID,
				QuestID: dep.ID,
				Status:  models.QuestStatusAvailable,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "quest_id"}},
				DoNothing: true,
			}).Create(&unlock).Error; err != nil {
				return fmt.Errorf("failed to unlock dependent quest %s: %w", dep.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CompletedQuestIDs returns the set of quest ids the user has completed.
func (s *ProgressionService) CompletedQuestIDs(userID string) (map[string]struct{}, error) {
	var ids []string
	if err := s.DB.Model(&models.QuestProgress{}).
		Where("user_id = ? AND status = ?", userID, models.QuestStatusCompleted).
		Pluck("quest_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load completed quests: %w", err)
	}
	completed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		completed[id] = struct{}{}
	}
	return completed, nil
}
