// services/content.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"learning-quest-system/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

var ErrQuestNotFound = errors.New("quest not found")

// ContentService is the read side of the book/chapter/quest hierarchy. The
// content is authored elsewhere; the only mutation this service performs is
// the scheduled publish flip.
type ContentService struct {
	DB *gorm.DB
}

func NewContentService(db *gorm.DB) *ContentService {
	return &ContentService{DB: db}
}

// GetPublishedQuest loads one quest that is visible to learners.
func (s *ContentService) GetPublishedQuest(questID string) (*models.Quest, error) {
	var quest models.Quest
	err := s.DB.Where("id = ? AND status = ?", questID, models.QuestPublished).First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quest %s: %w", questID, err)
	}
	return &quest, nil
}

// StartPublishScheduler flips scheduled quests to published once their
// publish time passes.
func (s *ContentService) StartPublishScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var quests []models.Quest
			now := time.Now()
			err := s.DB.Where("status = ? AND publish_at <= ?", models.QuestScheduled, now).
				Find(&quests).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, q := range quests {
				q.Status = models.QuestPublished
				q.PublishAt = nil
				if err := s.DB.Save(&q).Error; err != nil {
					log.Printf("[Scheduler] Failed to publish quest %s: %v", q.ID, err)
				} else {
					log.Printf("✅ Auto-published quest: %s", q.Slug)
				}
			}
		}),
	)
}
