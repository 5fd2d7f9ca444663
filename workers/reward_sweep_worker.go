// workers/reward_sweep_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"learning-quest-system/models"
	"learning-quest-system/services"

	"gorm.io/gorm"
)

// RewardSweeper re-runs the reward engine for users with recent completions.
// It exists to catch grants that a completion request failed to evaluate
// (for example, a crash between persisting progress and granting). Safe to
// overlap with live evaluations: the engine grants exactly once.
type RewardSweeper struct {
	DB     *gorm.DB
	Engine *services.RewardEngine
}

func NewRewardSweeper(db *gorm.DB, engine *services.RewardEngine) *RewardSweeper {
	return &RewardSweeper{DB: db, Engine: engine}
}

// recentlyCompletedUsers lists distinct users with completions after the cursor.
func (s *RewardSweeper) recentlyCompletedUsers(since time.Time) ([]string, error) {
	var userIDs []string
	err := s.DB.Model(&models.QuestProgress{}).
		Distinct("user_id").
		Where("status = ? AND completed_at > ?", models.QuestStatusCompleted, since).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// PollRewardSweep runs the sweep on a fixed interval until ctx is done.
func PollRewardSweep(ctx context.Context, sweeper *RewardSweeper, pollInterval time.Duration) {
	log.Println("Starting reward sweep polling...")
	lastSweep := time.Now().UTC().Add(-24 * time.Hour)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Reward sweep polling stopped.")
			return
		case <-ticker.C:
			sweepStart := time.Now().UTC()

			userIDs, err := sweeper.recentlyCompletedUsers(lastSweep)
			if err != nil {
				log.Printf("❌ Error listing users for reward sweep: %v", err)
				continue
			}
			if len(userIDs) == 0 {
				continue
			}

			var grantedTotal int
			var failed bool
			for _, userID := range userIDs {
				granted, err := sweeper.Engine.EvaluateUser(userID)
				if err != nil {
					failed = true
					log.Printf("❌ Reward sweep failed for user %s: %v", userID, err)
					continue
				}
				grantedTotal += len(granted)
			}

			if failed {
				// Keep the window — failed users get retried next tick.
				continue
			}
			lastSweep = sweepStart
			if grantedTotal > 0 {
				log.Printf("✅ Reward sweep granted %d reward(s) across %d user(s)", grantedTotal, len(userIDs))
			}
		}
	}
}
