package services

import (
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"learning-quest-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func set(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// fixed lookup tables standing in for the content store
func fakeEnv(completed map[string]struct{}, chapters, books map[string][]string) *conditionEnv {
	return &conditionEnv{
		completed: completed,
		chapterQuests: func(id string) ([]string, error) {
			return chapters[id], nil
		},
		bookQuests: func(id string) ([]string, error) {
			return books[id], nil
		},
	}
}

func TestQuestConditionSatisfied(t *testing.T) {
	env := fakeEnv(set("q1"), nil, nil)

	cond := &QuestCondition{QuestID: "q1"}
	if ok, _ := cond.satisfied(env); !ok {
		t.Error("completed quest should satisfy")
	}
	cond = &QuestCondition{QuestID: "q2"}
	if ok, _ := cond.satisfied(env); ok {
		t.Error("uncompleted quest should not satisfy")
	}
}

func TestChapterConditionRequiresEveryQuest(t *testing.T) {
	chapters := map[string][]string{
		"ch1":   {"q1", "q2"},
		"empty": {},
	}

	cond := &ChapterCondition{ChapterID: "ch1"}
	if ok, _ := cond.satisfied(fakeEnv(set("q1", "q2"), chapters, nil)); !ok {
		t.Error("fully completed chapter should satisfy")
	}
	if ok, _ := cond.satisfied(fakeEnv(set("q1"), chapters, nil)); ok {
		t.Error("partially completed chapter should not satisfy")
	}

	// A container with nothing to complete cannot trigger a reward.
	empty := &ChapterCondition{ChapterID: "empty"}
	if ok, _ := empty.satisfied(fakeEnv(set("q1", "q2"), chapters, nil)); ok {
		t.Error("empty chapter must never satisfy")
	}
}

func TestEmptyBookNeverSatisfies(t *testing.T) {
	books := map[string][]string{"empty-book": {}}
	cond := &BookCondition{BookID: "empty-book"}

	for _, completed := range []map[string]struct{}{
		set(),
		set("q1"),
		set("q1", "q2", "q3", "q4"),
	} {
		if ok, _ := cond.satisfied(fakeEnv(completed, nil, books)); ok {
			t.Errorf("empty book satisfied with completion set of %d", len(completed))
		}
	}
}

func TestBookConditionAcrossChapters(t *testing.T) {
	books := map[string][]string{"b1": {"q1", "q2", "q3"}}
	cond := &BookCondition{BookID: "b1"}

	if ok, _ := cond.satisfied(fakeEnv(set("q1", "q2", "q3"), nil, books)); !ok {
		t.Error("fully completed book should satisfy")
	}
	if ok, _ := cond.satisfied(fakeEnv(set("q1", "q2"), nil, books)); ok {
		t.Error("partially completed book should not satisfy")
	}
}

func TestCustomConditionAnyVsAll(t *testing.T) {
	env := fakeEnv(set("A"), nil, nil)

	anyOf := &CustomCondition{QuestIDs: []string{"A", "B"}, RequireAll: false}
	if ok, _ := anyOf.satisfied(env); !ok {
		t.Error("ANY-mode should satisfy with one completed")
	}
	allOf := &CustomCondition{QuestIDs: []string{"A", "B"}, RequireAll: true}
	if ok, _ := allOf.satisfied(env); ok {
		t.Error("ALL-mode should not satisfy with one missing")
	}
	if ok, _ := allOf.satisfied(fakeEnv(set("A", "B"), nil, nil)); !ok {
		t.Error("ALL-mode should satisfy with both completed")
	}

	// Empty id lists never satisfy in either mode.
	emptyAll := &CustomCondition{RequireAll: true}
	if ok, _ := emptyAll.satisfied(env); ok {
		t.Error("empty ALL-mode condition must never satisfy")
	}
	emptyAny := &CustomCondition{RequireAll: false}
	if ok, _ := emptyAny.satisfied(env); ok {
		t.Error("empty ANY-mode condition must never satisfy")
	}
}

func TestDecodeCondition(t *testing.T) {
	cond, err := DecodeCondition(models.ConditionTypeQuest, `{"quest_id":"q1"}`)
	if err != nil {
		t.Fatalf("DecodeCondition: %v", err)
	}
	if q, ok := cond.(*QuestCondition); !ok || q.QuestID != "q1" {
		t.Errorf("unexpected variant %#v", cond)
	}

	cond, err = DecodeCondition(models.ConditionTypeCustom, `{"quest_ids":["a","b"],"require_all":true}`)
	if err != nil {
		t.Fatalf("DecodeCondition: %v", err)
	}
	if c, ok := cond.(*CustomCondition); !ok || !c.RequireAll || len(c.QuestIDs) != 2 {
		t.Errorf("unexpected variant %#v", cond)
	}

	if _, err := DecodeCondition(models.ConditionType("bogus"), `{}`); err == nil {
		t.Error("unknown condition type should fail")
	}
	if _, err := DecodeCondition(models.ConditionTypeBook, `not json`); err == nil {
		t.Error("malformed config should fail")
	}
}

// --- DB-backed grant tests (skipped without DATABASE_URL) ---

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Book{}, &models.Chapter{}, &models.Quest{},
		&models.QuestProgress{}, &models.Reward{}, &models.UserReward{},
		&models.UserCurrency{}, &models.ActivityLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedQuest creates a published quest inside a fresh book/chapter.
func seedQuest(t *testing.T, db *gorm.DB) *models.Quest {
	t.Helper()
	book := models.Book{ID: uuid.NewString(), Slug: "book-" + uuid.NewString(), Title: "Book"}
	if err := db.Create(&book).Error; err != nil {
		t.Fatalf("seed book: %v", err)
	}
	chapter := models.Chapter{ID: uuid.NewString(), BookID: book.ID, Slug: "chapter-" + uuid.NewString(), Title: "Chapter"}
	if err := db.Create(&chapter).Error; err != nil {
		t.Fatalf("seed chapter: %v", err)
	}
	quest := models.Quest{
		ID:        uuid.NewString(),
		ChapterID: chapter.ID,
		Slug:      "quest-" + uuid.NewString(),
		Title:     "Quest",
		Status:    models.QuestPublished,
	}
	if err := db.Create(&quest).Error; err != nil {
		t.Fatalf("seed quest: %v", err)
	}
	return &quest
}

func seedCompletion(t *testing.T, db *gorm.DB, userID, questID string) {
	t.Helper()
	now := time.Now()
	row := models.QuestProgress{
		ID:          uuid.NewString(),
		UserID:      userID,
		QuestID:     questID,
		Status:      models.QuestStatusCompleted,
		CompletedAt: &now,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed completion: %v", err)
	}
}

func seedCoinReward(t *testing.T, db *gorm.DB, questID string, value int64) *models.Reward {
	t.Helper()
	reward := models.Reward{
		ID:              uuid.NewString(),
		Slug:            "reward-" + uuid.NewString(),
		Title:           "Coin Reward",
		Type:            models.RewardTypeCoin,
		Value:           value,
		ConditionType:   models.ConditionTypeQuest,
		ConditionConfig: fmt.Sprintf(`{"quest_id":%q}`, questID),
		IsActive:        true,
	}
	if err := db.Create(&reward).Error; err != nil {
		t.Fatalf("seed reward: %v", err)
	}
	return &reward
}

func coinBalance(t *testing.T, db *gorm.DB, userID string) int64 {
	t.Helper()
	var balance models.UserCurrency
	err := db.Where("user_id = ?", userID).First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		return 0
	}
	if err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return balance.Coins
}

func TestGrantExactlyOnceSequential(t *testing.T) {
	db := setupTestDB(t)
	engine := NewRewardEngine(db, NewActivityService(db))

	userID := uuid.NewString()
	quest := seedQuest(t, db)
	reward := seedCoinReward(t, db, quest.ID, 25)
	seedCompletion(t, db, userID, quest.ID)

	first, err := engine.EvaluateUser(userID)
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if len(first) != 1 || first[0].ID != reward.ID {
		t.Fatalf("expected one grant of %s, got %d", reward.Slug, len(first))
	}

	second, err := engine.EvaluateUser(userID)
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second evaluation granted %d rewards, want 0", len(second))
	}

	if coins := coinBalance(t, db, userID); coins != 25 {
		t.Errorf("balance = %d, want 25", coins)
	}
}

func TestGrantExactlyOnceConcurrent(t *testing.T) {
	db := setupTestDB(t)
	engine := NewRewardEngine(db, NewActivityService(db))

	userID := uuid.NewString()
	quest := seedQuest(t, db)
	seedCoinReward(t, db, quest.ID, 40)
	seedCompletion(t, db, userID, quest.ID)

	const workers = 8
	grants := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			granted, err := engine.EvaluateUser(userID)
			if err != nil {
				t.Errorf("concurrent evaluation: %v", err)
				return
			}
			grants[slot] = len(granted)
		}(i)
	}
	wg.Wait()

	total := 0
	for _, n := range grants {
		total += n
	}
	if total != 1 {
		t.Errorf("reward granted %d times across concurrent evaluations, want 1", total)
	}
	if coins := coinBalance(t, db, userID); coins != 40 {
		t.Errorf("balance = %d, want 40 (incremented exactly once)", coins)
	}
}

func TestCompleteQuestUnlocksDependentsAndIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	progression := NewProgressionService(db)

	userID := uuid.NewString()
	parent := seedQuest(t, db)
	child := models.Quest{
		ID:                  uuid.NewString(),
		ChapterID:           parent.ChapterID,
		Slug:                "quest-" + uuid.NewString(),
		Title:               "Dependent",
		PrerequisiteQuestID: &parent.ID,
		Status:              models.QuestPublished,
	}
	if err := db.Create(&child).Error; err != nil {
		t.Fatalf("seed child quest: %v", err)
	}

	row, err := progression.CompleteQuest(userID, parent.ID)
	if err != nil {
		t.Fatalf("CompleteQuest: %v", err)
	}
	if row.Status != models.QuestStatusCompleted || row.CompletedAt == nil {
		t.Fatalf("unexpected progress row: %+v", row)
	}

	progress, err := progression.LoadProgress(userID)
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	dep, ok := progress[child.ID]
	if !ok || dep.Status != models.QuestStatusAvailable {
		t.Errorf("dependent quest not promoted to available: %+v", dep)
	}

	// Re-completing keeps the original completed_at. Compare at millisecond
	// precision: the repeat read comes back from Postgres, which stores
	// microseconds.
	again, err := progression.CompleteQuest(userID, parent.ID)
	if err != nil {
		t.Fatalf("repeat CompleteQuest: %v", err)
	}
	if !again.CompletedAt.Truncate(time.Millisecond).Equal(row.CompletedAt.Truncate(time.Millisecond)) {
		t.Errorf("completed_at changed on repeat completion: %v vs %v", again.CompletedAt, row.CompletedAt)
	}
}
