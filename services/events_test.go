// services/events_test.go
package services

import (
	"fmt"
	"strings"
	"testing"

	"achievement-engine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.AchievementGroup{},
		&models.Achievement{},
		&models.AchievementProgress{},
		&models.PendingCommand{},
		&models.ServerGroup{},
	))
	return db
}

func newTestEngine(t *testing.T) (*EventService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	rewards := NewRewardService(db, NewNotifier())
	return NewEventService(db, rewards), db
}

func createTestUser(t *testing.T, db *gorm.DB, mcName string) *models.User {
	t.Helper()
	user := &models.User{
		ID:       uuid.NewString(),
		Username: "web_" + mcName,
	}
	if mcName != "" {
		mcUUID := uuid.NewString()
		user.MinecraftUsername = &mcName
		user.MinecraftUUID = &mcUUID
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestAchievement(t *testing.T, db *gorm.DB, doc models.ConditionsDoc, mutate ...func(*models.Achievement)) *models.Achievement {
	t.Helper()
	ach := &models.Achievement{
		ID:          uuid.NewString(),
		Name:        "Test Achievement " + uuid.NewString()[:8],
		Description: "test",
		IsEnabled:   true,
		Conditions:  doc,
	}
	for _, fn := range mutate {
		fn(ach)
	}
	require.NoError(t, db.Create(ach).Error)
	return ach
}

func loadProgress(t *testing.T, db *gorm.DB, userID, achievementID string) *models.AchievementProgress {
	t.Helper()
	var progress models.AchievementProgress
	err := db.Where("user_id = ? AND achievement_id = ?", userID, achievementID).First(&progress).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	require.NoError(t, err)
	return &progress
}

func stoneBreakDoc(count float64) models.ConditionsDoc {
	return models.ConditionsDoc{
		Logic: models.LogicAnd,
		Conditions: []models.Condition{{
			Index:   0,
			Trigger: "GAME_EVENT",
			Target:  "GAME_EVENT:BLOCK_BREAK:minecraft:stone:break",
			Count:   count,
		}},
	}
}

const stoneBreakEvent = "GAME_EVENT:BLOCK_BREAK:minecraft:stone:break"

func TestCumulativeTracking(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(10))

	for i := 0; i < 3; i++ {
		require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{Value: 1.0}))
	}

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 3.0, progress.ProgressData["condition_0"])
	assert.False(t, progress.IsCompleted)
}

func TestStateTrackingLastWriteWins(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Alex")
	ach := createTestAchievement(t, db, models.ConditionsDoc{
		Conditions: []models.Condition{{
			Index:    2,
			Trigger:  "WEBSITE_EVENT",
			Target:   "WEBSITE_EVENT:POST_CREATED",
			Count:    100,
			Tracking: models.TrackingState,
		}},
	})

	for _, value := range []float64{1, 5, 2} {
		require.NoError(t, engine.TriggerWebsiteEvent("POST_CREATED", user.ID, value))
	}

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 2.0, progress.ProgressData["condition_2"])
}

func TestMissingValueCountsAsOne(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(10))

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	// numeric strings are not values, only real numbers are
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{Value: "5"}))

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 2.0, progress.ProgressData["condition_0"])
}

func TestExactTargetMatchRequired(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(10))

	// same family, different target: must not advance
	require.NoError(t, engine.ProcessEvent("GAME_EVENT:BLOCK_BREAK:minecraft:dirt:break", user.ID, "survival", EventData{}))

	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))
}

func TestUnknownUserIsSilentNoop(t *testing.T) {
	engine, db := newTestEngine(t)
	createTestAchievement(t, db, stoneBreakDoc(10))

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, uuid.NewString(), "survival", EventData{}))

	var count int64
	require.NoError(t, db.Model(&models.AchievementProgress{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDisabledAchievementIgnored(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(1), func(a *models.Achievement) {
		a.IsEnabled = false
	})

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))
}

func TestServerGroupFiltering(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	doc := stoneBreakDoc(10)
	doc.Conditions[0].ServerGroups = []string{"survival"}
	ach := createTestAchievement(t, db, doc)

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "creative", EventData{}))
	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 1.0, progress.ProgressData["condition_0"])
}

func TestServerGroupsAreRecorded(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	createTestAchievement(t, db, stoneBreakDoc(10))

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	require.NoError(t, engine.TriggerWebsiteEvent("POST_CREATED", user.ID, 1))

	var groups []models.ServerGroup
	require.NoError(t, db.Find(&groups).Error)
	require.Len(t, groups, 1)
	// the synthetic website group must never be recorded
	assert.Equal(t, "survival", groups[0].Name)
}

func TestFailClosedChecks(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	doc := stoneBreakDoc(1)
	doc.Conditions[0].Checks = []models.ConditionCheck{{
		Source:   "stats",
		Property: "mining_level",
		Operator: ">=",
		Value:    5,
	}}
	ach := createTestAchievement(t, db, doc)

	// snapshot missing the checked path: condition must not advance
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{
		Snapshot: map[string]interface{}{"stats": map[string]interface{}{"walk_distance": 12.0}},
	}))
	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))

	// path present and satisfying: advances and completes
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{
		Snapshot: map[string]interface{}{"stats": map[string]interface{}{"mining_level": 7.0}},
	}))
	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.True(t, progress.IsCompleted)
}

func TestChecksShortCircuitAllMustPass(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	doc := stoneBreakDoc(1)
	doc.Conditions[0].Checks = []models.ConditionCheck{
		{Source: "player", Property: "world", Operator: "==", Value: "overworld"},
		{Source: "player", Property: "level", Operator: ">=", Value: 30},
	}
	ach := createTestAchievement(t, db, doc)

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{
		Snapshot: map[string]interface{}{"player": map[string]interface{}{"world": "overworld", "level": 10.0}},
	}))
	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))
}

func TestAndLogicRequiresAllConditions(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, models.ConditionsDoc{
		Logic: models.LogicAnd,
		Conditions: []models.Condition{
			{Index: 0, Trigger: "GAME_EVENT", Target: "GAME_EVENT:BLOCK_BREAK:minecraft:stone:break", Count: 2},
			{Index: 1, Trigger: "GAME_EVENT", Target: "GAME_EVENT:PLAYER_KILL_ENTITY:minecraft:zombie:kill", Count: 1},
		},
	})

	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.False(t, progress.IsCompleted, "first condition alone must not complete an AND achievement")

	require.NoError(t, engine.ProcessEvent("GAME_EVENT:PLAYER_KILL_ENTITY:minecraft:zombie:kill", user.ID, "survival", EventData{}))
	progress = loadProgress(t, db, user.ID, ach.ID)
	assert.True(t, progress.IsCompleted)
	require.NotNil(t, progress.CompletedAt)
}

func TestOrLogicAnyConditionCompletes(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, models.ConditionsDoc{
		Logic: models.LogicOr,
		Conditions: []models.Condition{
			{Index: 0, Trigger: "GAME_EVENT", Target: "GAME_EVENT:BLOCK_BREAK:minecraft:stone:break", Count: 100},
			{Index: 1, Trigger: "GAME_EVENT", Target: "GAME_EVENT:PLAYER_KILL_ENTITY:minecraft:zombie:kill", Count: 1},
		},
	})

	require.NoError(t, engine.ProcessEvent("GAME_EVENT:PLAYER_KILL_ENTITY:minecraft:zombie:kill", user.ID, "survival", EventData{}))

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.True(t, progress.IsCompleted)
}

func TestZeroConditionsNeverCompletes(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")

	// misconfigured rule: trigger pre-filter can't even match it
	ach := createTestAchievement(t, db, models.ConditionsDoc{Logic: models.LogicAnd})
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	assert.Nil(t, loadProgress(t, db, user.ID, ach.ID))
}

func TestScenarioTenStoneBreaks(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	command := "give {username} diamond 1"
	ach := createTestAchievement(t, db, stoneBreakDoc(10), func(a *models.Achievement) {
		a.RewardCoins = 250
		a.RewardCommand = &command
	})

	for i := 0; i < 9; i++ {
		require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	}
	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 9.0, progress.ProgressData["condition_0"])
	assert.False(t, progress.IsCompleted)

	// tenth event completes and dispatches exactly once
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	progress = loadProgress(t, db, user.ID, ach.ID)
	assert.True(t, progress.IsCompleted)
	assert.Equal(t, 10.0, progress.ProgressData["condition_0"])

	var refreshed models.User
	require.NoError(t, db.First(&refreshed, "id = ?", user.ID).Error)
	assert.Equal(t, int64(250), refreshed.Balance)

	var commands []models.PendingCommand
	require.NoError(t, db.Find(&commands).Error)
	require.Len(t, commands, 1)
	assert.Equal(t, "give Steve diamond 1", commands[0].Command)

	// eleventh event: completed rows return before counters are touched
	require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
	progress = loadProgress(t, db, user.ID, ach.ID)
	assert.True(t, progress.IsCompleted)
	assert.Equal(t, 10.0, progress.ProgressData["condition_0"])

	require.NoError(t, db.First(&refreshed, "id = ?", user.ID).Error)
	assert.Equal(t, int64(250), refreshed.Balance, "reward must not be granted twice")
	require.NoError(t, db.Find(&commands).Error)
	assert.Len(t, commands, 1)
}

func TestIdempotentCompletionOnReplay(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(3), func(a *models.Achievement) {
		a.RewardCoins = 50
	})

	deliver := func() {
		for i := 0; i < 3; i++ {
			require.NoError(t, engine.ProcessEvent(stoneBreakEvent, user.ID, "survival", EventData{}))
		}
	}
	deliver()
	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	require.True(t, progress.IsCompleted)
	firstCompletedAt := *progress.CompletedAt

	deliver() // exact same sequence again

	progress = loadProgress(t, db, user.ID, ach.ID)
	assert.True(t, progress.IsCompleted)
	assert.Equal(t, firstCompletedAt.Unix(), progress.CompletedAt.Unix())

	var refreshed models.User
	require.NoError(t, db.First(&refreshed, "id = ?", user.ID).Error)
	assert.Equal(t, int64(50), refreshed.Balance)
}

func TestRewardWithoutLinkedAccountGrantsCoinsOnly(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "") // web-only account, no game identity
	command := "give {username} diamond 1"
	ach := createTestAchievement(t, db, models.ConditionsDoc{
		Conditions: []models.Condition{{
			Index:   0,
			Trigger: "WEBSITE_EVENT",
			Target:  "WEBSITE_EVENT:POST_CREATED",
			Count:   1,
		}},
	}, func(a *models.Achievement) {
		a.RewardCoins = 100
		a.RewardCommand = &command
	})

	require.NoError(t, engine.TriggerWebsiteEvent("POST_CREATED", user.ID, 1))

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.True(t, progress.IsCompleted)

	var refreshed models.User
	require.NoError(t, db.First(&refreshed, "id = ?", user.ID).Error)
	assert.Equal(t, int64(100), refreshed.Balance)

	var count int64
	require.NoError(t, db.Model(&models.PendingCommand{}).Count(&count).Error)
	assert.Zero(t, count, "command cannot be templated without a game username")
}

func TestProcessBatchDropsInvalidBatches(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	createTestAchievement(t, db, stoneBreakDoc(10))

	// missing server group
	engine.ProcessBatch(EventBatch{
		PlayerUUID: *user.MinecraftUUID,
		Events:     []IngestEvent{{EventType: stoneBreakEvent}},
	})
	// unknown player
	engine.ProcessBatch(EventBatch{
		PlayerUUID:  uuid.NewString(),
		ServerGroup: "survival",
		Events:      []IngestEvent{{EventType: stoneBreakEvent}},
	})

	var count int64
	require.NoError(t, db.Model(&models.AchievementProgress{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProcessBatchIsolatesBadEvents(t *testing.T) {
	engine, db := newTestEngine(t)
	user := createTestUser(t, db, "Steve")
	ach := createTestAchievement(t, db, stoneBreakDoc(10))

	engine.ProcessBatch(EventBatch{
		PlayerUUID:  *user.MinecraftUUID,
		ServerGroup: "survival",
		Events: []IngestEvent{
			{EventType: ""}, // skipped, not fatal
			{EventType: stoneBreakEvent},
			{EventType: stoneBreakEvent},
		},
	})

	progress := loadProgress(t, db, user.ID, ach.ID)
	require.NotNil(t, progress)
	assert.Equal(t, 2.0, progress.ProgressData["condition_0"])
}

func TestCheckOperators(t *testing.T) {
	snapshot := map[string]interface{}{
		"player": map[string]interface{}{
			"world": "overworld",
			"level": 30.0,
			"tags":  []interface{}{"vip", 7.0},
		},
	}
	data := EventData{Snapshot: snapshot}

	cases := []struct {
		name  string
		check models.ConditionCheck
		want  bool
	}{
		{"eq string", models.ConditionCheck{Source: "player", Property: "world", Operator: "==", Value: "overworld"}, true},
		{"eq cross-type", models.ConditionCheck{Source: "player", Property: "level", Operator: "==", Value: "30"}, true},
		{"gte met", models.ConditionCheck{Source: "player", Property: "level", Operator: ">=", Value: 30}, true},
		{"gte unmet", models.ConditionCheck{Source: "player", Property: "level", Operator: ">=", Value: 31}, false},
		{"lte met", models.ConditionCheck{Source: "player", Property: "level", Operator: "<=", Value: "30"}, true},
		{"lte unmet", models.ConditionCheck{Source: "player", Property: "level", Operator: "<=", Value: 29}, false},
		{"contains string", models.ConditionCheck{Source: "player", Property: "tags", Operator: "contains", Value: "vip"}, true},
		{"contains cross-type", models.ConditionCheck{Source: "player", Property: "tags", Operator: "contains", Value: 7}, true},
		{"contains missing", models.ConditionCheck{Source: "player", Property: "tags", Operator: "contains", Value: "admin"}, false},
		{"contains non-list", models.ConditionCheck{Source: "player", Property: "world", Operator: "contains", Value: "over"}, false},
		{"gte non-numeric", models.ConditionCheck{Source: "player", Property: "world", Operator: ">=", Value: 1}, false},
		{"unknown operator", models.ConditionCheck{Source: "player", Property: "level", Operator: "!=", Value: 1}, false},
		{"missing path", models.ConditionCheck{Source: "stats", Property: "kills", Operator: ">=", Value: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, validateChecks([]models.ConditionCheck{tc.check}, data))
		})
	}
}
