// services/events.go
package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"achievement-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventData is the loose payload delivered alongside an event. Snapshot is
// the producer-supplied nested stats document condition checks read from;
// Value (when numeric) is the amount a matching counter advances by.
type EventData struct {
	Snapshot map[string]interface{} `json:"snapshot,omitempty"`
	Value    interface{}            `json:"value,omitempty"`
}

// IngestEvent is a single event inside a batch.
type IngestEvent struct {
	EventType string `json:"eventType"`
}

// EventBatch is the wire format the game proxy posts to /internal/event-ingest.
type EventBatch struct {
	PlayerUUID  string                 `json:"playerUuid"`
	ServerGroup string                 `json:"server_group"`
	Snapshot    map[string]interface{} `json:"snapshot"`
	Events      []IngestEvent          `json:"events"`
}

type EventService struct {
	DB      *gorm.DB
	Rewards *RewardService

	// one lock per (user, achievement) progress row; serializes the
	// read-modify-write so duplicate delivery cannot double-complete
	progressLocks sync.Map
}

func NewEventService(db *gorm.DB, rewards *RewardService) *EventService {
	return &EventService{DB: db, Rewards: rewards}
}

// ProcessBatch handles one acknowledged event batch in the background. The
// HTTP caller has already received its 202, so every failure here is logged
// and swallowed: a bad batch, an unknown player, or one broken event must
// never surface an error or abort its siblings.
func (s *EventService) ProcessBatch(batch EventBatch) {
	if batch.PlayerUUID == "" || batch.ServerGroup == "" || batch.Events == nil {
		log.Printf("⚠️ [EVENT-INGEST] Dropping incomplete event batch (playerUuid=%q, server_group=%q, events=%v)",
			batch.PlayerUUID, batch.ServerGroup, batch.Events != nil)
		return
	}

	var user models.User
	if err := s.DB.Where("minecraft_uuid = ?", batch.PlayerUUID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ [EVENT-INGEST] No linked user for UUID %s. Skipping batch.", batch.PlayerUUID)
		} else {
			log.Printf("[EVENT-INGEST] DB error resolving UUID %s: %v", batch.PlayerUUID, err)
		}
		return
	}

	// Events run sequentially so later events in the same batch observe the
	// progress written by earlier ones.
	for _, evt := range batch.Events {
		if evt.EventType == "" {
			continue
		}
		s.processOne(evt.EventType, user.ID, batch.ServerGroup, EventData{Snapshot: batch.Snapshot})
	}
}

// processOne isolates a single event: a panic or error in one event is
// logged and the batch moves on.
func (s *EventService) processOne(eventType, userID, serverGroup string, data EventData) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EVENT-INGEST] Panic while processing event %q: %v", eventType, r)
		}
	}()
	if err := s.ProcessEvent(eventType, userID, serverGroup, data); err != nil {
		log.Printf("[EVENT-INGEST] Failed to process event %q: %v", eventType, err)
	}
}

// TriggerWebsiteEvent is the entry point for internally-originated triggers
// (post created, friend added, reputation changed, ...). Callers pass the
// current running total as value, which pairs with "state" tracking.
func (s *EventService) TriggerWebsiteEvent(subType string, userID string, value float64) error {
	eventType := "WEBSITE_EVENT:" + subType
	return s.ProcessEvent(eventType, userID, "website", EventData{Value: value})
}

// ProcessEvent matches one normalized event against the catalog and advances
// progress for every relevant achievement.
func (s *EventService) ProcessEvent(eventType, userID, serverGroup string, data EventData) error {
	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("⚠️ [PROCESS_EVENT] User %s not found. Skipping event %s.", userID, eventType)
			return nil
		}
		return err
	}

	log.Printf("[PROCESS_EVENT] Event '%s' for user %s from server group '%s'", eventType, user.Username, serverGroup)

	baseTrigger := strings.SplitN(eventType, ":", 2)[0]
	relevant, err := s.relevantAchievements(baseTrigger)
	if err != nil {
		return err
	}
	if len(relevant) == 0 {
		return nil
	}

	// Remember real server groups for the condition allow-list UI. Not part
	// of evaluation, so a failure here only logs.
	if serverGroup != "" && serverGroup != "website" {
		if err := s.DB.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.ServerGroup{Name: serverGroup}).Error; err != nil {
			log.Printf("[PROCESS_EVENT] Failed to record server group %q: %v", serverGroup, err)
		}
	}

	for i := range relevant {
		if err := s.updateProgress(&user, &relevant[i], eventType, serverGroup, data); err != nil {
			log.Printf("[PROCESS_EVENT] Progress update failed for achievement %q: %v", relevant[i].Name, err)
		}
	}
	return nil
}

// relevantAchievements is the coarse pre-filter: enabled achievements with at
// least one condition on the event's base trigger. Exact target matching
// happens per-condition in updateProgress.
func (s *EventService) relevantAchievements(baseTrigger string) ([]models.Achievement, error) {
	var enabled []models.Achievement
	if err := s.DB.Where("is_enabled = ?", true).Find(&enabled).Error; err != nil {
		return nil, err
	}
	relevant := enabled[:0]
	for _, ach := range enabled {
		if ach.Conditions.HasTrigger(baseTrigger) {
			relevant = append(relevant, ach)
		}
	}
	return relevant, nil
}

func (s *EventService) lockProgress(userID, achievementID string) *sync.Mutex {
	key := userID + "|" + achievementID
	mu, _ := s.progressLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// updateProgress advances one achievement's counters for one event and, when
// the row changed, re-evaluates completion. The whole read-modify-write runs
// under the row's lock inside a transaction; completed rows return before any
// counter is touched, so a reward can only ever be dispatched once.
func (s *EventService) updateProgress(user *models.User, achievement *models.Achievement, eventType, serverGroup string, data EventData) error {
	mu := s.lockProgress(user.ID, achievement.ID)
	mu.Lock()
	defer mu.Unlock()

	newlyCompleted := false

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var progress models.AchievementProgress
		isNew := false
		err := tx.Where("user_id = ? AND achievement_id = ?", user.ID, achievement.ID).First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			isNew = true
			progress = models.AchievementProgress{
				ID:            uuid.NewString(),
				UserID:        user.ID,
				AchievementID: achievement.ID,
				ProgressData:  models.ProgressData{},
			}
		} else if err != nil {
			return err
		}

		if progress.IsCompleted {
			return nil
		}
		if progress.ProgressData == nil {
			progress.ProgressData = models.ProgressData{}
		}

		baseTrigger := strings.SplitN(eventType, ":", 2)[0]
		changed := false

		for _, condition := range achievement.Conditions.Conditions {
			if len(condition.ServerGroups) > 0 && !containsString(condition.ServerGroups, serverGroup) {
				continue
			}
			if condition.Trigger != baseTrigger || condition.Target != eventType {
				continue
			}
			if !validateChecks(condition.Checks, data) {
				continue
			}

			key := fmt.Sprintf("condition_%d", condition.Index)
			value := 1.0
			if v, ok := numericValue(data.Value); ok {
				value = v
			}
			if condition.Tracking == models.TrackingState {
				// absolute snapshot, last write wins
				progress.ProgressData[key] = value
			} else {
				progress.ProgressData[key] += value
			}
			changed = true
		}

		if !changed {
			return nil
		}

		// Save with a preset uuid PK would issue a bare UPDATE, so new rows
		// need an explicit Create.
		if isNew {
			err = tx.Create(&progress).Error
		} else {
			err = tx.Save(&progress).Error
		}
		if err != nil {
			return err
		}
		newlyCompleted, err = s.checkCompletion(tx, achievement, &progress)
		return err
	})
	if err != nil {
		return err
	}

	if newlyCompleted {
		log.Printf("🏆 ACHIEVEMENT COMPLETED: %s finished %q!", user.Username, achievement.Name)
		// Dispatch outside the transaction: a reward failure is logged but
		// never rolls back the persisted completion flag.
		s.Rewards.Dispatch(user, achievement)
	}
	return nil
}

// checkCompletion evaluates the achievement's combinator over the stored
// counters. AND fails on the first unmet condition, OR succeeds on the first
// met one. An achievement with zero conditions never completes.
func (s *EventService) checkCompletion(tx *gorm.DB, achievement *models.Achievement, progress *models.AchievementProgress) (bool, error) {
	logic := achievement.Conditions.Logic
	if logic == "" {
		logic = models.LogicAnd
	}
	conditions := achievement.Conditions.Conditions
	if len(conditions) == 0 {
		return false, nil
	}

	satisfied := logic == models.LogicAnd
	for _, condition := range conditions {
		key := fmt.Sprintf("condition_%d", condition.Index)
		met := progress.ProgressData[key] >= condition.Count

		if logic == models.LogicAnd {
			if !met {
				satisfied = false
				break
			}
		} else {
			if met {
				satisfied = true
				break
			}
		}
	}

	if !satisfied || progress.IsCompleted {
		return false, nil
	}

	now := time.Now()
	progress.IsCompleted = true
	progress.CompletedAt = &now
	if err := tx.Save(progress).Error; err != nil {
		return false, err
	}
	return true, nil
}

// validateChecks evaluates every check against the event snapshot. All must
// pass; a path that does not resolve fails the whole condition (fail-closed).
func validateChecks(checks []models.ConditionCheck, data EventData) bool {
	for _, check := range checks {
		fullPath := check.Source + "." + check.Property
		actual, ok := lookupPath(data.Snapshot, fullPath)
		if !ok {
			log.Printf("[Check-Validate] Property at path %q not found in event snapshot", fullPath)
			return false
		}

		passed := false
		switch check.Operator {
		case "==":
			// string comparison tolerates numeric/string type drift between
			// the producer payload and the authored rule
			passed = stringify(actual) == stringify(check.Value)
		case ">=":
			a, aok := toNumber(actual)
			b, bok := toNumber(check.Value)
			passed = aok && bok && a >= b
		case "<=":
			a, aok := toNumber(actual)
			b, bok := toNumber(check.Value)
			passed = aok && bok && a <= b
		case "contains":
			if list, isList := actual.([]interface{}); isList {
				want := stringify(check.Value)
				for _, item := range list {
					if stringify(item) == want {
						passed = true
						break
					}
				}
			}
		}

		if !passed {
			return false
		}
	}
	return true
}

// lookupPath walks a dotted path through nested string-keyed maps.
func lookupPath(snapshot map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = snapshot
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// numericValue reports whether v is an actual number (not a numeric string).
func numericValue(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// toNumber additionally coerces numeric strings, for rules authored as text.
func toNumber(v interface{}) (float64, bool) {
	if f, ok := numericValue(v); ok {
		return f, true
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

// stringify renders a value the way the rule author sees it: no exponent
// notation, no trailing zeros.
func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
