// models/achievement.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Condition logic combinators
const (
	LogicAnd = "AND"
	LogicOr  = "OR"
)

// Tracking modes for a single condition counter
const (
	TrackingCumulative = "cumulative" // counter adds up event values
	TrackingState      = "state"      // counter mirrors the latest reported value
)

// ConditionCheck is one predicate evaluated against the event snapshot.
// The value at snapshot[source].property must satisfy (operator, value).
type ConditionCheck struct {
	Source   string      `json:"source"`
	Property string      `json:"property"`
	Operator string      `json:"operator"` // "==", ">=", "<=", "contains"
	Value    interface{} `json:"value"`
}

// Condition is a single trackable requirement inside an achievement.
// Index is the stable progress key ("condition_<index>"); once any user has
// progress recorded it must never be renumbered.
type Condition struct {
	Index          int              `json:"index"`
	Trigger        string           `json:"trigger"` // coarse family, e.g. "GAME_EVENT"
	Target         string           `json:"target"`  // fully-qualified event type
	SpecificTarget string           `json:"specific_target,omitempty"`
	Count          float64          `json:"count"`
	Tracking       string           `json:"tracking,omitempty"` // default cumulative
	ServerGroups   []string         `json:"server_groups,omitempty"`
	Checks         []ConditionCheck `json:"checks,omitempty"`
}

// ConditionsDoc is the rule document stored on each achievement.
type ConditionsDoc struct {
	Logic      string      `json:"logic,omitempty"` // default AND
	Conditions []Condition `json:"conditions"`
}

// Value implements driver.Valuer so the doc is stored as JSON (jsonb on
// Postgres, plain text on sqlite in tests).
func (d ConditionsDoc) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *ConditionsDoc) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ConditionsDoc{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into ConditionsDoc", src)
	}
}

// HasTrigger reports whether any condition reacts to the given base trigger.
func (d ConditionsDoc) HasTrigger(baseTrigger string) bool {
	for _, cond := range d.Conditions {
		if cond.Trigger == baseTrigger {
			return true
		}
	}
	return false
}

// Achievement is an operator-authored rule document plus display metadata.
type Achievement struct {
	ID            string  `gorm:"primaryKey;type:uuid" json:"id"`
	Name          string  `gorm:"size:255;not null" json:"name"`
	Description   string  `gorm:"type:text" json:"description"`
	IconURL       *string `gorm:"size:255" json:"icon_url"`
	CardColor     string  `gorm:"size:7;default:'#32383E'" json:"card_color"`
	TextColor     string  `gorm:"size:7;default:'#F0F4F8'" json:"text_color"`
	IsEnabled     bool    `gorm:"default:true" json:"is_enabled"`
	RewardCommand *string `gorm:"type:text" json:"reward_command"` // contains {username}
	RewardCoins   int64   `gorm:"default:0" json:"reward_coins"`

	Conditions ConditionsDoc `gorm:"type:jsonb" json:"conditions"`

	GroupID *string           `gorm:"type:uuid;index" json:"group_id"`
	Group   *AchievementGroup `gorm:"foreignKey:GroupID" json:"group,omitempty"`

	// Advisory parent link for the UI; the evaluator ignores it.
	ParentID *string `gorm:"type:uuid" json:"parent_id"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AchievementGroup is a display grouping for the achievements page.
type AchievementGroup struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description  *string   `gorm:"type:text" json:"description"`
	IconURL      *string   `gorm:"size:255" json:"icon_url"`
	DisplayOrder int       `gorm:"default:0" json:"display_order"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
