// models/achievement_progress.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProgressData maps "condition_<index>" to the current counter value.
type ProgressData map[string]float64

func (p ProgressData) Value() (driver.Value, error) {
	if p == nil {
		p = ProgressData{}
	}
	return json.Marshal(p)
}

func (p *ProgressData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = ProgressData{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into ProgressData", src)
	}
}

// AchievementProgress is the per (user, achievement) counter row. Created
// lazily on the first matching event; IsCompleted only ever goes false→true
// and CompletedAt is stamped exactly once.
type AchievementProgress struct {
	ID            string       `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string       `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID string       `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	ProgressData  ProgressData `gorm:"type:jsonb" json:"progress_data"`
	IsCompleted   bool         `gorm:"default:false" json:"is_completed"`
	CompletedAt   *time.Time   `json:"completed_at"`
	CreatedAt     time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
}
