// models/pending_command.go
package models

import (
	"time"
)

// PendingCommand is one queued in-game command waiting for a connected game
// bridge to fetch and execute it. Rows are deleted only when the bridge
// acknowledges them.
type PendingCommand struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Command   string    `gorm:"size:255;not null" json:"command"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
