// models/user.go
package models

import (
	"time"
)

// User is the engine's projection of the community user account. Account CRUD
// lives in the main site backend; this service only resolves identities and
// credits the coin balance.
type User struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username          string  `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Balance           int64   `gorm:"default:0" json:"balance"`
	MinecraftUsername *string `gorm:"size:16" json:"minecraft_username"`
	MinecraftUUID     *string `gorm:"size:36;uniqueIndex" json:"minecraft_uuid"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
