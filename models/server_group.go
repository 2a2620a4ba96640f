// models/server_group.go
package models

// ServerGroup records every server-group label seen on ingested events so the
// authoring UI can offer them as condition allow-list values. The synthetic
// "website" group is never recorded.
type ServerGroup struct {
	Name string `gorm:"primaryKey;size:100" json:"name"`
}
