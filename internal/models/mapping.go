package models

import "time"

// ProfileMapping links a template to the quality profile it manages on one
// instance. Created on first successful deployment, refreshed on every
// later one, removed only by explicit unlink.
type ProfileMapping struct {
	ID           string       `json:"id"`
	TemplateID   string       `json:"template_id"`
	InstanceID   string       `json:"instance_id"`
	ProfileID    int          `json:"profile_id"` // remote id on the instance
	ProfileName  string       `json:"profile_name"`
	SyncStrategy SyncStrategy `json:"sync_strategy"`
	LastSyncedAt *time.Time   `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
