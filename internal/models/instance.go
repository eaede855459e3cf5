package models

import "time"

// Instance is a remote Radarr/Sonarr endpoint a template can deploy to.
type Instance struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Service   Service   `json:"service"`
	BaseURL   string    `json:"base_url"`
	APIKey    string    `json:"-"` // remote service key, never expose
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoreOverride pins a format's score on one specific instance. It beats
// every other score source when resolving the effective score.
type ScoreOverride struct {
	InstanceID string    `json:"instance_id"`
	TrashID    string    `json:"trash_id"`
	Score      int       `json:"score"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InstanceListFilter for filtering instances
type InstanceListFilter struct {
	UserID  string
	Service Service
	Limit   int
	Offset  int
}
