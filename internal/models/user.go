package models

import "time"

// User owns templates and instances. Authentication happens at the API
// boundary via API keys; passwords exist only for the management CLI.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // bcrypt, never expose
	CreatedAt    time.Time `json:"created_at"`
}

// APIKey resolves a bearer token to a user.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	KeyHash    string     `json:"-"`          // SHA256 hash, never expose
	KeyPrefix  string     `json:"key_prefix"` // First 8 chars for display
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Active     bool       `json:"active"`
}

// APIKeyCreateResult returned when creating a new key
// Contains the full key which is shown only once
type APIKeyCreateResult struct {
	APIKey
	Key string `json:"key"` // Full key, shown only on creation
}
