package models

import "time"

// DeployStatus is the lifecycle state of a deployment history record.
type DeployStatus string

const (
	DeployInProgress     DeployStatus = "IN_PROGRESS"
	DeploySuccess        DeployStatus = "SUCCESS"
	DeployPartialSuccess DeployStatus = "PARTIAL_SUCCESS"
	DeployFailed         DeployStatus = "FAILED"
)

// Backup is an immutable snapshot of an instance's custom formats taken
// immediately before a deployment mutates them.
type Backup struct {
	ID         string     `json:"id"`
	InstanceID string     `json:"instance_id"`
	TemplateID string     `json:"template_id"`
	Data       string     `json:"data"` // JSON array of remote custom formats
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// DeployHistory is the audit record of one deployment attempt. A record is
// opened IN_PROGRESS together with its backup and always finalized, even
// on panic paths.
type DeployHistory struct {
	ID               string       `json:"id"`
	TemplateID       string       `json:"template_id"`
	InstanceID       string       `json:"instance_id"`
	BackupID         *string      `json:"backup_id,omitempty"` // NULL after backup cleanup
	Status           DeployStatus `json:"status"`
	CreatedCount     int          `json:"created_count"`
	UpdatedCount     int          `json:"updated_count"`
	FailedCount      int          `json:"failed_count"`
	TemplateSnapshot string       `json:"template_snapshot"` // JSON TemplateConfig at deploy time
	Error            string       `json:"error,omitempty"`
	StartedAt        time.Time    `json:"started_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
}

// HistoryListFilter for filtering deployment history
type HistoryListFilter struct {
	TemplateID string
	InstanceID string
	Status     DeployStatus
	Limit      int
	Offset     int
}
