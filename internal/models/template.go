package models

import "time"

// Service identifies the remote media-management family a template or
// instance targets. Templates deploy only to instances of the same service.
type Service string

const (
	ServiceRadarr Service = "radarr"
	ServiceSonarr Service = "sonarr"
)

// Valid reports whether s is a known service kind.
func (s Service) Valid() bool {
	return s == ServiceRadarr || s == ServiceSonarr
}

// SyncStrategy controls what happens when a newer catalog version is found.
type SyncStrategy string

const (
	SyncAuto   SyncStrategy = "auto"   // sync and deploy without user action
	SyncManual SyncStrategy = "manual" // user triggers sync explicitly
	SyncNotify SyncStrategy = "notify" // surface the update, take no action
)

// Origin tags how a format or group entered a template.
type Origin string

const (
	OriginTrashSync Origin = "trash_sync" // adopted from the catalog
	OriginUserAdded Origin = "user_added" // hand-authored, never auto-deleted
)

// Template is a user-owned bundle of custom formats, groups and quality
// profile settings tracked against a catalog version.
type Template struct {
	ID                   string       `json:"id"`
	UserID               string       `json:"user_id"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	Service              Service      `json:"service"`
	Config               string       `json:"config"`        // JSON TemplateConfig
	TrashVersion         string       `json:"trash_version"` // catalog commit last reconciled against
	HasUserModifications bool         `json:"has_user_modifications"`
	SyncStrategy         SyncStrategy `json:"sync_strategy"`
	ChangeLog            string       `json:"change_log"` // JSON array of ChangeLogEntry, newest last
	SourceProfileID      string       `json:"source_profile_id,omitempty"`
	SourceProfileName    string       `json:"source_profile_name,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
	DeletedAt            *time.Time   `json:"deleted_at,omitempty"`
}

// TemplateListFilter for filtering the template list
type TemplateListFilter struct {
	UserID         string
	Service        Service
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}
