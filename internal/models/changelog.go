package models

import (
	"encoding/json"
	"time"
)

// ChangeLogEntry records one completed sync. Entries are append-only,
// newest last; the diff engine replays the newest matching entry to show
// what a completed sync changed.
type ChangeLogEntry struct {
	SyncedAt     time.Time       `json:"synced_at"`
	FromVersion  string          `json:"from_version"`
	ToVersion    string          `json:"to_version"`
	Formats      ChangeSet       `json:"formats"`
	Groups       ChangeSet       `json:"groups"`
	ScoreChanges []ScoreChange   `json:"score_changes,omitempty"`
	Conflicts    []ScoreConflict `json:"conflicts,omitempty"`
}

// ChangeSet groups change references by kind.
type ChangeSet struct {
	Added      []ChangeRef `json:"added,omitempty"`
	Updated    []ChangeRef `json:"updated,omitempty"`
	Deprecated []ChangeRef `json:"deprecated,omitempty"`
	Removed    []ChangeRef `json:"removed,omitempty"`
}

// ChangeRef names one affected entry.
type ChangeRef struct {
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
}

// ScoreChange records a catalog-driven score adoption (no user override
// was present).
type ScoreChange struct {
	TrashID  string `json:"trash_id"`
	Name     string `json:"name"`
	OldScore int    `json:"old_score"`
	NewScore int    `json:"new_score"`
}

// ScoreConflict records a catalog recommendation that was NOT applied
// because a user override exists. Overrides are never silently replaced.
type ScoreConflict struct {
	TrashID          string `json:"trash_id"`
	Name             string `json:"name"`
	CurrentScore     int    `json:"current_score"`
	RecommendedScore int    `json:"recommended_score"`
}

// DecodeChangeLog parses the template's change-log blob. An empty blob
// decodes to nil. Callers that must survive corrupt rows substitute nil on
// error and log a warning.
func (t *Template) DecodeChangeLog() ([]ChangeLogEntry, error) {
	if t.ChangeLog == "" {
		return nil, nil
	}
	var entries []ChangeLogEntry
	if err := json.Unmarshal([]byte(t.ChangeLog), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// EncodeChangeLog serializes entries into the template's change-log blob.
func (t *Template) EncodeChangeLog(entries []ChangeLogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	t.ChangeLog = string(data)
	return nil
}
