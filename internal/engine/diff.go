package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// Diff entry statuses.
const (
	DiffAdded      = "added"
	DiffModified   = "modified"
	DiffUnchanged  = "unchanged"
	DiffRemoved    = "removed"
	DiffDeprecated = "deprecated"
)

// FormatDiff classifies one adopted format against the catalog. Formats
// never adopted by the template are not diffed; they surface as
// suggestions instead.
type FormatDiff struct {
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// GroupDiff classifies one adopted group against the catalog.
type GroupDiff struct {
	TrashID string `json:"trash_id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
}

// DiffSummary counts diff entries per kind and status. Added and
// deprecated counts only appear when a completed sync is replayed.
type DiffSummary struct {
	FormatsAdded      int `json:"formats_added"`
	FormatsModified   int `json:"formats_modified"`
	FormatsUnchanged  int `json:"formats_unchanged"`
	FormatsDeprecated int `json:"formats_deprecated"`
	FormatsRemoved    int `json:"formats_removed"`
	GroupsAdded       int `json:"groups_added"`
	GroupsModified    int `json:"groups_modified"`
	GroupsUnchanged   int `json:"groups_unchanged"`
	GroupsDeprecated  int `json:"groups_deprecated"`
	GroupsRemoved     int `json:"groups_removed"`
}

// TemplateDiff is a read-only preview of what a sync would change, or,
// when the template already matches the latest catalog version, a replay
// of what the last sync did change (Historical true).
type TemplateDiff struct {
	TemplateID  string      `json:"template_id"`
	FromVersion string      `json:"from_version"`
	ToVersion   string      `json:"to_version"`
	Historical  bool        `json:"historical"`
	Summary     DiffSummary `json:"summary"`

	Formats []FormatDiff `json:"formats"`
	Groups  []GroupDiff  `json:"groups"`

	SuggestedAdditions    []SuggestedAddition    `json:"suggested_additions"`
	SuggestedScoreChanges []models.ScoreChange   `json:"suggested_score_changes"`
	ScoreChanges          []models.ScoreChange   `json:"score_changes"`
	Conflicts             []models.ScoreConflict `json:"conflicts"`
}

// Diff compares a template against the latest catalog version without
// mutating anything. If the template is already at the latest version the
// result is reconstructed from the newest change-log entry so diff output
// survives a completed sync.
func (e *Engine) Diff(ctx context.Context, userID, templateID string) (*TemplateDiff, error) {
	tpl, err := e.getOwnedTemplate(userID, templateID)
	if err != nil {
		return nil, err
	}

	target, err := e.fetcher.ResolveVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve latest catalog version: %w", err)
	}

	snap, err := e.ensureSnapshot(ctx, tpl.Service, target)
	if err != nil {
		return nil, err
	}

	cfg := e.decodeConfig(tpl)

	diff := &TemplateDiff{
		TemplateID:            tpl.ID,
		FromVersion:           tpl.TrashVersion,
		ToVersion:             target,
		Formats:               []FormatDiff{},
		Groups:                []GroupDiff{},
		SuggestedScoreChanges: []models.ScoreChange{},
		ScoreChanges:          []models.ScoreChange{},
		Conflicts:             []models.ScoreConflict{},
	}

	if tpl.TrashVersion == target {
		e.replayChangeLog(tpl, cfg, diff)
	} else {
		liveDiff(cfg, snap, diff)
	}

	diff.SuggestedAdditions = suggestedAdditions(tpl, cfg, snap)
	if diff.SuggestedAdditions == nil {
		diff.SuggestedAdditions = []SuggestedAddition{}
	}

	return diff, nil
}

// liveDiff classifies every adopted entry against the snapshot using the
// same structural comparison the merger uses.
func liveDiff(cfg models.TemplateConfig, snap *trash.Snapshot, diff *TemplateDiff) {
	for _, f := range cfg.CustomFormats {
		d := FormatDiff{TrashID: f.TrashID, Name: f.Name}
		def := snap.FormatByID(f.TrashID)

		switch {
		case def == nil:
			d.Status = DiffRemoved
			diff.Summary.FormatsRemoved++
		case !storedFormatMatches(f.OriginalConfig, def):
			d.Status = DiffModified
			d.Name = def.Name
			diff.Summary.FormatsModified++
		default:
			d.Status = DiffUnchanged
			diff.Summary.FormatsUnchanged++
		}
		diff.Formats = append(diff.Formats, d)

		if def == nil {
			continue
		}
		recommended, has := def.Score(cfg.Profile.ScoreSet)
		if !has {
			continue
		}
		if f.ScoreOverride != nil {
			if *f.ScoreOverride != recommended {
				diff.Conflicts = append(diff.Conflicts, models.ScoreConflict{
					TrashID: f.TrashID, Name: def.Name,
					CurrentScore: *f.ScoreOverride, RecommendedScore: recommended,
				})
			}
			continue
		}
		if current := storedScore(f.OriginalConfig, cfg.Profile.ScoreSet); current != recommended {
			diff.SuggestedScoreChanges = append(diff.SuggestedScoreChanges, models.ScoreChange{
				TrashID: f.TrashID, Name: def.Name,
				OldScore: current, NewScore: recommended,
			})
		}
	}

	for _, g := range cfg.Groups {
		d := GroupDiff{TrashID: g.TrashID, Name: g.Name}
		def := snap.GroupByID(g.TrashID)

		switch {
		case def == nil:
			d.Status = DiffRemoved
			diff.Summary.GroupsRemoved++
		case !storedGroupMatches(g.OriginalConfig, def):
			d.Status = DiffModified
			d.Name = def.Name
			diff.Summary.GroupsModified++
		default:
			d.Status = DiffUnchanged
			diff.Summary.GroupsUnchanged++
		}
		diff.Groups = append(diff.Groups, d)
	}
}

// replayChangeLog rebuilds the diff from the newest change-log entry whose
// target matches the template's recorded version. Without a usable entry
// every adopted item reads unchanged, which is accurate at that point.
func (e *Engine) replayChangeLog(tpl *models.Template, cfg models.TemplateConfig, diff *TemplateDiff) {
	diff.Historical = true

	entries := e.decodeChangeLog(tpl)
	var entry *models.ChangeLogEntry
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ToVersion == tpl.TrashVersion {
			entry = &entries[i]
			break
		}
	}

	formatStatus := map[string]string{}
	groupStatus := map[string]string{}
	if entry != nil {
		diff.FromVersion = entry.FromVersion
		diff.ToVersion = entry.ToVersion
		for _, ref := range entry.Formats.Added {
			formatStatus[ref.TrashID] = DiffAdded
		}
		for _, ref := range entry.Formats.Updated {
			formatStatus[ref.TrashID] = DiffModified
		}
		for _, ref := range entry.Formats.Deprecated {
			formatStatus[ref.TrashID] = DiffDeprecated
		}
		for _, ref := range entry.Groups.Added {
			groupStatus[ref.TrashID] = DiffAdded
		}
		for _, ref := range entry.Groups.Updated {
			groupStatus[ref.TrashID] = DiffModified
		}
		for _, ref := range entry.Groups.Deprecated {
			groupStatus[ref.TrashID] = DiffDeprecated
		}
	}

	for _, f := range cfg.CustomFormats {
		status, ok := formatStatus[f.TrashID]
		if !ok {
			status = DiffUnchanged
		}
		diff.Formats = append(diff.Formats, FormatDiff{TrashID: f.TrashID, Name: f.Name, Status: status})
		switch status {
		case DiffAdded:
			diff.Summary.FormatsAdded++
		case DiffModified:
			diff.Summary.FormatsModified++
		case DiffDeprecated:
			diff.Summary.FormatsDeprecated++
		default:
			diff.Summary.FormatsUnchanged++
		}
	}

	for _, g := range cfg.Groups {
		status, ok := groupStatus[g.TrashID]
		if !ok {
			status = DiffUnchanged
		}
		diff.Groups = append(diff.Groups, GroupDiff{TrashID: g.TrashID, Name: g.Name, Status: status})
		switch status {
		case DiffAdded:
			diff.Summary.GroupsAdded++
		case DiffModified:
			diff.Summary.GroupsModified++
		case DiffDeprecated:
			diff.Summary.GroupsDeprecated++
		default:
			diff.Summary.GroupsUnchanged++
		}
	}

	if entry == nil {
		return
	}

	// Entries dropped by the replayed sync are no longer in the config;
	// list them from the log.
	for _, ref := range entry.Formats.Removed {
		diff.Formats = append(diff.Formats, FormatDiff{TrashID: ref.TrashID, Name: ref.Name, Status: DiffRemoved})
		diff.Summary.FormatsRemoved++
	}
	for _, ref := range entry.Groups.Removed {
		diff.Groups = append(diff.Groups, GroupDiff{TrashID: ref.TrashID, Name: ref.Name, Status: DiffRemoved})
		diff.Summary.GroupsRemoved++
	}

	diff.ScoreChanges = append(diff.ScoreChanges, entry.ScoreChanges...)
	diff.Conflicts = append(diff.Conflicts, entry.Conflicts...)
}

// storedFormatMatches reports whether the stored catalog snapshot of a
// format structurally matches the current catalog definition. An
// unreadable stored snapshot counts as a mismatch.
func storedFormatMatches(stored json.RawMessage, def *trash.CustomFormat) bool {
	var prev trash.CustomFormat
	if err := json.Unmarshal(stored, &prev); err != nil {
		return false
	}
	return specificationsEqual(prev.Specifications, def.Specifications)
}

// storedGroupMatches is the group analogue of storedFormatMatches.
func storedGroupMatches(stored json.RawMessage, def *trash.FormatGroup) bool {
	var prev trash.FormatGroup
	if err := json.Unmarshal(stored, &prev); err != nil {
		return false
	}
	return groupsEqual(&prev, def)
}

// storedScore reads the effective catalog score recorded in a stored
// format snapshot. Missing score sets fall back to zero, matching the
// score resolver.
func storedScore(stored json.RawMessage, scoreSet string) int {
	var prev trash.CustomFormat
	if err := json.Unmarshal(stored, &prev); err != nil {
		return 0
	}
	score, _ := prev.Score(scoreSet)
	return score
}
