package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// SyncOptions control one sync invocation.
type SyncOptions struct {
	// TargetVersion pins the catalog version; empty resolves the latest.
	TargetVersion string `json:"target_version,omitempty"`
	// ApplyScoreUpdates adopts catalog score recommendations for entries
	// without a user override.
	ApplyScoreUpdates bool `json:"apply_score_updates"`
	// DeleteRemovedFormats drops catalog-adopted entries gone upstream
	// instead of deprecating them. User-added entries are always kept.
	DeleteRemovedFormats bool `json:"delete_removed_formats"`
	// Adopt lists approved catalog ids (formats or groups) the template
	// should start tracking with this sync.
	Adopt []string `json:"adopt,omitempty"`
	// Deploy pushes the synced template to its auto-mapped instances.
	Deploy bool `json:"deploy"`
}

// SyncResult reports one completed sync, including any post-sync
// deployment outcomes.
type SyncResult struct {
	TemplateID  string    `json:"template_id"`
	FromVersion string    `json:"from_version"`
	ToVersion   string    `json:"to_version"`
	SyncedAt    time.Time `json:"synced_at"`

	Stats        MergeStats             `json:"stats"`
	Formats      models.ChangeSet       `json:"formats"`
	Groups       models.ChangeSet       `json:"groups"`
	ScoreChanges []models.ScoreChange   `json:"score_changes"`
	Conflicts    []models.ScoreConflict `json:"conflicts"`
	Warnings     []string               `json:"warnings"`

	Deployments []DeployResult `json:"deployments,omitempty"`
	// Errors collects post-persist deployment failures. The persisted
	// merge is never rolled back for them.
	Errors []string `json:"errors"`
}

// SyncTemplate reconciles a template against a catalog version and
// persists the merged config with an appended change-log entry. Any
// failure before persistence leaves the template untouched. With
// opts.Deploy the synced template is then pushed to each auto-mapped
// instance sequentially; those failures land in the result's error list.
func (e *Engine) SyncTemplate(ctx context.Context, userID, templateID string, opts SyncOptions) (*SyncResult, error) {
	tpl, err := e.getOwnedTemplate(userID, templateID)
	if err != nil {
		return nil, err
	}

	target := opts.TargetVersion
	if target == "" {
		target, err = e.fetcher.ResolveVersion(ctx)
		if err != nil {
			e.metrics.IncSyncs("failed")
			return nil, fmt.Errorf("%w: resolve latest catalog version: %w", ErrSyncFailed, err)
		}
	}

	snap, err := e.ensureSnapshot(ctx, tpl.Service, target)
	if err != nil {
		e.metrics.IncSyncs("failed")
		return nil, fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}

	cfg := e.decodeConfig(tpl)

	latestFormats, latestGroups, warnings := trackedDefinitions(cfg, snap, opts.Adopt)

	merged := Merge(cfg, latestFormats, latestGroups, MergeOptions{
		ApplyScoreUpdates:    opts.ApplyScoreUpdates,
		ScoreSet:             cfg.Profile.ScoreSet,
		DeleteRemovedFormats: opts.DeleteRemovedFormats,
		TargetVersion:        target,
	})
	warnings = append(warnings, merged.Warnings...)

	if violations := ValidateConfig(merged.Config); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		e.metrics.IncSyncs("failed")
		return nil, fmt.Errorf("%w: merged config failed validation: %s", ErrSyncFailed, strings.Join(msgs, "; "))
	}

	entry := models.ChangeLogEntry{
		SyncedAt:     timeNow(),
		FromVersion:  tpl.TrashVersion,
		ToVersion:    target,
		Formats:      merged.Formats,
		Groups:       merged.Groups,
		ScoreChanges: merged.ScoreChanges,
		Conflicts:    merged.Conflicts,
	}

	// A re-sync at the same version with nothing to record appends no
	// log entry; the change log documents movement, not invocations.
	entries := e.decodeChangeLog(tpl)
	if target != tpl.TrashVersion || entryHasChanges(&entry) {
		entries = append(entries, entry)
	}

	fromVersion := tpl.TrashVersion
	if err := tpl.EncodeConfig(merged.Config); err != nil {
		e.metrics.IncSyncs("failed")
		return nil, fmt.Errorf("%w: encode config: %w", ErrSyncFailed, err)
	}
	if err := tpl.EncodeChangeLog(entries); err != nil {
		e.metrics.IncSyncs("failed")
		return nil, fmt.Errorf("%w: encode change log: %w", ErrSyncFailed, err)
	}
	tpl.TrashVersion = target

	if err := e.templates.SaveSyncResult(tpl); err != nil {
		e.metrics.IncSyncs("failed")
		return nil, fmt.Errorf("%w: persist merged template: %w", ErrSyncFailed, err)
	}

	e.metrics.IncSyncs("success")
	e.logger.Info("template synced",
		"template_id", tpl.ID,
		"from", shortVersion(fromVersion),
		"to", shortVersion(target),
		"formats_added", merged.Stats.FormatsAdded,
		"formats_updated", merged.Stats.FormatsUpdated,
		"formats_deprecated", merged.Stats.FormatsDeprecated,
		"conflicts", len(merged.Conflicts),
	)

	result := &SyncResult{
		TemplateID:   tpl.ID,
		FromVersion:  fromVersion,
		ToVersion:    target,
		SyncedAt:     entry.SyncedAt,
		Stats:        merged.Stats,
		Formats:      merged.Formats,
		Groups:       merged.Groups,
		ScoreChanges: merged.ScoreChanges,
		Conflicts:    merged.Conflicts,
		Warnings:     warnings,
		Errors:       []string{},
	}

	if opts.Deploy {
		e.deployAfterSync(ctx, tpl, result)
	}

	return result, nil
}

// deployAfterSync fans out to the template's auto-mapped instances, one
// at a time. Failures are collected, never retried, and never unwind the
// persisted sync.
func (e *Engine) deployAfterSync(ctx context.Context, tpl *models.Template, result *SyncResult) {
	mappings, err := e.mappings.ListByTemplate(tpl.ID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list mappings: %v", err))
		return
	}

	for _, m := range mappings {
		if m.SyncStrategy != models.SyncAuto {
			continue
		}
		dep, err := e.DeployOne(ctx, tpl.UserID, tpl.ID, m.InstanceID, DeployOptions{})
		if err != nil {
			e.logger.Error("post-sync deployment failed",
				"template_id", tpl.ID, "instance_id", m.InstanceID, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("deploy to instance %s: %v", m.InstanceID, err))
			continue
		}
		result.Deployments = append(result.Deployments, *dep)
	}
}

// trackedDefinitions narrows the snapshot to the definitions this
// template tracks: everything already adopted plus explicitly approved
// adoptions. The merger never sees the rest of the catalog, so nothing
// is adopted implicitly.
func trackedDefinitions(cfg models.TemplateConfig, snap *trash.Snapshot, adopt []string) ([]trash.CustomFormat, []trash.FormatGroup, []string) {
	var warnings []string
	seenFormats := map[string]bool{}
	seenGroups := map[string]bool{}

	formats := []trash.CustomFormat{}
	for _, f := range cfg.CustomFormats {
		if def := snap.FormatByID(f.TrashID); def != nil && !seenFormats[f.TrashID] {
			seenFormats[f.TrashID] = true
			formats = append(formats, *def)
		}
	}

	groups := []trash.FormatGroup{}
	for _, g := range cfg.Groups {
		if def := snap.GroupByID(g.TrashID); def != nil && !seenGroups[g.TrashID] {
			seenGroups[g.TrashID] = true
			groups = append(groups, *def)
		}
	}

	for _, id := range adopt {
		if seenFormats[id] || seenGroups[id] {
			continue
		}
		if def := snap.FormatByID(id); def != nil {
			seenFormats[id] = true
			formats = append(formats, *def)
			continue
		}
		if def := snap.GroupByID(id); def != nil {
			seenGroups[id] = true
			groups = append(groups, *def)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("adopt %s: not in catalog", id))
	}

	return formats, groups, warnings
}

func entryHasChanges(entry *models.ChangeLogEntry) bool {
	return len(entry.Formats.Added)+len(entry.Formats.Updated)+
		len(entry.Formats.Deprecated)+len(entry.Formats.Removed)+
		len(entry.Groups.Added)+len(entry.Groups.Updated)+
		len(entry.Groups.Deprecated)+len(entry.Groups.Removed)+
		len(entry.ScoreChanges)+len(entry.Conflicts) > 0
}

// AutoSyncSummary reports one auto-sync sweep.
type AutoSyncSummary struct {
	Checked int      `json:"checked"`
	Synced  int      `json:"synced"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// AutoSyncAll sweeps every template and syncs the eligible ones to the
// latest catalog version, deploying to their auto-mapped instances.
// Eligibility requires an auto mapping, no unreviewed local
// modifications, and no pending group additions. Failures are isolated
// per template; the sweep always finishes.
func (e *Engine) AutoSyncAll(ctx context.Context) (*AutoSyncSummary, error) {
	latest, err := e.fetcher.ResolveVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve latest catalog version: %w", err)
	}

	templates, _, err := e.templates.List(models.TemplateListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	summary := &AutoSyncSummary{Errors: []string{}}
	snapshots := map[models.Service]*trash.Snapshot{}

	for i := range templates {
		tpl := &templates[i]
		summary.Checked++

		if tpl.TrashVersion == "" || tpl.TrashVersion == latest {
			summary.Skipped++
			continue
		}
		if tpl.HasUserModifications {
			e.logger.Debug("auto-sync skipped, unreviewed local modifications", "template_id", tpl.ID)
			summary.Skipped++
			continue
		}

		mappings, err := e.mappings.ListByTemplate(tpl.ID)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("template %s: list mappings: %v", tpl.ID, err))
			continue
		}
		hasAuto := false
		for _, m := range mappings {
			if m.SyncStrategy == models.SyncAuto {
				hasAuto = true
				break
			}
		}
		if !hasAuto {
			summary.Skipped++
			continue
		}

		snap, ok := snapshots[tpl.Service]
		if !ok {
			snap, err = e.ensureSnapshot(ctx, tpl.Service, latest)
			if err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, fmt.Sprintf("template %s: %v", tpl.ID, err))
				continue
			}
			snapshots[tpl.Service] = snap
		}

		if additions := groupAdditions(e.decodeConfig(tpl), snap); len(additions) > 0 {
			e.logger.Info("auto-sync skipped, pending group additions",
				"template_id", tpl.ID, "pending", len(additions))
			summary.Skipped++
			continue
		}

		res, err := e.SyncTemplate(ctx, tpl.UserID, tpl.ID, SyncOptions{
			TargetVersion:     latest,
			ApplyScoreUpdates: true,
			Deploy:            true,
		})
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("template %s: %v", tpl.ID, err))
			continue
		}
		summary.Synced++
		summary.Errors = append(summary.Errors, res.Errors...)
	}

	return summary, nil
}
