package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// recentSyncWindow is how long a completed sync keeps a template flagged
// as recent activity.
const recentSyncWindow = 24 * time.Hour

// TemplateUpdate describes one template's standing against the latest
// catalog version.
type TemplateUpdate struct {
	TemplateID     string         `json:"template_id"`
	Name           string         `json:"name"`
	Service        models.Service `json:"service"`
	CurrentVersion string         `json:"current_version"`
	LatestVersion  string         `json:"latest_version"`
	Outdated       bool           `json:"outdated"`

	// AutoSyncEligible requires an auto-mapped instance, no unreviewed
	// local modifications, and no pending group additions.
	AutoSyncEligible     bool `json:"auto_sync_eligible"`
	HasAutoMapping       bool `json:"has_auto_mapping"`
	HasUserModifications bool `json:"has_user_modifications"`

	// PendingAdditions are formats newly reachable through the template's
	// enabled groups; they are never auto-adopted without approval.
	PendingAdditions []SuggestedAddition `json:"pending_additions"`

	RecentlySynced bool       `json:"recently_synced"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// UpdateCheckResult lists every template that is outdated or recently
// synced. Templates never synced are skipped entirely.
type UpdateCheckResult struct {
	LatestVersion string           `json:"latest_version"`
	CheckedAt     time.Time        `json:"checked_at"`
	Outdated      int              `json:"outdated"`
	Templates     []TemplateUpdate `json:"templates"`
}

// CheckForUpdates compares every synced template owned by the user
// against the latest catalog version.
func (e *Engine) CheckForUpdates(ctx context.Context, userID string) (*UpdateCheckResult, error) {
	latest, err := e.fetcher.ResolveVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve latest catalog version: %w", err)
	}

	templates, _, err := e.templates.List(models.TemplateListFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	result := &UpdateCheckResult{
		LatestVersion: latest,
		CheckedAt:     timeNow(),
		Templates:     []TemplateUpdate{},
	}

	snapshots := map[models.Service]*trash.Snapshot{}

	for i := range templates {
		tpl := &templates[i]
		if tpl.TrashVersion == "" {
			// never synced, nothing to compare against
			continue
		}

		update, err := e.checkTemplate(ctx, tpl, latest, snapshots)
		if err != nil {
			return nil, err
		}
		if update == nil {
			continue
		}

		if update.Outdated {
			result.Outdated++
		}
		result.Templates = append(result.Templates, *update)
	}

	e.metrics.SetTemplatesOutdated(result.Outdated)

	return result, nil
}

// checkTemplate builds the update entry for one template, or nil when the
// template is current and has no recent activity to surface.
func (e *Engine) checkTemplate(ctx context.Context, tpl *models.Template, latest string, snapshots map[models.Service]*trash.Snapshot) (*TemplateUpdate, error) {
	entries := e.decodeChangeLog(tpl)
	lastSynced := latestSyncedAt(entries)

	update := &TemplateUpdate{
		TemplateID:           tpl.ID,
		Name:                 tpl.Name,
		Service:              tpl.Service,
		CurrentVersion:       tpl.TrashVersion,
		LatestVersion:        latest,
		Outdated:             tpl.TrashVersion != latest,
		HasUserModifications: tpl.HasUserModifications,
		PendingAdditions:     []SuggestedAddition{},
	}
	if !lastSynced.IsZero() {
		t := lastSynced
		update.LastSyncedAt = &t
		update.RecentlySynced = timeNow().Sub(lastSynced) < recentSyncWindow
	}

	if !update.Outdated && !update.RecentlySynced {
		return nil, nil
	}

	mappings, err := e.mappings.ListByTemplate(tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("list mappings for template %s: %w", tpl.ID, err)
	}
	for _, m := range mappings {
		if m.SyncStrategy == models.SyncAuto {
			update.HasAutoMapping = true
			break
		}
	}

	snap, ok := snapshots[tpl.Service]
	if !ok {
		snap, err = e.ensureSnapshot(ctx, tpl.Service, latest)
		if err != nil {
			return nil, err
		}
		snapshots[tpl.Service] = snap
	}

	cfg := e.decodeConfig(tpl)
	update.PendingAdditions = groupAdditions(cfg, snap)

	update.AutoSyncEligible = update.HasAutoMapping &&
		!update.HasUserModifications &&
		len(update.PendingAdditions) == 0

	return update, nil
}

// groupAdditions collects catalog formats reachable through the
// template's enabled groups but not yet adopted. New group members always
// require one explicit approval before a sync may adopt them.
func groupAdditions(cfg models.TemplateConfig, snap *trash.Snapshot) []SuggestedAddition {
	adopted := make(map[string]bool, len(cfg.CustomFormats))
	for _, f := range cfg.CustomFormats {
		adopted[f.TrashID] = true
	}

	additions := []SuggestedAddition{}
	seen := map[string]bool{}

	for _, g := range cfg.Groups {
		if !g.Enabled || g.Deprecated {
			continue
		}
		def := snap.GroupByID(g.TrashID)
		if def == nil {
			continue
		}
		for _, member := range def.CustomFormats {
			if adopted[member.TrashID] || seen[member.TrashID] {
				continue
			}
			fdef := snap.FormatByID(member.TrashID)
			if fdef == nil {
				continue
			}
			score, _ := fdef.Score(cfg.Profile.ScoreSet)
			seen[member.TrashID] = true
			additions = append(additions, SuggestedAddition{
				TrashID:          member.TrashID,
				Name:             fdef.Name,
				RecommendedScore: score,
				Source:           def.Name,
			})
		}
	}

	return additions
}
