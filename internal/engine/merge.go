package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// timeNow stamps addedAt/deprecatedAt on genuinely new transitions.
// Tests pin it for deterministic output.
var timeNow = time.Now

// MergeOptions controls one merge invocation. Callers pass only the
// catalog definitions the template should track; the merger never sees
// the rest of the catalog.
type MergeOptions struct {
	ApplyScoreUpdates    bool
	ScoreSet             string
	DeleteRemovedFormats bool
	TargetVersion        string
}

// MergeStats counts what the merge did per entry kind.
type MergeStats struct {
	FormatsAdded      int `json:"formats_added"`
	FormatsUpdated    int `json:"formats_updated"`
	FormatsPreserved  int `json:"formats_preserved"`
	FormatsDeprecated int `json:"formats_deprecated"`
	FormatsRemoved    int `json:"formats_removed"`
	GroupsAdded       int `json:"groups_added"`
	GroupsUpdated     int `json:"groups_updated"`
	GroupsPreserved   int `json:"groups_preserved"`
	GroupsDeprecated  int `json:"groups_deprecated"`
	GroupsRemoved     int `json:"groups_removed"`
}

// MergeResult is the outcome of a merge: the reconciled config plus
// everything a change-log entry needs.
type MergeResult struct {
	Config       models.TemplateConfig
	Stats        MergeStats
	Formats      models.ChangeSet
	Groups       models.ChangeSet
	ScoreChanges []models.ScoreChange
	Conflicts    []models.ScoreConflict
	Warnings     []string
}

// Merge reconciles a template config against newer catalog definitions
// without discarding user edits. User score overrides are never replaced;
// a differing catalog recommendation is recorded as a conflict. Entries
// gone from the catalog are deprecated and kept unless they were adopted
// from the catalog and DeleteRemovedFormats is set. Output is
// deterministic for identical inputs: current entries keep their order,
// additions follow sorted by trash id.
func Merge(current models.TemplateConfig, latestFormats []trash.CustomFormat, latestGroups []trash.FormatGroup, opts MergeOptions) MergeResult {
	now := timeNow()
	res := MergeResult{}

	res.Config.CustomFormats = mergeFormats(current.CustomFormats, latestFormats, opts, now, &res)
	res.Config.Groups = mergeGroups(current.Groups, latestGroups, opts, now, &res)
	res.Config.Profile = current.Profile

	return res
}

func mergeFormats(current []models.TemplateFormat, latest []trash.CustomFormat, opts MergeOptions, now time.Time, res *MergeResult) []models.TemplateFormat {
	latestByID := make(map[string]*trash.CustomFormat, len(latest))
	for i := range latest {
		latestByID[latest[i].TrashID] = &latest[i]
	}
	currentIDs := make(map[string]bool, len(current))
	for i := range current {
		currentIDs[current[i].TrashID] = true
	}

	merged := make([]models.TemplateFormat, 0, len(current)+len(latest))

	for _, cur := range current {
		def, ok := latestByID[cur.TrashID]
		if !ok {
			if cur.Origin == models.OriginUserAdded || !opts.DeleteRemovedFormats {
				if !cur.Deprecated {
					cur.Deprecated = true
					cur.DeprecatedAt = &now
					cur.DeprecatedReason = fmt.Sprintf("no longer in catalog as of %s", shortVersion(opts.TargetVersion))
					res.Formats.Deprecated = append(res.Formats.Deprecated, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
					res.Stats.FormatsDeprecated++
				} else {
					res.Stats.FormatsPreserved++
				}
				merged = append(merged, cur)
			} else {
				res.Formats.Removed = append(res.Formats.Removed, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
				res.Stats.FormatsRemoved++
				res.Warnings = append(res.Warnings, fmt.Sprintf("format %q (%s) dropped: no longer in catalog", cur.Name, cur.TrashID))
			}
			continue
		}

		updated := false

		// a deprecated entry reappearing upstream comes back to life
		if cur.Deprecated {
			cur.Deprecated = false
			cur.DeprecatedAt = nil
			cur.DeprecatedReason = ""
			updated = true
		}

		var prev trash.CustomFormat
		prevKnown := json.Unmarshal(cur.OriginalConfig, &prev) == nil
		if !prevKnown || !specificationsEqual(prev.Specifications, def.Specifications) {
			updated = true
		}

		// keep flags for conditions that still exist, enable new ones
		conditions := make(map[string]bool, len(def.Specifications))
		for _, spec := range def.Specifications {
			if enabled, known := cur.Conditions[spec.Name]; known {
				conditions[spec.Name] = enabled
			} else {
				conditions[spec.Name] = true
			}
		}
		cur.Conditions = conditions

		if opts.ApplyScoreUpdates {
			if recommended, has := def.Score(opts.ScoreSet); has {
				if cur.ScoreOverride == nil {
					if prevKnown {
						if old, hadOld := prev.Score(opts.ScoreSet); hadOld && old != recommended {
							res.ScoreChanges = append(res.ScoreChanges, models.ScoreChange{
								TrashID: cur.TrashID, Name: def.Name, OldScore: old, NewScore: recommended,
							})
						}
					}
				} else if *cur.ScoreOverride != recommended {
					res.Conflicts = append(res.Conflicts, models.ScoreConflict{
						TrashID: cur.TrashID, Name: def.Name,
						CurrentScore: *cur.ScoreOverride, RecommendedScore: recommended,
					})
				}
			}
		}

		cur.Name = def.Name
		cur.OriginalConfig = marshalRaw(def)

		if updated {
			res.Formats.Updated = append(res.Formats.Updated, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
			res.Stats.FormatsUpdated++
		} else {
			res.Stats.FormatsPreserved++
		}
		merged = append(merged, cur)
	}

	var added []models.TemplateFormat
	for i := range latest {
		def := &latest[i]
		if currentIDs[def.TrashID] {
			continue
		}
		conditions := make(map[string]bool, len(def.Specifications))
		for _, spec := range def.Specifications {
			conditions[spec.Name] = true
		}
		added = append(added, models.TemplateFormat{
			TrashID:        def.TrashID,
			Name:           def.Name,
			Conditions:     conditions,
			OriginalConfig: marshalRaw(def),
			Origin:         models.OriginTrashSync,
			AddedAt:        now,
		})
		res.Formats.Added = append(res.Formats.Added, models.ChangeRef{TrashID: def.TrashID, Name: def.Name})
		res.Stats.FormatsAdded++
	}
	sort.Slice(added, func(i, j int) bool { return added[i].TrashID < added[j].TrashID })

	return append(merged, added...)
}

func mergeGroups(current []models.TemplateGroup, latest []trash.FormatGroup, opts MergeOptions, now time.Time, res *MergeResult) []models.TemplateGroup {
	latestByID := make(map[string]*trash.FormatGroup, len(latest))
	for i := range latest {
		latestByID[latest[i].TrashID] = &latest[i]
	}
	currentIDs := make(map[string]bool, len(current))
	for i := range current {
		currentIDs[current[i].TrashID] = true
	}

	merged := make([]models.TemplateGroup, 0, len(current)+len(latest))

	for _, cur := range current {
		def, ok := latestByID[cur.TrashID]
		if !ok {
			if cur.Origin == models.OriginUserAdded || !opts.DeleteRemovedFormats {
				if !cur.Deprecated {
					cur.Deprecated = true
					cur.DeprecatedAt = &now
					cur.DeprecatedReason = fmt.Sprintf("no longer in catalog as of %s", shortVersion(opts.TargetVersion))
					res.Groups.Deprecated = append(res.Groups.Deprecated, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
					res.Stats.GroupsDeprecated++
				} else {
					res.Stats.GroupsPreserved++
				}
				merged = append(merged, cur)
			} else {
				res.Groups.Removed = append(res.Groups.Removed, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
				res.Stats.GroupsRemoved++
				res.Warnings = append(res.Warnings, fmt.Sprintf("group %q (%s) dropped: no longer in catalog", cur.Name, cur.TrashID))
			}
			continue
		}

		updated := false
		if cur.Deprecated {
			cur.Deprecated = false
			cur.DeprecatedAt = nil
			cur.DeprecatedReason = ""
			updated = true
		}

		var prev trash.FormatGroup
		prevKnown := json.Unmarshal(cur.OriginalConfig, &prev) == nil
		if !prevKnown || !groupsEqual(&prev, def) {
			updated = true
		}

		cur.Name = def.Name
		cur.OriginalConfig = marshalRaw(def)

		if updated {
			res.Groups.Updated = append(res.Groups.Updated, models.ChangeRef{TrashID: cur.TrashID, Name: cur.Name})
			res.Stats.GroupsUpdated++
		} else {
			res.Stats.GroupsPreserved++
		}
		merged = append(merged, cur)
	}

	var added []models.TemplateGroup
	for i := range latest {
		def := &latest[i]
		if currentIDs[def.TrashID] {
			continue
		}
		added = append(added, models.TemplateGroup{
			TrashID:        def.TrashID,
			Name:           def.Name,
			Enabled:        def.Default,
			OriginalConfig: marshalRaw(def),
			Origin:         models.OriginTrashSync,
			AddedAt:        now,
		})
		res.Groups.Added = append(res.Groups.Added, models.ChangeRef{TrashID: def.TrashID, Name: def.Name})
		res.Stats.GroupsAdded++
	}
	sort.Slice(added, func(i, j int) bool { return added[i].TrashID < added[j].TrashID })

	return append(merged, added...)
}

// specificationsEqual compares two specification lists structurally,
// independent of list order. Field values compare by canonical JSON;
// encoding/json sorts map keys, so marshaled bytes are canonical.
func specificationsEqual(a, b []trash.Specification) bool {
	if len(a) != len(b) {
		return false
	}
	byName := make(map[string][]byte, len(a))
	for _, spec := range a {
		byName[spec.Name] = marshalRaw(spec)
	}
	for _, spec := range b {
		other, ok := byName[spec.Name]
		if !ok || !bytes.Equal(other, marshalRaw(spec)) {
			return false
		}
	}
	return true
}

// groupsEqual compares two group definitions structurally: name plus the
// member set, independent of member order.
func groupsEqual(a, b *trash.FormatGroup) bool {
	if a.Name != b.Name || len(a.CustomFormats) != len(b.CustomFormats) {
		return false
	}
	members := make(map[string]trash.GroupMember, len(a.CustomFormats))
	for _, m := range a.CustomFormats {
		members[m.TrashID] = m
	}
	for _, m := range b.CustomFormats {
		if other, ok := members[m.TrashID]; !ok || other != m {
			return false
		}
	}
	return true
}

func marshalRaw(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func shortVersion(version string) string {
	if len(version) > 8 {
		return version[:8]
	}
	if version == "" {
		return "unknown"
	}
	return version
}
