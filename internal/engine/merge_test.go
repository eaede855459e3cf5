package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

// pinTime fixes the merge clock for the duration of a test.
func pinTime(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	orig := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = orig })
	return fixed
}

func catalogFormat(id, name string, defaultScore int) trash.CustomFormat {
	return trash.CustomFormat{
		TrashID:     id,
		Name:        name,
		TrashScores: map[string]int{"default": defaultScore},
		Specifications: []trash.Specification{
			{
				Name:           "Release Title",
				Implementation: "ReleaseTitleSpecification",
				Fields:         map[string]any{"value": "\\b" + id + "\\b"},
			},
		},
	}
}

// trackedEntry builds a template entry the way a previous sync would
// have stored the given catalog definition.
func trackedEntry(def trash.CustomFormat) models.TemplateFormat {
	conditions := make(map[string]bool, len(def.Specifications))
	for _, spec := range def.Specifications {
		conditions[spec.Name] = true
	}
	return models.TemplateFormat{
		TrashID:        def.TrashID,
		Name:           def.Name,
		Conditions:     conditions,
		OriginalConfig: marshalRaw(def),
		Origin:         models.OriginTrashSync,
	}
}

func catalogGroup(id, name string, memberIDs ...string) trash.FormatGroup {
	g := trash.FormatGroup{TrashID: id, Name: name}
	for _, m := range memberIDs {
		g.CustomFormats = append(g.CustomFormats, trash.GroupMember{TrashID: m, Name: m})
	}
	return g
}

func trackedGroup(def trash.FormatGroup, enabled bool) models.TemplateGroup {
	return models.TemplateGroup{
		TrashID:        def.TrashID,
		Name:           def.Name,
		Enabled:        enabled,
		OriginalConfig: marshalRaw(def),
		Origin:         models.OriginTrashSync,
	}
}

func TestMergePreservesUnchangedFormat(t *testing.T) {
	pinTime(t)
	def := catalogFormat("cf-1", "Remux Tier 01", 50)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(def)}}

	res := Merge(current, []trash.CustomFormat{def}, nil, MergeOptions{})

	if res.Stats.FormatsPreserved != 1 || res.Stats.FormatsUpdated != 0 {
		t.Errorf("stats = %+v, want 1 preserved, 0 updated", res.Stats)
	}
	if len(res.Formats.Updated) != 0 {
		t.Errorf("change set should be empty, got %v", res.Formats.Updated)
	}
}

func TestMergeRefreshesChangedFormat(t *testing.T) {
	pinTime(t)
	oldDef := catalogFormat("cf-1", "Remux Tier 01", 50)
	newDef := catalogFormat("cf-1", "Remux Tier 01 v2", 50)
	newDef.Specifications[0].Fields = map[string]any{"value": "\\bnew-pattern\\b"}
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(oldDef)}}

	res := Merge(current, []trash.CustomFormat{newDef}, nil, MergeOptions{})

	if res.Stats.FormatsUpdated != 1 {
		t.Fatalf("stats = %+v, want 1 updated", res.Stats)
	}
	got := res.Config.CustomFormats[0]
	if got.Name != "Remux Tier 01 v2" {
		t.Errorf("name not refreshed: %q", got.Name)
	}
	var stored trash.CustomFormat
	if err := json.Unmarshal(got.OriginalConfig, &stored); err != nil {
		t.Fatalf("stored config unreadable: %v", err)
	}
	if stored.Specifications[0].Fields["value"] != "\\bnew-pattern\\b" {
		t.Errorf("original config not refreshed: %v", stored.Specifications[0].Fields)
	}
	if len(res.Formats.Updated) != 1 || res.Formats.Updated[0].TrashID != "cf-1" {
		t.Errorf("updated change set = %v", res.Formats.Updated)
	}
}

func TestMergeRecordsScoreChange(t *testing.T) {
	pinTime(t)
	oldDef := catalogFormat("cf-1", "Remux Tier 01", 50)
	newDef := catalogFormat("cf-1", "Remux Tier 01", 100)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(oldDef)}}

	res := Merge(current, []trash.CustomFormat{newDef}, nil, MergeOptions{ApplyScoreUpdates: true})

	if len(res.ScoreChanges) != 1 {
		t.Fatalf("score changes = %v, want 1", res.ScoreChanges)
	}
	sc := res.ScoreChanges[0]
	if sc.OldScore != 50 || sc.NewScore != 100 {
		t.Errorf("score change = %+v, want 50 -> 100", sc)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("no conflicts expected, got %v", res.Conflicts)
	}
}

func TestMergeSkipsScoreChangeWhenDisabled(t *testing.T) {
	pinTime(t)
	oldDef := catalogFormat("cf-1", "Remux Tier 01", 50)
	newDef := catalogFormat("cf-1", "Remux Tier 01", 100)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(oldDef)}}

	res := Merge(current, []trash.CustomFormat{newDef}, nil, MergeOptions{ApplyScoreUpdates: false})

	if len(res.ScoreChanges) != 0 {
		t.Errorf("score changes should be empty with ApplyScoreUpdates off, got %v", res.ScoreChanges)
	}
}

func TestMergeNeverOverwritesScoreOverride(t *testing.T) {
	pinTime(t)
	def := catalogFormat("cf-1", "Remux Tier 01", 1500)
	entry := trackedEntry(def)
	entry.ScoreOverride = intPtr(2000)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{entry}}

	res := Merge(current, []trash.CustomFormat{def}, nil, MergeOptions{ApplyScoreUpdates: true})

	got := res.Config.CustomFormats[0]
	if got.ScoreOverride == nil || *got.ScoreOverride != 2000 {
		t.Fatalf("override was touched: %v", got.ScoreOverride)
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("conflicts = %v, want 1", res.Conflicts)
	}
	c := res.Conflicts[0]
	if c.CurrentScore != 2000 || c.RecommendedScore != 1500 {
		t.Errorf("conflict = %+v, want current 2000, recommended 1500", c)
	}
}

func TestMergeNoConflictWhenOverrideMatchesRecommendation(t *testing.T) {
	pinTime(t)
	def := catalogFormat("cf-1", "Remux Tier 01", 2000)
	entry := trackedEntry(def)
	entry.ScoreOverride = intPtr(2000)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{entry}}

	res := Merge(current, []trash.CustomFormat{def}, nil, MergeOptions{ApplyScoreUpdates: true})

	if len(res.Conflicts) != 0 {
		t.Errorf("conflicts = %v, want none", res.Conflicts)
	}
}

func TestMergeDeprecatesMissingFormat(t *testing.T) {
	now := pinTime(t)
	def := catalogFormat("cf-1", "Old Format", 50)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(def)}}

	res := Merge(current, nil, nil, MergeOptions{TargetVersion: "abcdef0123456789"})

	if res.Stats.FormatsDeprecated != 1 {
		t.Fatalf("stats = %+v, want 1 deprecated", res.Stats)
	}
	got := res.Config.CustomFormats[0]
	if !got.Deprecated {
		t.Fatal("entry should be deprecated")
	}
	if got.DeprecatedAt == nil || !got.DeprecatedAt.Equal(now) {
		t.Errorf("deprecated at = %v, want %v", got.DeprecatedAt, now)
	}
	if !strings.Contains(got.DeprecatedReason, "abcdef01") {
		t.Errorf("reason %q should name the catalog version", got.DeprecatedReason)
	}

	// a second pass must not deprecate again
	res2 := Merge(res.Config, nil, nil, MergeOptions{TargetVersion: "abcdef0123456789"})
	if res2.Stats.FormatsDeprecated != 0 || res2.Stats.FormatsPreserved != 1 {
		t.Errorf("second pass stats = %+v, want 0 deprecated, 1 preserved", res2.Stats)
	}
}

func TestMergeDropsRemovedFormatWhenAsked(t *testing.T) {
	pinTime(t)
	def := catalogFormat("cf-1", "Old Format", 50)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(def)}}

	res := Merge(current, nil, nil, MergeOptions{DeleteRemovedFormats: true})

	if len(res.Config.CustomFormats) != 0 {
		t.Fatalf("entry should be dropped, got %v", res.Config.CustomFormats)
	}
	if res.Stats.FormatsRemoved != 1 {
		t.Errorf("stats = %+v, want 1 removed", res.Stats)
	}
	if len(res.Formats.Removed) != 1 || res.Formats.Removed[0].TrashID != "cf-1" {
		t.Errorf("removed change set = %v", res.Formats.Removed)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", res.Warnings)
	}
}

func TestMergeKeepsUserAddedFormatOnDelete(t *testing.T) {
	pinTime(t)
	def := catalogFormat("cf-mine", "My Format", 0)
	entry := trackedEntry(def)
	entry.Origin = models.OriginUserAdded
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{entry}}

	res := Merge(current, nil, nil, MergeOptions{DeleteRemovedFormats: true, TargetVersion: "v2"})

	if len(res.Config.CustomFormats) != 1 {
		t.Fatal("user-added entry must survive DeleteRemovedFormats")
	}
	if !res.Config.CustomFormats[0].Deprecated {
		t.Error("user-added entry should still be marked deprecated")
	}
}

func TestMergeRevivesReappearedFormat(t *testing.T) {
	now := pinTime(t)
	def := catalogFormat("cf-1", "Back Again", 50)
	entry := trackedEntry(def)
	entry.Deprecated = true
	entry.DeprecatedAt = &now
	entry.DeprecatedReason = "no longer in catalog as of v1"
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{entry}}

	res := Merge(current, []trash.CustomFormat{def}, nil, MergeOptions{})

	got := res.Config.CustomFormats[0]
	if got.Deprecated || got.DeprecatedAt != nil || got.DeprecatedReason != "" {
		t.Errorf("entry should be revived, got %+v", got)
	}
	if res.Stats.FormatsUpdated != 1 {
		t.Errorf("revival counts as an update, stats = %+v", res.Stats)
	}
}

func TestMergeConditionFlags(t *testing.T) {
	pinTime(t)
	oldDef := trash.CustomFormat{
		TrashID: "cf-1",
		Name:    "Conditions",
		Specifications: []trash.Specification{
			{Name: "A", Implementation: "X", Fields: map[string]any{}},
			{Name: "B", Implementation: "X", Fields: map[string]any{}},
			{Name: "Gone", Implementation: "X", Fields: map[string]any{}},
		},
	}
	newDef := trash.CustomFormat{
		TrashID: "cf-1",
		Name:    "Conditions",
		Specifications: []trash.Specification{
			{Name: "A", Implementation: "X", Fields: map[string]any{}},
			{Name: "B", Implementation: "X", Fields: map[string]any{}},
			{Name: "New", Implementation: "X", Fields: map[string]any{}},
		},
	}
	entry := trackedEntry(oldDef)
	entry.Conditions["A"] = false // user disabled A
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{entry}}

	res := Merge(current, []trash.CustomFormat{newDef}, nil, MergeOptions{})

	got := res.Config.CustomFormats[0].Conditions
	want := map[string]bool{"A": false, "B": true, "New": true}
	if len(got) != len(want) {
		t.Fatalf("conditions = %v, want %v", got, want)
	}
	for name, enabled := range want {
		if got[name] != enabled {
			t.Errorf("condition %q = %v, want %v", name, got[name], enabled)
		}
	}
}

func TestMergeAddsTrackedDefinitions(t *testing.T) {
	now := pinTime(t)
	existing := catalogFormat("cf-b", "Existing", 50)
	addZ := catalogFormat("cf-z", "Added Z", 10)
	addA := catalogFormat("cf-a", "Added A", 20)
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(existing)}}

	res := Merge(current, []trash.CustomFormat{existing, addZ, addA}, nil, MergeOptions{})

	if res.Stats.FormatsAdded != 2 {
		t.Fatalf("stats = %+v, want 2 added", res.Stats)
	}
	ids := make([]string, 0, len(res.Config.CustomFormats))
	for _, f := range res.Config.CustomFormats {
		ids = append(ids, f.TrashID)
	}
	// current entries keep their order, additions follow sorted by id
	want := []string{"cf-b", "cf-a", "cf-z"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
	added := res.Config.CustomFormats[1]
	if added.Origin != models.OriginTrashSync {
		t.Errorf("origin = %q, want %q", added.Origin, models.OriginTrashSync)
	}
	if !added.AddedAt.Equal(now) {
		t.Errorf("added at = %v, want %v", added.AddedAt, now)
	}
	if !added.Conditions["Release Title"] {
		t.Error("new entry conditions should default to enabled")
	}
}

func TestMergeDeterministic(t *testing.T) {
	pinTime(t)
	defs := []trash.CustomFormat{
		catalogFormat("cf-3", "Three", 30),
		catalogFormat("cf-1", "One", 10),
		catalogFormat("cf-2", "Two", 20),
	}
	current := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(defs[0])}}

	first := Merge(current, defs, nil, MergeOptions{ApplyScoreUpdates: true})
	second := Merge(current, defs, nil, MergeOptions{ApplyScoreUpdates: true})

	a, _ := json.Marshal(first.Config)
	b, _ := json.Marshal(second.Config)
	if string(a) != string(b) {
		t.Errorf("identical inputs produced different configs:\n%s\n%s", a, b)
	}
}

func TestMergeGroups(t *testing.T) {
	pinTime(t)

	t.Run("new group honors default flag", func(t *testing.T) {
		on := catalogGroup("grp-on", "Enabled Group", "cf-1")
		on.Default = true
		off := catalogGroup("grp-off", "Disabled Group", "cf-2")

		res := Merge(models.TemplateConfig{}, nil, []trash.FormatGroup{on, off}, MergeOptions{})

		if res.Stats.GroupsAdded != 2 {
			t.Fatalf("stats = %+v, want 2 groups added", res.Stats)
		}
		byID := map[string]models.TemplateGroup{}
		for _, g := range res.Config.Groups {
			byID[g.TrashID] = g
		}
		if !byID["grp-on"].Enabled {
			t.Error("default group should start enabled")
		}
		if byID["grp-off"].Enabled {
			t.Error("non-default group should start disabled")
		}
	})

	t.Run("membership change counts as update", func(t *testing.T) {
		oldDef := catalogGroup("grp-1", "Tiers", "cf-1", "cf-2")
		newDef := catalogGroup("grp-1", "Tiers", "cf-1", "cf-2", "cf-3")
		current := models.TemplateConfig{Groups: []models.TemplateGroup{trackedGroup(oldDef, true)}}

		res := Merge(current, nil, []trash.FormatGroup{newDef}, MergeOptions{})

		if res.Stats.GroupsUpdated != 1 {
			t.Errorf("stats = %+v, want 1 group updated", res.Stats)
		}
		if !res.Config.Groups[0].Enabled {
			t.Error("enabled flag must survive the update")
		}
	})

	t.Run("missing group is deprecated", func(t *testing.T) {
		def := catalogGroup("grp-1", "Tiers", "cf-1")
		current := models.TemplateConfig{Groups: []models.TemplateGroup{trackedGroup(def, true)}}

		res := Merge(current, nil, nil, MergeOptions{TargetVersion: "deadbeefcafe"})

		if res.Stats.GroupsDeprecated != 1 {
			t.Fatalf("stats = %+v, want 1 group deprecated", res.Stats)
		}
		if !strings.Contains(res.Config.Groups[0].DeprecatedReason, "deadbeef") {
			t.Errorf("reason = %q", res.Config.Groups[0].DeprecatedReason)
		}
	})
}

func TestSpecificationsEqual(t *testing.T) {
	spec := func(name, value string) trash.Specification {
		return trash.Specification{Name: name, Implementation: "X", Fields: map[string]any{"value": value}}
	}

	t.Run("order independent", func(t *testing.T) {
		a := []trash.Specification{spec("one", "1"), spec("two", "2")}
		b := []trash.Specification{spec("two", "2"), spec("one", "1")}
		if !specificationsEqual(a, b) {
			t.Error("reordered lists should compare equal")
		}
	})

	t.Run("field change detected", func(t *testing.T) {
		a := []trash.Specification{spec("one", "1")}
		b := []trash.Specification{spec("one", "changed")}
		if specificationsEqual(a, b) {
			t.Error("changed field value should not compare equal")
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		a := []trash.Specification{spec("one", "1")}
		if specificationsEqual(a, nil) {
			t.Error("different lengths should not compare equal")
		}
	})

	t.Run("numeric fields survive a json round trip", func(t *testing.T) {
		a := []trash.Specification{{Name: "size", Implementation: "X", Fields: map[string]any{"min": 5, "max": 100}}}
		data, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		var b []trash.Specification
		if err := json.Unmarshal(data, &b); err != nil {
			t.Fatal(err)
		}
		// b now holds float64 values; canonical comparison must not care
		if !specificationsEqual(a, b) {
			t.Error("json round trip should not change equality")
		}
	})
}

func TestShortVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "unknown"},
		{"abc", "abc"},
		{"abcdef01", "abcdef01"},
		{"abcdef0123456789", "abcdef01"},
	}
	for _, tt := range tests {
		if got := shortVersion(tt.in); got != tt.want {
			t.Errorf("shortVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
