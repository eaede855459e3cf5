package engine

import (
	"context"
	"testing"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/trash"
)

func diffFor(t *testing.T, diff *TemplateDiff, trashID string) FormatDiff {
	t.Helper()
	for _, d := range diff.Formats {
		if d.TrashID == trashID {
			return d
		}
	}
	t.Fatalf("no diff entry for %s", trashID)
	return FormatDiff{}
}

func TestDiffClassifiesAgainstLatestCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	unchanged := catalogFormat("cf-same", "Stable", 10)
	modifiedOld := catalogFormat("cf-mod", "Drifting", 20)
	modifiedNew := catalogFormat("cf-mod", "Drifting v2", 20)
	modifiedNew.Specifications[0].Fields = map[string]any{"value": "\\bdrifted\\b"}
	removed := catalogFormat("cf-gone", "Abandoned", 5)
	overridden := catalogFormat("cf-override", "Pinned", 1500)
	rescoredOld := catalogFormat("cf-rescore", "Re-scored", 50)
	rescoredNew := catalogFormat("cf-rescore", "Re-scored", 100)

	groupOld := catalogGroup("grp-1", "HQ Groups", "cf-same")
	groupNew := catalogGroup("grp-1", "HQ Groups", "cf-same", "cf-mod")

	env.fetcher.latest = "v2"
	env.fetcher.add(testSnapshot("v2",
		[]trash.CustomFormat{unchanged, modifiedNew, overridden, rescoredNew},
		[]trash.FormatGroup{groupNew}, nil))

	pinned := trackedEntry(overridden)
	pinned.ScoreOverride = intPtr(2000)
	tpl := env.createTemplate(t, "radarr-hd", models.TemplateConfig{
		CustomFormats: []models.TemplateFormat{
			trackedEntry(unchanged),
			trackedEntry(modifiedOld),
			trackedEntry(removed),
			pinned,
			trackedEntry(rescoredOld),
		},
		Groups: []models.TemplateGroup{trackedGroup(groupOld, true)},
	}, "v1")

	diff, err := env.engine.Diff(ctx, env.userID, tpl.ID)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if diff.Historical {
		t.Error("live diff flagged historical")
	}
	if diff.FromVersion != "v1" || diff.ToVersion != "v2" {
		t.Errorf("versions = %s -> %s, want v1 -> v2", diff.FromVersion, diff.ToVersion)
	}

	if got := diffFor(t, diff, "cf-same").Status; got != DiffUnchanged {
		t.Errorf("cf-same status = %s, want unchanged", got)
	}
	mod := diffFor(t, diff, "cf-mod")
	if mod.Status != DiffModified {
		t.Errorf("cf-mod status = %s, want modified", mod.Status)
	}
	if mod.Name != "Drifting v2" {
		t.Errorf("modified entry should carry the new name, got %q", mod.Name)
	}
	if got := diffFor(t, diff, "cf-gone").Status; got != DiffRemoved {
		t.Errorf("cf-gone status = %s, want removed", got)
	}

	want := DiffSummary{
		FormatsModified:  1,
		FormatsUnchanged: 3, // cf-same, cf-override, cf-rescore (specs untouched)
		FormatsRemoved:   1,
		GroupsModified:   1,
	}
	if diff.Summary != want {
		t.Errorf("summary = %+v, want %+v", diff.Summary, want)
	}

	if len(diff.Conflicts) != 1 || diff.Conflicts[0].TrashID != "cf-override" {
		t.Fatalf("conflicts = %v, want cf-override only", diff.Conflicts)
	}
	if c := diff.Conflicts[0]; c.CurrentScore != 2000 || c.RecommendedScore != 1500 {
		t.Errorf("conflict = %+v, want 2000 vs 1500", c)
	}

	if len(diff.SuggestedScoreChanges) != 1 || diff.SuggestedScoreChanges[0].TrashID != "cf-rescore" {
		t.Fatalf("suggested score changes = %v, want cf-rescore only", diff.SuggestedScoreChanges)
	}
	if sc := diff.SuggestedScoreChanges[0]; sc.OldScore != 50 || sc.NewScore != 100 {
		t.Errorf("suggested change = %+v, want 50 -> 100", sc)
	}
	if len(diff.ScoreChanges) != 0 {
		t.Errorf("live diff applied score changes: %v", diff.ScoreChanges)
	}
}

func TestDiffReplaysChangeLogWhenCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	changedOld := catalogFormat("cf-1", "Remux Tier 01", 50)
	changedNew := catalogFormat("cf-1", "Remux Tier 01", 100)
	changedNew.Specifications[0].Fields = map[string]any{"value": "\\bnew\\b"}
	dropped := catalogFormat("cf-2", "Old Encoder", 25)

	env.fetcher.latest = "v2"
	env.fetcher.add(testSnapshot("v2", []trash.CustomFormat{changedNew}, nil, nil))

	tpl := env.createTemplate(t, "radarr-hd", models.TemplateConfig{
		CustomFormats: []models.TemplateFormat{trackedEntry(changedOld), trackedEntry(dropped)},
	}, "v1")

	if _, err := env.engine.SyncTemplate(ctx, env.userID, tpl.ID, SyncOptions{ApplyScoreUpdates: true}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	diff, err := env.engine.Diff(ctx, env.userID, tpl.ID)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	if !diff.Historical {
		t.Fatal("diff at the latest version should replay the change log")
	}
	if diff.FromVersion != "v1" || diff.ToVersion != "v2" {
		t.Errorf("versions = %s -> %s, want the replayed entry's v1 -> v2", diff.FromVersion, diff.ToVersion)
	}
	if got := diffFor(t, diff, "cf-1").Status; got != DiffModified {
		t.Errorf("cf-1 status = %s, want modified from the log", got)
	}
	if got := diffFor(t, diff, "cf-2").Status; got != DiffDeprecated {
		t.Errorf("cf-2 status = %s, want deprecated from the log", got)
	}
	if diff.Summary.FormatsModified != 1 || diff.Summary.FormatsDeprecated != 1 {
		t.Errorf("summary = %+v", diff.Summary)
	}
	if len(diff.ScoreChanges) != 1 || diff.ScoreChanges[0].NewScore != 100 {
		t.Errorf("replayed score changes = %v, want the applied 50 -> 100", diff.ScoreChanges)
	}
	if len(diff.SuggestedScoreChanges) != 0 {
		t.Errorf("historical diff should not suggest score changes, got %v", diff.SuggestedScoreChanges)
	}
}

func TestDiffSuggestsAdditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	adopted := catalogFormat("cf-a", "Adopted", 10)
	fromGroup := catalogFormat("cf-b", "Group Member", 40)
	fromProfile := catalogFormat("cf-c", "Profile Member", 60)
	group := catalogGroup("grp-1", "HDR Formats", "cf-a", "cf-b")

	profile := trash.QualityProfile{
		TrashID: "prof-1",
		Name:    "HD Bluray + WEB",
		FormatItems: []trash.BlueprintFormat{
			{TrashID: "cf-a", Name: "Adopted"},
			{TrashID: "cf-c", Name: "Profile Member"},
		},
	}

	env.fetcher.latest = "v2"
	env.fetcher.add(testSnapshot("v2",
		[]trash.CustomFormat{adopted, fromGroup, fromProfile},
		[]trash.FormatGroup{group},
		[]trash.QualityProfile{profile}))

	t.Run("enabled group members", func(t *testing.T) {
		tpl := env.createTemplate(t, "with-group", models.TemplateConfig{
			CustomFormats: []models.TemplateFormat{trackedEntry(adopted)},
			Groups:        []models.TemplateGroup{trackedGroup(group, true)},
		}, "v1")

		diff, err := env.engine.Diff(ctx, env.userID, tpl.ID)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		if len(diff.SuggestedAdditions) != 1 {
			t.Fatalf("suggestions = %v, want only the unadopted member", diff.SuggestedAdditions)
		}
		s := diff.SuggestedAdditions[0]
		if s.TrashID != "cf-b" || s.RecommendedScore != 40 || s.Source != "HDR Formats" {
			t.Errorf("suggestion = %+v", s)
		}
	})

	t.Run("disabled group suggests nothing", func(t *testing.T) {
		tpl := env.createTemplate(t, "group-off", models.TemplateConfig{
			Groups: []models.TemplateGroup{trackedGroup(group, false)},
		}, "v1")

		diff, err := env.engine.Diff(ctx, env.userID, tpl.ID)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		if len(diff.SuggestedAdditions) != 0 {
			t.Errorf("suggestions = %v, want none from a disabled group", diff.SuggestedAdditions)
		}
	})

	t.Run("linked source profile members", func(t *testing.T) {
		tpl := &models.Template{
			UserID:          env.userID,
			Name:            "with-profile",
			Service:         models.ServiceRadarr,
			TrashVersion:    "v1",
			SourceProfileID: "prof-1",
		}
		cfg := models.TemplateConfig{CustomFormats: []models.TemplateFormat{trackedEntry(adopted)}}
		if err := tpl.EncodeConfig(cfg); err != nil {
			t.Fatalf("encode config: %v", err)
		}
		if err := env.templates.Create(tpl); err != nil {
			t.Fatalf("create template: %v", err)
		}

		diff, err := env.engine.Diff(ctx, env.userID, tpl.ID)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		if len(diff.SuggestedAdditions) != 1 {
			t.Fatalf("suggestions = %v, want only the profile member", diff.SuggestedAdditions)
		}
		s := diff.SuggestedAdditions[0]
		if s.TrashID != "cf-c" || s.RecommendedScore != 60 || s.Source != "HD Bluray + WEB" {
			t.Errorf("suggestion = %+v", s)
		}
	})
}
