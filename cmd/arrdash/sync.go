package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
)

var (
	syncTemplateID    string
	syncAll           bool
	syncTargetVersion string
	syncApplyScores   bool
	syncDeleteRemoved bool
	syncDeploy        bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync templates against the catalog",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncTemplateID, "template", "", "Template ID to sync")
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Run the auto-sync sweep over every eligible template")
	syncCmd.Flags().StringVar(&syncTargetVersion, "version", "", "Catalog version to sync to (default: latest)")
	syncCmd.Flags().BoolVar(&syncApplyScores, "apply-scores", false, "Adopt catalog score recommendations")
	syncCmd.Flags().BoolVar(&syncDeleteRemoved, "delete-removed", false, "Drop entries removed upstream instead of deprecating them")
	syncCmd.Flags().BoolVar(&syncDeploy, "deploy", false, "Deploy to auto-mapped instances after syncing")
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncTemplateID == "" && !syncAll {
		return fmt.Errorf("either --template or --all is required")
	}
	if syncTemplateID != "" && syncAll {
		return fmt.Errorf("--template and --all are mutually exclusive")
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := context.Background()

	if syncAll {
		summary, err := env.engine.AutoSyncAll(ctx)
		if err != nil {
			return fmt.Errorf("auto-sync sweep failed: %w", err)
		}

		fmt.Printf("Checked: %d\n", summary.Checked)
		fmt.Printf("Synced:  %d\n", summary.Synced)
		fmt.Printf("Skipped: %d\n", summary.Skipped)
		fmt.Printf("Failed:  %d\n", summary.Failed)
		for _, msg := range summary.Errors {
			fmt.Printf("  - %s\n", msg)
		}
		return nil
	}

	tpl, err := env.templates.GetByID(syncTemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	if tpl == nil || tpl.DeletedAt != nil {
		return fmt.Errorf("template not found: %s", syncTemplateID)
	}

	result, err := env.engine.SyncTemplate(ctx, tpl.UserID, tpl.ID, engine.SyncOptions{
		TargetVersion:        syncTargetVersion,
		ApplyScoreUpdates:    syncApplyScores,
		DeleteRemovedFormats: syncDeleteRemoved,
		Deploy:               syncDeploy,
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	from := result.FromVersion
	if from == "" {
		from = "(never synced)"
	}
	fmt.Printf("Template %q synced: %s -> %s\n", tpl.Name, from, result.ToVersion)
	fmt.Printf("  Formats: %d added, %d updated, %d preserved, %d deprecated, %d removed\n",
		result.Stats.FormatsAdded, result.Stats.FormatsUpdated, result.Stats.FormatsPreserved,
		result.Stats.FormatsDeprecated, result.Stats.FormatsRemoved)
	fmt.Printf("  Groups:  %d added, %d updated, %d preserved, %d deprecated, %d removed\n",
		result.Stats.GroupsAdded, result.Stats.GroupsUpdated, result.Stats.GroupsPreserved,
		result.Stats.GroupsDeprecated, result.Stats.GroupsRemoved)

	for _, sc := range result.ScoreChanges {
		fmt.Printf("  Score %s: %d -> %d\n", sc.Name, sc.OldScore, sc.NewScore)
	}
	for _, c := range result.Conflicts {
		fmt.Printf("  Conflict %s: keeping %d, catalog recommends %d\n",
			c.Name, c.CurrentScore, c.RecommendedScore)
	}
	for _, wmsg := range result.Warnings {
		fmt.Printf("  Warning: %s\n", wmsg)
	}

	for _, d := range result.Deployments {
		fmt.Printf("  Deployed to %s: %s (%d created, %d updated)\n",
			d.InstanceID, d.Status, d.Created, d.Updated)
	}
	for _, msg := range result.Errors {
		fmt.Printf("  Deploy error: %s\n", msg)
	}

	return nil
}
