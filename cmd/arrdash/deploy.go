package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kha-kis/arr-dashboard-sub010/internal/engine"
	"github.com/Kha-kis/arr-dashboard-sub010/internal/models"
)

var (
	deployTemplateID string
	deployInstanceID string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a template to an instance",
	RunE:  runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&deployTemplateID, "template", "", "Template ID to deploy")
	deployCmd.Flags().StringVar(&deployInstanceID, "instance", "", "Instance ID to deploy to")
	deployCmd.MarkFlagRequired("template")
	deployCmd.MarkFlagRequired("instance")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	tpl, err := env.templates.GetByID(deployTemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}
	if tpl == nil || tpl.DeletedAt != nil {
		return fmt.Errorf("template not found: %s", deployTemplateID)
	}

	result, err := env.engine.DeployOne(context.Background(), tpl.UserID, tpl.ID, deployInstanceID, engine.DeployOptions{})
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}

	fmt.Printf("Deployed %q: %s\n", tpl.Name, result.Status)
	fmt.Printf("  Formats: %d created, %d updated, %d skipped\n",
		result.Created, result.Updated, result.Skipped)
	if result.ProfileName != "" {
		fmt.Printf("  Profile: %s (id %d)\n", result.ProfileName, result.ProfileID)
	}
	if len(result.Orphaned) > 0 {
		fmt.Printf("  Orphaned formats on instance: %d\n", len(result.Orphaned))
		for _, name := range result.Orphaned {
			fmt.Printf("    - %s\n", name)
		}
	}
	for _, wmsg := range result.Warnings {
		fmt.Printf("  Warning: %s\n", wmsg)
	}
	for _, msg := range result.Errors {
		fmt.Printf("  Error: %s\n", msg)
	}
	fmt.Printf("  Backup: %s\n", result.BackupID)
	fmt.Printf("  History: %s\n", result.HistoryID)

	if result.Status == models.DeployFailed {
		return fmt.Errorf("deployment finished with status %s", result.Status)
	}
	return nil
}
