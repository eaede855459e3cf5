package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var updatesUser string

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "Check templates against the latest catalog version",
	RunE:  runUpdates,
}

func init() {
	updatesCmd.Flags().StringVar(&updatesUser, "user", "", "User name or ID to check")
	updatesCmd.MarkFlagRequired("user")
}

func runUpdates(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.users.GetByName(updatesUser)
	if err != nil {
		return err
	}
	if user == nil {
		user, err = env.users.GetByID(updatesUser)
		if err != nil {
			return err
		}
	}
	if user == nil {
		return fmt.Errorf("user %s not found", updatesUser)
	}

	result, err := env.engine.CheckForUpdates(context.Background(), user.ID)
	if err != nil {
		return fmt.Errorf("update check failed: %w", err)
	}

	fmt.Printf("Latest catalog version: %s\n", result.LatestVersion)
	fmt.Printf("Outdated templates: %d\n", result.Outdated)

	if len(result.Templates) == 0 {
		fmt.Println("\nEverything is up to date")
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVICE\tCURRENT\tLATEST\tAUTO-SYNC\tPENDING")
	fmt.Fprintln(w, "----\t-------\t-------\t------\t---------\t-------")

	for _, t := range result.Templates {
		auto := "no"
		if t.AutoSyncEligible {
			auto = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			t.Name, t.Service, t.CurrentVersion, t.LatestVersion, auto, len(t.PendingAdditions))
	}
	w.Flush()

	return nil
}
