package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resolve <job_uid>...",
		Short: "Mark every open flag on the given jobs resolved",
		Long:  "Resolutions survive later syncs as long as the finding is unchanged. A flag whose details change comes back unresolved.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, configPath, args)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runResolve(cmd *cobra.Command, configPath string, uids []string) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()
	for _, uid := range uids {
		job, err := a.store.GetJob(ctx, uid)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %s not found", uid)
		}
		n, err := a.store.MarkJobResolved(ctx, uid)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Job %s (#%s): resolved %d flag(s)\n", uid, job.JobNumber, n)
	}
	return nil
}
