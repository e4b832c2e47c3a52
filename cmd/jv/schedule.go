package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zulandar/jobvalidator/internal/schedule"
)

func newScheduleCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run syncs on the configured cron schedules",
		Long: `Runs in the foreground, starting incremental and full syncs from the
sync.schedule.incremental and sync.schedule.full cron expressions. A tick that
finds another sync still running is skipped. Stops on SIGINT or SIGTERM after
the running sync finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runSchedule(cmd *cobra.Command, configPath string) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	coord, closeLock, err := a.coordinator(ctx, nil)
	if err != nil {
		return err
	}
	defer closeLock()

	sched, err := schedule.New(a.cfg.Sync.Schedule, coord, a.log)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range sched.Entries() {
		fmt.Fprintf(out, "%-12s %-16s next %s\n", e.Mode, e.Spec, e.Next.Format("2006-01-02 15:04 MST"))
	}
	return sched.Run(ctx)
}
