package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zulandar/jobvalidator/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var (
		configPath string
		mode       string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass against the Zuper API",
		Long: `Fetches jobs, enriches them with their detail records, validates them and
writes them to the store in batches.

An incremental run keeps only jobs updated since the last recorded sync. A full
run processes every job and also removes stored jobs whose category is no
longer allowed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, configPath, mode)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&mode, "mode", "m", string(syncer.ModeIncremental), "sync mode: incremental or full")
	return cmd
}

func runSync(cmd *cobra.Command, configPath, modeName string) error {
	mode, err := syncer.ParseMode(modeName)
	if err != nil {
		return err
	}
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	coord, closeLock, err := a.coordinator(ctx, func(p syncer.Progress) {
		a.log.WithFields(logrus.Fields{"stage": p.Stage, "done": p.Done, "total": p.Total}).Debug("progress")
	})
	if err != nil {
		return err
	}
	defer closeLock()

	res, err := coord.Run(ctx, mode)
	if res != nil {
		fmt.Fprint(cmd.OutOrStdout(), formatResult(res))
	}
	if err != nil {
		return err
	}
	if res.Outcome == syncer.OutcomeFailed {
		return errors.New("sync failed")
	}
	return nil
}
