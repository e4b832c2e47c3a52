package main

import (
	"github.com/spf13/cobra"

	"github.com/zulandar/jobvalidator/internal/dashboard"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard JSON API",
		Long:  "Serves job listings, metrics, serial lookup and flag resolution over HTTP, plus Prometheus metrics on /metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default dashboard.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if port <= 0 {
		port = a.cfg.Dashboard.Port
	}

	ctx, cancel := signalContext()
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		Store:       a.store,
		Port:        port,
		CORSOrigins: a.cfg.Dashboard.CORSOrigins,
		Logger:      a.log,
		Out:         cmd.OutOrStdout(),
	})
}
