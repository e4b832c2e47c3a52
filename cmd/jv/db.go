package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/jobvalidator/internal/artifact"
	"github.com/zulandar/jobvalidator/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	cmd.AddCommand(newDBFetchArtifactCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the job store schema",
		Long:  "Connects to the configured database, migrates every table and creates the filter indexes. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(out, "Connected to %s\n", db.Describe(a.cfg.Database))
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nJob store initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-create every table",
		Long: `Drops every job store table and migrates the schema again.

Synced jobs, flag resolutions, sync history and the notification log are all
lost. The next sync repopulates jobs but resolutions cannot be recovered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()
	cfg, _, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	target := db.Describe(cfg.Database)

	if !skipConfirm {
		if !interactive(cmd.InOrStdin()) {
			return errors.New("refusing to reset without --yes on non-interactive input")
		}
		if !confirmReset(cmd, target) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)

	if err := db.DropAll(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped all tables in %s\n", target)
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
	fmt.Fprintln(out, "\nJob store reset successfully.")
	return nil
}

// interactive reports false only for a real file that is not a terminal.
func interactive(in io.Reader) bool {
	if f, ok := in.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return true
}

func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in %s.\n", target)
	fmt.Fprintln(out, "Flag resolutions cannot be recovered by a resync.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}

func newDBFetchArtifactCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "fetch-artifact",
		Short: "Download the latest database built by CI",
		Long: `Downloads the newest unexpired database artifact from GitHub Actions into
the configured sqlite path. An existing non-empty database is kept unless
--force is given. Requires artifact.owner, artifact.repo and GITHUB_TOKEN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBFetchArtifact(cmd, configPath, force)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing database")
	return cmd
}

func runDBFetchArtifact(cmd *cobra.Command, configPath string, force bool) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("fetch-artifact needs the sqlite driver, config uses %s", cfg.Database.Driver)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fetcher, err := artifact.New(ctx, cfg.Artifact, log)
	if err != nil {
		return err
	}

	path := cfg.Database.Path
	if force {
		info, err := fetcher.Download(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Downloaded %s (artifact %d, %s) to %s\n", info.File, info.ID, formatBytes(info.Written), path)
	} else {
		downloaded, err := artifact.EnsureDatabase(ctx, fetcher, path)
		if err != nil {
			return err
		}
		if !downloaded {
			fmt.Fprintf(out, "Database %s already exists, use --force to replace it\n", path)
			return nil
		}
		fmt.Fprintf(out, "Downloaded latest %s artifact to %s\n", cfg.Artifact.Name, path)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close(gormDB)
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintln(out, "Schema is up to date.")
	return nil
}
