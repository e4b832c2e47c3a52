package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newLookupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "lookup <serial>...",
		Short: "Find the jobs that mention serial numbers",
		Long:  "Searches line item serials and serials mined from checklist answers. Serials may be typed with or without dashes.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, configPath, args)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runLookup(cmd *cobra.Command, configPath string, serials []string) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.store.SearchSerials(context.Background(), serials)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	found := map[string]bool{}
	if len(matches) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERIAL\tJOB\tCREATED\tORGANIZATION\tASSET\tMATCHED IN")
		for _, m := range matches {
			found[m.SearchedSerial] = true
			fmt.Fprintf(w, "%s\t#%s\t%s\t%s\t%s\t%s\n",
				m.Normalized, m.JobNumber, shortDate(m.CreatedAt), m.OrganizationName, m.AssetName,
				strings.Join(m.MatchedIn, ","))
		}
		w.Flush()
	}
	for _, s := range serials {
		s = strings.TrimSpace(s)
		if s != "" && !found[s] {
			fmt.Fprintf(out, "No jobs found for %s\n", s)
		}
	}
	return nil
}
