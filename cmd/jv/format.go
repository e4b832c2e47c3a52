package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/jobvalidator/internal/syncer"
)

// formatCount formats an integer with comma separators (e.g. 45230 -> "45,230").
func formatCount(n int64) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		b.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// shortDate trims an ISO-8601 timestamp to its date.
func shortDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}

// maxListedErrors caps the errors printed by formatResult.
const maxListedErrors = 10

// formatResult renders a sync result for the terminal.
func formatResult(r *syncer.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync %s (%s): %s\n", r.RunID, r.Mode, r.Outcome)
	if r.Cutoff != "" {
		fmt.Fprintf(&b, "  Updated since: %s\n", r.Cutoff)
	}
	fmt.Fprintf(&b, "  Fetched:   %s\n", formatCount(int64(r.Fetched)))
	fmt.Fprintf(&b, "  Processed: %s\n", formatCount(int64(r.Processed)))
	fmt.Fprintf(&b, "  Skipped:   %s\n", formatCount(int64(r.Skipped)))
	fmt.Fprintf(&b, "  Failed:    %s\n", formatCount(int64(r.Failed)))
	if r.Removed > 0 {
		fmt.Fprintf(&b, "  Removed:   %s\n", formatCount(r.Removed))
	}
	fmt.Fprintf(&b, "  Flags:     %s", formatCount(int64(r.FlagsCreated)))
	if len(r.FlagsByType) > 0 {
		types := make([]string, 0, len(r.FlagsByType))
		for t := range r.FlagsByType {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = fmt.Sprintf("%s=%d", t, r.FlagsByType[t])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteByte('\n')
	if r.ResolutionsKept > 0 {
		fmt.Fprintf(&b, "  Resolutions kept: %d\n", r.ResolutionsKept)
	}
	if r.Notified > 0 || r.NotifyFailures > 0 {
		fmt.Fprintf(&b, "  Notified:  %d (%d failed)\n", r.Notified, r.NotifyFailures)
	}
	if len(r.UnexpectedCategories) > 0 {
		fmt.Fprintf(&b, "  Skipped categories: %s\n", strings.Join(r.UnexpectedCategories, ", "))
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "  Errors (%d):\n", len(r.Errors))
		for i, e := range r.Errors {
			if i == maxListedErrors {
				fmt.Fprintf(&b, "    ... and %d more\n", len(r.Errors)-maxListedErrors)
				break
			}
			fmt.Fprintf(&b, "    %s\n", e)
		}
	}
	fmt.Fprintf(&b, "  Duration:  %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return b.String()
}
