// Package serial normalizes part serial numbers across the known serial
// grammars and mines them out of free text.
package serial

import (
	"regexp"
	"strings"
	"unicode"
)

// Grammar describes one serial number layout. Compact is matched against the
// input with whitespace and dashes removed; Loose finds the serial inside
// free text; Canonical reassembles the dashed form from Compact's groups.
type Grammar struct {
	Name      string
	Compact   *regexp.Regexp
	Loose     string
	Canonical func(groups []string) string
}

// grammars is the single registry of known layouts, tried in order.
var grammars = []Grammar{
	{
		Name:    "scanner-module",
		Compact: regexp.MustCompile(`^CRSM(\d{5,6})(RW)?$`),
		Loose:   `CR-?SM-?\d{5,6}(?:-?RW)?`,
		Canonical: func(g []string) string {
			s := "CR-SM-" + g[1]
			if g[2] != "" {
				s += "-RW"
			}
			return s
		},
	},
	{
		Name:      "laser-module",
		Compact:   regexp.MustCompile(`^CRLM(\d{6})$`),
		Loose:     `CR-?LM-?\d{6}`,
		Canonical: func(g []string) string { return "CR-LM-" + g[1] },
	},
	{
		Name:      "power-supply",
		Compact:   regexp.MustCompile(`^CRPS(\d{6})$`),
		Loose:     `CR-?PS-?\d{6}`,
		Canonical: func(g []string) string { return "CR-PS-" + g[1] },
	},
	{
		Name:      "target-camera",
		Compact:   regexp.MustCompile(`^CRTC(\d{6})$`),
		Loose:     `CR-?TC-?\d{6}`,
		Canonical: func(g []string) string { return "CR-TC-" + g[1] },
	},
	{
		Name:      "weeding-machine",
		Compact:   regexp.MustCompile(`^WM(\d{6})(\d{3})$`),
		Loose:     `WM-?\d{6}-?\d{3}`,
		Canonical: func(g []string) string { return "WM-" + g[1] + "-" + g[2] },
	},
}

var anySerial = buildUnion(grammars)

// buildUnion matches any grammar anywhere in text. Group 1 is the serial; the
// trailing non-digit guard stops a longer digit run from being truncated into
// a serial.
func buildUnion(gs []Grammar) *regexp.Regexp {
	parts := make([]string, len(gs))
	for i, g := range gs {
		parts[i] = g.Loose
	}
	return regexp.MustCompile(`(?i)(` + strings.Join(parts, "|") + `)(?:\D|$)`)
}

// Normalize maps a raw serial token to its canonical dashed form. Input that
// matches no grammar is returned trimmed and uppercased.
func Normalize(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	compact := Compact(upper)
	for _, g := range grammars {
		if m := g.Compact.FindStringSubmatch(compact); m != nil {
			return g.Canonical(m)
		}
	}
	return upper
}

// Compact uppercases s and strips dashes and whitespace.
func Compact(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// ExtractAll returns every serial found in text, normalized, in order of
// appearance. Repeated serials are kept.
func ExtractAll(text string) []string {
	out := []string{}
	if text == "" {
		return out
	}
	for pos := 0; pos < len(text); {
		loc := anySerial.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		out = append(out, Normalize(text[pos+loc[2]:pos+loc[3]]))
		// Resume after the serial, not the guard, so back-to-back serials
		// are both found.
		pos += loc[3]
	}
	return out
}

// Match reports the grammar name that s normalizes under, or "" if none.
func Match(s string) string {
	n := Normalize(s)
	for _, g := range grammars {
		if g.Compact.MatchString(strings.ReplaceAll(n, "-", "")) {
			return g.Name
		}
	}
	return ""
}
