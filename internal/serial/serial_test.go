package serial

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"WM250613004", "WM-250613-004"},
		{"CRSM000571RW", "CR-SM-000571-RW"},
		{"cr-sm-000571", "CR-SM-000571"},
		{"  cr sm 000571  ", "CR-SM-000571"},
		{"CR-SM-12345", "CR-SM-12345"},
		{"crsm12345rw", "CR-SM-12345-RW"},
		{"CR-LM-123456", "CR-LM-123456"},
		{"crlm123456", "CR-LM-123456"},
		{"CRPS000001", "CR-PS-000001"},
		{"cr-tc-654321", "CR-TC-654321"},
		{"wm-250613-004", "WM-250613-004"},
		{"WM 250613 004", "WM-250613-004"},
		{"unknown part", "UNKNOWN PART"},
		{"CR-SM-1234", "CR-SM-1234"},
		{"CRSM0005711", "CRSM0005711"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"WM250613004", "CRSM000571RW", "cr sm 000571", "crlm123456", "CRPS000001",
		"cr-tc-654321", "garbage", "  mixed Case 12 ", "CR--SM--000571", "", "\t", "wm-2506-13004",
		"CR-SM-000571-RW-EXTRA", "ünïcode-sm",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_EveryGrammarRoundTrips(t *testing.T) {
	samples := map[string]string{
		"scanner-module":  "CR-SM-000571-RW",
		"laser-module":    "CR-LM-100200",
		"power-supply":    "CR-PS-300400",
		"target-camera":   "CR-TC-500600",
		"weeding-machine": "WM-250613-004",
	}
	for _, g := range grammars {
		canonical, ok := samples[g.Name]
		if !ok {
			t.Errorf("no sample for grammar %s", g.Name)
			continue
		}
		if got := Normalize(canonical); got != canonical {
			t.Errorf("%s: Normalize(%q) = %q", g.Name, canonical, got)
		}
		if got := Match(canonical); got != g.Name {
			t.Errorf("Match(%q) = %q, want %q", canonical, got, g.Name)
		}
	}
}

func TestExtractAll(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "two serials in order",
			text: "removed CR-SM-000571 installed CR-SM-000572-RW",
			want: []string{"CR-SM-000571", "CR-SM-000572-RW"},
		},
		{
			name: "mixed grammars and case",
			text: "swapped wm250613004 and crps000001; camera CR-TC-000002 ok",
			want: []string{"WM-250613-004", "CR-PS-000001", "CR-TC-000002"},
		},
		{
			name: "repeats kept",
			text: "CR-SM-000571 then CR-SM-000571 again",
			want: []string{"CR-SM-000571", "CR-SM-000571"},
		},
		{
			name: "too many digits is not a serial",
			text: "ref CR-SM-0005711",
			want: []string{},
		},
		{
			name: "glued to a leading word",
			text: "swappedCR-SM-000572",
			want: []string{"CR-SM-000572"},
		},
		{
			name: "after an underscore",
			text: "RMA_CR-SM-000571",
			want: []string{"CR-SM-000571"},
		},
		{
			name: "before an underscore",
			text: "CR-SM-000571_old",
			want: []string{"CR-SM-000571"},
		},
		{
			name: "trailing letter",
			text: "CR-SM-000571x",
			want: []string{"CR-SM-000571"},
		},
		{
			name: "back to back",
			text: "CR-SM-000571CR-LM-123456",
			want: []string{"CR-SM-000571", "CR-LM-123456"},
		},
		{
			name: "punctuation boundaries",
			text: "(CR-LM-123456),CR-SM-12345.",
			want: []string{"CR-LM-123456", "CR-SM-12345"},
		},
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "no serials",
			text: "replaced the left wheel",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAll(tt.text)
			if got == nil {
				t.Fatal("ExtractAll returned nil, want empty slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractAll(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatch_Unknown(t *testing.T) {
	if got := Match("not a serial"); got != "" {
		t.Errorf("Match = %q, want empty", got)
	}
}

func TestCompact(t *testing.T) {
	tests := map[string]string{
		"cr-sm-000571":   "CRSM000571",
		" wm 123456 789": "WM123456789",
		"":               "",
	}
	for in, want := range tests {
		if got := Compact(in); got != want {
			t.Errorf("Compact(%q) = %q, want %q", in, got, want)
		}
	}
}
