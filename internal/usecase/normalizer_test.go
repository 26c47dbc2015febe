package usecase

import (
	"testing"
)

func TestNewTextNormalizer(t *testing.T) {
	t.Run("creates normalizer with debug logging disabled", func(t *testing.T) {
		n := NewTextNormalizer(false)
		if n.enableDebugLogging {
			t.Error("expected debug logging to be disabled")
		}
	})

	t.Run("creates normalizer with debug logging enabled", func(t *testing.T) {
		n := NewTextNormalizer(true)
		if !n.enableDebugLogging {
			t.Error("expected debug logging to be enabled")
		}
	})
}

func TestNormalizeText(t *testing.T) {
	n := NewTextNormalizer(false)

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses spacing and tightens commas",
			input: "Wheat  Flour , Salt",
			want:  "WHEAT FLOUR, SALT",
		},
		{
			name:  "removes spaces around parentheses",
			input: "ENERGY (KCAL)",
			want:  "ENERGY(KCAL)",
		},
		{
			name:  "removes spaces around sentence punctuation",
			input: "bar . with nuts ! really ?",
			want:  "BAR.WITH NUTS!REALLY?",
		},
		{
			name:  "removes spaces around quotes",
			input: `the " best " bar`,
			want:  `THE"BEST"BAR`,
		},
		{
			name:  "collapses tabs and newlines",
			input: "granola\tbar\n\n  bites ",
			want:  "GRANOLA BAR BITES",
		},
		{
			name:  "drops invalid utf-8",
			input: "oat\xffmeal",
			want:  "OATMEAL",
		},
		{
			name:  "drops control characters",
			input: "oat\x00meal",
			want:  "OATMEAL",
		},
		{
			name:  "drops control characters between spaces",
			input: "A \x00 B",
			want:  "A B",
		},
		{
			name:  "collapses non-ascii whitespace",
			input: "wheat \u00a0 flour\u2003salt\vsugar",
			want:  "WHEAT FLOUR SALT SUGAR",
		},
		{
			name:  "upper-cases non-ascii letters",
			input: "crème brûlée",
			want:  "CRÈME BRÛLÉE",
		},
		{
			name:  "handles empty input",
			input: "",
			want:  "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := n.NormalizeText(tc.input)
			if got != tc.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	n := NewTextNormalizer(false)
	inputs := []string{"Wheat  Flour , Salt", "VITAMIN A, IU (IU)", "  a ( b ) c  ", "A \x00 B", "wheat \u00a0 flour"}
	for _, in := range inputs {
		once := n.NormalizeText(in)
		if twice := n.NormalizeText(once); twice != once {
			t.Errorf("NormalizeText not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeLongText(t *testing.T) {
	n := NewTextNormalizer(false)
	testCases := []struct {
		input string
		want  string
	}{
		{"  Oats ,  honey (organic)\tsalt ", "Oats , honey (organic) salt"},
		{"A \v B", "A B"},
		{"oats\u00a0\u00a0honey\u2003", "oats honey"},
	}
	for _, tc := range testCases {
		if got := n.NormalizeLongText(tc.input); got != tc.want {
			t.Errorf("NormalizeLongText(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
