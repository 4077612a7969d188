package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func almostEqual(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestSinclairAboveReferenceBodyWeightReturnsTotal(t *testing.T) {
	got := CalculateSinclair2024(300, 200, Male)
	if got != 300 {
		t.Fatalf("CalculateSinclair2024() = %v, want 300 (at/above reference bodyweight)", got)
	}
}

func TestSinclairBelowReferenceBodyWeightScalesUp(t *testing.T) {
	got := CalculateSinclair2024(300, 70, Male)
	if got <= 300 {
		t.Fatalf("CalculateSinclair2024() = %v, want > 300 for a lighter lifter", got)
	}
}

func TestGetMastersAgeFactorClampsAtEnds(t *testing.T) {
	if got := GetMastersAgeFactor(20, Male); got != 1.000 {
		t.Fatalf("GetMastersAgeFactor(20) = %v, want clamp to 1.000", got)
	}
	if got := GetMastersAgeFactor(120, Male); got != 3.285 {
		t.Fatalf("GetMastersAgeFactor(120) = %v, want clamp to top entry", got)
	}
}

func TestGetMastersAgeFactorInterpolates(t *testing.T) {
	got := GetMastersAgeFactor(45, Male)
	if got <= 1.073 || got >= 1.184 {
		t.Fatalf("GetMastersAgeFactor(45) = %v, want strictly between bracket entries", got)
	}
}

func TestCalculateTeamPoints(t *testing.T) {
	cases := []struct {
		rank     int
		expected int
	}{
		{1, 28}, {2, 25}, {3, 23}, {4, 22}, {5, 21}, {30, 0},
	}
	for _, c := range cases {
		got := CalculateTeamPoints(c.rank, 100, true, 28, 25, 23)
		if got != c.expected {
			t.Fatalf("rank %d: got %d, want %d", c.rank, got, c.expected)
		}
	}
	if got := CalculateTeamPoints(1, 100, false, 28, 25, 23); got != 0 {
		t.Fatalf("non-team-member must score 0, got %d", got)
	}
	if got := CalculateTeamPoints(1, 0, true, 28, 25, 23); got != 0 {
		t.Fatalf("no successful lift must score 0, got %d", got)
	}
}

func TestFormatMessagePositionalAndChoice(t *testing.T) {
	got := FormatMessage("Hello {0}, you have {1} lift{1,choice,1#|2#s}", "Jo", "2")
	want := "Hello Jo, you have 2 lifts"
	if got != want {
		t.Fatalf("FormatMessage() = %q, want %q", got, want)
	}
}

func TestParseFormattedNumber(t *testing.T) {
	if ParseFormattedNumber("") != 0 {
		t.Fatalf("expected empty string to parse as 0")
	}
	if ParseFormattedNumber("-") != 0 {
		t.Fatalf("expected dash to parse as 0")
	}
	if got := ParseFormattedNumber("100,5"); got != 100.5 {
		t.Fatalf("ParseFormattedNumber(\"100,5\") = %v, want 100.5", got)
	}
}

func TestFormatCategoryDisplay(t *testing.T) {
	if got := FormatCategoryDisplay(">109"); got != "+109" {
		t.Fatalf("FormatCategoryDisplay() = %q, want +109", got)
	}
	if got := FormatCategoryDisplay("89"); got != "89" {
		t.Fatalf("FormatCategoryDisplay() = %q, want unchanged 89", got)
	}
}

func TestGetFlagUrlProbesExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "flags"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "flags", "USA.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := GetFlagUrl(dir, "/local", "USA")
	if got != "/local/flags/USA.svg" {
		t.Fatalf("GetFlagUrl() = %q, want /local/flags/USA.svg", got)
	}
	if got := GetFlagUrl(dir, "/local", "ZZZ"); got != "" {
		t.Fatalf("GetFlagUrl() for missing file = %q, want empty", got)
	}
}

func TestCalculateGamxReturnsDeterministicScore(t *testing.T) {
	got, err := CalculateGamx(Male, 89, 350, VariantSenior, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == 0 {
		t.Fatalf("expected a non-zero GAMX score")
	}
	again, err := CalculateGamx(Male, 89, 350, VariantSenior, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, again, 1e-9) {
		t.Fatalf("expected deterministic score, got %v then %v", got, again)
	}
}
