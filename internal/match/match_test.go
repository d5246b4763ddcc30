package match

import (
	"testing"

	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Uniswap - MON Pool", "uniswap-mon-pool"},
		{"uniswap-mon-pool", "uniswap-mon-pool"},
		{"  Kuru-Merkl-MON-USDC  ", "kuru-merkl-mon-usdc"},
		{"kuru -- merkl   MON", "kuru-merkl-mon"},
		{"-leading-trailing-", "leading-trailing"},
		{"", ""},
		{"   ", ""},
		{"MON/USDC", "mon/usdc"},
	}
	for _, tt := range tests {
		got := Normalize(tt.input)
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeEquivalentKeys(t *testing.T) {
	a := Normalize("Uniswap - MON Pool")
	b := Normalize("uniswap-mon-pool")
	if a != b {
		t.Errorf("keys differ: %q vs %q", a, b)
	}
}

func TestFindExactMatch(t *testing.T) {
	issues := []model.EfficiencyIssue{
		{PoolID: "Kuru-Merkl-MON-USDC", Recommendation: "Reduce incentives by 30%. Volume does not justify spend.", Issue: "volume efficiency above 2%"},
	}

	rec := Find("kuru-merkl-mon-usdc", issues)
	if !rec.Matched {
		t.Fatal("expected a match")
	}
	if rec.Action != "Reduce incentives by 30%" {
		t.Errorf("Action = %q", rec.Action)
	}
	if rec.Notes != "volume efficiency above 2%" {
		t.Errorf("Notes = %q", rec.Notes)
	}
}

func TestFindExactWinsOverStructural(t *testing.T) {
	issues := []model.EfficiencyIssue{
		{PoolID: "kuru-merkl-MON", Recommendation: "Structural candidate first."},
		{PoolID: "kuru-merkl-MON-USDC", Recommendation: "Exact candidate second."},
	}

	rec := Find("kuru-merkl-MON-USDC", issues)
	if rec.Action != "Exact candidate second" {
		t.Errorf("Action = %q, want the exact match even though it is later in the list", rec.Action)
	}
}

func TestFindStructuralFallback(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		issueID string
		want    bool
	}{
		{"market substring of candidate", "kuru-merkl-MON", "kuru-merkl-MON-USDC", true},
		{"candidate substring of market", "kuru-merkl-MON-USDC", "kuru-merkl-USDC", true},
		{"equal markets different spacing", "kuru-merkl-MON USDC", "Kuru-Merkl-MON-USDC", true},
		{"slash is not a separator", "kuru-merkl-MON-USDC", "Kuru-Merkl-MON/USDC", false},
		{"protocol mismatch", "morpho-merkl-MON-USDC", "kuru-merkl-MON-USDC", false},
		{"funding mismatch", "kuru-turtle-MON-USDC", "kuru-merkl-MON-USDC", false},
		{"unrelated market", "kuru-merkl-WETH", "kuru-merkl-MON-USDC", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := []model.EfficiencyIssue{{PoolID: tt.issueID, Recommendation: "Do something."}}
			rec := Find(tt.query, issues)
			if rec.Matched != tt.want {
				t.Errorf("Find(%q) matched = %v, want %v", tt.query, rec.Matched, tt.want)
			}
		})
	}
}

func TestFindFirstStructuralMatchWins(t *testing.T) {
	issues := []model.EfficiencyIssue{
		{PoolID: "kuru-merkl-MON-USDC", Recommendation: "First."},
		{PoolID: "kuru-merkl-MON", Recommendation: "Second."},
	}

	rec := Find("kuru-merkl-MON-USDC-legacy", issues)
	if rec.Action != "First" {
		t.Errorf("Action = %q, want the first structural match in list order", rec.Action)
	}
}

func TestFindNoIssues(t *testing.T) {
	if rec := Find("kuru-merkl-MON-USDC", nil); rec.Matched {
		t.Error("nil issue list should not match")
	}
	if rec := Find("kuru-merkl-MON-USDC", []model.EfficiencyIssue{}); rec.Matched {
		t.Error("empty issue list should not match")
	}
}

func TestFindQueryWithoutTriple(t *testing.T) {
	issues := []model.EfficiencyIssue{{PoolID: "kuru-merkl-MON", Recommendation: "Do something."}}
	if rec := Find("justonepart", issues); rec.Matched {
		t.Error("query without a full triple should not structurally match")
	}
}

func TestFindEmptyRecommendation(t *testing.T) {
	issues := []model.EfficiencyIssue{{PoolID: "kuru-merkl-MON-USDC", Recommendation: "   ", Issue: "some reasoning"}}
	rec := Find("kuru-merkl-MON-USDC", issues)
	if rec.Matched {
		t.Error("an issue without recommendation text yields nothing usable")
	}
}

func TestExtractAction(t *testing.T) {
	tests := []struct {
		name       string
		rec        string
		issue      string
		wantAction string
		wantNotes  string
	}{
		{"sentence terminator", "Cut spend by half. It is not working.", "", "Cut spend by half", "Cut spend by half. It is not working."},
		{"no terminator", "Keep as is", "", "Keep as is", "Keep as is"},
		{"issue preferred for notes", "Rotate to stable pairs.", "APR far above peers", "Rotate to stable pairs", "APR far above peers"},
		{"leading whitespace trimmed", "  Pause the campaign. Review next week.", "", "Pause the campaign", "Pause the campaign. Review next week."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extract(model.EfficiencyIssue{PoolID: "x-y-z", Recommendation: tt.rec, Issue: tt.issue})
			if got.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", got.Action, tt.wantAction)
			}
			if got.Notes != tt.wantNotes {
				t.Errorf("Notes = %q, want %q", got.Notes, tt.wantNotes)
			}
		})
	}
}
