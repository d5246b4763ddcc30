package report

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func findRow(t *testing.T, rows []Row, kind RowKind, protocol, pool string) Row {
	t.Helper()
	for _, r := range rows {
		if r.Kind == kind && r.Protocol == protocol && r.Pool == pool {
			return r
		}
	}
	t.Fatalf("no %s row for protocol=%q pool=%q", kind, protocol, pool)
	return Row{}
}

func weekInput(pools []model.PoolRow) Input {
	return Input{
		Pools:            pools,
		StartDate:        "2026-08-10",
		EndDate:          "2026-08-16",
		MonPrice:         1.0,
		AdjustmentFactor: 1.0,
	}
}

func TestBuildSingleGauntlet(t *testing.T) {
	// 1000 MON at $0.02 over a 7 day window against $100k TVL and $50k
	// volume: $20 adjusted spend, ~1.04% annualized TVL cost, 0.04%
	// volume efficiency.
	in := weekInput([]model.PoolRow{{
		PlatformProtocol: "morpho",
		FundingProtocol:  "merkl",
		MarketName:       "USDC",
		TotalMON:         1000,
		TVL:              model.Float(100_000),
		Volume:           model.Float(50_000),
	}})
	in.MonPrice = 0.02

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.PeriodDays != 7 {
		t.Fatalf("PeriodDays = %d, want 7", r.PeriodDays)
	}

	pool := findRow(t, r.Rows(), KindPool, "morpho", "USDC")
	if pool.AdjustedMON != 1000 {
		t.Errorf("AdjustedMON = %v, want 1000", pool.AdjustedMON)
	}
	if pool.TVLCostPct == nil || !almostEqual(*pool.TVLCostPct, 20.0/7*365/100_000*100) {
		t.Errorf("TVLCostPct = %v, want ~1.042857", pool.TVLCostPct)
	}
	if pool.AdjustedCostEfficiencyPct == nil || !almostEqual(*pool.AdjustedCostEfficiencyPct, 0.02) {
		t.Errorf("AdjustedCostEfficiencyPct = %v, want 0.02", pool.AdjustedCostEfficiencyPct)
	}
	if pool.VolumeEfficiencyPct == nil || !almostEqual(*pool.VolumeEfficiencyPct, 0.04) {
		t.Errorf("VolumeEfficiencyPct = %v, want 0.04", pool.VolumeEfficiencyPct)
	}

	csvOut := r.CSV()
	for _, want := range []string{",1.04,", ",0.04,", ",0.02,"} {
		if !strings.Contains(csvOut, want) {
			t.Errorf("CSV missing %q:\n%s", want, csvOut)
		}
	}
}

func TestBuildGrandTotalSumsPools(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 100},
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "WETH-USDC", TotalMON: 250},
		{PlatformProtocol: "curvance", FundingProtocol: "direct", MarketName: "shMON", TotalMON: 400},
	})

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	grand := r.Rows()[0]
	if grand.Kind != KindGrandTotal {
		t.Fatalf("first row kind = %s, want %s", grand.Kind, KindGrandTotal)
	}
	if grand.IncentiveMON != 750 {
		t.Errorf("grand total IncentiveMON = %v, want 750", grand.IncentiveMON)
	}

	sub := findRow(t, r.Rows(), KindProtocolSubtotal, "kuru", "")
	if sub.IncentiveMON != 350 {
		t.Errorf("kuru subtotal IncentiveMON = %v, want 350", sub.IncentiveMON)
	}
}

func TestBuildSubtotalRecomputesFromSums(t *testing.T) {
	// Two equal spends against very different TVLs. Averaging the two
	// pool percentages would give ~289.7; recomputing from summed
	// values gives ~104.3.
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 100, TVL: model.Float(1_000)},
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "WETH-USDC", TotalMON: 100, TVL: model.Float(9_000)},
	})

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sub := findRow(t, r.Rows(), KindProtocolSubtotal, "kuru", "")
	want := 200.0 / 7 * 365 / 10_000 * 100
	if sub.TVLCostPct == nil || !almostEqual(*sub.TVLCostPct, want) {
		t.Errorf("subtotal TVLCostPct = %v, want %v (recomputed, not averaged)", sub.TVLCostPct, want)
	}
	if sub.TVL == nil || *sub.TVL != 10_000 {
		t.Errorf("subtotal TVL = %v, want 10000", sub.TVL)
	}
}

func TestBuildRowOrdering(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 10},
		{PlatformProtocol: "curvance", FundingProtocol: "direct", MarketName: "shMON", TotalMON: 20},
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "WETH-USDC", TotalMON: 30},
	})

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var got []string
	for _, row := range r.Rows() {
		got = append(got, string(row.Kind)+"/"+row.Protocol+"/"+row.Pool)
	}
	want := []string{
		"grand_total//",
		"protocol_subtotal/kuru/",
		"pool/kuru/MON-USDC",
		"pool/kuru/WETH-USDC",
		"protocol_total/kuru/",
		"protocol_subtotal/curvance/",
		"pool/curvance/shMON",
		"protocol_total/curvance/",
	}
	if len(got) != len(want) {
		t.Fatalf("row count = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildProtocolTotalUsesOracleFigures(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 700, TVL: model.Float(5_000)},
	})
	in.ProtocolTVL = map[string]*float64{"kuru": model.Float(2_000_000)}
	in.ProtocolVolume = map[string]model.VolumeBreakdown{
		"kuru": {Last7d: model.Float(350_000)},
	}

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	total := findRow(t, r.Rows(), KindProtocolTotal, "kuru", "")
	if total.TVL == nil || *total.TVL != 2_000_000 {
		t.Errorf("protocol total TVL = %v, want oracle 2000000", total.TVL)
	}
	if total.Volume == nil || *total.Volume != 350_000 {
		t.Errorf("protocol total Volume = %v, want oracle 350000", total.Volume)
	}
	if total.IncentiveMON != 700 {
		t.Errorf("protocol total IncentiveMON = %v, want 700 (same sums as subtotal)", total.IncentiveMON)
	}
	// Percentages recomputed against the oracle base, not the pool TVL.
	wantCost := 700.0 / 7 * 365 / 2_000_000 * 100
	if total.TVLCostPct == nil || !almostEqual(*total.TVLCostPct, wantCost) {
		t.Errorf("protocol total TVLCostPct = %v, want %v", total.TVLCostPct, wantCost)
	}
	wantVol := 700.0 / 350_000 * 100
	if total.VolumeEfficiencyPct == nil || !almostEqual(*total.VolumeEfficiencyPct, wantVol) {
		t.Errorf("protocol total VolumeEfficiencyPct = %v, want %v", total.VolumeEfficiencyPct, wantVol)
	}
}

func TestBuildProtocolTotalWithoutOracleFigures(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 700, TVL: model.Float(5_000)},
	})

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	total := findRow(t, r.Rows(), KindProtocolTotal, "kuru", "")
	if total.TVL != nil || total.Volume != nil {
		t.Errorf("protocol total TVL/Volume = %v/%v, want nil without oracle data", total.TVL, total.Volume)
	}
	if total.TVLCostPct != nil || total.VolumeEfficiencyPct != nil {
		t.Errorf("protocol total percentages should be empty without an oracle base")
	}
}

func TestBuildZeroAndMissingDenominators(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "zero", TotalMON: 100, TVL: model.Float(0), Volume: model.Float(0)},
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "missing", TotalMON: 100},
	})

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, name := range []string{"zero", "missing"} {
		row := findRow(t, r.Rows(), KindPool, "kuru", name)
		if row.TVLCostPct != nil || row.AdjustedCostEfficiencyPct != nil || row.VolumeEfficiencyPct != nil {
			t.Errorf("pool %q: percentages must be nil when the denominator is zero or unknown", name)
		}
	}

	// Cells render empty, not "0.00" and not NaN/Inf garbage.
	csvOut := r.CSV()
	if strings.Contains(csvOut, "NaN") || strings.Contains(csvOut, "Inf") {
		t.Errorf("CSV leaked a non-finite value:\n%s", csvOut)
	}
}

func TestBuildWoWChange(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 1000},
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "WETH-USDC", TotalMON: 500},
	})
	in.PreviousTotals = map[string]float64{
		"kuru-merkl-mon-usdc": 800,
	}

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	withPrev := findRow(t, r.Rows(), KindPool, "kuru", "MON-USDC")
	if withPrev.WoWChangePct == nil || !almostEqual(*withPrev.WoWChangePct, 25) {
		t.Errorf("WoWChangePct = %v, want 25", withPrev.WoWChangePct)
	}

	noPrev := findRow(t, r.Rows(), KindPool, "kuru", "WETH-USDC")
	if noPrev.WoWChangePct != nil {
		t.Errorf("WoWChangePct = %v, want nil for a pool absent last week", noPrev.WoWChangePct)
	}

	// Aggregate change compares full current spend against the prior
	// spend of pools that existed then: (1500-800)/800.
	sub := findRow(t, r.Rows(), KindProtocolSubtotal, "kuru", "")
	if sub.WoWChangePct == nil || !almostEqual(*sub.WoWChangePct, 87.5) {
		t.Errorf("subtotal WoWChangePct = %v, want 87.5", sub.WoWChangePct)
	}
}

func TestBuildAdjustmentFactorScalesSpend(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 1000, TVL: model.Float(100_000)},
	})
	in.MonPrice = 0.02
	in.AdjustmentFactor = 1.5

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pool := findRow(t, r.Rows(), KindPool, "kuru", "MON-USDC")
	if pool.IncentiveMON != 1000 {
		t.Errorf("IncentiveMON = %v, want raw 1000", pool.IncentiveMON)
	}
	if pool.AdjustedMON != 1500 {
		t.Errorf("AdjustedMON = %v, want 1500", pool.AdjustedMON)
	}
	want := 30.0 / 100_000 * 100
	if pool.AdjustedCostEfficiencyPct == nil || !almostEqual(*pool.AdjustedCostEfficiencyPct, want) {
		t.Errorf("AdjustedCostEfficiencyPct = %v, want %v (from adjusted USD)", pool.AdjustedCostEfficiencyPct, want)
	}
}

func TestBuildRecommendationsOnPoolRowsOnly(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 100},
	})
	in.Issues = []model.EfficiencyIssue{{
		PoolID:         "kuru-merkl-MON-USDC",
		Recommendation: "Reduce incentives by 30%. Volume does not justify spend.",
		Issue:          "Low volume efficiency",
	}}

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	pool := findRow(t, r.Rows(), KindPool, "kuru", "MON-USDC")
	if pool.Action != "Reduce incentives by 30%" {
		t.Errorf("Action = %q", pool.Action)
	}
	if pool.Notes != "Low volume efficiency" {
		t.Errorf("Notes = %q", pool.Notes)
	}

	for _, row := range r.Rows() {
		if row.Kind != KindPool && (row.Action != "" || row.Notes != "") {
			t.Errorf("%s row carries a recommendation: %q/%q", row.Kind, row.Action, row.Notes)
		}
	}
}

func TestBuildValidation(t *testing.T) {
	valid := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 100},
	})

	cases := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"empty pools", func(in *Input) { in.Pools = nil }, "pools"},
		{"bad start date", func(in *Input) { in.StartDate = "10/08/2026" }, "startDate"},
		{"bad end date", func(in *Input) { in.EndDate = "soon" }, "endDate"},
		{"inverted range", func(in *Input) { in.StartDate, in.EndDate = in.EndDate, in.StartDate }, "endDate"},
		{"negative price", func(in *Input) { in.MonPrice = -0.5 }, "monPrice"},
		{"nan price", func(in *Input) { in.MonPrice = math.NaN() }, "monPrice"},
		{"zero factor", func(in *Input) { in.AdjustmentFactor = 0 }, "adjustmentFactor"},
		{"negative mon", func(in *Input) { in.Pools[0].TotalMON = -1 }, "pools[0].totalMON"},
		{"negative tvl", func(in *Input) { in.Pools[0].TVL = model.Float(-2) }, "pools[0].tvl"},
		{"blank market", func(in *Input) { in.Pools[0].MarketName = "  " }, "pools[0]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			in.Pools = append([]model.PoolRow(nil), valid.Pools...)
			tc.mutate(&in)

			_, err := Build(in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Build err = %v, want *ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestCSVHeaderAndQuoting(t *testing.T) {
	in := weekInput([]model.PoolRow{
		{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 100},
	})
	in.Issues = []model.EfficiencyIssue{{
		PoolID:         "kuru-merkl-MON-USDC",
		Recommendation: "Reduce, then monitor. APR is high, volume is not.",
	}}

	r, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	lines := strings.Split(strings.TrimRight(r.CSV(), "\n"), "\n")
	wantHeader := strings.Join(Columns, ",")
	if lines[0] != wantHeader {
		t.Errorf("header = %q, want %q", lines[0], wantHeader)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, `"Reduce, then monitor"`) {
		t.Errorf("action with comma not quoted:\n%s", joined)
	}
}

func TestPoolsFromTotals(t *testing.T) {
	totals := model.IncentiveTotals{}
	totals.Add("kuru", "merkl", "WETH-USDC", 30)
	totals.Add("kuru", "merkl", "MON-USDC", 10)
	totals.Add("kuru", "direct", "shMON", 5)
	totals.Add("curvance", "direct", "LP", 7)

	pools := PoolsFromTotals([]string{"kuru", "curvance"}, totals)

	var got []string
	for _, p := range pools {
		got = append(got, p.PoolID())
	}
	want := []string{
		"kuru-direct-shMON",
		"kuru-merkl-MON-USDC",
		"kuru-merkl-WETH-USDC",
		"curvance-direct-LP",
	}
	if len(got) != len(want) {
		t.Fatalf("pools = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pool %d = %q, want %q", i, got[i], want[i])
		}
	}
	if pools[1].TotalMON != 10 {
		t.Errorf("MON-USDC total = %v, want 10", pools[1].TotalMON)
	}
	if pools[0].TVL != nil || pools[0].APR != nil || pools[0].Volume != nil {
		t.Errorf("cache-derived pools must not fabricate per-pool metrics")
	}
}

func TestPreviousTotalsIndex(t *testing.T) {
	totals := model.IncentiveTotals{}
	totals.Add("Kuru", "Merkl", "MON USDC", 80)
	totals.Add("Kuru", "Merkl", "MON USDC", 20)

	index := PreviousTotalsIndex(totals)
	if got := index["kuru-merkl-mon-usdc"]; got != 100 {
		t.Errorf("index[kuru-merkl-mon-usdc] = %v, want 100", got)
	}
}
