package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mon-metrics/incentive-dashboard/internal/model"
	"github.com/mon-metrics/incentive-dashboard/internal/report"
)

func TestProtocolMON(t *testing.T) {
	totals := map[string]map[string]float64{
		"merkl":  {"MON-USDC": 1000, "WETH-USDC": 250},
		"direct": {"shMON": 500},
	}
	if got := protocolMON(totals); got != 1750 {
		t.Errorf("protocolMON = %v, want 1750", got)
	}
	if got := protocolMON(nil); got != 0 {
		t.Errorf("protocolMON(nil) = %v, want 0", got)
	}
}

func TestFmtUSD(t *testing.T) {
	if got := fmtUSD(nil); got != "-" {
		t.Errorf("fmtUSD(nil) = %q, want -", got)
	}
	if got := fmtUSD(model.Float(1234567.89)); got != "1234568" {
		t.Errorf("fmtUSD = %q, want 1234568", got)
	}
}

func TestRenderTable(t *testing.T) {
	rep, err := report.Build(report.Input{
		Pools: []model.PoolRow{
			{PlatformProtocol: "kuru", FundingProtocol: "merkl", MarketName: "MON-USDC", TotalMON: 1000},
		},
		StartDate:        "2026-08-16",
		EndDate:          "2026-08-22",
		MonPrice:         0.02,
		AdjustmentFactor: 1,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var buf bytes.Buffer
	renderTable(&buf, rep)

	out := buf.String()
	for _, want := range []string{"grand_total", "protocol_subtotal", "MON-USDC", "1000.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
