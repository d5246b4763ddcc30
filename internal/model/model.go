// Package model defines the domain types shared across the incentive
// dashboard: pool-level incentive rows, the nested weekly totals, and
// the AI analysis payload.
package model

// IncentiveTotals is the nested weekly aggregation:
// protocol -> funding source -> market -> MON distributed.
type IncentiveTotals map[string]map[string]map[string]float64

// Add accumulates MON for a protocol/funding/market triple, creating
// intermediate maps as needed.
func (t IncentiveTotals) Add(protocol, funding, market string, mon float64) {
	if t[protocol] == nil {
		t[protocol] = make(map[string]map[string]float64)
	}
	if t[protocol][funding] == nil {
		t[protocol][funding] = make(map[string]float64)
	}
	t[protocol][funding][market] += mon
}

// PoolRow is one incentivized pool for a reporting period. TVL, APR and
// Volume are nil when the upstream oracle had no figure; nil is rendered
// as empty in the report, never as zero.
type PoolRow struct {
	PlatformProtocol string   `json:"platformProtocol"`
	FundingProtocol  string   `json:"fundingProtocol"`
	MarketName       string   `json:"marketName"`
	TotalMON         float64  `json:"totalMON"`
	TVL              *float64 `json:"tvl"`
	APR              *float64 `json:"apr"`
	Volume           *float64 `json:"volumeValue"`
}

// PoolID returns the canonical identifier triple joined with hyphens.
// Matching against AI-supplied identifiers normalizes both sides first
// (see the match package).
func (p PoolRow) PoolID() string {
	return p.PlatformProtocol + "-" + p.FundingProtocol + "-" + p.MarketName
}

// EfficiencyIssue is one AI-generated recommendation tied to a pool by
// a free-form identifier. The AI phrases identifiers inconsistently, so
// the relation is a fuzzy match, not a foreign key.
type EfficiencyIssue struct {
	PoolID         string `json:"poolId"`
	Recommendation string `json:"recommendation"`
	Issue          string `json:"issue,omitempty"`
}

// Recommendation is the action/notes pair recovered for a pool. Matched
// is false when no issue could be tied to the pool; that is a valid
// terminal outcome, not an error.
type Recommendation struct {
	Action  string `json:"action"`
	Notes   string `json:"notes"`
	Matched bool   `json:"matched"`
}

// Analysis is the AI commentary attached to a snapshot after the
// asynchronous enrichment step. When the model reply did not parse as
// structured JSON, Raw carries the full text and EfficiencyIssues is
// empty.
type Analysis struct {
	Summary          string            `json:"summary,omitempty"`
	EfficiencyIssues []EfficiencyIssue `json:"efficiencyIssues,omitempty"`
	Raw              string            `json:"raw,omitempty"`
}

// TVLResult is a protocol-level TVL reading. Historical reports whether
// the value came from the history series rather than the live figure.
type TVLResult struct {
	Value      *float64 `json:"value"`
	Historical bool     `json:"isHistorical"`
}

// VolumeBreakdown is a protocol-level DEX volume reading at the three
// granularities the volume oracle exposes.
type VolumeBreakdown struct {
	InRange *float64 `json:"inRange"`
	Last7d  *float64 `json:"last7d"`
	Last30d *float64 `json:"last30d"`
}

// Preferred returns the most specific available figure: the in-range
// total, then the trailing 7d, then the trailing 30d.
func (v VolumeBreakdown) Preferred() *float64 {
	if v.InRange != nil {
		return v.InRange
	}
	if v.Last7d != nil {
		return v.Last7d
	}
	return v.Last30d
}

// Float returns a pointer to v. Convenience for building nullable
// numeric fields.
func Float(v float64) *float64 { return &v }
