// Package report turns a flat list of incentivized pools plus
// protocol-level oracle figures into the hierarchical weekly incentive
// report: one grand total, then per protocol a subtotal, the pool rows,
// and a protocol total cross-checked against external TVL/volume. The
// builder is a pure function over already-fetched inputs; it never
// calls an oracle.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/match"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

// RowKind discriminates the four report row types.
type RowKind string

const (
	KindGrandTotal       RowKind = "grand_total"
	KindProtocolSubtotal RowKind = "protocol_subtotal"
	KindPool             RowKind = "pool"
	KindProtocolTotal    RowKind = "protocol_total"
)

const dateLayout = "2006-01-02"

// Columns is the fixed column order of the serialized report.
var Columns = []string{
	"type", "protocol", "funding_protocol", "pool",
	"incentive_mon", "adjusted_incentive_mon", "period_days",
	"tvl_usd", "volume_usd", "apr_pct",
	"tvl_cost_pct", "adjusted_cost_efficiency_pct",
	"wow_change_pct", "volume_efficiency_pct",
	"action", "notes",
}

// Input is everything the builder needs, fetched ahead of time by the
// caller (live request payload or a prior cache read).
type Input struct {
	Pools     []model.PoolRow `json:"pools"`
	StartDate string          `json:"startDate"`
	EndDate   string          `json:"endDate"`

	// MonPrice is the current MON/USD price; AdjustmentFactor corrects
	// incentive value at distribution time to a trailing time-weighted
	// average price. Callers default the factor to 1 when either input
	// price was unavailable.
	MonPrice         float64 `json:"monPrice"`
	AdjustmentFactor float64 `json:"adjustmentFactor"`

	// Protocol-level oracle figures, keyed by lowercase protocol id.
	ProtocolTVL    map[string]*float64              `json:"protocolTVL"`
	ProtocolVolume map[string]model.VolumeBreakdown `json:"protocolDEXVolume"`

	// PreviousTotals maps normalized pool ids to the prior period's MON
	// spend, used for the week-over-week column. Missing entries render
	// as empty.
	PreviousTotals map[string]float64 `json:"previousTotals"`

	Issues []model.EfficiencyIssue `json:"efficiencyIssues"`
}

// Row is one line of the report. Nil metric pointers render as empty
// cells, never as zero: "no data" and "zero value" stay distinguishable.
type Row struct {
	Kind            RowKind
	Protocol        string
	FundingProtocol string
	Pool            string

	IncentiveMON float64
	AdjustedMON  float64
	PeriodDays   int

	TVL    *float64
	Volume *float64
	APR    *float64

	TVLCostPct                *float64
	AdjustedCostEfficiencyPct *float64
	WoWChangePct              *float64
	VolumeEfficiencyPct       *float64

	Action string
	Notes  string
}

// Report is the built document. Rows are already in final order:
// grand total, then per protocol (first-seen order) subtotal, pools in
// input order, protocol total.
type Report struct {
	StartDate  string
	EndDate    string
	PeriodDays int

	rows []Row
}

// ValidationError reports malformed builder input. Malformed input is
// surfaced, never silently coerced to zero.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Build validates the input and produces the full report, or a
// *ValidationError. It never emits a partial document.
func Build(in Input) (*Report, error) {
	periodDays, err := validate(in)
	if err != nil {
		return nil, err
	}

	r := &Report{
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		PeriodDays: periodDays,
	}

	pools := make([]poolMetrics, 0, len(in.Pools))
	for _, p := range in.Pools {
		pools = append(pools, r.computePool(p, in))
	}

	// Protocols in first-seen order from the pool list.
	var order []string
	byProtocol := make(map[string][]poolMetrics)
	for _, pm := range pools {
		key := strings.ToLower(pm.row.Protocol)
		if _, seen := byProtocol[key]; !seen {
			order = append(order, key)
		}
		byProtocol[key] = append(byProtocol[key], pm)
	}

	r.rows = append(r.rows, r.aggregate(KindGrandTotal, "", pools))

	for _, key := range order {
		group := byProtocol[key]
		display := group[0].row.Protocol

		r.rows = append(r.rows, r.aggregate(KindProtocolSubtotal, display, group))
		for _, pm := range group {
			r.rows = append(r.rows, pm.row)
		}
		r.rows = append(r.rows, r.protocolTotal(key, display, group, in))
	}

	return r, nil
}

// Rows returns the ordered report rows.
func (r *Report) Rows() []Row { return r.rows }

// poolMetrics carries a finished pool row plus the intermediates the
// aggregate rows sum over.
type poolMetrics struct {
	row         Row
	adjustedUSD float64
	prevMON     float64
	hasPrev     bool
}

func (r *Report) computePool(p model.PoolRow, in Input) poolMetrics {
	adjustedMON := p.TotalMON * in.AdjustmentFactor
	adjustedUSD := adjustedMON * in.MonPrice

	row := Row{
		Kind:            KindPool,
		Protocol:        p.PlatformProtocol,
		FundingProtocol: p.FundingProtocol,
		Pool:            p.MarketName,
		IncentiveMON:    p.TotalMON,
		AdjustedMON:     adjustedMON,
		PeriodDays:      r.PeriodDays,
		TVL:             p.TVL,
		Volume:          p.Volume,
		APR:             p.APR,
	}

	if p.TVL != nil && *p.TVL > 0 {
		row.TVLCostPct = model.Float(annualizedCostPct(adjustedUSD, r.PeriodDays, *p.TVL))
		row.AdjustedCostEfficiencyPct = model.Float(adjustedUSD / *p.TVL * 100)
	}
	if p.Volume != nil && *p.Volume > 0 {
		row.VolumeEfficiencyPct = model.Float(adjustedUSD / *p.Volume * 100)
	}

	prev, hasPrev := in.PreviousTotals[match.Normalize(p.PoolID())]
	if hasPrev && prev > 0 {
		row.WoWChangePct = model.Float((p.TotalMON - prev) / prev * 100)
	}

	if rec := match.Find(p.PoolID(), in.Issues); rec.Matched {
		row.Action = rec.Action
		row.Notes = rec.Notes
	}

	return poolMetrics{row: row, adjustedUSD: adjustedUSD, prevMON: prev, hasPrev: hasPrev && prev > 0}
}

// aggregate sums raw values over the group and recomputes every
// percentage from the sums. Averaging the per-row percentages would
// skew the result whenever pool sizes vary, so it is never done.
// Aggregate rows carry no recommendation; those are pool-scoped.
func (r *Report) aggregate(kind RowKind, protocol string, group []poolMetrics) Row {
	var sumMON, sumAdjMON, sumUSD, sumTVL, sumVolume, sumPrev float64
	var hasTVL, hasVolume, hasPrev bool

	for _, pm := range group {
		sumMON += pm.row.IncentiveMON
		sumAdjMON += pm.row.AdjustedMON
		sumUSD += pm.adjustedUSD
		if pm.row.TVL != nil {
			sumTVL += *pm.row.TVL
			hasTVL = true
		}
		if pm.row.Volume != nil {
			sumVolume += *pm.row.Volume
			hasVolume = true
		}
		if pm.hasPrev {
			sumPrev += pm.prevMON
			hasPrev = true
		}
	}

	row := Row{
		Kind:         kind,
		Protocol:     protocol,
		IncentiveMON: sumMON,
		AdjustedMON:  sumAdjMON,
		PeriodDays:   r.PeriodDays,
	}
	if hasTVL {
		row.TVL = model.Float(sumTVL)
	}
	if hasVolume {
		row.Volume = model.Float(sumVolume)
	}

	r.fillPercentages(&row, sumUSD, row.TVL, row.Volume)

	if hasPrev && sumPrev > 0 {
		row.WoWChangePct = model.Float((sumMON - sumPrev) / sumPrev * 100)
	}

	return row
}

// protocolTotal mirrors the subtotal sums but swaps in the
// oracle-supplied protocol-wide TVL and volume, so the report reader
// can cross-validate on-chain incentive accounting against independent
// figures.
func (r *Report) protocolTotal(key, display string, group []poolMetrics, in Input) Row {
	row := r.aggregate(KindProtocolTotal, display, group)

	row.TVL = in.ProtocolTVL[key]
	row.Volume = in.ProtocolVolume[key].Preferred()

	var sumUSD float64
	for _, pm := range group {
		sumUSD += pm.adjustedUSD
	}

	row.TVLCostPct = nil
	row.AdjustedCostEfficiencyPct = nil
	row.VolumeEfficiencyPct = nil
	r.fillPercentages(&row, sumUSD, row.TVL, row.Volume)

	return row
}

func (r *Report) fillPercentages(row *Row, adjustedUSD float64, tvl, volume *float64) {
	if tvl != nil && *tvl > 0 {
		row.TVLCostPct = model.Float(annualizedCostPct(adjustedUSD, r.PeriodDays, *tvl))
		row.AdjustedCostEfficiencyPct = model.Float(adjustedUSD / *tvl * 100)
	}
	if volume != nil && *volume > 0 {
		row.VolumeEfficiencyPct = model.Float(adjustedUSD / *volume * 100)
	}
}

// annualizedCostPct extrapolates a period-scoped spend to a yearly rate
// against standing capital, so protocols with different TVLs compare on
// the same footing.
func annualizedCostPct(adjustedUSD float64, periodDays int, tvl float64) float64 {
	return adjustedUSD / float64(periodDays) * 365 / tvl * 100
}

func validate(in Input) (int, error) {
	if len(in.Pools) == 0 {
		return 0, &ValidationError{Field: "pools", Reason: "empty pool list"}
	}

	start, err := time.Parse(dateLayout, in.StartDate)
	if err != nil {
		return 0, &ValidationError{Field: "startDate", Reason: fmt.Sprintf("unparsable date %q", in.StartDate)}
	}
	end, err := time.Parse(dateLayout, in.EndDate)
	if err != nil {
		return 0, &ValidationError{Field: "endDate", Reason: fmt.Sprintf("unparsable date %q", in.EndDate)}
	}
	if end.Before(start) {
		return 0, &ValidationError{Field: "endDate", Reason: "end date precedes start date"}
	}

	if !isFinite(in.MonPrice) || in.MonPrice < 0 {
		return 0, &ValidationError{Field: "monPrice", Reason: "must be a finite value >= 0"}
	}
	if !isFinite(in.AdjustmentFactor) || in.AdjustmentFactor <= 0 {
		return 0, &ValidationError{Field: "adjustmentFactor", Reason: "must be a finite value > 0 (callers default to 1)"}
	}

	for i, p := range in.Pools {
		field := fmt.Sprintf("pools[%d]", i)
		if strings.TrimSpace(p.PlatformProtocol) == "" || strings.TrimSpace(p.FundingProtocol) == "" || strings.TrimSpace(p.MarketName) == "" {
			return 0, &ValidationError{Field: field, Reason: "identity triple has empty parts"}
		}
		if !isFinite(p.TotalMON) || p.TotalMON < 0 {
			return 0, &ValidationError{Field: field + ".totalMON", Reason: "must be a finite value >= 0"}
		}
		if p.TVL != nil && (!isFinite(*p.TVL) || *p.TVL < 0) {
			return 0, &ValidationError{Field: field + ".tvl", Reason: "must be a finite value >= 0"}
		}
		if p.Volume != nil && (!isFinite(*p.Volume) || *p.Volume < 0) {
			return 0, &ValidationError{Field: field + ".volumeValue", Reason: "must be a finite value >= 0"}
		}
		if p.APR != nil && !isFinite(*p.APR) {
			return 0, &ValidationError{Field: field + ".apr", Reason: "must be finite"}
		}
	}

	// Inclusive calendar-day count: a Monday..Sunday week is 7 days.
	return int(end.Sub(start).Hours()/24) + 1, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PoolsFromTotals flattens a cached weekly totals map into pool rows
// for the report builder. Protocol order follows the snapshot's ordered
// protocol list; funding sources and markets are sorted so the cached
// report is deterministic. Pool-level TVL/APR/volume are unknown at
// this granularity and stay nil; the protocol totals carry the oracle
// figures instead.
func PoolsFromTotals(protocols []string, totals model.IncentiveTotals) []model.PoolRow {
	var pools []model.PoolRow
	for _, protocol := range protocols {
		fundings := totals[protocol]
		fundingNames := sortedKeys(fundings)
		for _, funding := range fundingNames {
			markets := fundings[funding]
			for _, market := range sortedKeys(markets) {
				pools = append(pools, model.PoolRow{
					PlatformProtocol: protocol,
					FundingProtocol:  funding,
					MarketName:       market,
					TotalMON:         markets[market],
				})
			}
		}
	}
	return pools
}

// PreviousTotalsIndex flattens a totals map into normalized pool id ->
// MON, the shape the week-over-week column consumes.
func PreviousTotalsIndex(totals model.IncentiveTotals) map[string]float64 {
	index := make(map[string]float64)
	for protocol, fundings := range totals {
		for funding, markets := range fundings {
			for market, mon := range markets {
				id := match.Normalize(protocol + "-" + funding + "-" + market)
				index[id] += mon
			}
		}
	}
	return index
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
