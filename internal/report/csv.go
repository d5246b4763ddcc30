package report

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// Records renders every row as formatted cells in Columns order, header
// excluded. Nil metrics render as empty cells so spreadsheet consumers
// can tell "no data" from an actual zero.
func (r *Report) Records() [][]string {
	records := make([][]string, 0, len(r.rows))
	for _, row := range r.rows {
		records = append(records, []string{
			string(row.Kind),
			row.Protocol,
			row.FundingProtocol,
			row.Pool,
			fmtFloat(row.IncentiveMON),
			fmtFloat(row.AdjustedMON),
			strconv.Itoa(row.PeriodDays),
			fmtFloatPtr(row.TVL),
			fmtFloatPtr(row.Volume),
			fmtFloatPtr(row.APR),
			fmtFloatPtr(row.TVLCostPct),
			fmtFloatPtr(row.AdjustedCostEfficiencyPct),
			fmtFloatPtr(row.WoWChangePct),
			fmtFloatPtr(row.VolumeEfficiencyPct),
			row.Action,
			row.Notes,
		})
	}
	return records
}

// CSV serializes the report with a header row. encoding/csv handles
// quoting for notes that carry commas or quotes.
func (r *Report) CSV() string {
	var b strings.Builder
	w := csv.NewWriter(&b)

	_ = w.Write(Columns)
	_ = w.WriteAll(r.Records())

	return b.String()
}

// fmtFloat renders a metric cell with 2-decimal rounding applied at
// serialization time only.
func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return fmtFloat(*v)
}
