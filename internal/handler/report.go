package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/cache"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
	"github.com/mon-metrics/incentive-dashboard/internal/report"
)

// ReportCSV renders the hierarchical incentive report from the valid
// cached snapshot. The response is the complete CSV document or an
// error status, never a truncated file.
func ReportCSV(store *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := cache.Yesterday(time.Now())

		snap, ok := store.Get()
		if !ok || snap.CacheDate != expected {
			notReady(w, expected)
			return
		}

		pools := report.PoolsFromTotals(snap.Protocols, snap.Results)
		if len(pools) == 0 {
			http.Error(w, `{"error":"no incentive data for period"}`, http.StatusNotFound)
			return
		}

		var issues []model.EfficiencyIssue
		if snap.AIAnalysis != nil {
			issues = snap.AIAnalysis.EfficiencyIssues
		}

		factor := snap.AdjustmentFactor
		if factor <= 0 {
			factor = 1
		}

		in := report.Input{
			Pools:            pools,
			StartDate:        snap.StartDate,
			EndDate:          snap.EndDate,
			MonPrice:         snap.MonPrice,
			AdjustmentFactor: factor,
			ProtocolTVL:      snap.ProtocolTVL,
			ProtocolVolume:   snap.ProtocolDEXVolume,
			PreviousTotals:   report.PreviousTotalsIndex(snap.PreviousWeekResults),
			Issues:           issues,
		}

		rep, err := report.Build(in)
		if err != nil {
			http.Error(w, `{"error":"report build failed"}`, http.StatusInternalServerError)
			return
		}

		writeCSV(w, rep)
	}
}

// BuildReportCSV renders a report from a caller-supplied pool list and
// date range, independent of the cache. Malformed input is a 400 with
// the offending field.
func BuildReportCSV() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in report.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		// Absent factor means unadjusted.
		if in.AdjustmentFactor == 0 {
			in.AdjustmentFactor = 1
		}

		rep, err := report.Build(in)
		if err != nil {
			var verr *report.ValidationError
			if errors.As(err, &verr) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": verr.Error(),
					"field": verr.Field,
				})
				return
			}
			http.Error(w, `{"error":"report build failed"}`, http.StatusInternalServerError)
			return
		}

		writeCSV(w, rep)
	}
}

func writeCSV(w http.ResponseWriter, rep *report.Report) {
	filename := fmt.Sprintf("incentive_report_%s_%s.csv", rep.StartDate, rep.EndDate)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write([]byte(rep.CSV()))
}
