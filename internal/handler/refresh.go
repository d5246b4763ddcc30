package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mon-metrics/incentive-dashboard/internal/refresh"
)

// Refresher is the slice of the orchestrator this handler needs.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) (*refresh.Result, error)
}

// RefreshNow rebuilds the snapshot synchronously: when the response
// arrives the dashboard is already serving the new data. Only the AI
// commentary trails behind in the background.
func RefreshNow(orch Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := orch.Refresh(r.Context(), "manual")
		if err != nil {
			http.Error(w, `{"error":"refresh failed"}`, http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":     "ok",
			"refresh_id": res.RefreshID,
			"cache_date": res.Snapshot.CacheDate,
			"duration":   res.Duration.String(),
		})
	}
}
