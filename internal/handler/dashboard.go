package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/cache"
)

// Dashboard serves the cached snapshot. A missing or stale snapshot is
// 404 with the day the caller should expect, so the frontend can say
// "still building 2026-08-22" instead of erroring blindly.
func Dashboard(store *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := cache.Yesterday(time.Now())

		snap, ok := store.Get()
		if !ok || snap.CacheDate != expected {
			notReady(w, expected)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// Analysis serves just the AI commentary, 404 while enrichment is still
// pending for the current snapshot.
func Analysis(store *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		expected := cache.Yesterday(time.Now())

		snap, ok := store.Get()
		if !ok || snap.CacheDate != expected {
			notReady(w, expected)
			return
		}
		if snap.AIAnalysis == nil {
			http.Error(w, `{"error":"analysis pending"}`, http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap.AIAnalysis)
	}
}

func notReady(w http.ResponseWriter, expectedDate string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":         "snapshot not ready",
		"expected_date": expectedDate,
	})
}
