// Package cache holds the single daily dashboard snapshot. One slot,
// guarded by a RWMutex: Set replaces the whole snapshot pointer, so a
// reader either sees the old complete snapshot or the new complete
// snapshot, never a half-written one. The only in-place mutation is the
// late-arriving AI analysis, which goes absent -> present exactly once.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mon-metrics/incentive-dashboard/internal/model"
)

const dateLayout = "2006-01-02"

// Snapshot is one day's fully aggregated dashboard payload. CacheDate
// is the data day it covers (yesterday, UTC), not the day it was built.
type Snapshot struct {
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	MonPrice  float64 `json:"monPrice"`

	// AdjustmentFactor revalues the week's spend at the trailing
	// average price; 1 when the price history was unavailable.
	AdjustmentFactor float64 `json:"adjustmentFactor"`

	// Protocols preserves first-seen order from the rewards oracle so
	// the report renders protocols in a stable order.
	Protocols []string `json:"protocols"`

	Results             model.IncentiveTotals `json:"results"`
	PreviousWeekResults model.IncentiveTotals `json:"previousWeekResults"`

	ProtocolTVL             map[string]*float64 `json:"protocolTVL"`
	PreviousWeekProtocolTVL map[string]*float64 `json:"previousWeekProtocolTVL"`

	ProtocolDEXVolume             map[string]model.VolumeBreakdown `json:"protocolDEXVolume"`
	PreviousWeekProtocolDEXVolume map[string]model.VolumeBreakdown `json:"previousWeekProtocolDEXVolume"`

	// AIAnalysis is nil until background enrichment lands, and may stay
	// nil for the whole day if enrichment fails.
	AIAnalysis *model.Analysis `json:"aiAnalysis"`

	// Timestamp is epoch milliseconds, strictly increasing across Set
	// calls so consumers can order snapshots even when two builds land
	// in the same millisecond.
	Timestamp int64  `json:"timestamp"`
	CacheDate string `json:"cacheDate"`
}

// Store is the single-slot snapshot holder.
type Store struct {
	logger *slog.Logger

	mu        sync.RWMutex
	snap      *Snapshot
	lastStamp int64
}

func New(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// Get returns the current snapshot, if any. The returned pointer is
// shared with concurrent readers; callers must not mutate it.
func (s *Store) Get() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.snap != nil
}

// IsValid reports whether the cached snapshot covers the given data
// day. A snapshot from any other day is stale, no matter how recent.
func (s *Store) IsValid(date string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap != nil && s.snap.CacheDate == date
}

// Set installs a new snapshot, stamping it with a strictly-increasing
// epoch-millis timestamp. Last write wins; concurrent refreshes both
// produced a complete snapshot, so either outcome is acceptable.
func (s *Store) Set(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := time.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	snap.Timestamp = stamp
	s.snap = snap

	s.logger.Info("dashboard snapshot stored",
		"cache_date", snap.CacheDate,
		"protocols", len(snap.Protocols),
		"timestamp", snap.Timestamp,
	)
}

// UpdateAIAnalysis attaches the late AI commentary to the current
// snapshot. It is a no-op when no snapshot exists (the enrichment
// outlived its snapshot) and never overwrites an analysis that is
// already present.
func (s *Store) UpdateAIAnalysis(a *model.Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		s.logger.Warn("ai analysis dropped, no snapshot in cache")
		return
	}
	if s.snap.AIAnalysis != nil {
		s.logger.Warn("ai analysis already present, keeping existing", "cache_date", s.snap.CacheDate)
		return
	}

	s.snap.AIAnalysis = a
	s.logger.Info("ai analysis attached", "cache_date", s.snap.CacheDate, "issues", len(a.EfficiencyIssues))
}

// Yesterday returns the UTC calendar day before now, the data day every
// snapshot covers. Incentive figures for the current day are still
// accruing, so the dashboard always reports on complete days.
func Yesterday(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(dateLayout)
}
