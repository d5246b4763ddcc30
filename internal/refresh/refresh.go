// Package refresh builds the daily dashboard snapshot: it pulls weekly
// incentive totals, MON pricing, and per-protocol TVL/volume from the
// oracles, installs the result in the cache, and detaches the optional
// AI enrichment. One Orchestrator per process.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mon-metrics/incentive-dashboard/internal/cache"
	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/dedup"
	"github.com/mon-metrics/incentive-dashboard/internal/metrics"
	"github.com/mon-metrics/incentive-dashboard/internal/model"
	"github.com/mon-metrics/incentive-dashboard/internal/report"
)

const dateLayout = "2006-01-02"

// Oracle interfaces are declared here, by the consumer; the concrete
// clients live in internal/oracle and tests substitute stubs.

type PriceOracle interface {
	Price(ctx context.Context) (float64, error)
	PriceAt(ctx context.Context, t time.Time) (float64, error)
	TrailingAverage(ctx context.Context, end time.Time, windowDays int) (float64, error)
}

type TVLOracle interface {
	TVL(ctx context.Context, slug string, asOf time.Time) (model.TVLResult, error)
}

type VolumeOracle interface {
	Volume(ctx context.Context, slug string, startDate, endDate time.Time) (model.VolumeBreakdown, error)
}

type RewardsOracle interface {
	WeeklyTotals(ctx context.Context, startDate, endDate time.Time) (model.IncentiveTotals, []string, error)
}

type AnalysisOracle interface {
	Configured() bool
	Generate(ctx context.Context, current, previous []model.PoolRow) (*model.Analysis, error)
}

// Oracles bundles every external dependency of a refresh run.
type Oracles struct {
	Price    PriceOracle
	TVL      TVLOracle
	Volume   VolumeOracle
	Rewards  RewardsOracle
	Analysis AnalysisOracle
}

// Result reports one completed refresh run.
type Result struct {
	Snapshot  *cache.Snapshot
	RefreshID string
	Duration  time.Duration
}

// Orchestrator owns the refresh schedule and the snapshot build. The
// market-data loop is serialized with a fixed inter-call delay; the
// free oracle tiers throttle by request spacing, not concurrency.
type Orchestrator struct {
	store    *cache.Store
	guard    *dedup.Guard
	registry *config.Registry
	oracles  Oracles
	logger   *slog.Logger

	limiter      *rate.Limiter
	defaultPrice float64
	interval     time.Duration
	aiTimeout    time.Duration

	now func() time.Time
}

func New(cfg config.Config, registry *config.Registry, store *cache.Store, guard *dedup.Guard, oracles Oracles, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		guard:        guard,
		registry:     registry,
		oracles:      oracles,
		logger:       logger,
		limiter:      rate.NewLimiter(rate.Every(cfg.OracleDelay), 1),
		defaultPrice: cfg.DefaultMonPrice,
		interval:     cfg.RefreshInterval,
		aiTimeout:    cfg.AITimeout,
		now:          time.Now,
	}
}

// Run drives the hourly schedule: an immediate check, then one per
// interval. A check refreshes only when the cache does not already
// cover yesterday, so the expensive build happens once per day plus
// recovery after restarts.
func (o *Orchestrator) Run(ctx context.Context) {
	o.runScheduled(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runScheduled(ctx)
		}
	}
}

func (o *Orchestrator) runScheduled(ctx context.Context) {
	yesterday := cache.Yesterday(o.now())

	if o.store.IsValid(yesterday) {
		// One log line per day, not one per hourly check.
		if o.guard.Once(ctx, "log:cache-valid:"+yesterday, 26*time.Hour) {
			o.logger.Info("cache already valid, skipping refresh", "cache_date", yesterday)
		}
		o.observeSnapshotAge()
		return
	}

	if _, err := o.Refresh(ctx, "schedule"); err != nil {
		o.logger.Error("scheduled refresh failed", "error", err)
	}
}

// Refresh builds a complete snapshot for yesterday and installs it.
// Incentive totals are the one hard dependency; price, TVL, and volume
// all degrade to fallbacks or nulls so a single flaky oracle cannot
// take the dashboard down. AI enrichment is fired after the snapshot
// is already stored and cannot fail the run.
func (o *Orchestrator) Refresh(ctx context.Context, trigger string) (res *Result, err error) {
	started := time.Now()
	refreshID := uuid.NewString()
	logger := o.logger.With("refresh_id", refreshID, "trigger", trigger)

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.RefreshTotal.WithLabelValues(trigger, status).Inc()
		metrics.RefreshDuration.Observe(time.Since(started).Seconds())
	}()

	now := o.now()
	yesterday := cache.Yesterday(now)
	weekEnd, perr := time.Parse(dateLayout, yesterday)
	if perr != nil {
		return nil, fmt.Errorf("compute data day: %w", perr)
	}
	weekStart := weekEnd.AddDate(0, 0, -6)
	prevEnd := weekEnd.AddDate(0, 0, -7)
	prevStart := weekEnd.AddDate(0, 0, -13)

	logger.Info("refresh started",
		"cache_date", yesterday,
		"week", weekStart.Format(dateLayout)+".."+yesterday,
	)

	totals, order, err := o.oracles.Rewards.WeeklyTotals(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("fetch weekly totals: %w", err)
	}
	if len(order) == 0 {
		logger.Warn("no incentive campaigns in window")
	}

	prevTotals, _, err := o.oracles.Rewards.WeeklyTotals(ctx, prevStart, prevEnd)
	if err != nil {
		logger.Warn("previous week totals unavailable", "error", err)
		prevTotals = model.IncentiveTotals{}
	}

	price := o.fetchPrice(ctx, logger)
	factor := o.adjustmentFactor(ctx, logger, weekStart, weekEnd)

	snap := &cache.Snapshot{
		StartDate:           weekStart.Format(dateLayout),
		EndDate:             yesterday,
		MonPrice:            price,
		AdjustmentFactor:    factor,
		Protocols:           order,
		Results:             totals,
		PreviousWeekResults: prevTotals,

		ProtocolTVL:             make(map[string]*float64, len(order)),
		PreviousWeekProtocolTVL: make(map[string]*float64, len(order)),

		ProtocolDEXVolume:             make(map[string]model.VolumeBreakdown, len(order)),
		PreviousWeekProtocolDEXVolume: make(map[string]model.VolumeBreakdown, len(order)),

		CacheDate: yesterday,
	}

	for _, protocol := range order {
		if err := o.fetchMarketData(ctx, logger, snap, protocol, weekStart, weekEnd, prevStart, prevEnd); err != nil {
			return nil, err
		}
	}

	o.store.Set(snap)
	metrics.SnapshotTimestamp.Set(float64(snap.Timestamp))
	o.observeSnapshotAge()

	o.enrichAsync(logger, snap)

	duration := time.Since(started)
	logger.Info("refresh complete",
		"cache_date", yesterday,
		"protocols", len(order),
		"mon_price", price,
		"adjustment_factor", factor,
		"duration", duration.String(),
	)

	return &Result{Snapshot: snap, RefreshID: refreshID, Duration: duration}, nil
}

// fetchMarketData fills one protocol's TVL and volume figures, current
// and previous week. Failures store nulls; the error return is only for
// context cancellation, which aborts the whole run.
func (o *Orchestrator) fetchMarketData(ctx context.Context, logger *slog.Logger, snap *cache.Snapshot, protocol string, weekStart, weekEnd, prevStart, prevEnd time.Time) error {
	tvlSlug := o.registry.TVLSlug(protocol)

	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh aborted: %w", err)
	}
	snap.ProtocolTVL[protocol] = o.fetchTVL(ctx, logger, tvlSlug, protocol, weekEnd)

	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh aborted: %w", err)
	}
	snap.PreviousWeekProtocolTVL[protocol] = o.fetchTVL(ctx, logger, tvlSlug, protocol, prevEnd)

	volSlug, hasVolume := o.registry.VolumeSlug(protocol)
	if !hasVolume {
		return nil
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh aborted: %w", err)
	}
	snap.ProtocolDEXVolume[protocol] = o.fetchVolume(ctx, logger, volSlug, protocol, weekStart, weekEnd)

	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh aborted: %w", err)
	}
	snap.PreviousWeekProtocolDEXVolume[protocol] = o.fetchVolume(ctx, logger, volSlug, protocol, prevStart, prevEnd)

	return nil
}

func (o *Orchestrator) fetchTVL(ctx context.Context, logger *slog.Logger, slug, protocol string, asOf time.Time) *float64 {
	res, err := o.oracles.TVL.TVL(ctx, slug, asOf)
	if err != nil {
		logger.Warn("tvl unavailable", "protocol", protocol, "slug", slug, "as_of", asOf.Format(dateLayout), "error", err)
		return nil
	}
	return res.Value
}

func (o *Orchestrator) fetchVolume(ctx context.Context, logger *slog.Logger, slug, protocol string, start, end time.Time) model.VolumeBreakdown {
	breakdown, err := o.oracles.Volume.Volume(ctx, slug, start, end)
	if err != nil {
		logger.Warn("volume unavailable", "protocol", protocol, "slug", slug, "error", err)
		return model.VolumeBreakdown{}
	}
	return breakdown
}

func (o *Orchestrator) fetchPrice(ctx context.Context, logger *slog.Logger) float64 {
	price, err := o.oracles.Price.Price(ctx)
	if err != nil {
		logger.Warn("price unavailable, using fallback", "fallback", o.defaultPrice, "error", err)
		return o.defaultPrice
	}
	return price
}

// adjustmentFactor is trailing 7d average price divided by the price at
// the period start. It corrects for MON moving during the week: spend
// valued at today's price alone would overstate or understate what the
// incentives were actually worth when distributed. Defaults to 1 when
// either leg is unavailable.
func (o *Orchestrator) adjustmentFactor(ctx context.Context, logger *slog.Logger, weekStart, weekEnd time.Time) float64 {
	avg, err := o.oracles.Price.TrailingAverage(ctx, weekEnd, 7)
	if err != nil {
		logger.Warn("trailing average unavailable, factor defaults to 1", "error", err)
		return 1
	}

	startPrice, err := o.oracles.Price.PriceAt(ctx, weekStart)
	if err != nil {
		logger.Warn("period start price unavailable, factor defaults to 1", "error", err)
		return 1
	}

	if avg <= 0 || startPrice <= 0 {
		logger.Warn("non-positive price legs, factor defaults to 1", "avg", avg, "start", startPrice)
		return 1
	}
	return avg / startPrice
}

// enrichAsync fires the AI commentary for an already-stored snapshot.
// It runs on a background context with its own deadline: the triggering
// HTTP request or schedule tick has already succeeded and must not wait
// minutes for a language model. The Redis guard keeps concurrent
// refreshes from paying for the same analysis twice.
func (o *Orchestrator) enrichAsync(logger *slog.Logger, snap *cache.Snapshot) {
	if o.oracles.Analysis == nil || !o.oracles.Analysis.Configured() {
		logger.Info("ai enrichment skipped, not configured")
		metrics.EnrichmentTotal.WithLabelValues("skipped").Inc()
		return
	}

	key := "ai:" + snap.CacheDate

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.aiTimeout)
		defer cancel()

		if !o.guard.Once(ctx, key, 26*time.Hour) {
			logger.Info("ai enrichment already claimed", "cache_date", snap.CacheDate)
			metrics.EnrichmentTotal.WithLabelValues("deduplicated").Inc()
			return
		}

		current := report.PoolsFromTotals(snap.Protocols, snap.Results)
		previous := report.PoolsFromTotals(snap.Protocols, snap.PreviousWeekResults)

		analysis, err := o.oracles.Analysis.Generate(ctx, current, previous)
		if err != nil {
			logger.Error("ai enrichment failed", "cache_date", snap.CacheDate, "error", err)
			metrics.EnrichmentTotal.WithLabelValues("failed").Inc()
			// Release the claim so a later manual refresh can retry.
			o.guard.Clear(context.Background(), key)
			return
		}

		o.store.UpdateAIAnalysis(analysis)
		metrics.EnrichmentTotal.WithLabelValues("applied").Inc()
	}()
}

func (o *Orchestrator) observeSnapshotAge() {
	if snap, ok := o.store.Get(); ok {
		metrics.SnapshotAge.Set(time.Since(time.UnixMilli(snap.Timestamp)).Seconds())
	}
}
