package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"cambio_go/internal/domain"
	"cambio_go/internal/infra"
	"cambio_go/internal/source"

	"github.com/google/uuid"
)

// SnapshotKey is the single cache row aggregation results persist under.
const SnapshotKey = "exchangeRates"

// Aggregator owns the active rate table. It fans a fetch cycle out over
// the source registry, averages per currency across whichever sources
// succeeded, and publishes the result all-or-nothing: the active table
// is only ever replaced whole, never patched.
type Aggregator struct {
	mu         sync.RWMutex
	active     *domain.AggregationResult
	refreshing bool
	onUpdate   func(*domain.AggregationResult)

	sources  []source.Source
	fetcher  *source.Fetcher
	store    domain.SnapshotStore
	metrics  *infra.Metrics
	cacheTTL time.Duration
}

// NewAggregator creates an Aggregator over the given source registry.
func NewAggregator(sources []source.Source, fetcher *source.Fetcher, store domain.SnapshotStore, metrics *infra.Metrics, cacheTTL time.Duration) *Aggregator {
	return &Aggregator{
		sources:  sources,
		fetcher:  fetcher,
		store:    store,
		metrics:  metrics,
		cacheTTL: cacheTTL,
	}
}

// SetOnUpdate registers a callback fired after every successful publish.
// The callback receives the immutable result and must not block long;
// it runs on the fetching goroutine.
func (a *Aggregator) SetOnUpdate(fn func(*domain.AggregationResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onUpdate = fn
}

// FetchRates runs one aggregation cycle: concurrent bounded fetches
// against every registered source, wait for all to settle, then average
// each currency across the sources that reported it. One unresolvable
// currency fails the whole cycle and leaves the active table untouched.
// Concurrent callers of an in-flight cycle get ErrRefreshInFlight.
func (a *Aggregator) FetchRates(ctx context.Context) (*domain.AggregationResult, error) {
	a.mu.Lock()
	if a.refreshing {
		a.mu.Unlock()
		a.metrics.RecordAggregationFailure(infra.OutcomeInFlight)
		return nil, domain.ErrRefreshInFlight
	}
	a.refreshing = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.refreshing = false
		a.mu.Unlock()
	}()

	cycleID := uuid.New().String()
	slog.Info("Starting rate aggregation",
		slog.String("cycle", cycleID),
		slog.Int("sources", len(a.sources)),
	)

	// Fan out one bounded fetch per source and wait for all to settle.
	// Results land in per-index slots; a failed source leaves nil.
	tables := make([]domain.RateTable, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()

			start := time.Now()
			table, err := a.fetcher.Fetch(ctx, src)
			a.metrics.RecordSourceFetch(src.ID, time.Since(start), err)
			if err != nil {
				// Recovered here: a failed source never aborts the cycle.
				slog.Warn("Rate source fetch failed",
					slog.String("cycle", cycleID),
					slog.Any("error", err),
				)
				return
			}
			tables[i] = table
		}(i, src)
	}
	wg.Wait()

	used := 0
	for _, t := range tables {
		if t != nil {
			used++
		}
	}
	if used == 0 {
		a.metrics.RecordAggregationFailure(infra.OutcomeAllSourcesFailed)
		return nil, domain.ErrAllSourcesFailed
	}

	rates, err := averageTables(tables)
	if err != nil {
		a.metrics.RecordAggregationFailure(infra.OutcomeMissingCurrency)
		return nil, err
	}

	result := &domain.AggregationResult{
		Rates:        rates,
		LastUpdate:   time.Now(),
		SourcesUsed:  used,
		TotalSources: len(a.sources),
	}

	a.mu.Lock()
	a.active = result
	fn := a.onUpdate
	a.mu.Unlock()

	a.persist(result)
	a.metrics.RecordAggregationSuccess(result)

	slog.Info("Rate aggregation completed",
		slog.String("cycle", cycleID),
		slog.Int("sources_used", used),
		slog.Int("sources_total", len(a.sources)),
	)

	if fn != nil {
		fn(result)
	}
	return result, nil
}

// averageTables computes the per-currency arithmetic mean across the
// tables that reported that currency. Every supported currency must be
// priced by at least one table.
func averageTables(tables []domain.RateTable) (domain.RateTable, error) {
	rates := domain.RateTable{domain.BaseCurrency: 1}
	for _, c := range domain.QuoteCurrencies() {
		var sum float64
		count := 0
		for _, t := range tables {
			if t == nil {
				continue
			}
			if v, ok := t[c]; ok {
				sum += v
				count++
			}
		}
		if count == 0 {
			return nil, &domain.MissingRateError{Currency: c}
		}
		rates[c] = sum / float64(count)
	}
	return rates, nil
}

// persist writes the snapshot row. A write failure costs the cache, not
// the cycle.
func (a *Aggregator) persist(result *domain.AggregationResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("Failed to encode snapshot", slog.Any("error", err))
		return
	}
	if err := a.store.SaveSnapshot(SnapshotKey, payload, a.cacheTTL); err != nil {
		slog.Warn("Failed to write snapshot", slog.Any("error", err))
	}
}

// LoadFromCache reads the persisted snapshot, if any. A well-formed
// snapshot becomes the active table when none is set yet; a later fetch
// always supersedes it. Malformed or incomplete payloads read as absent.
// Age is not re-checked here; the storage layer enforces the TTL.
func (a *Aggregator) LoadFromCache() (*domain.AggregationResult, bool) {
	payload, err := a.store.LoadSnapshot(SnapshotKey)
	if err != nil {
		a.metrics.RecordCacheLoad(infra.CacheInvalid)
		slog.Warn("Snapshot load failed", slog.Any("error", &domain.CacheReadError{Err: err}))
		return nil, false
	}
	if payload == nil {
		a.metrics.RecordCacheLoad(infra.CacheMiss)
		return nil, false
	}

	var result domain.AggregationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		a.metrics.RecordCacheLoad(infra.CacheInvalid)
		slog.Warn("Snapshot unreadable, treating cache as absent",
			slog.Any("error", &domain.CacheReadError{Err: err}),
		)
		return nil, false
	}
	if err := result.Rates.Validate(); err != nil {
		a.metrics.RecordCacheLoad(infra.CacheInvalid)
		slog.Warn("Snapshot table invalid, treating cache as absent",
			slog.Any("error", &domain.CacheReadError{Err: err}),
		)
		return nil, false
	}
	result.FromCache = true

	a.mu.Lock()
	if a.active == nil {
		a.active = &result
	}
	a.mu.Unlock()

	a.metrics.RecordCacheLoad(infra.CacheHit)
	slog.Info("Cached rates loaded",
		slog.Time("last_update", result.LastUpdate),
		slog.Int("sources_used", result.SourcesUsed),
	)
	return &result, true
}

// Convert converts amount between two supported currencies over the
// active table. Callers validate that amount is non-negative; the
// engine only guards rates being loaded and currencies being known.
func (a *Aggregator) Convert(amount float64, from, to domain.Currency) (float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.active == nil {
		return 0, domain.ErrRatesNotLoaded
	}
	value, err := a.active.Rates.Convert(amount, from, to)
	if err != nil {
		return 0, err
	}
	a.metrics.RecordConversion()
	return value, nil
}

// ActiveRates returns the current immutable result, or nil before any
// successful load.
func (a *Aggregator) ActiveRates() *domain.AggregationResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}
