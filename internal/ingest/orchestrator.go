// Package ingest runs ingestion cycles: fetch quotes for every active
// material, extract and validate them, reconcile them into the history and
// persist what is new. At most one cycle runs at a time.
package ingest

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/copper-cli/internal/extract"
	"github.com/sells-group/copper-cli/internal/history"
	"github.com/sells-group/copper-cli/internal/model"
	"github.com/sells-group/copper-cli/internal/quote"
	"github.com/sells-group/copper-cli/internal/resilience"
	"github.com/sells-group/copper-cli/internal/store"
)

// InsightGenerator produces narrative commentary. Failures never affect a
// cycle's outcome.
type InsightGenerator interface {
	Insights(ctx context.Context, h []model.PriceRecord) (string, error)
	Forecast(ctx context.Context, h []model.PriceRecord) (string, error)
}

// Notifier is told about cycles that end in error.
type Notifier interface {
	CycleFailed(ctx context.Context, mode string, cause error)
}

// Deps are the orchestrator's collaborators. Insight and Notifier are
// optional.
type Deps struct {
	Fetcher   quote.Fetcher
	Store     store.Store
	Extractor extract.Extractor
	Insight   InsightGenerator
	Notifier  Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// Config tunes cycle behavior.
type Config struct {
	Materials []model.MaterialConfig
	Retry     resilience.RetryConfig
	// Cooldown is how long the error status holds before returning to idle.
	Cooldown time.Duration
	// Location decides which calendar day "today" is.
	Location      *time.Location
	BackfillWeeks int
	// SkipExisting skips materials that already have today's record.
	SkipExisting bool
	Insights     bool
	// Concurrency caps parallel material fetches. Zero means unlimited.
	Concurrency int
}

// Snapshot is a consistent copy of the orchestrator's state for readers.
type Snapshot struct {
	Status    model.IngestionStatus `json:"status"`
	History   []model.PriceRecord   `json:"history"`
	Summaries []model.Summary       `json:"summaries"`
	LastRun   time.Time             `json:"last_run,omitzero"`
	LastError string                `json:"last_error,omitempty"`
	LastAdded int                   `json:"last_added"`
	Insight   string                `json:"insight,omitempty"`
	Forecast  string                `json:"forecast,omitempty"`
}

const (
	stateIdle int32 = iota
	stateFetching
	stateError
)

// Orchestrator owns the in-memory history and the ingestion status.
type Orchestrator struct {
	deps Deps
	cfg  Config

	state atomic.Int32

	mu        sync.RWMutex
	history   []model.PriceRecord
	summaries []model.Summary
	lastRun   time.Time
	lastErr   string
	lastAdded int
	insight   string
	forecast  string

	bg sync.WaitGroup
}

// New creates an Orchestrator in the idle state with an empty history.
func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BackfillWeeks <= 0 {
		cfg.BackfillWeeks = 52
	}
	if cfg.Retry.ShouldRetry == nil {
		// Another attempt can return different text, so every failure is
		// worth retrying while the cycle is alive.
		cfg.Retry.ShouldRetry = func(error) bool { return true }
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// Load replaces the in-memory history with the persisted one. Change values
// are recomputed so the adjacency rule holds even for hand-edited stores.
func (o *Orchestrator) Load(ctx context.Context) error {
	recs, err := o.deps.Store.Load(ctx)
	if err != nil {
		return eris.Wrap(err, "ingest: load history")
	}

	if problems := history.Validate(recs); len(problems) > 0 {
		zap.L().Info("ingest: normalizing stored history", zap.Int("problems", len(problems)))
	}
	h := history.Reconcile(nil, recs).History

	o.mu.Lock()
	o.history = h
	o.summaries = o.summarize(h)
	o.mu.Unlock()

	zap.L().Info("ingest: history loaded", zap.Int("records", len(h)))
	return nil
}

// Status returns the current ingestion status.
func (o *Orchestrator) Status() model.IngestionStatus {
	switch o.state.Load() {
	case stateFetching:
		return model.StatusFetching
	case stateError:
		return model.StatusError
	default:
		return model.StatusIdle
	}
}

// Snapshot returns copies of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Snapshot{
		Status:    o.Status(),
		History:   slices.Clone(o.history),
		Summaries: slices.Clone(o.summaries),
		LastRun:   o.lastRun,
		LastError: o.lastErr,
		LastAdded: o.lastAdded,
		Insight:   o.insight,
		Forecast:  o.forecast,
	}
}

// Wait blocks until background cycles and insight refreshes have finished.
func (o *Orchestrator) Wait() {
	o.bg.Wait()
}

// Trigger runs one daily cycle. It returns false without fetching anything
// when a cycle is already running or the error cooldown has not elapsed.
func (o *Orchestrator) Trigger(ctx context.Context) (bool, error) {
	if !o.state.CompareAndSwap(stateIdle, stateFetching) {
		zap.L().Debug("ingest: trigger ignored", zap.String("status", string(o.Status())))
		return false, nil
	}
	return true, o.finish(ctx, model.SourceDailySync, o.daily(ctx))
}

// TriggerAsync starts a daily cycle in the background and reports whether
// it started. The cycle runs with ctx, which should outlive the caller.
func (o *Orchestrator) TriggerAsync(ctx context.Context) bool {
	if !o.state.CompareAndSwap(stateIdle, stateFetching) {
		return false
	}
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		_ = o.finish(ctx, model.SourceDailySync, o.daily(ctx))
	}()
	return true
}

// Backfill runs one historical cycle for the material with the given ID,
// or for every active material when id is empty.
func (o *Orchestrator) Backfill(ctx context.Context, id string) (bool, error) {
	materials := model.ActiveMaterials(o.cfg.Materials)
	if id != "" {
		materials = nil
		for _, m := range o.cfg.Materials {
			if m.ID == id {
				materials = append(materials, m)
			}
		}
		if len(materials) == 0 {
			return false, eris.Errorf("ingest: unknown material %q", id)
		}
	}

	if !o.state.CompareAndSwap(stateIdle, stateFetching) {
		return false, nil
	}
	return true, o.finish(ctx, model.SourceWeeklyBackfill, o.backfill(ctx, materials))
}

// Import reconciles externally supplied records, e.g. a legacy file,
// under the same guard as fetch cycles.
func (o *Orchestrator) Import(ctx context.Context, recs []model.PriceRecord) (bool, error) {
	if !o.state.CompareAndSwap(stateIdle, stateFetching) {
		return false, nil
	}
	return true, o.finish(ctx, model.SourceImport, o.commit(ctx, recs, nil))
}

func (o *Orchestrator) daily(ctx context.Context) error {
	today := model.FormatDate(o.deps.Now().In(o.cfg.Location))
	current := o.Snapshot().History

	var todo []model.MaterialConfig
	for _, m := range model.ActiveMaterials(o.cfg.Materials) {
		if o.cfg.SkipExisting && history.Contains(current, m.Region, today) {
			zap.L().Info("ingest: already have today's price", zap.String("region", m.Region), zap.String("date", today))
			continue
		}
		todo = append(todo, m)
	}

	return o.fetchAll(ctx, todo, func(ctx context.Context, m model.MaterialConfig) ([]model.PriceRecord, error) {
		q, err := o.fetchQuote(ctx, m, today)
		if err != nil {
			return nil, err
		}
		return []model.PriceRecord{model.NewRecord(m, q, model.SourceDailySync)}, nil
	})
}

func (o *Orchestrator) backfill(ctx context.Context, materials []model.MaterialConfig) error {
	today := model.FormatDate(o.deps.Now().In(o.cfg.Location))

	return o.fetchAll(ctx, materials, func(ctx context.Context, m model.MaterialConfig) ([]model.PriceRecord, error) {
		quotes, err := o.fetchHistory(ctx, m)
		if err != nil {
			return nil, err
		}
		recs := make([]model.PriceRecord, 0, len(quotes))
		for _, q := range quotes {
			if q.Date > today {
				zap.L().Debug("ingest: dropping future-dated quote", zap.String("date", q.Date))
				continue
			}
			q.Unit = o.deps.Extractor.ResolveUnit(q.Unit, m.Unit)
			recs = append(recs, model.NewRecord(m, q, model.SourceWeeklyBackfill))
		}
		zap.L().Info("ingest: backfill quotes", zap.String("region", m.Region), zap.Int("quotes", len(recs)))
		return recs, nil
	})
}

// fetchAll runs fetch for every material concurrently, then commits what
// succeeded. A failed material fails the cycle but does not discard the
// others' records.
func (o *Orchestrator) fetchAll(ctx context.Context, materials []model.MaterialConfig, fetch func(context.Context, model.MaterialConfig) ([]model.PriceRecord, error)) error {
	var (
		mu       sync.Mutex
		results  = make([][]model.PriceRecord, len(materials))
		failures []error
	)

	g := new(errgroup.Group)
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, m := range materials {
		g.Go(func() error {
			recs, err := fetch(ctx, m)
			if err != nil {
				zap.L().Error("ingest: fetch failed", zap.String("region", m.Region), zap.Error(err))
				mu.Lock()
				failures = append(failures, eris.Wrapf(err, "ingest: %s", m.Region))
				mu.Unlock()
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var incoming []model.PriceRecord
	for _, recs := range results {
		incoming = append(incoming, recs...)
	}
	return o.commit(ctx, incoming, errors.Join(failures...))
}

// commit reconciles incoming into the history, persists the added records
// and publishes the new snapshot. fetchErr is returned after the successful
// records have been stored.
func (o *Orchestrator) commit(ctx context.Context, incoming []model.PriceRecord, fetchErr error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := history.Reconcile(o.history, incoming)
	if len(res.Added) > 0 {
		if _, err := store.AppendAll(ctx, o.deps.Store, res.Added); err != nil {
			return errors.Join(fetchErr, eris.Wrap(err, "ingest: persist records"))
		}
	}

	o.history = res.History
	o.summaries = o.summarize(res.History)
	o.lastRun = o.deps.Now()
	o.lastAdded = len(res.Added)

	zap.L().Info("ingest: reconciled",
		zap.Int("incoming", len(incoming)),
		zap.Int("added", len(res.Added)),
		zap.Int("skipped", res.Skipped),
		zap.Int("history", len(res.History)),
	)
	return fetchErr
}

// finish moves the status out of fetching. An error holds the error status
// for the cooldown and notifies operators.
func (o *Orchestrator) finish(ctx context.Context, mode string, err error) error {
	if err == nil {
		o.mu.Lock()
		o.lastErr = ""
		added := o.lastAdded
		o.mu.Unlock()
		o.state.Store(stateIdle)
		if added > 0 {
			o.refreshInsights(ctx)
		}
		return nil
	}

	o.mu.Lock()
	o.lastErr = err.Error()
	o.mu.Unlock()
	o.state.Store(stateError)

	zap.L().Error("ingest: cycle failed", zap.String("mode", mode), zap.Error(err))
	if o.deps.Notifier != nil {
		o.deps.Notifier.CycleFailed(context.WithoutCancel(ctx), mode, err)
	}

	time.AfterFunc(o.cfg.Cooldown, func() {
		if o.state.CompareAndSwap(stateError, stateIdle) {
			zap.L().Info("ingest: cooldown elapsed, status idle")
		}
	})
	return err
}

// fetchQuote fetches, extracts and checks one current quote under the
// retry policy.
func (o *Orchestrator) fetchQuote(ctx context.Context, m model.MaterialConfig, date string) (model.Quote, error) {
	retry := o.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("quote", "current "+m.Region)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (model.Quote, error) {
		raw, err := o.deps.Fetcher.FetchCurrent(ctx, m, date)
		if err != nil {
			return model.Quote{}, err
		}

		q, err := o.deps.Extractor.Structured(raw, date)
		if err != nil {
			// A JSON answer with bad fields is rejected outright; only
			// prose (the search text when cleanup failed) goes to the
			// free-text parser.
			if extract.IsJSONObject(raw) {
				return model.Quote{}, err
			}
			zap.L().Debug("ingest: answer is not JSON, trying free text", zap.Error(err))
			if q, err = o.deps.Extractor.Current(raw, date); err != nil {
				return model.Quote{}, err
			}
		}
		if err := o.deps.Extractor.Validate(q); err != nil {
			return model.Quote{}, err
		}
		q.Unit = o.deps.Extractor.ResolveUnit(q.Unit, m.Unit)
		return q, nil
	})
}

func (o *Orchestrator) fetchHistory(ctx context.Context, m model.MaterialConfig) ([]model.Quote, error) {
	retry := o.cfg.Retry
	retry.OnRetry = resilience.RetryLogger("quote", "history "+m.Region)

	return resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.Quote, error) {
		raw, err := o.deps.Fetcher.FetchHistory(ctx, m, o.cfg.BackfillWeeks)
		if err != nil {
			return nil, err
		}
		return o.deps.Extractor.History(raw)
	})
}

// refreshInsights regenerates commentary for the primary material in the
// background.
func (o *Orchestrator) refreshInsights(ctx context.Context) {
	if !o.cfg.Insights || o.deps.Insight == nil {
		return
	}
	active := model.ActiveMaterials(o.cfg.Materials)
	if len(active) == 0 {
		return
	}
	h := history.Region(o.Snapshot().History, active[0].Region)
	if len(h) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		log := zap.L().With(zap.String("region", active[0].Region))

		insight, err := o.deps.Insight.Insights(ctx, h)
		if err != nil {
			log.Warn("ingest: insight generation failed", zap.Error(err))
		}
		forecast, ferr := o.deps.Insight.Forecast(ctx, h)
		if ferr != nil {
			log.Warn("ingest: forecast generation failed", zap.Error(ferr))
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if err == nil && insight != "" {
			o.insight = insight
		}
		if ferr == nil && forecast != "" {
			o.forecast = forecast
		}
	}()
}

// summarize returns one summary per tracked region, followed by any other
// region found in h.
func (o *Orchestrator) summarize(h []model.PriceRecord) []model.Summary {
	var regions []string
	seen := make(map[string]bool)
	for _, m := range o.cfg.Materials {
		if !seen[m.Region] {
			seen[m.Region] = true
			regions = append(regions, m.Region)
		}
	}
	for _, r := range h {
		if !seen[r.Region] {
			seen[r.Region] = true
			regions = append(regions, r.Region)
		}
	}

	out := make([]model.Summary, 0, len(regions))
	for _, region := range regions {
		out = append(out, history.SummarizeRegion(h, region))
	}
	return out
}
