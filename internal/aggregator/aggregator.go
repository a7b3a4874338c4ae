package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockfeed/internal/analytics"
	"stockfeed/internal/consolidate"
	"stockfeed/internal/feed"
	"stockfeed/internal/httpx"
	"stockfeed/internal/synthetic"
)

// Update is the one event published per collection cycle.
type Update struct {
	Stocks    []consolidate.Quote `json:"stocks"`
	Analysis  analytics.Analysis  `json:"analysis"`
	Timestamp time.Time           `json:"timestamp"`
}

// Config controls the collection scheduler.
type Config struct {
	Symbols         []string      // tracked universe, fixed at construction
	Interval        time.Duration // cycle interval, default 60s
	ProviderTimeout time.Duration // per-provider bound within a cycle
}

// Aggregator drives periodic collection cycles over all configured
// providers, consolidates their records, and publishes one update event
// per cycle to subscribers. One instance is constructed by the process
// entry point and handed to consumers by reference.
type Aggregator struct {
	cfg       Config
	providers []feed.Provider
	engine    *consolidate.Engine
	log       *zap.Logger

	mu       sync.Mutex
	interval time.Duration
	subs     map[int]chan Update
	nextSub  int
	last     *Update

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, providers []feed.Provider, engine *consolidate.Engine, log *zap.Logger) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if engine == nil {
		engine = consolidate.New(nil, log)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		cfg:       cfg,
		providers: providers,
		engine:    engine,
		log:       log,
		interval:  cfg.Interval,
		subs:      make(map[int]chan Update),
	}
}

// Start launches the cycle loop: one immediate cycle, then one per
// interval until Stop or context cancellation.
func (a *Aggregator) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return errors.New("aggregator: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	go a.run(runCtx, done)
	return nil
}

// Stop halts the cycle loop and waits for the current cycle to finish.
func (a *Aggregator) Stop() {
	a.runMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run owns its done channel by value; Stop clears the struct fields, so
// the goroutine must never read them.
func (a *Aggregator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	a.RunOnce(ctx)
	for {
		timer := time.NewTimer(a.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full collection cycle and returns the published
// update. The scheduler proceeds to its next cycle no matter how this
// one went.
func (a *Aggregator) RunOnce(ctx context.Context) Update {
	started := time.Now()
	records := a.collect(ctx)
	if len(records) == 0 && len(a.cfg.Symbols) > 0 {
		a.log.Warn("every provider failed, falling back to synthetic data")
		records = synthetic.Records(a.cfg.Symbols, time.Now().UTC())
	}

	stocks := a.engine.Consolidate(records)
	update := Update{
		Stocks:    stocks,
		Analysis:  analytics.Analyze(stocks),
		Timestamp: time.Now().UTC(),
	}

	a.mu.Lock()
	a.last = &update
	for id, ch := range a.subs {
		select {
		case ch <- update:
		default:
			// At-most-once delivery: a slow subscriber loses this
			// event rather than stalling the cycle.
			a.log.Debug("dropping update for slow subscriber", zap.Int("subscriber", id))
		}
	}
	a.mu.Unlock()

	a.log.Info("collection cycle complete",
		zap.Int("records", len(records)),
		zap.Int("stocks", len(stocks)),
		zap.String("sentiment", update.Analysis.Sentiment),
		zap.Duration("took", time.Since(started)))
	return update
}

// collect fans out to every provider concurrently and returns the union
// of their records. Each provider gets its own bounded context; one
// provider's failure never blocks or masks another's result.
func (a *Aggregator) collect(ctx context.Context) []feed.Record {
	var (
		mu  sync.Mutex
		all []feed.Record
	)
	g := new(errgroup.Group)
	for _, p := range a.providers {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.ProviderTimeout)
			defer cancel()
			records, err := p.Fetch(fetchCtx, a.cfg.Symbols)
			switch {
			case errors.Is(err, feed.ErrMissingKey):
				a.log.Debug("provider skipped, no usable key", zap.String("provider", p.Name()))
			case errors.Is(err, httpx.ErrRateLimited):
				// Quota deferral, not a failure; the window slides and
				// the next cycle retries.
				a.log.Debug("provider rate limited, deferring", zap.String("provider", p.Name()))
			case err != nil:
				a.log.Warn("provider failed", zap.String("provider", p.Name()), zap.Error(err))
			default:
				mu.Lock()
				all = append(all, records...)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return all
}

// Subscribe registers a subscriber and returns its event channel plus an
// unsubscribe func. Delivery is fire-and-forget; missed events are not
// replayed.
func (a *Aggregator) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.mu.Unlock()
	return ch, func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// Snapshot returns the most recently published update, if any cycle has
// completed yet.
func (a *Aggregator) Snapshot() (Update, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return Update{}, false
	}
	return *a.last, true
}

// ProviderStatuses reports the current status of every configured
// provider for diagnostic display.
func (a *Aggregator) ProviderStatuses() map[string]feed.Status {
	out := make(map[string]feed.Status, len(a.providers))
	for _, p := range a.providers {
		out[p.Name()] = p.Status()
	}
	return out
}

// SetAPIKey replaces the credential of the named provider. It reports
// whether the provider exists and accepts runtime key updates.
func (a *Aggregator) SetAPIKey(provider, key string) bool {
	for _, p := range a.providers {
		if p.Name() != provider {
			continue
		}
		if ks, ok := p.(feed.KeySetter); ok {
			ks.SetAPIKey(key)
			return true
		}
		return false
	}
	return false
}

// SetInterval changes the cycle interval; it takes effect after the
// currently pending cycle fires.
func (a *Aggregator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()
}

func (a *Aggregator) Interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval
}

// Symbols returns the tracked universe.
func (a *Aggregator) Symbols() []string {
	out := make([]string, len(a.cfg.Symbols))
	copy(out, a.cfg.Symbols)
	return out
}
