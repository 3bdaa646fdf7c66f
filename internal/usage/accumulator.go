// Package usage aggregates embedding provider usage in memory and flushes it
// to the datastore periodically.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/cloo-solutions/docrag/internal/domain"
)

const DefaultFlushInterval = time.Minute

// Store persists flushed usage windows.
type Store interface {
	SaveBatch(ctx context.Context, records []domain.UsageRecord) error
}

type key struct {
	actorID   string
	operation string
	model     string
}

type counts struct {
	requests int64
	tokens   int64
}

// Accumulator sums usage per (actor, operation, model). Record is safe for
// concurrent use. Start and Stop bound the flush loop; Stop flushes whatever
// is still buffered.
type Accumulator struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[key]counts

	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

func NewAccumulator(store Store, interval time.Duration, logger *slog.Logger) *Accumulator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "usage")),
		pending:  map[key]counts{},
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Record adds one observation. Empty actor ids are attributed to "unknown".
func (a *Accumulator) Record(actorID, operation, model string, requests, tokens int) {
	if requests <= 0 && tokens <= 0 {
		return
	}
	if actorID == "" {
		actorID = "unknown"
	}
	k := key{actorID: actorID, operation: operation, model: model}

	a.mu.Lock()
	c := a.pending[k]
	c.requests += int64(requests)
	c.tokens += int64(tokens)
	a.pending[k] = c
	a.mu.Unlock()
}

// Snapshot returns the buffered totals without flushing them.
func (a *Accumulator) Snapshot() []domain.UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toRecords(a.pending, time.Now().UTC())
}

// Flush writes buffered usage to the store. On failure the records are put
// back so the next flush retries them.
func (a *Accumulator) Flush(ctx context.Context) error {
	a.mu.Lock()
	drained := a.pending
	a.pending = map[key]counts{}
	a.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	if err := a.store.SaveBatch(ctx, toRecords(drained, time.Now().UTC())); err != nil {
		a.mu.Lock()
		for k, c := range drained {
			cur := a.pending[k]
			cur.requests += c.requests
			cur.tokens += c.tokens
			a.pending[k] = cur
		}
		a.mu.Unlock()
		return err
	}
	return nil
}

// Start launches the flush loop in the background.
func (a *Accumulator) Start(ctx context.Context) {
	a.started = true
	go a.run(ctx)
}

func (a *Accumulator) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	defer close(a.doneChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.Error("usage flush failed", slog.Any("error", err))
			}
		}
	}
}

// Stop ends the flush loop and performs a final flush.
func (a *Accumulator) Stop(ctx context.Context) error {
	if a.started {
		close(a.stopChan)
		<-a.doneChan
		a.started = false
	}
	return a.Flush(ctx)
}

func toRecords(m map[key]counts, windowEnd time.Time) []domain.UsageRecord {
	return lo.MapToSlice(m, func(k key, c counts) domain.UsageRecord {
		return domain.UsageRecord{
			ActorID:   k.actorID,
			Operation: k.operation,
			Model:     k.model,
			Requests:  c.requests,
			Tokens:    c.tokens,
			WindowEnd: windowEnd,
		}
	})
}
