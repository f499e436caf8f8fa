// Package tradewriter implements the single-producer/single-consumer queue
// that drains finished trades to durable storage without ever blocking the
// engine's hot path.
package tradewriter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/miramaps/updown-engine/internal/engine"
	"github.com/miramaps/updown-engine/internal/repository"
)

// Writer queues engine.Trade values for the persistence worker. There is no
// back-pressure to the engine: Enqueue never blocks, and if the store lags
// the queue simply grows rather than dropping a trade or stalling the
// caller, which holds the engine mutex.
type Writer struct {
	repo   repository.Repository
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []engine.Trade
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func New(repo repository.Repository, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		repo:   repo,
		logger: logger,
		done:   make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Enqueue implements engine.TradeWriter.
func (w *Writer) Enqueue(t engine.Trade) {
	w.mu.Lock()
	w.queue = append(w.queue, t)
	w.mu.Unlock()
	w.cond.Signal()
}

// Run drains the queue until ctx is canceled, then drains whatever remains
// before returning so no enqueued trade is lost on shutdown.
func (w *Writer) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()

	go func() {
		<-ctx.Done()
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		w.cond.Broadcast()
	}()

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			close(w.done)
			return
		}
		t := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.persist(t)
	}
}

func (w *Writer) persist(t engine.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.repo.InsertTrade(ctx, t); err != nil {
		w.logger.Error("persist trade failed", zap.Error(err), zap.String("trade_id", t.ID))
	}
}

// Stop blocks until Run has drained and returned.
func (w *Writer) Stop() {
	<-w.done
	w.wg.Wait()
}
