package tradewriter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miramaps/updown-engine/internal/engine"
)

type fakeRepo struct {
	mu     sync.Mutex
	trades []engine.Trade
}

func (f *fakeRepo) EnsureMarketExists(ctx context.Context, slug string, windowStart int64, upTokenID, downTokenID string) error {
	return nil
}

func (f *fakeRepo) InsertTrade(ctx context.Context, t engine.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeRepo) InsertCycle(ctx context.Context, c engine.CycleRecord) error { return nil }
func (f *fakeRepo) UpdateCycle(ctx context.Context, c engine.CycleRecord) error { return nil }
func (f *fakeRepo) ListRecentTrades(ctx context.Context, limit int) ([]engine.Trade, error) {
	return nil, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

func TestWriter_DrainsEnqueuedTrades(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.Enqueue(engine.Trade{ID: "t1"})
	w.Enqueue(engine.Trade{ID: "t2"})

	cancel()
	w.Stop()

	if got := repo.count(); got != 2 {
		t.Fatalf("persisted=%d want 2", got)
	}
}

func TestWriter_EnqueueNeverBlocks(t *testing.T) {
	repo := &fakeRepo{}
	w := New(repo, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			w.Enqueue(engine.Trade{ID: "overflow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Enqueue blocked under sustained load")
	}
}
