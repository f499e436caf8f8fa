package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/miramaps/updown-engine/internal/engine"
	"github.com/miramaps/updown-engine/internal/execution"
	"github.com/miramaps/updown-engine/internal/gamma"
	"github.com/miramaps/updown-engine/internal/repository"
)

type fakeRepo struct {
	mu      sync.Mutex
	markets []string
}

func (f *fakeRepo) EnsureMarketExists(ctx context.Context, slug string, windowStart int64, upTokenID, downTokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, slug)
	return nil
}

func (f *fakeRepo) InsertTrade(ctx context.Context, t engine.Trade) error         { return nil }
func (f *fakeRepo) InsertCycle(ctx context.Context, c engine.CycleRecord) error   { return nil }
func (f *fakeRepo) UpdateCycle(ctx context.Context, c engine.CycleRecord) error   { return nil }
func (f *fakeRepo) ListRecentTrades(ctx context.Context, limit int) ([]engine.Trade, error) {
	return nil, nil
}

func (f *fakeRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markets)
}

func newTestSupervisor(t *testing.T, repo repository.Repository) *Supervisor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tokens":[{"token_id":"up-tok","outcome":"Up"},{"token_id":"down-tok","outcome":"Down"}]}`))
	}))
	t.Cleanup(srv.Close)

	eng := engine.New(engine.Config{DumpWindowSeconds: 60}, &execution.Simulated{}, noopWriter{}, nil, 1000)
	gammaClient := gamma.NewClient(srv.URL, time.Second)
	return New(eng, gammaClient, repo, nil, 20*time.Second, 60)
}

type noopWriter struct{}

func (noopWriter) Enqueue(engine.Trade) {}

func TestRotate_EnsuresMarketExists(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestSupervisor(t, repo)

	s.rotate(context.Background(), 900)

	if repo.count() != 1 {
		t.Fatalf("expected EnsureMarketExists called once, got %d", repo.count())
	}
	ids, err := s.CurrentTokenIDs(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(ids) != 2 || ids[0] != "up-tok" || ids[1] != "down-tok" {
		t.Fatalf("ids=%v", ids)
	}
}

func TestRotate_ToleratesNilRepo(t *testing.T) {
	s := newTestSupervisor(t, nil)
	s.rotate(context.Background(), 900)
}
