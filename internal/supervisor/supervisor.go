// Package supervisor runs the window-rotation loop: on every 15-minute
// boundary it resolves the new window's slug and outcome tokens and installs
// them into the engine. The boundary switch waits on that Gamma lookup; the
// lookahead fetch before the boundary only checks that the next slug
// resolves and does not feed its tokens to the switch or the stream adapter.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/miramaps/updown-engine/internal/engine"
	"github.com/miramaps/updown-engine/internal/gamma"
	"github.com/miramaps/updown-engine/internal/repository"
	"github.com/miramaps/updown-engine/internal/streaming"
)

// pollNormal is the loop's normal cadence; it tightens to pollTight within
// tightenAt of a window boundary so the boundary is noticed within a few
// milliseconds.
const (
	pollNormal = 50 * time.Millisecond
	pollTight  = time.Millisecond
	tightenAt  = 2 * time.Second
)

type Supervisor struct {
	engine            *engine.Engine
	gamma             *gamma.Client
	repo              repository.Repository
	adapter           *streaming.Adapter
	logger            *zap.Logger
	rotationLookahead time.Duration
	dumpWindowSec     int

	mu            sync.RWMutex
	windowStart   int64
	upTokenID     string
	downTokenID   string
	nextFetchedAt int64 // windowStart of the next slug already pre-fetched
}

func New(eng *engine.Engine, gammaClient *gamma.Client, repo repository.Repository, logger *zap.Logger, rotationLookahead time.Duration, dumpWindowSec int) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		engine:            eng,
		gamma:             gammaClient,
		repo:              repo,
		logger:            logger,
		rotationLookahead: rotationLookahead,
		dumpWindowSec:     dumpWindowSec,
	}
}

// SetAdapter wires the streaming Adapter this supervisor's staleness
// watchdog nudges on a stale read. It is set after construction because the
// adapter itself is built from this supervisor's CurrentTokenIDs method.
func (s *Supervisor) SetAdapter(a *streaming.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapter = a
}

// CurrentTokenIDs implements streaming.AssetIDProvider: it returns whatever
// pair of token IDs the supervisor currently believes are live.
func (s *Supervisor) CurrentTokenIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.upTokenID == "" || s.downTokenID == "" {
		return nil, nil
	}
	return []string{s.upTokenID, s.downTokenID}, nil
}

// Run blocks until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()
		win := engine.ComputeWindow(now.Unix(), s.dumpWindowSec)

		s.mu.RLock()
		current := s.windowStart
		s.mu.RUnlock()

		if win.WindowStart != current {
			s.rotate(ctx, win.WindowStart)
		} else if time.Duration(win.TimeLeft)*time.Second <= s.rotationLookahead {
			s.prefetchNext(ctx, win.WindowStart)
		}

		sleepFor := pollNormal
		if time.Duration(win.TimeLeft)*time.Second <= tightenAt {
			sleepFor = pollTight
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *Supervisor) rotate(ctx context.Context, windowStart int64) {
	slug := engine.FormatSlug(windowStart)
	up, down, err := s.gamma.Tokens(ctx, slug)
	if err != nil {
		s.logger.Warn("rotation token resolution failed, retrying next tick",
			zap.String("slug", slug), zap.Error(err))
		return
	}
	s.engine.SetMarket(slug, up, down)

	if s.repo != nil {
		storeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.repo.EnsureMarketExists(storeCtx, slug, windowStart, up, down); err != nil {
			s.logger.Warn("ensure market row failed", zap.String("slug", slug), zap.Error(err))
		}
		cancel()
	}

	s.mu.Lock()
	s.windowStart = windowStart
	s.upTokenID = up
	s.downTokenID = down
	s.mu.Unlock()

	s.logger.Info("market rotated", zap.String("slug", slug),
		zap.String("up_token_id", up), zap.String("down_token_id", down))
}

// prefetchNext looks up the following window's tokens ahead of the boundary
// and records that the lookup succeeded, so it runs once per window. The
// tokens it receives are discarded: rotate() fetches them again from Gamma
// at the boundary, and nothing is subscribed on the adapter in advance. Only
// a failed lookup is logged.
func (s *Supervisor) prefetchNext(ctx context.Context, windowStart int64) {
	nextStart := windowStart + 900
	s.mu.RLock()
	already := s.nextFetchedAt == nextStart
	s.mu.RUnlock()
	if already {
		return
	}
	slug := engine.FormatSlug(nextStart)
	if _, _, err := s.gamma.Tokens(ctx, slug); err != nil {
		s.logger.Debug("next-window prefetch failed, will retry", zap.String("slug", slug), zap.Error(err))
		return
	}
	s.mu.Lock()
	s.nextFetchedAt = nextStart
	s.mu.Unlock()
}
