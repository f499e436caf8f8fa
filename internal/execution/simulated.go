// Package execution implements the dual-mode Execution Port: a Simulated
// paper-fill path and a Live path that shells out to an out-of-process order
// executor binary.
package execution

import (
	"context"

	"github.com/miramaps/updown-engine/internal/engine"
)

// Simulated fills every request at the requested price with zero fee,
// matching the spec's paper-trading contract.
type Simulated struct{}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Place(ctx context.Context, req engine.PlaceRequest) (engine.Trade, error) {
	return engine.Trade{
		Shares: req.Shares,
		Price:  req.Price,
		Cost:   req.Shares * req.Price,
		Fee:    0,
		IsLive: false,
	}, nil
}

func (s *Simulated) Balance(ctx context.Context) (float64, error) {
	return 0, nil
}

// CredentialsConfigured is always true for the paper path: Simulated mode
// never requires live credentials.
func (s *Simulated) CredentialsConfigured() bool {
	return true
}
