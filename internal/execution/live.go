package execution

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/miramaps/updown-engine/internal/engine"
)

// executorResult mirrors the single line of JSON the out-of-process
// order-executor prints to stdout for every subcommand.
type executorResult struct {
	Success   bool    `json:"success"`
	OrderID   string  `json:"order_id"`
	Status    string  `json:"status"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Side      string  `json:"side"`
	Balance   float64 `json:"balance"`
	Error     string  `json:"error"`
	ErrorType string  `json:"error_type"`
}

// Live invokes `<binary_path> place --token <id> --side <BUY|SELL> --size
// <shares> --price <price>` as a subprocess for every order, and `<binary_path>
// balance` to probe the account on a switch into Live mode. Credentials live
// entirely in the subprocess's environment — this process never touches a
// private key.
type Live struct {
	BinaryPath      string
	Timeout         time.Duration
	Logger          *zap.Logger
	MaxOrderSizeUSD decimal.Decimal
}

func NewLive(binaryPath string, timeout time.Duration, logger *zap.Logger) *Live {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Live{BinaryPath: binaryPath, Timeout: timeout, Logger: logger}
}

// WithMaxOrderSize sets the notional cap enforced before every live order.
// It is the one place a shopspring/decimal value crosses into this package,
// per the boundary-only decimal convention: the engine's own arithmetic
// stays float64 throughout.
func (l *Live) WithMaxOrderSize(maxUSD string) *Live {
	cap, err := decimal.NewFromString(maxUSD)
	if err == nil {
		l.MaxOrderSizeUSD = cap
	}
	return l
}

func (l *Live) Place(ctx context.Context, req engine.PlaceRequest) (engine.Trade, error) {
	notional := decimal.NewFromFloat(req.Shares).Mul(decimal.NewFromFloat(req.Price))
	if !l.MaxOrderSizeUSD.IsZero() && notional.GreaterThan(l.MaxOrderSizeUSD) {
		return engine.Trade{}, fmt.Errorf("execution: order notional %s exceeds max_order_size_usd %s", notional, l.MaxOrderSizeUSD)
	}

	// Both legs buy a token outright — leg 1 the entry side, leg 2 its
	// complement — so the executor side is always BUY.
	side := "BUY"
	args := []string{
		"place",
		"--token", req.TokenID,
		"--side", side,
		"--size", formatFloat(req.Shares),
		"--price", formatFloat(req.Price),
	}
	result, err := l.run(ctx, args...)
	if err != nil {
		return engine.Trade{}, err
	}
	if !result.Success {
		return engine.Trade{}, fmt.Errorf("execution: order-executor place failed: %s (%s)", result.Error, result.ErrorType)
	}

	price := req.Price
	if result.Price != 0 {
		price = result.Price
	}
	return engine.Trade{
		ID:     result.OrderID,
		Shares: req.Shares,
		Price:  price,
		Cost:   req.Shares * price,
		IsLive: true,
	}, nil
}

func (l *Live) Balance(ctx context.Context) (float64, error) {
	result, err := l.run(ctx, "balance")
	if err != nil {
		return 0, err
	}
	if !result.Success {
		return 0, fmt.Errorf("execution: order-executor balance failed: %s", result.Error)
	}
	return result.Balance, nil
}

// CredentialsConfigured reports whether the environment this process runs in
// carries the signing key the subprocess needs. It does not itself read the
// key, only checks presence, matching get_client()'s required variable.
func (l *Live) CredentialsConfigured() bool {
	return strings.TrimSpace(os.Getenv("POLYMARKET_PRIVATE_KEY")) != ""
}

func (l *Live) run(ctx context.Context, args ...string) (executorResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, l.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	line := firstLine(stdout.Bytes())
	if len(line) == 0 {
		l.Logger.Error("order-executor produced no stdout",
			zap.Strings("args", args),
			zap.String("stderr", stderr.String()),
			zap.Error(runErr),
		)
		if runErr != nil {
			return executorResult{}, fmt.Errorf("execution: order-executor: %w", runErr)
		}
		return executorResult{}, fmt.Errorf("execution: order-executor produced no output")
	}

	var result executorResult
	if err := json.Unmarshal(line, &result); err != nil {
		return executorResult{}, fmt.Errorf("execution: parsing order-executor output: %w", err)
	}
	return result, nil
}

func firstLine(b []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(b))
	if scanner.Scan() {
		return scanner.Bytes()
	}
	return nil
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
