package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miramaps/updown-engine/internal/engine"
)

// fakeExecutor writes a tiny shell script standing in for the real
// order-executor binary, echoing a fixed JSON line to stdout.
func fakeExecutor(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "order-executor")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake executor: %v", err)
	}
	return path
}

func TestLivePlace_ParsesSuccess(t *testing.T) {
	bin := fakeExecutor(t, `{"success":true,"order_id":"0xabc","status":"POSTED"}`)
	l := NewLive(bin, time.Second, nil)
	trade, err := l.Place(context.Background(), engine.PlaceRequest{TokenID: "tok1", Shares: 10, Price: 0.35})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if trade.ID != "0xabc" {
		t.Fatalf("id=%q want 0xabc", trade.ID)
	}
	if !trade.IsLive {
		t.Fatalf("expected IsLive=true")
	}
}

func TestLivePlace_UsesVenueFillPriceWhenNonzero(t *testing.T) {
	bin := fakeExecutor(t, `{"success":true,"order_id":"0xabc","status":"POSTED","price":0.41}`)
	l := NewLive(bin, time.Second, nil)
	trade, err := l.Place(context.Background(), engine.PlaceRequest{TokenID: "tok1", Shares: 10, Price: 0.35})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if trade.Price != 0.41 {
		t.Fatalf("price=%v want venue fill price 0.41", trade.Price)
	}
	if trade.Cost != 4.1 {
		t.Fatalf("cost=%v want 4.1", trade.Cost)
	}
}

func TestLivePlace_FallsBackToRequestedPriceWhenVenuePriceZero(t *testing.T) {
	bin := fakeExecutor(t, `{"success":true,"order_id":"0xabc","status":"POSTED"}`)
	l := NewLive(bin, time.Second, nil)
	trade, err := l.Place(context.Background(), engine.PlaceRequest{TokenID: "tok1", Shares: 10, Price: 0.35})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if trade.Price != 0.35 {
		t.Fatalf("price=%v want requested price 0.35", trade.Price)
	}
}

func TestLivePlace_PropagatesFailure(t *testing.T) {
	bin := fakeExecutor(t, `{"success":false,"error":"insufficient balance","error_type":"InsufficientFundsError"}`)
	l := NewLive(bin, time.Second, nil)
	_, err := l.Place(context.Background(), engine.PlaceRequest{TokenID: "tok1", Shares: 10, Price: 0.35})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLiveBalance_ParsesAmount(t *testing.T) {
	bin := fakeExecutor(t, `{"success":true,"balance":123.45,"currency":"USDC"}`)
	l := NewLive(bin, time.Second, nil)
	bal, err := l.Balance(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if bal != 123.45 {
		t.Fatalf("bal=%v want 123.45", bal)
	}
}

func TestLiveCredentialsConfigured_ChecksEnv(t *testing.T) {
	l := NewLive("unused", time.Second, nil)
	os.Unsetenv("POLYMARKET_PRIVATE_KEY")
	if l.CredentialsConfigured() {
		t.Fatalf("expected false without POLYMARKET_PRIVATE_KEY")
	}
	os.Setenv("POLYMARKET_PRIVATE_KEY", "0xdeadbeef")
	defer os.Unsetenv("POLYMARKET_PRIVATE_KEY")
	if !l.CredentialsConfigured() {
		t.Fatalf("expected true once POLYMARKET_PRIVATE_KEY is set")
	}
}

func TestFormatFloat(t *testing.T) {
	if got := formatFloat(10); got != "10" {
		t.Fatalf("got=%q want 10", got)
	}
	if got := formatFloat(0.35); got != fmt.Sprintf("%g", 0.35) {
		t.Fatalf("got=%q", got)
	}
}
