package gamma

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokens_TokensArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"slug":"btc-updown-15m-123","tokens":[{"token_id":"up1","outcome":"Up"},{"token_id":"down1","outcome":"Down"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	up, down, err := c.Tokens(context.Background(), "btc-updown-15m-123")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if up != "up1" || down != "down1" {
		t.Fatalf("up=%q down=%q", up, down)
	}
}

func TestTokens_ClobTokenIDsShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"slug":"btc-updown-15m-123","clobTokenIds":["up1","down1"],"outcomes":["Up","Down"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	up, down, err := c.Tokens(context.Background(), "btc-updown-15m-123")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if up != "up1" || down != "down1" {
		t.Fatalf("up=%q down=%q", up, down)
	}
}

func TestTokens_MissingOutcomesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"slug":"btc-updown-15m-123"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, _, err := c.Tokens(context.Background(), "btc-updown-15m-123")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestTokens_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, _, err := c.Tokens(context.Background(), "missing-slug")
	if err == nil {
		t.Fatalf("expected error")
	}
}
