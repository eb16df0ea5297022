package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whalefeed/internal/config"
)

func TestAlchemyBackfillParsesTransfers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("chain"); got != "ethereum" {
			t.Errorf("chain = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transfers":[
			{"id":"t1","txHash":"0xaa","from":"0x1","to":"0x2","asset":"eth","amountUsd":125000,"direction":"outflow","ts":"2024-01-01T00:00:00Z"},
			{"id":"t2","txHash":"0xbb","from":"0x3","to":"0x4","asset":"usdc","amountUsd":90000,"direction":"inflow","ts":"not-a-time"}
		]}`))
	}))
	defer srv.Close()

	p := NewAlchemy(config.ProviderConfig{BaseURL: srv.URL, APIKey: "test-key"}, zerolog.Nop())
	got, err := p.Backfill(context.Background(), "ethereum", time.Unix(0, 0), time.Unix(100, 0))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("signals = %d, want 1 (malformed entry dropped)", len(got))
	}
	if got[0].TxHash != "0xaa" || got[0].Asset != "ETH" {
		t.Fatalf("unexpected signal %+v", got[0])
	}
}

func TestAlchemyBackfillRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewAlchemy(config.ProviderConfig{BaseURL: srv.URL}, zerolog.Nop())
	if _, err := p.Backfill(context.Background(), "ethereum", time.Unix(0, 0), time.Unix(100, 0)); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestAlchemyStreamRequiresWSURL(t *testing.T) {
	p := NewAlchemy(config.ProviderConfig{}, zerolog.Nop())
	if err := p.Stream(context.Background(), "ethereum", nil); err != ErrStreamingUnsupported {
		t.Fatalf("err = %v, want ErrStreamingUnsupported", err)
	}
}

func TestMoralisBackfillParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "m-key" {
			t.Errorf("X-API-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"txHash":"0xcc","from":"0x5","to":"0x6","asset":"wbtc","amountUsd":400000,"direction":"accumulation","ts":"2024-01-01T12:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	p := NewMoralis(config.ProviderConfig{BaseURL: srv.URL, APIKey: "m-key"}, zerolog.Nop())
	got, err := p.Backfill(context.Background(), "ethereum", time.Unix(0, 0), time.Unix(100, 0))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(got) != 1 || got[0].Asset != "WBTC" {
		t.Fatalf("unexpected signals %+v", got)
	}
	if got[0].ID == "" {
		t.Fatal("expected generated ID")
	}
}

func TestMoralisNeverStreams(t *testing.T) {
	p := NewMoralis(config.ProviderConfig{}, zerolog.Nop())
	if err := p.Stream(context.Background(), "ethereum", nil); err != ErrStreamingUnsupported {
		t.Fatalf("err = %v, want ErrStreamingUnsupported", err)
	}
}
