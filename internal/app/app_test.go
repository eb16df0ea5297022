package app

import (
	"testing"

	"github.com/rs/zerolog"

	"whalefeed/internal/config"
)

func TestProviderSelectionByName(t *testing.T) {
	cases := []struct {
		primary  string
		fallback string
	}{
		{"alchemy", "moralis"},
		{"alchemy", "rpc"},
		{"moralis", "rpc"},
	}

	for _, tc := range cases {
		cfg := &config.Config{}
		cfg.Ingest.PrimaryProvider = tc.primary
		cfg.Ingest.FallbackProvider = tc.fallback

		providers := NewApp(cfg, zerolog.Nop()).newProviders()
		if got := providers[0].Name(); got != tc.primary {
			t.Errorf("primary = %q, want %q", got, tc.primary)
		}
		if got := providers[1].Name(); got != tc.fallback {
			t.Errorf("fallback = %q, want %q", got, tc.fallback)
		}
	}
}

func TestUnknownProviderFallsBackToAlchemy(t *testing.T) {
	cfg := &config.Config{}
	a := NewApp(cfg, zerolog.Nop())
	if got := a.newProvider("").Name(); got != "alchemy" {
		t.Fatalf("provider = %q, want alchemy", got)
	}
}
