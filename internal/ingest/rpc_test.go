package ingest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"whalefeed/internal/config"
)

func testHeader(number int64, at time.Time) *types.Header {
	return &types.Header{Number: big.NewInt(number), Time: uint64(at.Unix())}
}

func TestRPCNeverStreams(t *testing.T) {
	p := NewRPC(config.RPCConfig{URL: "http://localhost:8545"}, zerolog.Nop())
	if err := p.Stream(context.Background(), "ethereum", nil); err != ErrStreamingUnsupported {
		t.Fatalf("err = %v, want ErrStreamingUnsupported", err)
	}
}

func TestRPCBackfillRequiresConfig(t *testing.T) {
	from := time.Unix(0, 0)
	to := time.Unix(100, 0)

	p := NewRPC(config.RPCConfig{}, zerolog.Nop())
	if _, err := p.Backfill(context.Background(), "ethereum", from, to); err == nil {
		t.Fatal("expected error without rpc url")
	}

	p = NewRPC(config.RPCConfig{URL: "http://localhost:8545"}, zerolog.Nop())
	if _, err := p.Backfill(context.Background(), "ethereum", from, to); err == nil {
		t.Fatal("expected error without watched tokens")
	}
}

func TestBlockForTimeWalksBackFromHead(t *testing.T) {
	headTime := time.Unix(1704067200, 0).UTC()
	head := testHeader(1000, headTime)

	cases := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"at head", headTime, 1000},
		{"after head", headTime.Add(time.Minute), 1000},
		{"ten blocks back", headTime.Add(-120 * time.Second), 990},
		{"before genesis", headTime.Add(-100000 * time.Hour), 0},
	}
	for _, tc := range cases {
		if got := blockForTime(head, tc.at); got.Int64() != tc.want {
			t.Errorf("%s: blockForTime = %d, want %d", tc.name, got.Int64(), tc.want)
		}
	}
}

func TestTimeForBlockInvertsBlockForTime(t *testing.T) {
	headTime := time.Unix(1704067200, 0).UTC()
	head := testHeader(1000, headTime)

	got := timeForBlock(head, big.NewInt(990))
	if want := headTime.Add(-120 * time.Second); !got.Equal(want) {
		t.Fatalf("timeForBlock(990) = %v, want %v", got, want)
	}
	if got := timeForBlock(head, head.Number); !got.Equal(headTime) {
		t.Fatalf("timeForBlock(head) = %v, want %v", got, headTime)
	}
}
