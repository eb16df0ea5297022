package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"whalefeed/internal/config"
	"whalefeed/internal/logging"
	"whalefeed/internal/signal"
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// secondsPerBlock approximates Ethereum mainnet block cadence for
// mapping a wall-clock window onto a block range.
const secondsPerBlock = 12

// RPC reads ERC-20 Transfer logs straight from a node. It only serves
// backfill; there is no streaming path.
type RPC struct {
	cfg    config.RPCConfig
	logger zerolog.Logger

	clientMux sync.Mutex
	client    *ethclient.Client
}

// NewRPC builds the on-chain log provider.
func NewRPC(cfg config.RPCConfig, logger zerolog.Logger) *RPC {
	return &RPC{cfg: cfg, logger: logging.Component(logger, "rpc")}
}

// Name identifies the provider in logs and failover decisions.
func (r *RPC) Name() string { return "rpc" }

// Stream always fails; the RPC provider only serves backfill.
func (r *RPC) Stream(ctx context.Context, chain string, out chan<- signal.Signal) error {
	return ErrStreamingUnsupported
}

// Backfill scans Transfer logs of the configured tokens over the block
// range approximating [from, to).
func (r *RPC) Backfill(ctx context.Context, chain string, from, to time.Time) ([]signal.Signal, error) {
	if r.cfg.URL == "" {
		return nil, errors.New("rpc url not configured")
	}
	if len(r.cfg.Tokens) == 0 {
		return nil, errors.New("no tokens configured for rpc backfill")
	}

	timeout := r.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc head: %w", err)
	}

	fromBlock := blockForTime(head, from)
	toBlock := blockForTime(head, to)
	if fromBlock.Cmp(toBlock) >= 0 {
		return nil, nil
	}

	tokens := make(map[common.Address]config.TokenConfig, len(r.cfg.Tokens))
	addresses := make([]common.Address, 0, len(r.cfg.Tokens))
	for _, t := range r.cfg.Tokens {
		addr := common.HexToAddress(t.Address)
		tokens[addr] = t
		addresses = append(addresses, addr)
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: addresses,
		Topics:    [][]common.Hash{{transferTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("rpc filter logs: %w", err)
	}

	signals := make([]signal.Signal, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 || len(lg.Data) == 0 {
			continue
		}
		token, ok := tokens[lg.Address]
		if !ok {
			continue
		}

		raw := new(big.Int).SetBytes(lg.Data)
		amount := decimal.NewFromBigInt(raw, -token.Decimals)
		amountUSD := amount.Mul(decimal.NewFromFloat(token.USDPrice))
		ts := timeForBlock(head, new(big.Int).SetUint64(lg.BlockNumber))

		signals = append(signals, signal.Signal{
			ID:        fmt.Sprintf("%s-%d", lg.TxHash.Hex(), lg.Index),
			Chain:     chain,
			Asset:     token.Symbol,
			Direction: signal.DirectionNeutral,
			AmountUSD: amountUSD,
			Source:    r.Name(),
			Timestamp: ts,
			TxHash:    lg.TxHash.Hex(),
			FromAddr:  common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
			ToAddr:    common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		})
	}
	return signals, nil
}

// blockForTime projects a wall-clock instant onto a block number,
// anchored at the chain head and walking back at the average cadence.
func blockForTime(head *types.Header, t time.Time) *big.Int {
	headTime := time.Unix(int64(head.Time), 0).UTC()
	if !t.Before(headTime) {
		return new(big.Int).Set(head.Number)
	}
	back := int64(headTime.Sub(t).Seconds()) / secondsPerBlock
	n := new(big.Int).Sub(head.Number, big.NewInt(back))
	if n.Sign() < 0 {
		n.SetInt64(0)
	}
	return n
}

func timeForBlock(head *types.Header, number *big.Int) time.Time {
	diff := new(big.Int).Sub(head.Number, number).Int64()
	return time.Unix(int64(head.Time)-diff*secondsPerBlock, 0).UTC()
}

func (r *RPC) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ethclient.DialContext(ctx, r.cfg.URL)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

var _ Provider = (*RPC)(nil)
