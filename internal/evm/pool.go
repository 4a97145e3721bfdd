package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// Pool holds one client per chain plus cached block-time samples.
type Pool struct {
	reg *registry.Registry

	mu      sync.RWMutex
	clients map[registry.ChainID]Client
	samples map[registry.ChainID]blockTimeSample
}

type blockTimeSample struct {
	avg       time.Duration
	sampledAt time.Time
}

// blockTimeTTL bounds how often block timestamps are re-sampled.
const blockTimeTTL = 10 * time.Minute

// NewPool creates a pool over the given registry.
func NewPool(reg *registry.Registry) *Pool {
	return &Pool{
		reg:     reg,
		clients: make(map[registry.ChainID]Client),
		samples: make(map[registry.ChainID]blockTimeSample),
	}
}

// SetClient registers a client for a chain. Tests use this with fakes.
func (p *Pool) SetClient(chain registry.ChainID, c Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[chain] = c
}

// Client returns the client for a chain.
func (p *Pool) Client(chain registry.ChainID) (Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC client for chain %d", chain)
	}
	return c, nil
}

// AvgBlockTime returns the chain's average block time, sampled from the last
// BlockTimeWindow headers and cached. Falls back to the registry's static
// estimate when sampling is unavailable.
func (p *Pool) AvgBlockTime(ctx context.Context, chainID registry.ChainID) time.Duration {
	chain, err := p.reg.Chain(chainID)
	if err != nil {
		return 2 * time.Second
	}

	p.mu.RLock()
	sample, ok := p.samples[chainID]
	p.mu.RUnlock()
	if ok && time.Since(sample.sampledAt) < blockTimeTTL {
		return sample.avg
	}

	avg, err := p.sampleBlockTime(ctx, chain)
	if err != nil {
		return chain.AvgBlockTime
	}

	p.mu.Lock()
	p.samples[chainID] = blockTimeSample{avg: avg, sampledAt: time.Now()}
	p.mu.Unlock()
	return avg
}

func (p *Pool) sampleBlockTime(ctx context.Context, chain *registry.Chain) (time.Duration, error) {
	client, err := p.Client(chain.ID)
	if err != nil {
		return 0, err
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch head: %w", err)
	}

	window := uint64(chain.BlockTimeWindow)
	if window == 0 || head.Number.Uint64() <= window {
		return 0, fmt.Errorf("chain %d too short for block time window", chain.ID)
	}

	oldNumber := new(big.Int).Sub(head.Number, new(big.Int).SetUint64(window))
	old, err := client.HeaderByNumber(ctx, oldNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch header %s: %w", oldNumber, err)
	}

	elapsed := time.Duration(head.Time-old.Time) * time.Second
	return elapsed / time.Duration(window), nil
}
