package evm

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// headerClient serves headers with a fixed block time.
type headerClient struct {
	head      uint64
	blockTime uint64 // seconds
	calls     int
}

func (c *headerClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	c.calls++
	n := c.head
	if number != nil {
		n = number.Uint64()
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   n * c.blockTime,
	}, nil
}

func (c *headerClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, ethereum.NotFound
}

func (c *headerClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (c *headerClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.head, nil
}

func (c *headerClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *headerClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int), nil
}

func (c *headerClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func poolFixture(t *testing.T, chain *registry.Chain, client Client) *Pool {
	t.Helper()
	reg := registry.New()
	reg.AddChain(chain)
	p := NewPool(reg)
	p.SetClient(chain.ID, client)
	return p
}

func TestAvgBlockTimeSampled(t *testing.T) {
	client := &headerClient{head: 1000, blockTime: 3}
	p := poolFixture(t, &registry.Chain{
		ID: 5001, Name: "t", NativeToken: "x",
		BlockTimeWindow: 100,
		AvgBlockTime:    9 * time.Second,
	}, client)

	got := p.AvgBlockTime(context.Background(), 5001)
	if got != 3*time.Second {
		t.Errorf("AvgBlockTime = %v, want 3s", got)
	}
}

func TestAvgBlockTimeCached(t *testing.T) {
	client := &headerClient{head: 1000, blockTime: 2}
	p := poolFixture(t, &registry.Chain{
		ID: 5001, Name: "t", NativeToken: "x",
		BlockTimeWindow: 100,
		AvgBlockTime:    9 * time.Second,
	}, client)

	p.AvgBlockTime(context.Background(), 5001)
	calls := client.calls
	p.AvgBlockTime(context.Background(), 5001)
	if client.calls != calls {
		t.Errorf("second call re-sampled: %d header fetches, want %d", client.calls, calls)
	}
}

func TestAvgBlockTimeStaticFallback(t *testing.T) {
	// Window 0 disables sampling; the registry's static estimate applies.
	client := &headerClient{head: 1000, blockTime: 3}
	p := poolFixture(t, &registry.Chain{
		ID: 5001, Name: "t", NativeToken: "x",
		AvgBlockTime: 7 * time.Second,
	}, client)

	got := p.AvgBlockTime(context.Background(), 5001)
	if got != 7*time.Second {
		t.Errorf("AvgBlockTime = %v, want static 7s", got)
	}
}

func TestAvgBlockTimeUnknownChain(t *testing.T) {
	p := NewPool(registry.New())
	if got := p.AvgBlockTime(context.Background(), 404); got != 2*time.Second {
		t.Errorf("AvgBlockTime = %v, want 2s default", got)
	}
}

func TestClientMissing(t *testing.T) {
	p := NewPool(registry.New())
	if _, err := p.Client(5001); err == nil {
		t.Error("Client for unregistered chain succeeded, want error")
	}
}
