// Package evm provides read-only EVM RPC access for quoting and tracking.
// Each chain gets its own client; all of them sit behind one interface so
// tests can substitute fakes.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the read-only surface the aggregator needs from a chain:
// contract simulation, log queries, block and balance reads.
// *ethclient.Client satisfies it directly.
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Dial connects to an RPC endpoint and verifies the reported chain id.
func Dial(ctx context.Context, rpcURL string, wantChainID uint64) (Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id from %s: %w", rpcURL, err)
	}
	if chainID.Uint64() != wantChainID {
		client.Close()
		return nil, fmt.Errorf("RPC %s reports chain id %d, want %d", rpcURL, chainID, wantChainID)
	}

	return client, nil
}
