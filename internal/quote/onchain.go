package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/chainhop-exchange/chainhop/internal/evm"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// Gas unit constants for hop envelopes. The bridge forward cost is flat; swap
// gas comes from the cell simulation.
const (
	GasUnitsBridgeHop = 350_000
	GasUnitsBaseSwap  = 200_000
)

// cellRouteABI is the read-only quoting surface shared by swap-capable cells.
const cellRouteABI = `[
	{
		"name": "route",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "amountIn", "type": "uint256"},
			{"name": "tokenIn", "type": "address"},
			{"name": "tokenOut", "type": "address"},
			{"name": "extras", "type": "bytes"}
		],
		"outputs": [
			{"name": "trade", "type": "bytes"},
			{"name": "gasEstimate", "type": "uint256"}
		]
	}
]`

var routeExtrasArgs = abi.Arguments{
	{Name: "maxSteps", Type: uint256Ty},
	{Name: "gasPrice", Type: uint256Ty},
	{Name: "slippageBips", Type: uint256Ty},
	{Name: "feeBips", Type: uint256Ty},
}

// OnchainSource quotes hops by simulating the cell's route view call.
type OnchainSource struct {
	pool *evm.Pool
	abi  abi.ABI
	log  *logging.Logger
}

// NewOnchainSource creates the on-chain quote source.
func NewOnchainSource(pool *evm.Pool, log *logging.Logger) *OnchainSource {
	parsed, err := abi.JSON(strings.NewReader(cellRouteABI))
	if err != nil {
		panic(fmt.Sprintf("cell route abi: %v", err))
	}
	return &OnchainSource{pool: pool, abi: parsed, log: log.Component("quote/onchain")}
}

// HopQuote simulates the hop's swap leg against its cell contract. Pure
// bridge hops have nothing to price and pass the input amount through.
func (s *OnchainSource) HopQuote(ctx context.Context, hop route.Hop, amountIn *big.Int, cfg RouteConfig) (*HopResult, error) {
	chain, cell, tokenIn, tokenOut, ok := swapLeg(hop)
	if !ok {
		return &HopResult{
			Trade:     &Trade{Type: registry.CellHopOnly},
			AmountOut: new(big.Int).Set(amountIn),
			GasUnits:  GasUnitsBridgeHop,
		}, nil
	}

	if cell.Type == registry.CellDexalot {
		return nil, fmt.Errorf("%w: dexalot cell %s is quoted off-chain", ErrQuoteFailed, cell.Address)
	}

	client, err := s.pool.Client(chain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}

	extras, err := packRouteExtras(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}
	data, err := s.abi.Pack("route", amountIn, tokenIn.Address, tokenOut.Address, extras)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}

	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &cell.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: cell %s on chain %d: %v", ErrQuoteFailed, cell.Address, chain, err)
	}

	vals, err := s.abi.Unpack("route", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTradeDecode, err)
	}
	encodedTrade := vals[0].([]byte)
	gasEstimate := vals[1].(*big.Int)

	trade, err := DecodeTrade(cell.Type, encodedTrade)
	if err != nil {
		return nil, err
	}

	amountOut := trade.AmountOut()
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: cell %s, amount in %s", ErrZeroOutput, cell.Address, amountIn)
	}

	gasUnits := gasEstimate.Uint64() + GasUnitsBaseSwap
	if hop.Type.CrossChain() {
		gasUnits += GasUnitsBridgeHop
	}

	s.log.Debug("hop quoted",
		"chain", chain, "cell", cell.Address, "type", cell.Type,
		"amountIn", amountIn, "amountOut", amountOut)

	return &HopResult{
		EncodedTrade: encodedTrade,
		Trade:        trade,
		AmountOut:    amountOut,
		GasUnits:     gasUnits,
	}, nil
}

// packRouteExtras encodes the global route configuration for cell calls.
func packRouteExtras(cfg RouteConfig) ([]byte, error) {
	gasPrice := cfg.GasPrice
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	return routeExtrasArgs.Pack(
		big.NewInt(int64(cfg.MaxSteps)),
		gasPrice,
		big.NewInt(int64(cfg.SlippageBps)),
		big.NewInt(int64(cfg.FeeBps)),
	)
}
