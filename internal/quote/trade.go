package quote

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// ErrTradeDecode marks trade bytes that did not match the cell's ABI.
var ErrTradeDecode = errors.New("trade decode failed")

// Trade is the tagged-variant decoded form of a cell trade blob. Exactly one
// variant field is set, matching Type; dispatch over Type is always an
// exhaustive switch.
type Trade struct {
	Type registry.CellType

	YakSwap *YakSwapTrade
	UniV2   *UniV2Trade
	Dexalot *DexalotTrade
}

// YakSwapTrade mirrors the YakSwap router trade struct.
type YakSwapTrade struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	Path      []common.Address
	Adapters  []common.Address
}

// UniV2Trade mirrors the UniV2 cell trade struct.
type UniV2Trade struct {
	Path         []common.Address
	AmountOut    *big.Int
	MinAmountOut *big.Int
}

// DexalotOrder is a signed RFQ order. Its fields must reach the chain
// unmodified; see FirmQuote.
type DexalotOrder struct {
	NonceAndMeta *big.Int
	Expiry       *big.Int
	MakerAsset   common.Address
	TakerAsset   common.Address
	Maker        common.Address
	Taker        common.Address
	MakerAmount  *big.Int
	TakerAmount  *big.Int
}

// DexalotTrade pairs an order with its market-maker signature.
type DexalotTrade struct {
	Order     DexalotOrder
	Signature []byte
}

func mustABIType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", t, err))
	}
	return typ
}

var (
	uint256Ty      = mustABIType("uint256")
	addressTy      = mustABIType("address")
	addressSliceTy = mustABIType("address[]")
	bytesTy        = mustABIType("bytes")

	yakSwapTradeArgs = abi.Arguments{
		{Name: "amountIn", Type: uint256Ty},
		{Name: "amountOut", Type: uint256Ty},
		{Name: "path", Type: addressSliceTy},
		{Name: "adapters", Type: addressSliceTy},
	}

	uniV2TradeArgs = abi.Arguments{
		{Name: "path", Type: addressSliceTy},
		{Name: "amountOut", Type: uint256Ty},
		{Name: "minAmountOut", Type: uint256Ty},
	}

	dexalotTradeArgs = abi.Arguments{
		{Name: "nonceAndMeta", Type: uint256Ty},
		{Name: "expiry", Type: uint256Ty},
		{Name: "makerAsset", Type: addressTy},
		{Name: "takerAsset", Type: addressTy},
		{Name: "maker", Type: addressTy},
		{Name: "taker", Type: addressTy},
		{Name: "makerAmount", Type: uint256Ty},
		{Name: "takerAmount", Type: uint256Ty},
		{Name: "signature", Type: bytesTy},
	}
)

// DecodeTrade decodes a cell trade blob per the cell type's ABI.
func DecodeTrade(ct registry.CellType, data []byte) (*Trade, error) {
	switch ct {
	case registry.CellHopOnly:
		// Hop-only cells carry no trade.
		return &Trade{Type: ct}, nil

	case registry.CellYakSwap:
		vals, err := yakSwapTradeArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: yak_swap: %v", ErrTradeDecode, err)
		}
		return &Trade{Type: ct, YakSwap: &YakSwapTrade{
			AmountIn:  vals[0].(*big.Int),
			AmountOut: vals[1].(*big.Int),
			Path:      vals[2].([]common.Address),
			Adapters:  vals[3].([]common.Address),
		}}, nil

	case registry.CellUniV2:
		vals, err := uniV2TradeArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: uni_v2: %v", ErrTradeDecode, err)
		}
		return &Trade{Type: ct, UniV2: &UniV2Trade{
			Path:         vals[0].([]common.Address),
			AmountOut:    vals[1].(*big.Int),
			MinAmountOut: vals[2].(*big.Int),
		}}, nil

	case registry.CellDexalot:
		vals, err := dexalotTradeArgs.Unpack(data)
		if err != nil {
			return nil, fmt.Errorf("%w: dexalot: %v", ErrTradeDecode, err)
		}
		return &Trade{Type: ct, Dexalot: &DexalotTrade{
			Order: DexalotOrder{
				NonceAndMeta: vals[0].(*big.Int),
				Expiry:       vals[1].(*big.Int),
				MakerAsset:   vals[2].(common.Address),
				TakerAsset:   vals[3].(common.Address),
				Maker:        vals[4].(common.Address),
				Taker:        vals[5].(common.Address),
				MakerAmount:  vals[6].(*big.Int),
				TakerAmount:  vals[7].(*big.Int),
			},
			Signature: vals[8].([]byte),
		}}, nil
	}

	return nil, fmt.Errorf("%w: unknown cell type %q", ErrTradeDecode, ct)
}

// Encode serializes the trade back into the cell's wire form.
func (t *Trade) Encode() ([]byte, error) {
	switch t.Type {
	case registry.CellHopOnly:
		return nil, nil

	case registry.CellYakSwap:
		return yakSwapTradeArgs.Pack(t.YakSwap.AmountIn, t.YakSwap.AmountOut, t.YakSwap.Path, t.YakSwap.Adapters)

	case registry.CellUniV2:
		return uniV2TradeArgs.Pack(t.UniV2.Path, t.UniV2.AmountOut, t.UniV2.MinAmountOut)

	case registry.CellDexalot:
		o := t.Dexalot.Order
		return dexalotTradeArgs.Pack(
			o.NonceAndMeta, o.Expiry, o.MakerAsset, o.TakerAsset,
			o.Maker, o.Taker, o.MakerAmount, o.TakerAmount,
			t.Dexalot.Signature,
		)
	}

	return nil, fmt.Errorf("cannot encode unknown cell type %q", t.Type)
}

// AmountOut extracts the output amount using the cell type's field naming.
// Returns nil for trades with no output of their own.
func (t *Trade) AmountOut() *big.Int {
	switch t.Type {
	case registry.CellHopOnly:
		return nil
	case registry.CellYakSwap:
		return t.YakSwap.AmountOut
	case registry.CellUniV2:
		return t.UniV2.AmountOut
	case registry.CellDexalot:
		return t.Dexalot.Order.MakerAmount
	}
	return nil
}
