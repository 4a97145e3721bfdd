package quote

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/registry"
)

func TestYakSwapTradeCodec(t *testing.T) {
	in := &Trade{Type: registry.CellYakSwap, YakSwap: &YakSwapTrade{
		AmountIn:  big.NewInt(1_000_000),
		AmountOut: big.NewInt(995_000),
		Path:      []common.Address{tokenAAddr, tokenBAddr},
		Adapters:  []common.Address{testCellAddr},
	}}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	out, err := DecodeTrade(registry.CellYakSwap, data)
	if err != nil {
		t.Fatalf("DecodeTrade error: %v", err)
	}

	if out.YakSwap.AmountOut.Cmp(in.YakSwap.AmountOut) != 0 {
		t.Errorf("amountOut = %s, want %s", out.YakSwap.AmountOut, in.YakSwap.AmountOut)
	}
	if len(out.YakSwap.Path) != 2 || out.YakSwap.Path[1] != tokenBAddr {
		t.Errorf("path = %v, want [%s %s]", out.YakSwap.Path, tokenAAddr, tokenBAddr)
	}
	if out.AmountOut().Cmp(big.NewInt(995_000)) != 0 {
		t.Errorf("AmountOut() = %s, want 995000", out.AmountOut())
	}
}

func TestUniV2TradeCodec(t *testing.T) {
	in := &Trade{Type: registry.CellUniV2, UniV2: &UniV2Trade{
		Path:         []common.Address{tokenAAddr, tokenBAddr},
		AmountOut:    big.NewInt(500),
		MinAmountOut: big.NewInt(497),
	}}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	out, err := DecodeTrade(registry.CellUniV2, data)
	if err != nil {
		t.Fatalf("DecodeTrade error: %v", err)
	}

	if out.UniV2.MinAmountOut.Cmp(big.NewInt(497)) != 0 {
		t.Errorf("minAmountOut = %s, want 497", out.UniV2.MinAmountOut)
	}
	if out.AmountOut().Cmp(big.NewInt(500)) != 0 {
		t.Errorf("AmountOut() = %s, want 500", out.AmountOut())
	}
}

func TestDexalotTradeCodec(t *testing.T) {
	maker := common.HexToAddress("0x8000000000000000000000000000000000000001")
	in := &Trade{Type: registry.CellDexalot, Dexalot: &DexalotTrade{
		Order: DexalotOrder{
			NonceAndMeta: big.NewInt(42),
			Expiry:       big.NewInt(1_700_000_000),
			MakerAsset:   tokenBAddr,
			TakerAsset:   tokenAAddr,
			Maker:        maker,
			Taker:        testCellAddr,
			MakerAmount:  big.NewInt(1995),
			TakerAmount:  big.NewInt(1000),
		},
		Signature: []byte{0x12, 0x34},
	}}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	out, err := DecodeTrade(registry.CellDexalot, data)
	if err != nil {
		t.Fatalf("DecodeTrade error: %v", err)
	}

	if out.Dexalot.Order.MakerAmount.Cmp(big.NewInt(1995)) != 0 {
		t.Errorf("makerAmount = %s, want 1995", out.Dexalot.Order.MakerAmount)
	}
	if len(out.Dexalot.Signature) != 2 || out.Dexalot.Signature[0] != 0x12 {
		t.Errorf("signature = %x, want 1234", out.Dexalot.Signature)
	}
	// The signed order is the RFQ output amount.
	if out.AmountOut().Cmp(big.NewInt(1995)) != 0 {
		t.Errorf("AmountOut() = %s, want 1995", out.AmountOut())
	}
}

func TestHopOnlyTradeHasNoOutput(t *testing.T) {
	tr, err := DecodeTrade(registry.CellHopOnly, nil)
	if err != nil {
		t.Fatalf("DecodeTrade error: %v", err)
	}
	if tr.AmountOut() != nil {
		t.Errorf("AmountOut() = %s, want nil", tr.AmountOut())
	}
}

func TestDecodeTradeBadData(t *testing.T) {
	if _, err := DecodeTrade(registry.CellYakSwap, []byte{0x01}); !errors.Is(err, ErrTradeDecode) {
		t.Errorf("err = %v, want ErrTradeDecode", err)
	}
}
