package encoder

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/graph"
	"github.com/chainhop-exchange/chainhop/internal/quote"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
)

var (
	cellA   = common.HexToAddress("0xa000000000000000000000000000000000000001")
	cellB   = common.HexToAddress("0xa000000000000000000000000000000000000002")
	bridgeA = common.HexToAddress("0xa000000000000000000000000000000000000003")
	bridgeB = common.HexToAddress("0xa000000000000000000000000000000000000004")
	wtokA   = common.HexToAddress("0xa000000000000000000000000000000000000005")
)

func encoderFixture(t *testing.T) (*registry.Registry, *quote.Quote) {
	t.Helper()

	reg := registry.New()
	reg.AddChain(&registry.Chain{
		ID: 8001, Name: "src", BlockchainID: common.HexToHash("0x01"), NativeToken: "coin",
		Cells: []registry.Cell{{Address: cellA, Type: registry.CellYakSwap, CanSwap: true}},
	})
	reg.AddChain(&registry.Chain{
		ID: 8002, Name: "dst", BlockchainID: common.HexToHash("0x02"), NativeToken: "other",
		Cells: []registry.Cell{{Address: cellB, Type: registry.CellHopOnly}},
	})

	native := &registry.Token{
		ID: "coin", ChainID: 8001, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "COIN", IsNative: true, WrappedAddress: wtokA,
	}
	wrapped := &registry.Token{
		ID: "coin", ChainID: 8001, Address: wtokA, Decimals: 18, Symbol: "WCOIN",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			8002: {Address: bridgeA, Type: registry.BridgeNativeHome},
		},
	}
	remote := &registry.Token{
		ID: "coin", ChainID: 8002, Address: common.HexToAddress("0xa000000000000000000000000000000000000006"),
		Decimals: 18, Symbol: "COIN.b",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			8001: {Address: bridgeB, Type: registry.BridgeNativeRemote},
		},
	}
	reg.AddToken(native)
	reg.AddToken(wrapped)
	reg.AddToken(remote)
	reg.AddToken(&registry.Token{
		ID: "other", ChainID: 8002, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "OTHER", IsNative: true,
	})

	edge := &graph.Edge{
		SrcChain: 8001, DstChain: 8002,
		SrcToken: wrapped, DstToken: remote,
		SrcBridge: wrapped.Bridges[8002],
		DstBridge: remote.Bridges[8001],
	}

	srcChain, _ := reg.Chain(8001)
	dstChain, _ := reg.Chain(8002)
	hop := route.Hop{
		Type:     route.HopBridge,
		SrcChain: 8001, DstChain: 8002,
		SrcToken: native, DstToken: remote,
		Cell:    srcChain.Cells[0],
		DstCell: dstChain.Cells[0],
		Edge:    edge,
	}

	amount := big.NewInt(1_000_000)
	q := &quote.Quote{
		ID:        "test",
		Confirmed: true,
		Timestamp: time.Now(),
		Path: &route.Path{
			SrcChain: 8001, DstChain: 8002,
			SrcToken: native, DstToken: remote, SrcAmount: amount,
			Hops: []route.Hop{hop},
		},
		Hops: []*quote.HopQuote{{
			Hop:          hop,
			AmountIn:     amount,
			EstAmountOut: big.NewInt(1_000_000),
			MinAmountOut: big.NewInt(995_000),
			EstGasUnits:  350_000,
			Confirmed:    true,
		}},
		EstDstAmount: big.NewInt(1_000_000),
		MinDstAmount: big.NewInt(995_000),
	}
	return reg, q
}

func TestBuildSubmission(t *testing.T) {
	reg, q := encoderFixture(t)
	e := New(reg)

	sender := common.HexToAddress("0xb000000000000000000000000000000000000001")
	sub, err := e.Build(q, sender, FeeConfig{TeleporterFee: big.NewInt(5000)})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if sub.ChainID != 8001 {
		t.Errorf("ChainID = %d, want 8001", sub.ChainID)
	}
	if sub.Cell != cellA {
		t.Errorf("Cell = %s, want %s", sub.Cell, cellA)
	}
	if len(sub.Encoded) == 0 {
		t.Fatal("empty encoded payload")
	}

	instr := sub.Instructions
	if instr.SourceID != SourceTag {
		t.Errorf("SourceID = %q, want %q", instr.SourceID, SourceTag)
	}
	if instr.Receiver != sender {
		t.Errorf("Receiver = %s, want sender %s", instr.Receiver, sender)
	}
	if len(instr.Hops) != 1 {
		t.Fatalf("got %d hops, want 1", len(instr.Hops))
	}

	hop := instr.Hops[0]
	if Action(hop.Action) != ActionHop {
		t.Errorf("action = %d, want %d", hop.Action, ActionHop)
	}
	if want := new(big.Int).SetUint64(450_000 + 350_000); hop.RequiredGasLimit.Cmp(want) != 0 {
		t.Errorf("RequiredGasLimit = %s, want %s", hop.RequiredGasLimit, want)
	}
	if hop.BridgePath.BridgeSource != bridgeA {
		t.Errorf("BridgeSource = %s, want %s", hop.BridgePath.BridgeSource, bridgeA)
	}
	if hop.BridgePath.BridgeDestination != bridgeB {
		t.Errorf("BridgeDestination = %s, want %s", hop.BridgePath.BridgeDestination, bridgeB)
	}
	if !hop.BridgePath.SourceBridgeIsNative {
		t.Error("native bridge not flagged")
	}
	if hop.BridgePath.DestinationBlockchainID != common.HexToHash("0x02") {
		t.Error("wrong destination blockchain id")
	}
	if hop.BridgePath.TeleporterFee.Int64() != 5000 {
		t.Errorf("TeleporterFee = %s, want 5000", hop.BridgePath.TeleporterFee)
	}

	// Native input with no swap before the bridge: the fee is denominated in
	// the native input token and rides the call value with the amount.
	if sub.FeeToken != registry.NativeTokenAddress {
		t.Errorf("FeeToken = %s, want native sentinel", sub.FeeToken)
	}
	if want := big.NewInt(1_005_000); sub.Value.Cmp(want) != 0 {
		t.Errorf("Value = %s, want %s", sub.Value, want)
	}
}

// A swap preceding the bridge moves the fee denomination to the bridge token,
// so the call value no longer carries the teleporter fee.
func TestBuildFeeDenomination(t *testing.T) {
	reg, q := encoderFixture(t)
	q.Hops[0].Type = route.SwapAndHop
	q.Path.Hops[0].Type = route.SwapAndHop

	sub, err := New(reg).Build(q, common.HexToAddress("0xb000000000000000000000000000000000000001"),
		FeeConfig{TeleporterFee: big.NewInt(5000)})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	if sub.FeeToken != wtokA {
		t.Errorf("FeeToken = %s, want bridge token %s", sub.FeeToken, wtokA)
	}
	if want := big.NewInt(1_000_000); sub.Value.Cmp(want) != 0 {
		t.Errorf("Value = %s, want native amount only %s", sub.Value, want)
	}
}

func TestBuildRecipientOverride(t *testing.T) {
	reg, q := encoderFixture(t)
	e := New(reg)

	recipient := common.HexToAddress("0xb000000000000000000000000000000000000002")
	q.Recipient = recipient

	sub, err := e.Build(q, common.HexToAddress("0xb000000000000000000000000000000000000001"), FeeConfig{})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if sub.Instructions.Receiver != recipient {
		t.Errorf("Receiver = %s, want override %s", sub.Instructions.Receiver, recipient)
	}
}

func TestBuildRejectsUnconfirmed(t *testing.T) {
	reg, q := encoderFixture(t)
	q.Confirmed = false

	if _, err := New(reg).Build(q, common.Address{}, FeeConfig{}); !errors.Is(err, quote.ErrNotConfirmed) {
		t.Errorf("err = %v, want ErrNotConfirmed", err)
	}
}

func TestActionForExhaustive(t *testing.T) {
	cases := map[route.HopType]Action{
		route.HopBridge:        ActionHop,
		route.HopAndCall:       ActionHopAndCall,
		route.SwapAndHop:       ActionSwapAndHop,
		route.SwapAndTransfer: ActionSwapAndTransfer,
	}
	for ht, want := range cases {
		got, err := ActionFor(ht)
		if err != nil {
			t.Errorf("ActionFor(%s) error: %v", ht, err)
		}
		if got != want {
			t.Errorf("ActionFor(%s) = %d, want %d", ht, got, want)
		}
	}
	if _, err := ActionFor(route.HopType("bogus")); err == nil {
		t.Error("unknown hop type accepted")
	}
}

func TestFeeTokenPlacement(t *testing.T) {
	reg, q := encoderFixture(t)
	_ = reg

	hop := q.Path.Hops[0]
	if got := FeeToken(hop); got != hop.SrcToken {
		t.Errorf("bare hop fee token = %s, want input token", got.ID)
	}

	hop.Type = route.SwapAndHop
	if got := FeeToken(hop); got != hop.Edge.SrcToken {
		t.Errorf("swap-and-hop fee token = %s, want bridge token", got.ID)
	}
}
