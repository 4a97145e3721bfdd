package route

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/graph"
	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// testRegistry wires two chains with a native-coin bridge between them plus
// an ERC-20 that only exists on the first chain, forcing a source-side swap.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	wavaxAddr := common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdcAddr := common.HexToAddress("0x1000000000000000000000000000000000000002")
	wcoinAddr := common.HexToAddress("0x2000000000000000000000000000000000000001")
	bridgeA := common.HexToAddress("0x3000000000000000000000000000000000000001")
	bridgeB := common.HexToAddress("0x3000000000000000000000000000000000000002")

	reg := registry.New()
	reg.AddChain(&registry.Chain{
		ID:           43114,
		Name:         "chain-a",
		BlockchainID: common.HexToHash("0xaa"),
		NativeToken:  "avax",
		Cells: []registry.Cell{
			{Address: common.HexToAddress("0x4000000000000000000000000000000000000001"), Type: registry.CellYakSwap, CanSwap: true},
			{Address: common.HexToAddress("0x4000000000000000000000000000000000000002"), Type: registry.CellHopOnly},
		},
	})
	reg.AddChain(&registry.Chain{
		ID:           43113,
		Name:         "chain-b",
		BlockchainID: common.HexToHash("0xbb"),
		NativeToken:  "coin",
		Cells: []registry.Cell{
			{Address: common.HexToAddress("0x5000000000000000000000000000000000000001"), Type: registry.CellUniV2, CanSwap: true},
		},
	})

	reg.AddToken(&registry.Token{
		ID: "avax", ChainID: 43114, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "AVAX", IsNative: true, WrappedAddress: wavaxAddr,
	})
	reg.AddToken(&registry.Token{
		ID: "avax", ChainID: 43114, Address: wavaxAddr,
		Decimals: 18, Symbol: "WAVAX",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			43113: {Address: bridgeA, Type: registry.BridgeNativeHome},
		},
	})
	reg.AddToken(&registry.Token{
		ID: "usdc", ChainID: 43114, Address: usdcAddr,
		Decimals: 6, Symbol: "USDC",
	})

	// On chain-b the native coin's wrapped counterpart shares the id "avax",
	// so the bridge edge lands directly on the native token.
	reg.AddToken(&registry.Token{
		ID: "coin", ChainID: 43113, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "COIN", IsNative: true, WrappedAddress: wcoinAddr,
	})
	reg.AddToken(&registry.Token{
		ID: "avax", ChainID: 43113, Address: wcoinAddr,
		Decimals: 18, Symbol: "WCOIN",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			43114: {Address: bridgeB, Type: registry.BridgeNativeRemote},
		},
	})

	return reg
}

func mustToken(t *testing.T, reg *registry.Registry, chain registry.ChainID, id string) *registry.Token {
	t.Helper()
	tok, err := reg.TokenByID(chain, id)
	if err != nil {
		t.Fatalf("token %q on %d: %v", id, chain, err)
	}
	return tok
}

func TestBuildSameChainSwap(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 43114, "usdc")

	paths, err := b.Build(43114, 43114, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1 (one swap cell)", len(paths))
	}

	hop := paths[0].Hops[0]
	if hop.Type != SwapAndTransfer {
		t.Errorf("hop type = %s, want %s", hop.Type, SwapAndTransfer)
	}
	if !hop.Cell.CanSwap {
		t.Error("same-chain swap routed through a non-swap cell")
	}
}

func TestBuildSameTokenNoRoute(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "avax")
	if _, err := b.Build(43114, 43114, src, src, big.NewInt(1)); !errors.Is(err, ErrSameToken) {
		t.Errorf("err = %v, want ErrSameToken", err)
	}
}

// Native AVAX on 43114 to the native token on 43113: the bridge token is the
// wrapped variant of the source, so the hop bridges without an explicit swap
// and lands on the destination native directly.
func TestBuildNativeBridgeRoute(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 43113, "coin")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no paths found")
	}

	p := paths[0]
	if len(p.Hops) != 1 {
		t.Fatalf("got %d hops, want 1", len(p.Hops))
	}
	hop := p.Hops[0]
	if hop.Type != HopBridge {
		t.Errorf("hop type = %s, want %s", hop.Type, HopBridge)
	}
	if hop.Edge == nil {
		t.Fatal("cross-chain hop missing bridge edge")
	}
	if hop.Edge.SrcToken.Symbol != "WAVAX" {
		t.Errorf("bridge token = %s, want WAVAX", hop.Edge.SrcToken.Symbol)
	}
	if !hop.DstToken.IsNative {
		t.Error("landed token is not the destination native")
	}
}

// USDC holds no bridge, so reaching chain-b requires a swap into the bridge
// token first.
func TestBuildSwapAndHop(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "usdc")
	dst := mustToken(t, reg, 43113, "coin")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(5_000_000))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(paths) == 0 {
		t.Fatal("no paths found")
	}

	hop := paths[0].Hops[0]
	if hop.Type != SwapAndHop {
		t.Errorf("hop type = %s, want %s", hop.Type, SwapAndHop)
	}
	if !hop.Cell.CanSwap {
		t.Error("swap-and-hop routed through a non-swap cell")
	}
	if hop.SrcToken.ID != "usdc" {
		t.Errorf("hop src token = %s, want usdc", hop.SrcToken.ID)
	}
}

// Landing token differs from the destination token, so the terminal hop gains
// a destination-side swap.
func TestBuildHopAndCall(t *testing.T) {
	reg := testRegistry(t)

	// Add a destination-only token unreachable by bridge.
	gemAddr := common.HexToAddress("0x2000000000000000000000000000000000000009")
	reg.AddToken(&registry.Token{
		ID: "gem", ChainID: 43113, Address: gemAddr,
		Decimals: 18, Symbol: "GEM",
	})

	b := NewBuilder(reg, graph.Build(reg), 3)
	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 43113, "gem")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	hop := paths[0].Hops[len(paths[0].Hops)-1]
	if hop.Type != HopAndCall {
		t.Errorf("terminal hop type = %s, want %s", hop.Type, HopAndCall)
	}
	if hop.DstToken.ID != "gem" {
		t.Errorf("terminal hop dst token = %s, want gem", hop.DstToken.ID)
	}
	if !hop.DstCell.CanSwap {
		t.Error("destination-side swap assigned to a non-swap cell")
	}
}

// A pair needing a swap on both sides of one bridge is not representable as
// a single hop: the hop already swaps into the bridge token at the source, so
// it cannot also claim a destination-side swap. No route is offered rather
// than a hop promising a token the bridge does not deliver.
func TestBuildRejectsSwapOnBothSides(t *testing.T) {
	reg := testRegistry(t)

	gemAddr := common.HexToAddress("0x2000000000000000000000000000000000000009")
	reg.AddToken(&registry.Token{
		ID: "gem", ChainID: 43113, Address: gemAddr,
		Decimals: 18, Symbol: "GEM",
	})

	b := NewBuilder(reg, graph.Build(reg), 3)
	src := mustToken(t, reg, 43114, "usdc")
	dst := mustToken(t, reg, 43113, "gem")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(5_000_000))
	if err == nil {
		for _, p := range paths {
			last := p.Hops[len(p.Hops)-1]
			if last.Type == SwapAndHop && last.DstToken.ID == "gem" {
				t.Errorf("swap-and-hop hop claims destination token %s", last.DstToken.ID)
			}
		}
		return
	}
	if !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

// A route may cross back through an earlier chain when the asset needed for
// the final bridge only exists there.
func TestBuildChainRevisit(t *testing.T) {
	wAlpha := common.HexToAddress("0x7000000000000000000000000000000000000001")
	wBee := common.HexToAddress("0x7000000000000000000000000000000000000002")
	goldHome := common.HexToAddress("0x7000000000000000000000000000000000000003")
	goldFar := common.HexToAddress("0x7000000000000000000000000000000000000004")
	startAddr := common.HexToAddress("0x7000000000000000000000000000000000000005")

	reg := registry.New()
	reg.AddChain(&registry.Chain{
		ID: 101, Name: "home", BlockchainID: common.HexToHash("0x01"), NativeToken: "acoin",
		Cells: []registry.Cell{{Address: common.HexToAddress("0x7100000000000000000000000000000000000001"), Type: registry.CellYakSwap, CanSwap: true}},
	})
	reg.AddChain(&registry.Chain{
		ID: 102, Name: "mid", BlockchainID: common.HexToHash("0x02"), NativeToken: "bee",
		Cells: []registry.Cell{{Address: common.HexToAddress("0x7100000000000000000000000000000000000002"), Type: registry.CellHopOnly}},
	})
	reg.AddChain(&registry.Chain{
		ID: 103, Name: "far", BlockchainID: common.HexToHash("0x03"), NativeToken: "ccoin",
		Cells: []registry.Cell{{Address: common.HexToAddress("0x7100000000000000000000000000000000000003"), Type: registry.CellHopOnly}},
	})

	// Home chain: native acoin wrapped as alpha, which bridges to mid; gold
	// bridges to far; the starting token holds no bridge at all.
	reg.AddToken(&registry.Token{
		ID: "acoin", ChainID: 101, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "ACOIN", IsNative: true, WrappedAddress: wAlpha,
	})
	reg.AddToken(&registry.Token{
		ID: "alpha", ChainID: 101, Address: wAlpha, Decimals: 18, Symbol: "ALPHA",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			102: {Address: common.HexToAddress("0x7200000000000000000000000000000000000001"), Type: registry.BridgeNativeHome},
		},
	})
	reg.AddToken(&registry.Token{
		ID: "gold", ChainID: 101, Address: goldHome, Decimals: 18, Symbol: "GOLD",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			103: {Address: common.HexToAddress("0x7200000000000000000000000000000000000002"), Type: registry.BridgeErc20Home},
		},
	})
	reg.AddToken(&registry.Token{
		ID: "start", ChainID: 101, Address: startAddr, Decimals: 18, Symbol: "START",
	})

	// Mid chain cannot swap; its native bee is the bridged form of alpha and
	// the only way forward is back home.
	reg.AddToken(&registry.Token{
		ID: "bee", ChainID: 102, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "BEE", IsNative: true, WrappedAddress: wBee,
	})
	reg.AddToken(&registry.Token{
		ID: "alpha", ChainID: 102, Address: wBee, Decimals: 18, Symbol: "WBEE",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			101: {Address: common.HexToAddress("0x7200000000000000000000000000000000000003"), Type: registry.BridgeNativeRemote},
		},
	})

	reg.AddToken(&registry.Token{
		ID: "gold", ChainID: 103, Address: goldFar, Decimals: 18, Symbol: "GOLD",
		Bridges: map[registry.ChainID]registry.BridgeDescriptor{
			101: {Address: common.HexToAddress("0x7200000000000000000000000000000000000004"), Type: registry.BridgeErc20Remote},
		},
	})

	b := NewBuilder(reg, graph.Build(reg), 3)
	src := mustToken(t, reg, 101, "start")
	dst := mustToken(t, reg, 103, "gold")

	paths, err := b.Build(101, 103, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	var revisit *Path
	for _, p := range paths {
		if len(p.Hops) == 3 && p.Hops[0].SrcChain == 101 && p.Hops[2].SrcChain == 101 {
			revisit = p
		}
	}
	if revisit == nil {
		t.Fatal("no path crossing back through the home chain")
	}
	if revisit.Hops[1].SrcChain != 102 {
		t.Errorf("middle hop departs chain %d, want 102", revisit.Hops[1].SrcChain)
	}
}

func TestBuildNoRoute(t *testing.T) {
	reg := testRegistry(t)

	// Chain with no bridges at all.
	reg.AddChain(&registry.Chain{
		ID: 99, Name: "island", NativeToken: "iso",
		Cells: []registry.Cell{{Address: common.HexToAddress("0x6000000000000000000000000000000000000001"), Type: registry.CellHopOnly}},
	})
	reg.AddToken(&registry.Token{
		ID: "iso", ChainID: 99, Address: registry.NativeTokenAddress,
		Decimals: 18, Symbol: "ISO", IsNative: true,
	})

	b := NewBuilder(reg, graph.Build(reg), 3)
	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 99, "iso")

	if _, err := b.Build(43114, 99, src, dst, big.NewInt(1)); !errors.Is(err, ErrNoRoute) {
		t.Errorf("err = %v, want ErrNoRoute", err)
	}
}

func TestBuildDepthBound(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 43113, "coin")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	for _, p := range paths {
		if len(p.Hops) > 3 {
			t.Errorf("path has %d hops, exceeds bound 3", len(p.Hops))
		}
	}
}

func TestPathDedup(t *testing.T) {
	reg := testRegistry(t)
	b := NewBuilder(reg, graph.Build(reg), 3)

	src := mustToken(t, reg, 43114, "avax")
	dst := mustToken(t, reg, 43113, "coin")

	paths, err := b.Build(43114, 43113, src, dst, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		k := p.Key()
		if seen[k] {
			t.Errorf("duplicate path key %q", k)
		}
		seen[k] = true
	}
}
