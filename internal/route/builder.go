// Package route enumerates candidate hop sequences between a source and a
// destination token using the bridge route graph. Builders produce unquoted
// skeletons; amounts and ranking are attached later by the quote aggregator.
package route

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/chainhop-exchange/chainhop/internal/graph"
	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// Builder errors.
var (
	ErrNoRoute   = errors.New("no route found")
	ErrSameToken = errors.New("source and destination are the same token")
)

// HopType classifies one step of a route.
type HopType string

const (
	// HopBridge bridges without swapping on either side.
	HopBridge HopType = "hop"
	// HopAndCall bridges, then calls a swap on the destination chain.
	HopAndCall HopType = "hop_and_call"
	// SwapAndHop swaps on the source chain, then bridges.
	SwapAndHop HopType = "swap_and_hop"
	// SwapAndTransfer swaps on one chain and delivers to the recipient.
	SwapAndTransfer HopType = "swap_and_transfer"
)

// CrossChain reports whether the hop type crosses a bridge.
func (t HopType) CrossChain() bool {
	return t == HopBridge || t == HopAndCall || t == SwapAndHop
}

// Swaps reports whether the hop type involves a swap on either side.
func (t HopType) Swaps() bool {
	return t != HopBridge
}

// Hop is one unquoted step: the token entering it, the cell executing it on
// the source chain, the bridge edge crossed (nil for same-chain hops), and
// the token it produces.
type Hop struct {
	Type     HopType
	SrcChain registry.ChainID
	DstChain registry.ChainID
	SrcToken *registry.Token
	DstToken *registry.Token

	// Cell executing the hop on the source chain.
	Cell registry.Cell

	// DstCell receives the cross-chain message on the destination chain.
	// Zero-valued for same-chain hops.
	DstCell registry.Cell

	// Edge is the bridge crossed; nil for SwapAndTransfer.
	Edge *graph.Edge
}

// Path is an unquoted route skeleton.
type Path struct {
	SrcChain  registry.ChainID
	DstChain  registry.ChainID
	SrcToken  *registry.Token
	DstToken  *registry.Token
	SrcAmount *big.Int
	Hops      []Hop
}

// Key returns the dedup key: the ordered (chain, token, cell) tuple sequence.
func (p *Path) Key() string {
	var b strings.Builder
	for _, h := range p.Hops {
		fmt.Fprintf(&b, "%d:%s:%s>%d:%s|",
			h.SrcChain, h.SrcToken.Address, h.Cell.Address, h.DstChain, h.DstToken.Address)
	}
	return b.String()
}

// Builder enumerates route skeletons over the bridge route graph.
type Builder struct {
	reg     *registry.Registry
	g       *graph.Graph
	maxHops int
}

// NewBuilder creates a Builder. maxHops bounds search depth; values below 1
// fall back to 1.
func NewBuilder(reg *registry.Registry, g *graph.Graph, maxHops int) *Builder {
	if maxHops < 1 {
		maxHops = 1
	}
	return &Builder{reg: reg, g: g, maxHops: maxHops}
}

// Build returns all candidate paths from (srcChain, srcToken) to
// (dstChain, dstToken) for the given input amount. No ordering is imposed;
// ranking happens after quoting, when output amounts are known.
func (b *Builder) Build(srcChain, dstChain registry.ChainID, srcToken, dstToken *registry.Token, amount *big.Int) ([]*Path, error) {
	if srcToken.ChainID != srcChain || dstToken.ChainID != dstChain {
		return nil, fmt.Errorf("token/chain mismatch: %s on %d, %s on %d",
			srcToken.ID, srcToken.ChainID, dstToken.ID, dstToken.ChainID)
	}

	var paths []*Path
	if srcChain == dstChain {
		if srcToken.Address == dstToken.Address {
			return nil, ErrSameToken
		}
		paths = b.sameChainPaths(srcChain, srcToken, dstToken, amount)
	} else {
		paths = b.crossChainPaths(srcChain, dstChain, srcToken, dstToken, amount)
	}

	paths = dedup(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s@%d -> %s@%d", ErrNoRoute, srcToken.ID, srcChain, dstToken.ID, dstChain)
	}
	return paths, nil
}

// sameChainPaths produces one single-hop swap route per swap-capable cell.
func (b *Builder) sameChainPaths(chain registry.ChainID, src, dst *registry.Token, amount *big.Int) []*Path {
	c, err := b.reg.Chain(chain)
	if err != nil {
		return nil
	}

	var paths []*Path
	for _, cell := range c.SwapCells() {
		paths = append(paths, &Path{
			SrcChain: chain, DstChain: chain,
			SrcToken: src, DstToken: dst, SrcAmount: amount,
			Hops: []Hop{{
				Type:     SwapAndTransfer,
				SrcChain: chain, DstChain: chain,
				SrcToken: src, DstToken: dst,
				Cell: cell,
			}},
		})
	}
	return paths
}

// searchState is one BFS frontier entry.
type searchState struct {
	chain registry.ChainID
	token *registry.Token
	hops  []Hop
}

// crossChainPaths performs a bounded breadth-first search over the graph's
// token-keyed index. Each edge traversal consumes one hop; a same-chain swap
// needed to reach the bridge token rides along as a sub-step of that hop.
func (b *Builder) crossChainPaths(srcChain, dstChain registry.ChainID, srcToken, dstToken *registry.Token, amount *big.Int) []*Path {
	var accepted []*Path

	frontier := []searchState{{chain: srcChain, token: srcToken}}
	for depth := 0; depth < b.maxHops && len(frontier) > 0; depth++ {
		var next []searchState
		for _, st := range frontier {
			for _, e := range b.g.EdgesFrom(st.chain) {
				hop, ok := b.bridgeHop(st, e)
				if !ok {
					continue
				}

				hops := append(append([]Hop{}, st.hops...), hop)
				if e.DstChain == dstChain {
					if done := b.finishPath(hops, srcChain, dstChain, srcToken, dstToken, amount, e.DstToken); done != nil {
						accepted = append(accepted, done)
					}
					continue
				}
				if b.revisits(hops, e.DstChain, e.DstToken) {
					continue
				}
				next = append(next, searchState{chain: e.DstChain, token: e.DstToken, hops: hops})
			}
		}
		frontier = next
	}

	return accepted
}

// bridgeHop builds the hop crossing edge e from the current state, inserting
// a source-side swap sub-step when the held token is neither the edge's
// bridge token nor a variant of it.
func (b *Builder) bridgeHop(st searchState, e *graph.Edge) (Hop, bool) {
	chain, err := b.reg.Chain(st.chain)
	if err != nil {
		return Hop{}, false
	}
	dstChainRec, err := b.reg.Chain(e.DstChain)
	if err != nil || dstChainRec.Disabled {
		return Hop{}, false
	}
	if len(chain.Cells) == 0 || len(dstChainRec.Cells) == 0 {
		return Hop{}, false
	}

	hop := Hop{
		SrcChain: st.chain,
		DstChain: e.DstChain,
		SrcToken: st.token,
		DstToken: e.DstToken,
		DstCell:  dstChainRec.Cells[0],
		Edge:     e,
	}

	if b.reg.SameOrVariant(st.token, e.SrcToken) {
		hop.Type = HopBridge
		hop.Cell = chain.Cells[0]
		return hop, true
	}

	// Need a swap into the bridge token first.
	swapCells := chain.SwapCells()
	if len(swapCells) == 0 {
		return Hop{}, false
	}
	hop.Type = SwapAndHop
	hop.Cell = swapCells[0]
	return hop, true
}

// finishPath accepts a hop sequence landing on the destination chain. If the
// landed token is not the destination token or a variant, a destination-side
// swap turns the terminal hop into HopAndCall when the chain supports it.
// Only a bare bridge hop can absorb that swap: a hop already swapping on its
// source side has no second swap leg, so the sequence is discarded.
func (b *Builder) finishPath(hops []Hop, srcChain, dstChain registry.ChainID, srcToken, dstToken *registry.Token, amount *big.Int, landed *registry.Token) *Path {
	last := &hops[len(hops)-1]

	if !b.reg.SameOrVariant(landed, dstToken) {
		if last.Type != HopBridge {
			return nil
		}
		dstChainRec, err := b.reg.Chain(dstChain)
		if err != nil {
			return nil
		}
		swapCells := dstChainRec.SwapCells()
		if len(swapCells) == 0 {
			return nil
		}
		last.Type = HopAndCall
		last.DstToken = dstToken
		last.DstCell = swapCells[0]
	}

	return &Path{
		SrcChain: srcChain, DstChain: dstChain,
		SrcToken: srcToken, DstToken: dstToken, SrcAmount: amount,
		Hops: hops,
	}
}

// revisits reports whether the path already held the given token on the
// given chain. A chain may be crossed more than once within the hop bound;
// repeating a (chain, token) state can only loop.
func (b *Builder) revisits(hops []Hop, chain registry.ChainID, token *registry.Token) bool {
	for _, h := range hops {
		if h.SrcChain == chain && b.reg.SameOrVariant(h.SrcToken, token) {
			return true
		}
	}
	return false
}

func dedup(paths []*Path) []*Path {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		k := p.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}
