// Package graph derives the bridge route graph from the token registry.
// The graph is built once at startup, is read-only afterwards, and is freely
// shared; construction is pure and deterministic.
package graph

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/registry"
)

// Edge is one directional bridge route: a source token and bridge endpoint
// paired with the matching destination token and its return endpoint.
type Edge struct {
	SrcChain  registry.ChainID
	DstChain  registry.ChainID
	SrcToken  *registry.Token
	DstToken  *registry.Token
	SrcBridge registry.BridgeDescriptor
	DstBridge registry.BridgeDescriptor
}

type tokenKey struct {
	Chain   registry.ChainID
	Address common.Address
}

// Graph is the directed bridge route graph plus its derived indexes.
type Graph struct {
	reg     *registry.Registry
	byChain map[registry.ChainID][]*Edge
	byToken map[tokenKey][]*Edge
	inverse *Graph // nil on the inverse itself
}

// Build constructs the graph from the registry. For every (token, target
// chain) pair where the token declares a bridge, the destination token is
// resolved by candidate priority: native variant, then same id, then wrapped
// variant. An edge exists only when the destination token, or one of its
// native/wrapped variants, declares a bridge back to the source chain.
func Build(reg *registry.Registry) *Graph {
	g := &Graph{
		reg:     reg,
		byChain: make(map[registry.ChainID][]*Edge),
		byToken: make(map[tokenKey][]*Edge),
	}

	for _, chain := range reg.Chains() {
		for _, token := range reg.Tokens(chain.ID) {
			if len(token.Bridges) == 0 {
				continue
			}
			for _, dstChain := range sortedChainIDs(token.Bridges) {
				dstToken := destinationCandidate(reg, token, dstChain)
				if dstToken == nil {
					continue
				}
				back, ok := dstToken.Bridges[chain.ID]
				if !ok {
					// A native candidate carries no bridge record itself; the
					// return endpoint lives on its wrapped counterpart.
					for _, v := range g.variantsOf(dstToken) {
						if b, found := v.Bridges[chain.ID]; found {
							back, ok = b, true
							break
						}
					}
				}
				if !ok {
					// Bridges must be declared on both ends.
					continue
				}
				g.addEdge(&Edge{
					SrcChain:  chain.ID,
					DstChain:  dstChain,
					SrcToken:  token,
					DstToken:  dstToken,
					SrcBridge: token.Bridges[dstChain],
					DstBridge: back,
				})
			}
		}
	}

	g.inverse = g.invert()
	return g
}

// destinationCandidate resolves the token an edge lands on. Priority order:
// (a) non-native source: the destination chain's native token whose wrapped
// counterpart shares the source token's id; (b) the token with the identical
// id; (c) the id of the source's native or wrapped counterpart, since a
// wrapped token travels under its underlying asset's name and vice versa.
// The ordering decides which route is discovered when several candidates are
// viable and must not be reordered.
func destinationCandidate(reg *registry.Registry, src *registry.Token, dstChain registry.ChainID) *registry.Token {
	if !src.IsNative {
		if native, err := reg.NativeToken(dstChain); err == nil {
			if wrapped, ok := reg.WrappedToken(native); ok && wrapped.ID == src.ID {
				return native
			}
		}
	}

	if same, err := reg.TokenByID(dstChain, src.ID); err == nil {
		return same
	}

	if src.IsNative {
		if wrapped, ok := reg.WrappedToken(src); ok {
			if t, err := reg.TokenByID(dstChain, wrapped.ID); err == nil {
				return t
			}
		}
	} else if native, err := reg.NativeToken(src.ChainID); err == nil && native.WrappedAddress == src.Address {
		if t, err := reg.TokenByID(dstChain, native.ID); err == nil {
			return t
		}
	}

	return nil
}

func (g *Graph) addEdge(e *Edge) {
	g.byChain[e.SrcChain] = append(g.byChain[e.SrcChain], e)

	keys := []tokenKey{{e.SrcChain, e.SrcToken.Address}}
	for _, v := range g.variantsOf(e.SrcToken) {
		keys = append(keys, tokenKey{v.ChainID, v.Address})
	}
	for _, k := range keys {
		g.byToken[k] = append(g.byToken[k], e)
	}
}

// variantsOf returns the native/wrapped counterparts of a token on its chain.
func (g *Graph) variantsOf(t *registry.Token) []*registry.Token {
	var out []*registry.Token
	if t.IsNative {
		if w, ok := g.reg.WrappedToken(t); ok {
			out = append(out, w)
		}
		return out
	}
	if native, err := g.reg.NativeToken(t.ChainID); err == nil {
		if native.WrappedAddress == t.Address {
			out = append(out, native)
		}
	}
	return out
}

// invert builds the inverse graph by swapping both ends of every edge.
func (g *Graph) invert() *Graph {
	inv := &Graph{
		reg:     g.reg,
		byChain: make(map[registry.ChainID][]*Edge),
		byToken: make(map[tokenKey][]*Edge),
	}
	for _, edges := range g.sortedChains() {
		for _, e := range edges {
			inv.addEdge(&Edge{
				SrcChain:  e.DstChain,
				DstChain:  e.SrcChain,
				SrcToken:  e.DstToken,
				DstToken:  e.SrcToken,
				SrcBridge: e.DstBridge,
				DstBridge: e.SrcBridge,
			})
		}
	}
	return inv
}

// EdgesFrom returns all edges departing the given chain.
func (g *Graph) EdgesFrom(chain registry.ChainID) []*Edge {
	return g.byChain[chain]
}

// EdgesForToken returns all edges whose source token is the given token or a
// variant of it.
func (g *Graph) EdgesForToken(t *registry.Token) []*Edge {
	return g.byToken[tokenKey{t.ChainID, t.Address}]
}

// Inverse returns the inverse graph, answering "what can reach chain X".
func (g *Graph) Inverse() *Graph {
	return g.inverse
}

// Edges returns every edge in deterministic order.
func (g *Graph) Edges() []*Edge {
	var out []*Edge
	for _, edges := range g.sortedChains() {
		out = append(out, edges...)
	}
	return out
}

func (g *Graph) sortedChains() [][]*Edge {
	ids := make([]registry.ChainID, 0, len(g.byChain))
	for id := range g.byChain {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([][]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.byChain[id])
	}
	return out
}

func sortedChainIDs(m map[registry.ChainID]registry.BridgeDescriptor) []registry.ChainID {
	ids := make([]registry.ChainID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
