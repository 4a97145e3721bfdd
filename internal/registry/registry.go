// Package registry defines the static catalog of supported chains, tokens
// and router cells. All chain- and token-specific values are defined here at
// load time and never mutated afterwards; every other package queries it.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Registry errors.
var (
	ErrChainNotFound = errors.New("chain not found")
	ErrTokenNotFound = errors.New("token not found")
	ErrChainDisabled = errors.New("chain is disabled")
)

// ChainID identifies an EVM chain (eth_chainId value).
type ChainID uint64

// NativeTokenAddress is the sentinel contract address used for a chain's
// native currency in token records and cell trade paths.
var NativeTokenAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// BridgeType classifies one directional bridge endpoint.
type BridgeType string

const (
	BridgeNativeHome   BridgeType = "native_home"
	BridgeNativeRemote BridgeType = "native_remote"
	BridgeErc20Home    BridgeType = "erc20_home"
	BridgeErc20Remote  BridgeType = "erc20_remote"
)

// BridgeDescriptor is one directional bridge endpoint declared by a token.
type BridgeDescriptor struct {
	Address common.Address
	Type    BridgeType
}

// IsNative reports whether the descriptor bridges the chain's native currency.
func (d BridgeDescriptor) IsNative() bool {
	return d.Type == BridgeNativeHome || d.Type == BridgeNativeRemote
}

// CellType enumerates the deployed router contract variants. Each type
// implies a distinct trade-encoding ABI and quote source; dispatch over
// CellType is always an exhaustive switch.
type CellType string

const (
	CellHopOnly CellType = "hop_only"
	CellYakSwap CellType = "yak_swap"
	CellUniV2   CellType = "uni_v2"
	CellDexalot CellType = "dexalot"
)

// Valid reports whether the cell type is a known variant.
func (c CellType) Valid() bool {
	switch c {
	case CellHopOnly, CellYakSwap, CellUniV2, CellDexalot:
		return true
	}
	return false
}

// APIData points a cell at an off-chain RFQ quote provider.
type APIData struct {
	Provider  string // provider key, e.g. "dexalot"
	BaseURL   string
	PartnerID string
	Executor  common.Address // executor address passed to firm quotes
}

// Cell is a deployed router contract on one chain.
type Cell struct {
	Address common.Address
	Type    CellType
	CanSwap bool
	APIData *APIData // nil for on-chain quoting
}

// Chain describes one supported EVM chain.
type Chain struct {
	ID           ChainID
	Name         string
	BlockchainID common.Hash // cross-chain messaging identifier, distinct from ID
	NativeToken  string      // token id slug of the native currency

	// RPC/client tuning
	MaxQueryBlockRange uint64
	BlockTimeWindow    int           // number of recent blocks sampled for avg block time
	AvgBlockTime       time.Duration // static fallback until sampling warms up
	Confirmations      uint64        // confirmations assumed for bridge duration estimates

	Cells    []Cell
	Testnet  bool
	Disabled bool
}

// SwapCells returns the chain's cells that can perform same-chain swaps.
func (c *Chain) SwapCells() []Cell {
	var out []Cell
	for _, cell := range c.Cells {
		if cell.CanSwap {
			out = append(out, cell)
		}
	}
	return out
}

// Token describes one supported asset on one chain. A native token and its
// wrapped counterpart are distinct records; they are treated as variants of
// one economic asset for bridge routing only, never for balances or display.
type Token struct {
	ID       string // slug, unique per logical asset name
	ChainID  ChainID
	Address  common.Address // NativeTokenAddress for native currency
	Decimals uint8
	Symbol   string
	IsNative bool

	// Native<->wrapped pairing. For a native token, WrappedAddress is the
	// wrapped ERC-20 contract on the same chain; zero when none exists.
	WrappedAddress common.Address

	// Declared bridge endpoints keyed by destination chain id.
	Bridges map[ChainID]BridgeDescriptor
}

// HasBridgeTo reports whether the token declares a bridge to the given chain.
func (t *Token) HasBridgeTo(dst ChainID) bool {
	_, ok := t.Bridges[dst]
	return ok
}

// Registry is the immutable catalog. Build it once (see Builtin), share freely.
type Registry struct {
	chains map[ChainID]*Chain
	tokens map[ChainID]map[common.Address]*Token
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		chains: make(map[ChainID]*Chain),
		tokens: make(map[ChainID]map[common.Address]*Token),
	}
}

// AddChain registers a chain. Panics on duplicate ids: builtin data is
// program text and a duplicate is a programming error.
func (r *Registry) AddChain(c *Chain) {
	if _, exists := r.chains[c.ID]; exists {
		panic(fmt.Sprintf("registry: duplicate chain id %d", c.ID))
	}
	r.chains[c.ID] = c
	if r.tokens[c.ID] == nil {
		r.tokens[c.ID] = make(map[common.Address]*Token)
	}
}

// AddToken registers a token on an already-registered chain.
func (r *Registry) AddToken(t *Token) {
	byAddr, ok := r.tokens[t.ChainID]
	if !ok {
		panic(fmt.Sprintf("registry: token %q references unknown chain %d", t.ID, t.ChainID))
	}
	if _, exists := byAddr[t.Address]; exists {
		panic(fmt.Sprintf("registry: duplicate token %s on chain %d", t.Address, t.ChainID))
	}
	byAddr[t.Address] = t
}

// Chain returns the chain with the given id.
func (r *Registry) Chain(id ChainID) (*Chain, error) {
	c, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotFound, id)
	}
	return c, nil
}

// ChainByBlockchainID resolves a cross-chain messaging identifier to a chain.
func (r *Registry) ChainByBlockchainID(blockchainID common.Hash) (*Chain, error) {
	for _, c := range r.chains {
		if c.BlockchainID == blockchainID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: blockchain id %s", ErrChainNotFound, blockchainID)
}

// Chains returns all enabled chains, ordered by id.
func (r *Registry) Chains() []*Chain {
	out := make([]*Chain, 0, len(r.chains))
	for _, c := range r.chains {
		if !c.Disabled {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Token returns the token at (chain, address).
func (r *Registry) Token(chain ChainID, addr common.Address) (*Token, error) {
	t, ok := r.tokens[chain][addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s on chain %d", ErrTokenNotFound, addr, chain)
	}
	return t, nil
}

// TokenByID returns the token with the given id slug on a chain.
func (r *Registry) TokenByID(chain ChainID, id string) (*Token, error) {
	for _, t := range r.tokens[chain] {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q on chain %d", ErrTokenNotFound, id, chain)
}

// NativeToken returns the chain's native currency token record.
func (r *Registry) NativeToken(chain ChainID) (*Token, error) {
	c, err := r.Chain(chain)
	if err != nil {
		return nil, err
	}
	return r.TokenByID(chain, c.NativeToken)
}

// Tokens returns all tokens on a chain, ordered by id for determinism.
func (r *Registry) Tokens(chain ChainID) []*Token {
	out := make([]*Token, 0, len(r.tokens[chain]))
	for _, t := range r.tokens[chain] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WrappedToken returns the wrapped counterpart of a native token, if any.
func (r *Registry) WrappedToken(t *Token) (*Token, bool) {
	if !t.IsNative || t.WrappedAddress == (common.Address{}) {
		return nil, false
	}
	w, ok := r.tokens[t.ChainID][t.WrappedAddress]
	return w, ok
}

// IsVariant reports whether a and b form a native/wrapped pair on the same
// chain. Variant equivalence is route-scoped only: callers must never merge
// balances or display amounts of the two records.
func (r *Registry) IsVariant(a, b *Token) bool {
	if a == nil || b == nil || a.ChainID != b.ChainID {
		return false
	}
	if a.IsNative && a.WrappedAddress == b.Address {
		return true
	}
	if b.IsNative && b.WrappedAddress == a.Address {
		return true
	}
	return false
}

// SameOrVariant reports whether a and b are the same token record or variants.
func (r *Registry) SameOrVariant(a, b *Token) bool {
	if a == nil || b == nil {
		return false
	}
	if a.ChainID == b.ChainID && a.Address == b.Address {
		return true
	}
	return r.IsVariant(a, b)
}
