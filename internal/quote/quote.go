// Package quote turns route skeletons into priced quotes. Per-hop trade
// discovery is unified behind the Source interface with an on-chain
// simulation implementation and an off-chain RFQ implementation; the
// Aggregator sequences hop quotes within a route, enforces slippage minimums
// and rolls hops up into whole-route estimates.
package quote

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
)

// Quote layer errors. Hop failures are captured into HopQuote.Err and never
// propagate past the aggregator; these sentinels classify them.
var (
	// ErrQuoteFailed marks a simulation or API call that failed outright.
	ErrQuoteFailed = errors.New("quote failed")

	// ErrZeroOutput marks a quote that returned a zero or negative amount.
	ErrZeroOutput = errors.New("quote returned zero output")

	// ErrSlippageViolation marks a firm quote whose output fell below the
	// previously computed minimum. Execution must abort before submission.
	ErrSlippageViolation = errors.New("firm quote below minimum output")

	// ErrQuoteExpired marks a quote consumed after its validity window.
	ErrQuoteExpired = errors.New("quote expired")

	// ErrNotConfirmed marks an attempt to execute a quote with failed hops.
	ErrNotConfirmed = errors.New("quote is not confirmed")
)

// RouteConfig is the global quoting configuration passed to every cell
// simulation. Sourced from user preferences, never per-hop.
type RouteConfig struct {
	MaxSteps    int
	GasPrice    *big.Int
	SlippageBps uint16
	FeeBps      uint16
}

// HopResult is the normalized outcome of one hop quote, regardless of source.
type HopResult struct {
	EncodedTrade []byte
	Trade        *Trade
	AmountOut    *big.Int
	GasUnits     uint64
}

// Source is the per-hop quote adapter. Implementations must return an error
// for any failure mode (transport, zero output, decode); the aggregator turns
// it into the hop's error flag.
type Source interface {
	HopQuote(ctx context.Context, hop route.Hop, amountIn *big.Int, cfg RouteConfig) (*HopResult, error)
}

// HopQuote is one quoted step of a route.
type HopQuote struct {
	route.Hop

	AmountIn     *big.Int
	EstAmountOut *big.Int
	MinAmountOut *big.Int

	// Trade holds the decoded trade parameters; EncodedTrade the opaque
	// bytes submitted on-chain.
	Trade        *Trade
	EncodedTrade []byte

	EstGasUnits uint64
	EstDuration time.Duration

	Confirmed bool
	Err       error
}

// IsError reports whether the hop failed to quote.
func (h *HopQuote) IsError() bool {
	return h.Err != nil
}

// Quote is a fully quoted, not-yet-submitted route. Quotes are discarded and
// replaced rather than mutated, except for attaching a recipient override.
type Quote struct {
	ID          string
	Fingerprint string

	Path *route.Path
	Hops []*HopQuote

	EstDstAmount *big.Int
	MinDstAmount *big.Int
	EstGasFee    *big.Int
	EstDuration  time.Duration

	// Timestamp is the issuance time; consumers must treat the quote as
	// unusable once the validity window has elapsed.
	Timestamp time.Time

	// Confirmed is true only when every hop quoted successfully.
	Confirmed bool

	// Fastest flags the minimum EstDuration across the candidate set.
	Fastest bool

	// Recipient overrides the delivery address; preserved when an
	// alternative quote replaces this one.
	Recipient common.Address

	Err error
}

// ValidAt reports whether the quote may still be consumed at the given time.
func (q *Quote) ValidAt(t time.Time, validity time.Duration) bool {
	return t.Before(q.Timestamp.Add(validity))
}

// Best returns the confirmed quote with the highest estimated output and
// flags every confirmed quote matching the minimum duration as fastest.
// Returns nil when no quote is confirmed.
func Best(quotes []*Quote) *Quote {
	var best *Quote
	var minDur time.Duration = -1

	for _, q := range quotes {
		if !q.Confirmed {
			continue
		}
		if best == nil || q.EstDstAmount.Cmp(best.EstDstAmount) > 0 {
			best = q
		}
		if minDur < 0 || q.EstDuration < minDur {
			minDur = q.EstDuration
		}
	}
	if best == nil {
		return nil
	}
	for _, q := range quotes {
		if q.Confirmed && q.EstDuration == minDur {
			q.Fastest = true
		}
	}
	return best
}

// swapLeg resolves the on-chain swap embedded in a hop: the chain, cell and
// token pair the swap prices. ok is false for pure bridge hops, which have
// no swap to price.
func swapLeg(hop route.Hop) (chain registry.ChainID, cell registry.Cell, tokenIn, tokenOut *registry.Token, ok bool) {
	switch hop.Type {
	case route.HopBridge:
		return 0, registry.Cell{}, nil, nil, false
	case route.SwapAndTransfer:
		return hop.SrcChain, hop.Cell, hop.SrcToken, hop.DstToken, true
	case route.SwapAndHop:
		return hop.SrcChain, hop.Cell, hop.SrcToken, hop.Edge.SrcToken, true
	case route.HopAndCall:
		return hop.DstChain, hop.DstCell, hop.Edge.DstToken, hop.DstToken, true
	}
	return 0, registry.Cell{}, nil, nil, false
}
