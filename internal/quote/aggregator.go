package quote

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/chainhop-exchange/chainhop/internal/config"
	"github.com/chainhop-exchange/chainhop/internal/evm"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
	"github.com/chainhop-exchange/chainhop/pkg/helpers"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// Aggregator quotes route skeletons. Within one route, hops are quoted
// strictly in order because each hop's output is the next hop's input;
// independent routes in a batch are quoted concurrently and delivered
// incrementally as they finish.
type Aggregator struct {
	reg     *registry.Registry
	pool    *evm.Pool
	onchain Source
	routing config.RoutingConfig
	log     *logging.Logger

	now func() time.Time

	mu          sync.Mutex
	fingerprint string
	rfq         map[string]*DexalotSource // keyed by base URL
}

// NewAggregator creates an aggregator over the given registry and RPC pool.
func NewAggregator(reg *registry.Registry, pool *evm.Pool, routing config.RoutingConfig, log *logging.Logger) *Aggregator {
	return &Aggregator{
		reg:     reg,
		pool:    pool,
		onchain: NewOnchainSource(pool, log),
		routing: routing,
		log:     log.Component("quote/aggregator"),
		now:     time.Now,
		rfq:     make(map[string]*DexalotSource),
	}
}

// Validity returns the configured quote validity window.
func (a *Aggregator) Validity() time.Duration {
	return a.routing.QuoteValidity
}

// DefaultRouteConfig derives the cell route configuration from preferences.
func (a *Aggregator) DefaultRouteConfig() RouteConfig {
	return RouteConfig{
		MaxSteps:    a.routing.MaxHops,
		SlippageBps: a.routing.SlippageBps,
		FeeBps:      a.routing.ProviderFeeBps,
	}
}

// Fingerprint identifies one quoting request: the route endpoints, the input
// amount and the quoting configuration. Results are applied only while their
// fingerprint is still current.
func Fingerprint(paths []*route.Path, cfg RouteConfig) string {
	if len(paths) == 0 {
		return ""
	}
	p := paths[0]
	return fmt.Sprintf("%d:%s>%d:%s:%s:%d:%d",
		p.SrcChain, p.SrcToken.Address, p.DstChain, p.DstToken.Address,
		p.SrcAmount, cfg.SlippageBps, cfg.MaxSteps)
}

// QuoteBatch quotes all paths concurrently and streams finished quotes on the
// returned channel, which closes when every route has resolved. Starting a
// new batch supersedes any in-flight one: quotes whose fingerprint is no
// longer current are silently dropped, never delivered.
func (a *Aggregator) QuoteBatch(ctx context.Context, paths []*route.Path, cfg RouteConfig) <-chan *Quote {
	fp := Fingerprint(paths, cfg)
	a.mu.Lock()
	a.fingerprint = fp
	a.mu.Unlock()

	out := make(chan *Quote, len(paths))
	var wg sync.WaitGroup

	for _, p := range paths {
		wg.Add(1)
		go func(p *route.Path) {
			defer wg.Done()
			q := a.QuotePath(ctx, p, cfg)
			q.Fingerprint = fp

			a.mu.Lock()
			current := a.fingerprint == fp
			a.mu.Unlock()
			if !current {
				a.log.Debug("dropping stale quote", "fingerprint", fp)
				return
			}
			select {
			case out <- q:
			case <-ctx.Done():
			}
		}(p)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// QuotePath quotes one route skeleton. Hop failures never escape: they are
// captured into the hop's and quote's error fields and the quote is returned
// unconfirmed.
func (a *Aggregator) QuotePath(ctx context.Context, p *route.Path, cfg RouteConfig) *Quote {
	q := &Quote{
		ID:        uuid.NewString(),
		Path:      p,
		Timestamp: a.now(),
	}

	amountIn := new(big.Int).Set(p.SrcAmount)
	totalGasUnits := uint64(0)
	totalDuration := time.Duration(0)

	for _, hop := range p.Hops {
		hq := &HopQuote{Hop: hop, AmountIn: new(big.Int).Set(amountIn)}
		q.Hops = append(q.Hops, hq)

		src, err := a.sourceFor(hop)
		if err != nil {
			a.failHop(q, hq, err)
			return q
		}

		res, err := src.HopQuote(ctx, hop, amountIn, cfg)
		if err != nil {
			a.failHop(q, hq, err)
			return q
		}

		hq.EstAmountOut = res.AmountOut
		hq.MinAmountOut = helpers.ApplySlippage(res.AmountOut, cfg.SlippageBps)
		hq.Trade = res.Trade
		hq.EncodedTrade = res.EncodedTrade
		hq.EstGasUnits = res.GasUnits
		hq.EstDuration = a.hopDuration(ctx, hop)
		hq.Confirmed = true

		totalGasUnits += res.GasUnits
		totalDuration += hq.EstDuration

		// The next hop is quoted with the estimate, not the minimum; the
		// minimum is what gets enforced on-chain per hop.
		amountIn = res.AmountOut
	}

	last := q.Hops[len(q.Hops)-1]
	q.EstDstAmount = last.EstAmountOut
	q.MinDstAmount = last.MinAmountOut
	q.EstDuration = totalDuration
	q.EstGasFee = gasFee(totalGasUnits, cfg.GasPrice)
	q.Confirmed = true
	return q
}

// ConfirmForExecution finalizes a quote right before submission: every
// RFQ-quoted hop gets a firm signed order, checked against the hop's minimum
// output. A firm quote below the minimum aborts with ErrSlippageViolation.
func (a *Aggregator) ConfirmForExecution(ctx context.Context, q *Quote, user common.Address, cfg RouteConfig) error {
	if !q.Confirmed {
		return fmt.Errorf("%w: %v", ErrNotConfirmed, q.Err)
	}
	if !q.ValidAt(a.now(), a.routing.QuoteValidity) {
		return fmt.Errorf("%w: issued %s", ErrQuoteExpired, q.Timestamp.Format(time.RFC3339))
	}

	for _, hq := range q.Hops {
		_, cell, _, _, ok := swapLeg(hq.Hop)
		if !ok || cell.APIData == nil {
			continue
		}

		src, err := a.rfqSource(cell.APIData)
		if err != nil {
			return err
		}
		trade, err := src.FirmHopQuote(ctx, hq.Hop, hq.AmountIn, user, cfg)
		if err != nil {
			return err
		}

		firm := trade.Dexalot.Order.MakerAmount
		if firm.Cmp(hq.MinAmountOut) < 0 {
			return fmt.Errorf("%w: firm %s < min %s", ErrSlippageViolation, firm, hq.MinAmountOut)
		}

		encoded, err := trade.Encode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuoteFailed, err)
		}
		hq.Trade = trade
		hq.EncodedTrade = encoded
	}
	return nil
}

// SwitchAlternative offers the better quote with a cancelable delay. The
// switch happens after the configured delay unless canceled; it is forced
// immediately once the current quote's validity window has expired. The
// current quote's recipient override carries over to the replacement.
func (a *Aggregator) SwitchAlternative(ctx context.Context, current, alt *Quote, cancel <-chan struct{}) (*Quote, bool) {
	if alt == nil || !alt.Confirmed {
		return current, false
	}
	if current != nil && alt.EstDstAmount.Cmp(current.EstDstAmount) <= 0 {
		return current, false
	}
	if current == nil {
		return alt, true
	}

	if current.ValidAt(a.now(), a.routing.QuoteValidity) {
		timer := time.NewTimer(a.routing.SwitchDelay)
		defer timer.Stop()
		select {
		case <-cancel:
			return current, false
		case <-ctx.Done():
			return current, false
		case <-timer.C:
		}
	}

	alt.Recipient = current.Recipient
	a.log.Info("switched to alternative quote",
		"from", current.EstDstAmount, "to", alt.EstDstAmount)
	return alt, true
}

func (a *Aggregator) failHop(q *Quote, hq *HopQuote, err error) {
	hq.Err = err
	q.Err = err
	q.Confirmed = false
	a.log.Debug("hop quote failed",
		"srcChain", hq.SrcChain, "dstChain", hq.DstChain, "err", err)
}

// sourceFor selects the quote source from the hop's cell API data.
func (a *Aggregator) sourceFor(hop route.Hop) (Source, error) {
	_, cell, _, _, ok := swapLeg(hop)
	if !ok || cell.APIData == nil {
		return a.onchain, nil
	}
	return a.rfqSource(cell.APIData)
}

func (a *Aggregator) rfqSource(api *registry.APIData) (*DexalotSource, error) {
	if api.Provider != "dexalot" {
		return nil, fmt.Errorf("%w: unknown quote provider %q", ErrQuoteFailed, api.Provider)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.rfq[api.BaseURL]; ok {
		return s, nil
	}
	s := NewDexalotSource(api, a.log)
	a.rfq[api.BaseURL] = s
	return s, nil
}

// hopDuration estimates how long a hop takes: cross-chain hops wait for the
// source chain's confirmations, same-chain hops are immediate.
func (a *Aggregator) hopDuration(ctx context.Context, hop route.Hop) time.Duration {
	if !hop.Type.CrossChain() {
		return 0
	}
	chain, err := a.reg.Chain(hop.SrcChain)
	if err != nil {
		return 0
	}
	return time.Duration(chain.Confirmations) * a.pool.AvgBlockTime(ctx, hop.SrcChain)
}

func gasFee(units uint64, gasPrice *big.Int) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(units), gasPrice)
}
