package quote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/route"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// ErrPairNotFound marks a token pair the RFQ provider does not trade.
var ErrPairNotFound = errors.New("pair not listed")

// pairsTTL bounds how often the pairs listing is re-fetched.
const pairsTTL = 60 * time.Second

// bigString decodes a JSON string or number into a big.Int.
type bigString big.Int

func (b *bigString) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	*b = bigString(*v)
	return nil
}

// Int returns the decoded value, never nil.
func (b *bigString) Int() *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return (*big.Int)(b)
}

// Pair is one tradable pair from the provider's listing.
type Pair struct {
	Base         string         `json:"base"`
	Quote        string         `json:"quote"`
	BaseAddress  common.Address `json:"baseAddress"`
	QuoteAddress common.Address `json:"quoteAddress"`
	Liquidity    *bigString     `json:"liquidity"`
}

// SimpleQuoteResponse is an indicative price, used during interactive quoting.
type SimpleQuoteResponse struct {
	Pair        string     `json:"pair"`
	TakerAmount *bigString `json:"takerAmount"`
	MakerAmount *bigString `json:"makerAmount"`
}

// FirmQuoteRequest asks for a signed, time-bounded order.
type FirmQuoteRequest struct {
	ChainID     uint64         `json:"chainid"`
	TakerAsset  common.Address `json:"takerAsset"`
	MakerAsset  common.Address `json:"makerAsset"`
	TakerAmount string         `json:"takerAmount"`
	UserAddress common.Address `json:"userAddress"`
	Executor    common.Address `json:"executor"`
	SlippageBps uint16         `json:"slippage"`
	PartnerID   string         `json:"partner"`
}

type firmOrderDTO struct {
	NonceAndMeta *bigString     `json:"nonceAndMeta"`
	Expiry       uint64         `json:"expiry"`
	MakerAsset   common.Address `json:"makerAsset"`
	TakerAsset   common.Address `json:"takerAsset"`
	Maker        common.Address `json:"maker"`
	Taker        common.Address `json:"taker"`
	MakerAmount  *bigString     `json:"makerAmount"`
	TakerAmount  *bigString     `json:"takerAmount"`
}

// FirmQuoteResponse embeds a signed order that must be passed through to the
// chain unmodified.
type FirmQuoteResponse struct {
	Order     firmOrderDTO   `json:"order"`
	Signature string         `json:"signature"`
	Tx        map[string]any `json:"tx"`
}

// DexalotClient talks to one Dexalot RFQ endpoint.
type DexalotClient struct {
	baseURL   string
	partnerID string
	http      *http.Client
	log       *logging.Logger

	mu        sync.Mutex
	pairs     map[string]Pair
	pairsTime time.Time
}

// NewDexalotClient creates a client from the cell's API configuration.
func NewDexalotClient(api *registry.APIData, log *logging.Logger) *DexalotClient {
	return &DexalotClient{
		baseURL:   strings.TrimRight(api.BaseURL, "/"),
		partnerID: api.PartnerID,
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log.Component("quote/dexalot"),
	}
}

// Pairs returns the provider's tradable pairs, cached briefly.
func (c *DexalotClient) Pairs(ctx context.Context) (map[string]Pair, error) {
	c.mu.Lock()
	if c.pairs != nil && time.Since(c.pairsTime) < pairsTTL {
		pairs := c.pairs
		c.mu.Unlock()
		return pairs, nil
	}
	c.mu.Unlock()

	var pairs map[string]Pair
	if err := c.getJSON(ctx, "/pairs", nil, &pairs); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pairs = pairs
	c.pairsTime = time.Now()
	c.mu.Unlock()
	return pairs, nil
}

// SimpleQuote fetches an indicative price for selling amount of the pair's
// given side.
func (c *DexalotClient) SimpleQuote(ctx context.Context, pair string, amount *big.Int, side string) (*SimpleQuoteResponse, error) {
	q := url.Values{}
	q.Set("pair", pair)
	q.Set("amount", amount.String())
	q.Set("side", side)

	var resp SimpleQuoteResponse
	if err := c.getJSON(ctx, "/simple-quote", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FirmQuote requests a signed order. Firm quotes are single-use and never
// cached; requesting a new one invalidates any prior order for the hop.
func (c *DexalotClient) FirmQuote(ctx context.Context, req FirmQuoteRequest) (*FirmQuoteResponse, error) {
	if req.PartnerID == "" {
		req.PartnerID = c.partnerID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/firm-quote", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp FirmQuoteResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DexalotClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuoteFailed, err)
	}
	return c.do(req, out)
}

func (c *DexalotClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrQuoteFailed, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrQuoteFailed, req.Method, req.URL.Path, resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrQuoteFailed, req.Method, req.URL.Path, err)
	}
	return nil
}

// DexalotSource quotes hops against a Dexalot RFQ endpoint. Interactive
// quoting uses indicative simple quotes only; firm quotes are requested
// separately at execution time (see FirmHopQuote).
type DexalotSource struct {
	client *DexalotClient
	api    *registry.APIData
	log    *logging.Logger
}

// NewDexalotSource creates the off-chain quote source for one cell's API data.
func NewDexalotSource(api *registry.APIData, log *logging.Logger) *DexalotSource {
	return &DexalotSource{
		client: NewDexalotClient(api, log),
		api:    api,
		log:    log.Component("quote/dexalot"),
	}
}

// HopQuote fetches an indicative quote for the hop's swap leg.
func (s *DexalotSource) HopQuote(ctx context.Context, hop route.Hop, amountIn *big.Int, cfg RouteConfig) (*HopResult, error) {
	_, cell, tokenIn, tokenOut, ok := swapLeg(hop)
	if !ok {
		return nil, fmt.Errorf("%w: hop has no swap leg", ErrQuoteFailed)
	}
	if cell.APIData == nil {
		return nil, fmt.Errorf("%w: cell %s has no API data", ErrQuoteFailed, cell.Address)
	}

	pair, side, err := s.resolvePair(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.SimpleQuote(ctx, pair, amountIn, side)
	if err != nil {
		return nil, err
	}

	amountOut := resp.MakerAmount.Int()
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pair %s, amount in %s", ErrZeroOutput, pair, amountIn)
	}

	// The signed order arrives only with the firm quote; until then the
	// trade carries amounts alone.
	trade := &Trade{Type: registry.CellDexalot, Dexalot: &DexalotTrade{
		Order: DexalotOrder{
			NonceAndMeta: new(big.Int),
			Expiry:       new(big.Int),
			MakerAsset:   tokenOut.Address,
			TakerAsset:   tokenIn.Address,
			MakerAmount:  amountOut,
			TakerAmount:  new(big.Int).Set(amountIn),
		},
	}}

	return &HopResult{
		Trade:     trade,
		AmountOut: amountOut,
		GasUnits:  GasUnitsBaseSwap,
	}, nil
}

// FirmHopQuote requests a signed order for the hop right before submission.
// The returned trade must go on-chain unmodified; it is single-use.
func (s *DexalotSource) FirmHopQuote(ctx context.Context, hop route.Hop, amountIn *big.Int, user common.Address, cfg RouteConfig) (*Trade, error) {
	chain, cell, tokenIn, tokenOut, ok := swapLeg(hop)
	if !ok || cell.APIData == nil {
		return nil, fmt.Errorf("%w: hop is not RFQ-quotable", ErrQuoteFailed)
	}

	resp, err := s.client.FirmQuote(ctx, FirmQuoteRequest{
		ChainID:     uint64(chain),
		TakerAsset:  tokenIn.Address,
		MakerAsset:  tokenOut.Address,
		TakerAmount: amountIn.String(),
		UserAddress: user,
		Executor:    cell.APIData.Executor,
		SlippageBps: cfg.SlippageBps,
		PartnerID:   s.api.PartnerID,
	})
	if err != nil {
		return nil, err
	}

	sig, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature: %v", ErrQuoteFailed, err)
	}

	return &Trade{Type: registry.CellDexalot, Dexalot: &DexalotTrade{
		Order: DexalotOrder{
			NonceAndMeta: resp.Order.NonceAndMeta.Int(),
			Expiry:       new(big.Int).SetUint64(resp.Order.Expiry),
			MakerAsset:   resp.Order.MakerAsset,
			TakerAsset:   resp.Order.TakerAsset,
			Maker:        resp.Order.Maker,
			Taker:        resp.Order.Taker,
			MakerAmount:  resp.Order.MakerAmount.Int(),
			TakerAmount:  resp.Order.TakerAmount.Int(),
		},
		Signature: sig,
	}}, nil
}

// resolvePair finds the listed pair covering the two tokens and the side that
// sells tokenIn.
func (s *DexalotSource) resolvePair(ctx context.Context, tokenIn, tokenOut *registry.Token) (string, string, error) {
	pairs, err := s.client.Pairs(ctx)
	if err != nil {
		return "", "", err
	}

	for name, p := range pairs {
		if p.Base == tokenIn.Symbol && p.Quote == tokenOut.Symbol {
			return name, "sell", nil
		}
		if p.Base == tokenOut.Symbol && p.Quote == tokenIn.Symbol {
			return name, "buy", nil
		}
	}
	return "", "", fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenIn.Symbol, tokenOut.Symbol)
}
