package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/chainhop-exchange/chainhop/internal/encoder"
	"github.com/chainhop-exchange/chainhop/internal/quote"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/storage"
)

// ChainInfo describes one supported chain.
type ChainInfo struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	NativeToken string `json:"native_token"`
	Testnet     bool   `json:"testnet"`
}

// TokenInfo describes one supported token.
type TokenInfo struct {
	ID       string `json:"id"`
	ChainID  uint64 `json:"chain_id"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	IsNative bool   `json:"is_native"`
}

// chainsList returns all enabled chains.
func (s *Server) chainsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var out []ChainInfo
	for _, c := range s.reg.Chains() {
		out = append(out, ChainInfo{
			ID:          uint64(c.ID),
			Name:        c.Name,
			NativeToken: c.NativeToken,
			Testnet:     c.Testnet,
		})
	}
	return out, nil
}

// TokensListParams selects the chain to list tokens for.
type TokensListParams struct {
	ChainID uint64 `json:"chain_id"`
}

// tokensList returns all tokens on a chain.
func (s *Server) tokensList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p TokensListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if _, err := s.reg.Chain(registry.ChainID(p.ChainID)); err != nil {
		return nil, err
	}

	var out []TokenInfo
	for _, t := range s.reg.Tokens(registry.ChainID(p.ChainID)) {
		out = append(out, TokenInfo{
			ID:       t.ID,
			ChainID:  uint64(t.ChainID),
			Address:  t.Address.Hex(),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			IsNative: t.IsNative,
		})
	}
	return out, nil
}

// QuoteRequestParams describes one quoting request.
type QuoteRequestParams struct {
	SrcChain    uint64 `json:"src_chain"`
	DstChain    uint64 `json:"dst_chain"`
	SrcToken    string `json:"src_token"`
	DstToken    string `json:"dst_token"`
	Amount      string `json:"amount"`
	SlippageBps uint16 `json:"slippage_bps,omitempty"`
}

// QuoteInfo is one quoted route.
type QuoteInfo struct {
	ID            string `json:"id"`
	SrcChain      uint64 `json:"src_chain"`
	DstChain      uint64 `json:"dst_chain"`
	HopCount      int    `json:"hop_count"`
	EstDstAmount  string `json:"est_dst_amount,omitempty"`
	MinDstAmount  string `json:"min_dst_amount,omitempty"`
	EstDurationMs int64  `json:"est_duration_ms"`
	Confirmed     bool   `json:"confirmed"`
	Fastest       bool   `json:"fastest"`
	Error         string `json:"error,omitempty"`
}

// QuoteBatchResult is the outcome of one quoting request.
type QuoteBatchResult struct {
	Fingerprint string      `json:"fingerprint"`
	BestID      string      `json:"best_id,omitempty"`
	Quotes      []QuoteInfo `json:"quotes"`
}

// quotesRequest builds candidate routes, quotes them and returns the batch
// once every route resolved. Each finished quote is also streamed to
// WebSocket subscribers as it lands.
func (s *Server) quotesRequest(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p QuoteRequestParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}

	srcToken, err := s.reg.Token(registry.ChainID(p.SrcChain), common.HexToAddress(p.SrcToken))
	if err != nil {
		return nil, err
	}
	dstToken, err := s.reg.Token(registry.ChainID(p.DstChain), common.HexToAddress(p.DstToken))
	if err != nil {
		return nil, err
	}

	paths, err := s.builder.Build(registry.ChainID(p.SrcChain), registry.ChainID(p.DstChain), srcToken, dstToken, amount)
	if err != nil {
		return nil, err
	}

	cfg := s.agg.DefaultRouteConfig()
	if p.SlippageBps > 0 {
		cfg.SlippageBps = p.SlippageBps
	}

	quotes := make([]*quote.Quote, 0, len(paths))
	for q := range s.agg.QuoteBatch(ctx, paths, cfg) {
		quotes = append(quotes, q)
		if s.wsHub != nil {
			s.wsHub.Broadcast(EventQuote, quoteInfo(q))
		}
	}
	best := quote.Best(quotes)

	s.mu.Lock()
	s.quotes = make(map[string]*quote.Quote, len(quotes))
	for _, q := range quotes {
		s.quotes[q.ID] = q
	}
	s.mu.Unlock()

	result := QuoteBatchResult{
		Fingerprint: quote.Fingerprint(paths, cfg),
	}
	if best != nil {
		result.BestID = best.ID
	}
	for _, q := range quotes {
		result.Quotes = append(result.Quotes, quoteInfo(q))
	}
	if s.wsHub != nil {
		s.wsHub.Broadcast(EventQuoteBatchDone, result)
	}
	return result, nil
}

// QuoteConfirmParams finalizes a quote for submission.
type QuoteConfirmParams struct {
	QuoteID   string `json:"quote_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
}

// SubmissionInfo is the entry-point cell call the wallet must send.
type SubmissionInfo struct {
	ChainID      uint64 `json:"chain_id"`
	Cell         string `json:"cell"`
	Token        string `json:"token"`
	Amount       string `json:"amount"`
	Value        string `json:"value"`
	Instructions string `json:"instructions"`
	MinDstAmount string `json:"min_dst_amount"`
}

// quotesConfirm re-validates a quote, fetches firm orders for RFQ hops and
// encodes the instruction payload.
func (s *Server) quotesConfirm(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p QuoteConfirmParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	s.mu.Lock()
	q, ok := s.quotes[p.QuoteID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown quote %q", p.QuoteID)
	}

	sender := common.HexToAddress(p.Sender)
	if p.Recipient != "" {
		q.Recipient = common.HexToAddress(p.Recipient)
	}

	if err := s.agg.ConfirmForExecution(ctx, q, sender, s.agg.DefaultRouteConfig()); err != nil {
		return nil, err
	}
	sub, err := s.enc.Build(q, sender, encoder.FeeConfig{})
	if err != nil {
		return nil, err
	}

	return SubmissionInfo{
		ChainID:      uint64(sub.ChainID),
		Cell:         sub.Cell.Hex(),
		Token:        sub.Token.Hex(),
		Amount:       sub.Amount.String(),
		Value:        sub.Value.String(),
		Instructions: hexutil.Encode(sub.Encoded),
		MinDstAmount: q.MinDstAmount.String(),
	}, nil
}

// SwapTrackParams registers a submitted swap for tracking.
type SwapTrackParams struct {
	TxHash         string `json:"tx_hash"`
	QuoteID        string `json:"quote_id"`
	Account        string `json:"account"`
	InitiatedBlock uint64 `json:"initiated_block"`
	MsgSentID      string `json:"msg_sent_id,omitempty"`
}

// swapsTrack persists a swap record built from the executed quote and starts
// watching it.
func (s *Server) swapsTrack(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapTrackParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.TxHash == "" {
		return nil, fmt.Errorf("tx_hash is required")
	}

	s.mu.Lock()
	q, ok := s.quotes[p.QuoteID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown quote %q", p.QuoteID)
	}

	rec, err := swapRecord(q, p)
	if err != nil {
		return nil, err
	}
	if err := s.track.Track(ctx, rec); err != nil {
		return nil, err
	}
	return map[string]string{"id": rec.ID}, nil
}

// swapRecord converts an executed quote into its persisted tracking record.
func swapRecord(q *quote.Quote, p SwapTrackParams) (*storage.SwapRecord, error) {
	rec := &storage.SwapRecord{
		ID:             p.TxHash,
		Account:        common.HexToAddress(p.Account),
		SrcChain:       uint64(q.Path.SrcChain),
		DstChain:       uint64(q.Path.DstChain),
		SrcToken:       q.Path.SrcToken.Address,
		DstToken:       q.Path.DstToken.Address,
		SrcAmount:      q.Path.SrcAmount,
		EstDstAmount:   q.EstDstAmount,
		Status:         storage.SwapPending,
		InitiatedBlock: p.InitiatedBlock,
	}

	for i, hq := range q.Hops {
		action, err := encoder.ActionFor(hq.Type)
		if err != nil {
			return nil, err
		}
		dstCell := hq.Cell.Address
		if hq.Type.CrossChain() {
			dstCell = hq.DstCell.Address
		}
		hop := &storage.HopRecord{
			SwapID:    rec.ID,
			Index:     i,
			SrcChain:  uint64(hq.SrcChain),
			DstChain:  uint64(hq.DstChain),
			Action:    uint8(action),
			DstCell:   dstCell,
			DstToken:  hq.DstToken.Address,
			MinAmount: hq.MinAmountOut,
			Status:    storage.HopPending,
		}
		if i == 0 && p.MsgSentID != "" {
			hop.MsgSentID = common.HexToHash(p.MsgSentID)
		}
		rec.Hops = append(rec.Hops, hop)
	}
	return rec, nil
}

// SwapGetParams selects one swap by id.
type SwapGetParams struct {
	ID string `json:"id"`
}

// SwapInfo is one persisted swap.
type SwapInfo struct {
	ID           string        `json:"id"`
	Account      string        `json:"account"`
	SrcChain     uint64        `json:"src_chain"`
	DstChain     uint64        `json:"dst_chain"`
	SrcAmount    string        `json:"src_amount"`
	EstDstAmount string        `json:"est_dst_amount"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Hops         []SwapHopInfo `json:"hops"`
}

// SwapHopInfo is one hop of a persisted swap.
type SwapHopInfo struct {
	Index    int    `json:"index"`
	SrcChain uint64 `json:"src_chain"`
	DstChain uint64 `json:"dst_chain"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// swapsGet returns one swap with its hops.
func (s *Server) swapsGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	rec, err := s.store.GetSwap(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return swapInfo(rec), nil
}

// SwapListParams selects swaps by account.
type SwapListParams struct {
	Account string `json:"account"`
}

// swapsList returns the account's swaps, newest first.
func (s *Server) swapsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SwapListParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	recs, err := s.store.SwapsByAccount(ctx, common.HexToAddress(p.Account))
	if err != nil {
		return nil, err
	}
	out := make([]SwapInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, swapInfo(rec))
	}
	return out, nil
}

// PrefParams addresses one preference entry.
type PrefParams struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// prefsGet returns one preference value.
func (s *Server) prefsGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PrefParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	val, err := s.store.GetPref(ctx, p.Key)
	if err != nil {
		return nil, err
	}
	return map[string]string{"key": p.Key, "value": val}, nil
}

// prefsSet stores one preference value.
func (s *Server) prefsSet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p PrefParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	if err := s.store.SetPref(ctx, p.Key, p.Value); err != nil {
		return nil, err
	}
	return map[string]string{"key": p.Key, "value": p.Value}, nil
}

func quoteInfo(q *quote.Quote) QuoteInfo {
	info := QuoteInfo{
		ID:            q.ID,
		SrcChain:      uint64(q.Path.SrcChain),
		DstChain:      uint64(q.Path.DstChain),
		HopCount:      len(q.Hops),
		EstDurationMs: q.EstDuration.Milliseconds(),
		Confirmed:     q.Confirmed,
		Fastest:       q.Fastest,
	}
	if q.EstDstAmount != nil {
		info.EstDstAmount = q.EstDstAmount.String()
	}
	if q.MinDstAmount != nil {
		info.MinDstAmount = q.MinDstAmount.String()
	}
	if q.Err != nil {
		info.Error = q.Err.Error()
	}
	return info
}

func swapInfo(rec *storage.SwapRecord) SwapInfo {
	info := SwapInfo{
		ID:           rec.ID,
		Account:      rec.Account.Hex(),
		SrcChain:     rec.SrcChain,
		DstChain:     rec.DstChain,
		SrcAmount:    rec.SrcAmount.String(),
		EstDstAmount: rec.EstDstAmount.String(),
		Status:       string(rec.Status),
		Error:        rec.ErrorMessage,
	}
	for _, h := range rec.Hops {
		info.Hops = append(info.Hops, SwapHopInfo{
			Index:    h.Index,
			SrcChain: h.SrcChain,
			DstChain: h.DstChain,
			Status:   string(h.Status),
			Error:    h.ErrorMessage,
		})
	}
	return info
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}
