package tracker

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// watchResult carries one matched log back to the apply loop.
type watchResult struct {
	item *watchItem
	log  types.Log
}

// chainWatcher owns all outstanding queries on one chain: its own watermark
// per item and its own poll cadence. RPC errors on one chain never stall the
// others; the next block tick retries naturally.
type chainWatcher struct {
	t     *Tracker
	chain registry.ChainID
	log   *logging.Logger

	items map[string]*watchItem
}

func newChainWatcher(t *Tracker, chain registry.ChainID) *chainWatcher {
	return &chainWatcher{
		t:     t,
		chain: chain,
		log:   t.log.With("chain", chain),
		items: make(map[string]*watchItem),
	}
}

func (w *chainWatcher) add(item *watchItem) {
	w.items[item.key()] = item
}

func (w *chainWatcher) remove(key string) {
	delete(w.items, key)
}

func (w *chainWatcher) interval(ctx context.Context) time.Duration {
	d := w.t.pool.AvgBlockTime(ctx, w.chain)
	if d <= 0 {
		d = 2 * time.Second
	}
	return d
}

func (w *chainWatcher) run(ctx context.Context) {
	if ctx == nil {
		return
	}
	ticker := time.NewTicker(w.interval(ctx))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *chainWatcher) poll(ctx context.Context) {
	client, err := w.t.pool.Client(w.chain)
	if err != nil {
		w.log.Warn("no client", "err", err)
		return
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		w.log.Warn("failed to fetch head", "err", err)
		return
	}

	maxRange := uint64(2048)
	if chain, err := w.t.reg.Chain(w.chain); err == nil && chain.MaxQueryBlockRange > 0 {
		maxRange = chain.MaxQueryBlockRange
	}

	w.t.mu.Lock()
	items := make([]*watchItem, 0, len(w.items))
	for _, it := range w.items {
		items = append(items, it)
	}
	w.t.mu.Unlock()

	for _, item := range items {
		if item.fromBlock > head {
			continue
		}
		to := head
		if to > item.fromBlock+maxRange-1 {
			to = item.fromBlock + maxRange - 1
		}

		logs, err := client.FilterLogs(ctx, itemQuery(item, to))
		if err != nil {
			w.log.Warn("log query failed", "swap", item.swapID, "hop", item.hopIndex, "err", err)
			continue
		}

		for i := range logs {
			select {
			case w.t.results <- watchResult{item: item, log: logs[i]}:
			case <-ctx.Done():
				return
			}
		}

		item.fromBlock = to + 1
		if len(logs) > 0 {
			// The persisted watermark moves only once the apply loop lands
			// the resulting transition; a crash in between must re-scan.
			continue
		}
		if err := w.t.store.SetHopWatermark(ctx, item.swapID, item.hopIndex, to); err != nil {
			w.log.Warn("failed to persist watermark", "swap", item.swapID, "err", err)
		}
	}
}

func itemQuery(item *watchItem, to uint64) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(item.fromBlock),
		ToBlock:   new(big.Int).SetUint64(to),
	}
	switch item.kind {
	case watchForward:
		q.Topics = [][]common.Hash{{evMessageReceived.ID}, {item.msgID}}
	case watchWithdrawal, watchRollback:
		q.Topics = [][]common.Hash{{evWithdrawn.ID}, {common.BytesToHash(item.recipient.Bytes())}}
	}
	return q
}
