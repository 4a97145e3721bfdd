package tracker

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/storage"
)

// apply processes one matched log. All swap mutation happens here, on the
// Run goroutine; watchers only observe.
func (t *Tracker) apply(ctx context.Context, res watchResult) {
	rec, err := t.store.GetSwap(ctx, res.item.swapID)
	if err != nil {
		t.log.Warn("failed to load swap", "swap", res.item.swapID, "err", err)
		return
	}
	if rec.Status != storage.SwapPending {
		t.removeWatch(res.item)
		return
	}
	if res.item.hopIndex >= len(rec.Hops) {
		t.log.Error("watch item references missing hop", "swap", rec.ID, "hop", res.item.hopIndex)
		t.removeWatch(res.item)
		return
	}
	hop := rec.Hops[res.item.hopIndex]
	// The hop watermark records the block of the event actually applied;
	// every handler that lands a transition persists it with the record.
	hop.LastCheckedBlock = res.log.BlockNumber

	switch res.item.kind {
	case watchForward:
		t.handleForward(ctx, rec, hop, res)
	case watchWithdrawal:
		t.handleWithdrawal(ctx, rec, hop, res)
	case watchRollback:
		t.handleRollbackComplete(ctx, rec, hop, res)
	}
}

// handleForward proves a hop's cross-chain message arrived: fetch the
// delivery receipt, look for the rollback marker, otherwise decode the routed
// event and cross-validate it against the expected hop parameters.
func (t *Tracker) handleForward(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, res watchResult) {
	client, err := t.pool.Client(res.item.chain)
	if err != nil {
		t.log.Warn("no client for receipt fetch", "chain", res.item.chain, "err", err)
		return
	}
	receipt, err := client.TransactionReceipt(ctx, res.log.TxHash)
	if err != nil {
		// Retried on the next block tick; the watch item stays live.
		t.log.Warn("failed to fetch receipt", "tx", res.log.TxHash, "err", err)
		return
	}

	if rb := findReceiptLog(receipt.Logs, evRollback.ID, res.item.msgID); rb != nil {
		t.startRollback(ctx, rec, hop, res.item)
		return
	}

	routed := findReceiptLog(receipt.Logs, evRouted.ID, res.item.msgID)
	if routed == nil {
		t.failSwap(ctx, rec, hop, res.item, "message received without routed or rollback event")
		return
	}
	ev, err := decodeRouted(routed)
	if err != nil {
		t.failSwap(ctx, rec, hop, res.item, err.Error())
		return
	}

	if ev.DestinationCell != hop.DstCell {
		mismatch := &EventMismatchError{Field: "destination cell", Observed: ev.DestinationCell, Expected: hop.DstCell}
		t.failSwap(ctx, rec, hop, res.item, mismatch.Error())
		return
	}
	if ev.Token != hop.DstToken {
		mismatch := &EventMismatchError{Field: "destination token", Observed: ev.Token, Expected: hop.DstToken}
		t.failSwap(ctx, rec, hop, res.item, mismatch.Error())
		return
	}
	if ev.Action != hop.Action {
		t.failSwap(ctx, rec, hop, res.item, "event mismatch: action code differs from expected")
		return
	}

	hop.MsgReceivedID = res.item.msgID
	if err := hop.TransitionTo(storage.HopSuccess); err != nil {
		t.log.Warn("hop transition rejected", "swap", rec.ID, "hop", hop.Index, "err", err)
		return
	}
	t.removeWatch(res.item)

	last := hop.Index == len(rec.Hops)-1
	if last {
		t.finishTerminalHop(ctx, rec, hop, res, receipt.Logs)
		return
	}

	next := rec.Hops[hop.Index+1]
	next.MsgSentID = ev.NextMessageID
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
		return
	}
	t.notify(NotifyHopCompleted, rec.ID, "hop completed")

	t.addWatch(&watchItem{
		swapID: rec.ID, hopIndex: next.Index, kind: watchForward,
		chain:     registry.ChainID(next.DstChain),
		msgID:     next.MsgSentID,
		fromBlock: t.chainResumeBlock(ctx, registry.ChainID(next.DstChain), rec),
	})
}

// finishTerminalHop closes out the last hop: the recipient withdrawal in the
// same receipt completes the swap immediately, otherwise keep watching for it.
func (t *Tracker) finishTerminalHop(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, res watchResult, logs []*types.Log) {
	if wd := findWithdrawalTo(logs, rec.Account); wd != nil {
		t.completeSwap(ctx, rec)
		return
	}
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
		return
	}
	t.addWatch(&watchItem{
		swapID: rec.ID, hopIndex: hop.Index, kind: watchWithdrawal,
		chain:     registry.ChainID(hop.DstChain),
		recipient: rec.Account,
		fromBlock: res.log.BlockNumber,
	})
}

// handleWithdrawal marks the swap complete once the recipient's tokens landed.
func (t *Tracker) handleWithdrawal(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, res watchResult) {
	if hop.Status == storage.HopPending {
		if err := hop.TransitionTo(storage.HopSuccess); err != nil {
			t.log.Warn("hop transition rejected", "swap", rec.ID, "hop", hop.Index, "err", err)
			return
		}
	}
	t.removeWatch(res.item)
	t.completeSwap(ctx, rec)
}

// startRollback flips the hop into rollback tracking: forward progress stops
// and the watcher moves to the original source chain's withdrawal event.
func (t *Tracker) startRollback(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, item *watchItem) {
	if err := hop.TransitionTo(storage.HopRollbackPending); err != nil {
		t.log.Warn("hop transition rejected", "swap", rec.ID, "hop", hop.Index, "err", err)
		return
	}
	hop.RollbackData = "rollback detected, watching source chain for withdrawal"
	// The watch moves to the source chain; its watermark restarts there.
	hop.LastCheckedBlock = 0
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
		return
	}

	t.removeWatch(item)
	t.addWatch(&watchItem{
		swapID: rec.ID, hopIndex: hop.Index, kind: watchRollback,
		chain:     registry.ChainID(hop.SrcChain),
		recipient: rec.Account,
		fromBlock: t.watchStartBlock(ctx, registry.ChainID(hop.SrcChain), 0, rec),
	})
	t.notify(NotifyRollbackPending, rec.ID, "destination call failed, funds returning to sender")
}

// handleRollbackComplete observes the source-chain withdrawal that returns
// funds to the sender.
func (t *Tracker) handleRollbackComplete(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, res watchResult) {
	if err := hop.TransitionTo(storage.HopRollbackComplete); err != nil {
		t.log.Warn("hop transition rejected", "swap", rec.ID, "hop", hop.Index, "err", err)
		return
	}
	rec.ErrorMessage = "swap rolled back, funds returned to sender"
	if err := rec.TransitionTo(storage.SwapError); err != nil {
		t.log.Warn("swap transition rejected", "swap", rec.ID, "err", err)
		return
	}
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
		return
	}
	t.removeWatch(res.item)
	t.notify(NotifyRollbackComplete, rec.ID, rec.ErrorMessage)
}

func (t *Tracker) completeSwap(ctx context.Context, rec *storage.SwapRecord) {
	if err := rec.TransitionTo(storage.SwapSuccess); err != nil {
		t.log.Warn("swap transition rejected", "swap", rec.ID, "err", err)
		return
	}
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
		return
	}
	t.log.Info("swap completed", "swap", rec.ID)
	t.notify(NotifySwapSuccess, rec.ID, "swap completed")
}

func (t *Tracker) failSwap(ctx context.Context, rec *storage.SwapRecord, hop *storage.HopRecord, item *watchItem, msg string) {
	hop.ErrorMessage = msg
	if err := hop.TransitionTo(storage.HopError); err != nil {
		t.log.Warn("hop transition rejected", "swap", rec.ID, "hop", hop.Index, "err", err)
	}
	rec.ErrorMessage = msg
	if err := rec.TransitionTo(storage.SwapError); err != nil {
		t.log.Warn("swap transition rejected", "swap", rec.ID, "err", err)
	}
	if err := t.store.SaveSwap(ctx, rec); err != nil {
		t.log.Error("failed to persist swap", "swap", rec.ID, "err", err)
	}
	t.removeWatch(item)
	t.log.Error("swap tracking failed", "swap", rec.ID, "hop", hop.Index, "reason", msg)
	t.notify(NotifySwapError, rec.ID, msg)
}

// chainResumeBlock picks a fresh watch start on a chain we have not watched
// for this swap yet: a little below the current head.
func (t *Tracker) chainResumeBlock(ctx context.Context, chain registry.ChainID, rec *storage.SwapRecord) uint64 {
	client, err := t.pool.Client(chain)
	if err != nil {
		return resumeBlock(0, rec.InitiatedBlock)
	}
	head, err := client.BlockNumber(ctx)
	if err != nil || head < watermarkBuffer {
		return resumeBlock(0, rec.InitiatedBlock)
	}
	return head - watermarkBuffer
}

// findWithdrawalTo returns the first withdrawal log paying the recipient.
func findWithdrawalTo(logs []*types.Log, recipient common.Address) *types.Log {
	for _, l := range logs {
		if len(l.Topics) >= 2 && l.Topics[0] == evWithdrawn.ID && l.Topics[1] == common.BytesToHash(recipient.Bytes()) {
			return l
		}
	}
	return nil
}
