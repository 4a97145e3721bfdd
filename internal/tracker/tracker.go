// Package tracker watches on-chain events across chains to advance the
// persisted per-swap state machine. It is the sole authority for whether a
// swap completed, failed, or rolled back.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainhop-exchange/chainhop/internal/evm"
	"github.com/chainhop-exchange/chainhop/internal/registry"
	"github.com/chainhop-exchange/chainhop/internal/storage"
	"github.com/chainhop-exchange/chainhop/pkg/logging"
)

// ErrNotRunning marks Track calls before Run has started.
var ErrNotRunning = errors.New("tracker is not running")

// watermarkBuffer is how many blocks below the initiated block a watch
// starts, covering reorgs and off-by-one block reporting.
const watermarkBuffer = 10

// EventMismatchError reports an on-chain event whose decoded fields disagree
// with the expected hop parameters. Fatal for the swap's automated tracking.
type EventMismatchError struct {
	Field    string
	Observed common.Address
	Expected common.Address
}

func (e *EventMismatchError) Error() string {
	return fmt.Sprintf("event mismatch: %s observed %s, expected %s", e.Field, e.Observed, e.Expected)
}

// NotificationKind classifies tracker notifications.
type NotificationKind string

const (
	NotifyHopCompleted     NotificationKind = "hop_completed"
	NotifySwapSuccess      NotificationKind = "swap_success"
	NotifySwapError        NotificationKind = "swap_error"
	NotifyRollbackPending  NotificationKind = "rollback_pending"
	NotifyRollbackComplete NotificationKind = "rollback_complete"
)

// Notification is a user-visible tracking update.
type Notification struct {
	Kind    NotificationKind
	SwapID  string
	Message string
}

type watchKind int

const (
	watchForward    watchKind = iota // cross-chain message received
	watchWithdrawal                  // recipient withdrawal, terminal hop
	watchRollback                    // source-chain withdrawal after rollback
)

// watchItem is one outstanding query owned by a chain watcher.
type watchItem struct {
	swapID    string
	hopIndex  int
	kind      watchKind
	chain     registry.ChainID
	msgID     common.Hash    // forward watches
	recipient common.Address // withdrawal and rollback watches
	fromBlock uint64
}

func (w *watchItem) key() string {
	return fmt.Sprintf("%s/%d/%d", w.swapID, w.hopIndex, w.kind)
}

// Tracker drives swap state machines from chain events. One watcher goroutine
// per chain with outstanding queries; results funnel into a single apply loop
// that owns all SwapHistory mutation.
type Tracker struct {
	reg   *registry.Registry
	pool  *evm.Pool
	store *storage.Storage
	log   *logging.Logger

	results chan watchResult
	notifs  chan Notification

	mu       sync.Mutex
	watchers map[registry.ChainID]*chainWatcher
	runCtx   context.Context
}

// New creates a tracker. Call Run before Track.
func New(reg *registry.Registry, pool *evm.Pool, store *storage.Storage, log *logging.Logger) *Tracker {
	return &Tracker{
		reg:      reg,
		pool:     pool,
		store:    store,
		log:      log.Component("tracker"),
		results:  make(chan watchResult, 64),
		notifs:   make(chan Notification, 64),
		watchers: make(map[registry.ChainID]*chainWatcher),
	}
}

// Notifications returns the tracker's notification stream.
func (t *Tracker) Notifications() <-chan Notification {
	return t.notifs
}

// Run resumes tracking of persisted pending swaps and processes watcher
// results until the context ends.
func (t *Tracker) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	pending, err := t.store.PendingSwaps(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending swaps: %w", err)
	}
	for _, rec := range pending {
		if err := t.watchNextPending(ctx, rec); err != nil {
			t.log.Warn("failed to resume swap", "swap", rec.ID, "err", err)
		}
	}
	t.log.Info("tracker started", "resumed", len(pending))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-t.results:
			t.apply(ctx, res)
		}
	}
}

// Track starts watching a newly submitted swap. The record must carry the
// first hop's sent message id (or the recipient withdrawal expectation for a
// same-chain swap).
func (t *Tracker) Track(ctx context.Context, rec *storage.SwapRecord) error {
	t.mu.Lock()
	running := t.runCtx != nil
	t.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	if err := t.store.SaveSwap(ctx, rec); err != nil {
		return err
	}
	return t.watchNextPending(ctx, rec)
}

// watchNextPending registers the watch for the first hop still pending.
func (t *Tracker) watchNextPending(ctx context.Context, rec *storage.SwapRecord) error {
	for _, hop := range rec.Hops {
		switch hop.Status {
		case storage.HopSuccess:
			continue
		case storage.HopRollbackPending:
			chain := registry.ChainID(hop.SrcChain)
			t.addWatch(&watchItem{
				swapID: rec.ID, hopIndex: hop.Index, kind: watchRollback,
				chain:     chain,
				recipient: rec.Account,
				fromBlock: t.watchStartBlock(ctx, chain, hop.LastCheckedBlock, rec),
			})
			return nil
		case storage.HopPending:
			chain := registry.ChainID(hop.DstChain)
			item := &watchItem{
				swapID: rec.ID, hopIndex: hop.Index,
				chain:     chain,
				fromBlock: t.watchStartBlock(ctx, chain, hop.LastCheckedBlock, rec),
			}
			if hop.MsgSentID == (common.Hash{}) {
				// Same-chain hop: only the recipient withdrawal proves it.
				item.kind = watchWithdrawal
				item.recipient = rec.Account
			} else {
				item.kind = watchForward
				item.msgID = hop.MsgSentID
			}
			t.addWatch(item)
			return nil
		default:
			return nil
		}
	}
	return nil
}

// watchStartBlock picks where a fresh watch begins. The initiated block only
// means anything on the source chain; on every other chain the watch anchors
// to that chain's own head.
func (t *Tracker) watchStartBlock(ctx context.Context, chain registry.ChainID, lastChecked uint64, rec *storage.SwapRecord) uint64 {
	if lastChecked > 0 {
		return lastChecked + 1
	}
	if chain == registry.ChainID(rec.SrcChain) {
		return resumeBlock(0, rec.InitiatedBlock)
	}
	return t.chainResumeBlock(ctx, chain, rec)
}

func resumeBlock(lastChecked, initiated uint64) uint64 {
	if lastChecked > 0 {
		return lastChecked + 1
	}
	if initiated > watermarkBuffer {
		return initiated - watermarkBuffer
	}
	return 0
}

func (t *Tracker) addWatch(item *watchItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.watchers[item.chain]
	if !ok {
		w = newChainWatcher(t, item.chain)
		t.watchers[item.chain] = w
		go w.run(t.runCtx)
	}
	w.add(item)
}

func (t *Tracker) removeWatch(item *watchItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.watchers[item.chain]; ok {
		w.remove(item.key())
	}
}

func (t *Tracker) notify(kind NotificationKind, swapID, msg string) {
	select {
	case t.notifs <- Notification{Kind: kind, SwapID: swapID, Message: msg}:
	default:
		t.log.Warn("notification dropped", "kind", kind, "swap", swapID)
	}
}
