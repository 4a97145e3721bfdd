package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Swap storage errors.
var (
	ErrSwapNotFound      = errors.New("swap not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SwapStatus is the whole-swap state.
type SwapStatus string

const (
	SwapPending SwapStatus = "pending"
	SwapSuccess SwapStatus = "success"
	SwapError   SwapStatus = "error"
)

// HopStatus is the per-hop state. Hops additionally track the protocol's
// rollback recovery path.
type HopStatus string

const (
	HopPending          HopStatus = "pending"
	HopSuccess          HopStatus = "success"
	HopError            HopStatus = "error"
	HopRollbackPending  HopStatus = "rollback_pending"
	HopRollbackComplete HopStatus = "rollback_complete"
)

var validSwapTransitions = map[SwapStatus][]SwapStatus{
	SwapPending: {SwapSuccess, SwapError},
}

var validHopTransitions = map[HopStatus][]HopStatus{
	HopPending:         {HopSuccess, HopError, HopRollbackPending},
	HopRollbackPending: {HopRollbackComplete, HopError},
}

func validTransition[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SwapRecord is one submitted swap, keyed by its source transaction hash.
type SwapRecord struct {
	ID           string
	Account      common.Address
	SrcChain     uint64
	DstChain     uint64
	SrcToken     common.Address
	DstToken     common.Address
	SrcAmount    *big.Int
	EstDstAmount *big.Int
	Status       SwapStatus
	// InitiatedBlock is the source-chain block the swap tx landed in; hop
	// watermarks start just below it.
	InitiatedBlock uint64
	ErrorMessage   string
	Hops           []*HopRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionTo validates and applies a whole-swap status change.
func (r *SwapRecord) TransitionTo(next SwapStatus) error {
	if !validTransition(validSwapTransitions, r.Status, next) {
		return fmt.Errorf("%w: swap %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// HopRecord is one hop of a persisted swap.
type HopRecord struct {
	SwapID   string
	Index    int
	SrcChain uint64
	DstChain uint64
	Action   uint8

	// Expected destination, cross-validated against observed events.
	DstCell   common.Address
	DstToken  common.Address
	MinAmount *big.Int

	Status HopStatus

	// Cross-chain message identifiers.
	MsgSentID     common.Hash
	MsgReceivedID common.Hash

	// LastCheckedBlock is the watcher's per-hop watermark on the chain
	// currently being observed.
	LastCheckedBlock uint64

	RollbackData string
	ErrorMessage string
	UpdatedAt    time.Time
}

// TransitionTo validates and applies a hop status change.
func (h *HopRecord) TransitionTo(next HopStatus) error {
	if !validTransition(validHopTransitions, h.Status, next) {
		return fmt.Errorf("%w: hop %s -> %s", ErrInvalidTransition, h.Status, next)
	}
	h.Status = next
	return nil
}

// SaveSwap upserts the swap and all of its hop rows. Last writer wins per
// swap id; only one watcher owns a swap's progression at a time.
func (s *Storage) SaveSwap(ctx context.Context, r *SwapRecord) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO swaps (id, account_address, src_chain, dst_chain, src_token, dst_token,
			src_amount, est_dst_amount, status, initiated_block, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		r.ID, r.Account.Hex(), r.SrcChain, r.DstChain, r.SrcToken.Hex(), r.DstToken.Hex(),
		r.SrcAmount.String(), r.EstDstAmount.String(), string(r.Status), r.InitiatedBlock,
		r.ErrorMessage, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert swap %s: %w", r.ID, err)
	}

	for _, h := range r.Hops {
		if err := upsertHop(ctx, tx, h, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertHop(ctx context.Context, tx *sql.Tx, h *HopRecord, now int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO swap_hops (swap_id, hop_index, src_chain, dst_chain, action, dst_cell,
			dst_token, min_amount, status, msg_sent_id, msg_received_id,
			last_checked_block, rollback_data, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(swap_id, hop_index) DO UPDATE SET
			status = excluded.status,
			msg_sent_id = excluded.msg_sent_id,
			msg_received_id = excluded.msg_received_id,
			last_checked_block = excluded.last_checked_block,
			rollback_data = excluded.rollback_data,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		h.SwapID, h.Index, h.SrcChain, h.DstChain, h.Action, h.DstCell.Hex(),
		h.DstToken.Hex(), h.MinAmount.String(), string(h.Status),
		h.MsgSentID.Hex(), h.MsgReceivedID.Hex(),
		h.LastCheckedBlock, h.RollbackData, h.ErrorMessage, now)
	if err != nil {
		return fmt.Errorf("failed to upsert hop %s/%d: %w", h.SwapID, h.Index, err)
	}
	return nil
}

// SaveHop upserts a single hop row.
func (s *Storage) SaveHop(ctx context.Context, h *HopRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := upsertHop(ctx, tx, h, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSwap loads a swap and its hops.
func (s *Storage) GetSwap(ctx context.Context, id string) (*SwapRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_address, src_chain, dst_chain, src_token, dst_token,
			src_amount, est_dst_amount, status, initiated_block, error_message, created_at, updated_at
		FROM swaps WHERE id = ?`, id)

	r, err := scanSwap(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSwapNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if r.Hops, err = s.hopsForSwap(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// SwapsByAccount returns the account's swaps, newest first.
func (s *Storage) SwapsByAccount(ctx context.Context, account common.Address) ([]*SwapRecord, error) {
	return s.querySwaps(ctx, `
		SELECT id, account_address, src_chain, dst_chain, src_token, dst_token,
			src_amount, est_dst_amount, status, initiated_block, error_message, created_at, updated_at
		FROM swaps WHERE account_address = ? ORDER BY created_at DESC`, account.Hex())
}

// PendingSwaps returns every swap still being tracked. Used on startup to
// resume watching.
func (s *Storage) PendingSwaps(ctx context.Context) ([]*SwapRecord, error) {
	return s.querySwaps(ctx, `
		SELECT id, account_address, src_chain, dst_chain, src_token, dst_token,
			src_amount, est_dst_amount, status, initiated_block, error_message, created_at, updated_at
		FROM swaps WHERE status = ? ORDER BY created_at`, string(SwapPending))
}

// UpdateSwapStatus validates the transition and persists it.
func (s *Storage) UpdateSwapStatus(ctx context.Context, id string, next SwapStatus, errMsg string) error {
	r, err := s.GetSwap(ctx, id)
	if err != nil {
		return err
	}
	if err := r.TransitionTo(next); err != nil {
		return err
	}
	r.ErrorMessage = errMsg

	_, err = s.db.ExecContext(ctx,
		`UPDATE swaps SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(next), errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update swap %s: %w", id, err)
	}
	return nil
}

// SetHopWatermark advances a hop's last-checked block.
func (s *Storage) SetHopWatermark(ctx context.Context, swapID string, index int, block uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE swap_hops SET last_checked_block = ?, updated_at = ? WHERE swap_id = ? AND hop_index = ?`,
		block, time.Now().Unix(), swapID, index)
	if err != nil {
		return fmt.Errorf("failed to set watermark %s/%d: %w", swapID, index, err)
	}
	return nil
}

func (s *Storage) querySwaps(ctx context.Context, query string, args ...any) ([]*SwapRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query swaps: %w", err)
	}
	defer rows.Close()

	var out []*SwapRecord
	for rows.Next() {
		r, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range out {
		if r.Hops, err = s.hopsForSwap(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Storage) hopsForSwap(ctx context.Context, swapID string) ([]*HopRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT swap_id, hop_index, src_chain, dst_chain, action, dst_cell, dst_token,
			min_amount, status, msg_sent_id, msg_received_id, last_checked_block,
			rollback_data, error_message, updated_at
		FROM swap_hops WHERE swap_id = ? ORDER BY hop_index`, swapID)
	if err != nil {
		return nil, fmt.Errorf("failed to query hops for %s: %w", swapID, err)
	}
	defer rows.Close()

	var hops []*HopRecord
	for rows.Next() {
		h := &HopRecord{MinAmount: new(big.Int)}
		var dstCell, dstToken, minAmount, status, sentID, recvID string
		var updatedAt int64
		if err := rows.Scan(&h.SwapID, &h.Index, &h.SrcChain, &h.DstChain, &h.Action,
			&dstCell, &dstToken, &minAmount, &status, &sentID, &recvID,
			&h.LastCheckedBlock, &h.RollbackData, &h.ErrorMessage, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hop: %w", err)
		}
		h.DstCell = common.HexToAddress(dstCell)
		h.DstToken = common.HexToAddress(dstToken)
		h.MinAmount.SetString(minAmount, 10)
		h.Status = HopStatus(status)
		h.MsgSentID = common.HexToHash(sentID)
		h.MsgReceivedID = common.HexToHash(recvID)
		h.UpdatedAt = time.Unix(updatedAt, 0)
		hops = append(hops, h)
	}
	return hops, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwap(row rowScanner) (*SwapRecord, error) {
	r := &SwapRecord{SrcAmount: new(big.Int), EstDstAmount: new(big.Int)}
	var account, srcToken, dstToken, srcAmount, estAmount, status string
	var createdAt, updatedAt int64
	if err := row.Scan(&r.ID, &account, &r.SrcChain, &r.DstChain, &srcToken, &dstToken,
		&srcAmount, &estAmount, &status, &r.InitiatedBlock, &r.ErrorMessage,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Account = common.HexToAddress(account)
	r.SrcToken = common.HexToAddress(srcToken)
	r.DstToken = common.HexToAddress(dstToken)
	r.SrcAmount.SetString(srcAmount, 10)
	r.EstDstAmount.SetString(estAmount, 10)
	r.Status = SwapStatus(status)
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	return r, nil
}
