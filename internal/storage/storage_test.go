package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func testStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(&Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSwap() *SwapRecord {
	return &SwapRecord{
		ID:             "0xabc123",
		Account:        common.HexToAddress("0x1100000000000000000000000000000000000001"),
		SrcChain:       43114,
		DstChain:       432204,
		SrcToken:       common.HexToAddress("0x1100000000000000000000000000000000000002"),
		DstToken:       common.HexToAddress("0x1100000000000000000000000000000000000003"),
		SrcAmount:      big.NewInt(1_000_000),
		EstDstAmount:   big.NewInt(990_000),
		Status:         SwapPending,
		InitiatedBlock: 555,
		Hops: []*HopRecord{
			{
				SwapID: "0xabc123", Index: 0,
				SrcChain: 43114, DstChain: 432204, Action: 0,
				DstCell:   common.HexToAddress("0x1100000000000000000000000000000000000004"),
				DstToken:  common.HexToAddress("0x1100000000000000000000000000000000000003"),
				MinAmount: big.NewInt(985_000),
				Status:    HopPending,
				MsgSentID: common.HexToHash("0xdead"),
			},
		},
	}
}

func TestSaveAndGetSwap(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	if err := s.SaveSwap(ctx, testSwap()); err != nil {
		t.Fatalf("SaveSwap error: %v", err)
	}

	got, err := s.GetSwap(ctx, "0xabc123")
	if err != nil {
		t.Fatalf("GetSwap error: %v", err)
	}
	if got.Status != SwapPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.SrcAmount.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Errorf("src amount = %s, want 1000000", got.SrcAmount)
	}
	if len(got.Hops) != 1 {
		t.Fatalf("got %d hops, want 1", len(got.Hops))
	}
	if got.Hops[0].MsgSentID != common.HexToHash("0xdead") {
		t.Errorf("msg sent id = %s", got.Hops[0].MsgSentID)
	}
	if got.Hops[0].MinAmount.Cmp(big.NewInt(985_000)) != 0 {
		t.Errorf("hop min = %s, want 985000", got.Hops[0].MinAmount)
	}
}

func TestSaveSwapUpsert(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	r := testSwap()
	if err := s.SaveSwap(ctx, r); err != nil {
		t.Fatal(err)
	}

	r.Status = SwapSuccess
	r.Hops[0].Status = HopSuccess
	r.Hops[0].LastCheckedBlock = 777
	if err := s.SaveSwap(ctx, r); err != nil {
		t.Fatalf("second SaveSwap error: %v", err)
	}

	got, err := s.GetSwap(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != SwapSuccess {
		t.Errorf("status = %s, want success", got.Status)
	}
	if got.Hops[0].LastCheckedBlock != 777 {
		t.Errorf("watermark = %d, want 777", got.Hops[0].LastCheckedBlock)
	}
}

func TestGetSwapNotFound(t *testing.T) {
	s := testStorage(t)
	if _, err := s.GetSwap(context.Background(), "nope"); !errors.Is(err, ErrSwapNotFound) {
		t.Errorf("err = %v, want ErrSwapNotFound", err)
	}
}

func TestUpdateSwapStatusTransitions(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	if err := s.SaveSwap(ctx, testSwap()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateSwapStatus(ctx, "0xabc123", SwapSuccess, ""); err != nil {
		t.Fatalf("pending -> success rejected: %v", err)
	}
	// Terminal states accept no further transitions.
	if err := s.UpdateSwapStatus(ctx, "0xabc123", SwapError, "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("success -> error err = %v, want ErrInvalidTransition", err)
	}
}

func TestHopTransitions(t *testing.T) {
	h := &HopRecord{Status: HopPending}

	if err := h.TransitionTo(HopRollbackPending); err != nil {
		t.Fatalf("pending -> rollback_pending rejected: %v", err)
	}
	if err := h.TransitionTo(HopSuccess); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("rollback_pending -> success err = %v, want ErrInvalidTransition", err)
	}
	if err := h.TransitionTo(HopRollbackComplete); err != nil {
		t.Fatalf("rollback_pending -> rollback_complete rejected: %v", err)
	}
}

func TestSwapsByAccountAndPending(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	r := testSwap()
	if err := s.SaveSwap(ctx, r); err != nil {
		t.Fatal(err)
	}

	byAccount, err := s.SwapsByAccount(ctx, r.Account)
	if err != nil {
		t.Fatal(err)
	}
	if len(byAccount) != 1 {
		t.Errorf("got %d swaps for account, want 1", len(byAccount))
	}

	pending, err := s.PendingSwaps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("got %d pending swaps, want 1", len(pending))
	}

	if err := s.UpdateSwapStatus(ctx, r.ID, SwapSuccess, ""); err != nil {
		t.Fatal(err)
	}
	pending, err = s.PendingSwaps(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending swaps after completion, want 0", len(pending))
	}
}

func TestSetHopWatermark(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	if err := s.SaveSwap(ctx, testSwap()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetHopWatermark(ctx, "0xabc123", 0, 999); err != nil {
		t.Fatalf("SetHopWatermark error: %v", err)
	}

	got, err := s.GetSwap(ctx, "0xabc123")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hops[0].LastCheckedBlock != 999 {
		t.Errorf("watermark = %d, want 999", got.Hops[0].LastCheckedBlock)
	}
}

func TestPreferences(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	if _, err := s.GetPref(ctx, PrefSlippageBps); !errors.Is(err, ErrPrefNotFound) {
		t.Errorf("err = %v, want ErrPrefNotFound", err)
	}

	sub := s.SubscribePref(PrefSlippageBps)

	if err := s.SetPref(ctx, PrefSlippageBps, "75"); err != nil {
		t.Fatalf("SetPref error: %v", err)
	}
	got, err := s.GetPref(ctx, PrefSlippageBps)
	if err != nil {
		t.Fatal(err)
	}
	if got != "75" {
		t.Errorf("value = %q, want 75", got)
	}

	select {
	case v := <-sub:
		if v != "75" {
			t.Errorf("subscriber got %q, want 75", v)
		}
	case <-time.After(time.Second):
		t.Error("subscriber not notified")
	}

	// Overwrite wins.
	if err := s.SetPref(ctx, PrefSlippageBps, "100"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetPref(ctx, PrefSlippageBps); got != "100" {
		t.Errorf("value = %q, want 100", got)
	}
}
