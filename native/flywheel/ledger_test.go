package flywheel

import (
	"errors"
	"math/big"
	"testing"
)

func newTestLedger() (*Ledger, *mockState) {
	st := newMockState()
	return NewLedger(st), st
}

func mustBalance(t *testing.T, got *big.Int, want int64) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("unexpected amount: got %s want %d", got, want)
	}
}

func TestLedgerCreditAndFreeBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)

	if err := ledger.Credit(campaign, token, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	free, err := ledger.FreeBalance(campaign, token)
	if err != nil {
		t.Fatalf("free balance: %v", err)
	}
	mustBalance(t, free, 1000)

	if err := ledger.Credit(campaign, token, big.NewInt(0)); err != nil {
		t.Fatalf("zero credit should be a no-op: %v", err)
	}
	if err := ledger.Credit(campaign, token, big.NewInt(-5)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("negative credit: got %v want ErrInvalidPayload", err)
	}
}

func TestLedgerReserveEnforcesFreeBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)

	if err := ledger.Reserve(campaign, token, key32(1), big.NewInt(1)); !errors.Is(err, ErrInsufficientCampaignFunds) {
		t.Fatalf("reserve on empty campaign: got %v", err)
	}
	if err := ledger.Credit(campaign, token, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key32(1), big.NewInt(0)); !errors.Is(err, ErrZeroPayoutAmount) {
		t.Fatalf("zero reserve: got %v", err)
	}
	if err := ledger.Reserve(campaign, token, key32(1), big.NewInt(60)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key32(2), big.NewInt(60)); !errors.Is(err, ErrInsufficientCampaignFunds) {
		t.Fatalf("over-reserve: got %v", err)
	}
	free, err := ledger.FreeBalance(campaign, token)
	if err != nil {
		t.Fatalf("free balance: %v", err)
	}
	mustBalance(t, free, 40)
}

func TestLedgerSettleConservation(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)
	key := key32(7)

	if err := ledger.Credit(campaign, token, big.NewInt(1000)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key, big.NewInt(50)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Settle(campaign, token, key, big.NewInt(30)); err != nil {
		t.Fatalf("settle: %v", err)
	}

	balance, _ := ledger.Balance(campaign, token)
	mustBalance(t, balance, 970)
	allocated, _ := ledger.Allocated(campaign, token, key)
	mustBalance(t, allocated, 20)
	distributed, _ := ledger.DistributedTotal(campaign, token)
	mustBalance(t, distributed, 30)
	free, _ := ledger.FreeBalance(campaign, token)
	mustBalance(t, free, 950)
}

func TestLedgerSettleExceedingAllocation(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)
	key := key32(7)

	if err := ledger.Credit(campaign, token, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key, big.NewInt(50)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err := ledger.Settle(campaign, token, key, big.NewInt(51))
	var allocErr *InsufficientAllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("over-settle: got %v want InsufficientAllocationError", err)
	}
	mustBalance(t, allocErr.Requested, 51)
	mustBalance(t, allocErr.Available, 50)
}

func TestLedgerReleaseLowersAllocation(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)
	key := key32(3)

	if err := ledger.Credit(campaign, token, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key, big.NewInt(40)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Release(campaign, token, key, big.NewInt(15)); err != nil {
		t.Fatalf("release: %v", err)
	}
	allocated, _ := ledger.Allocated(campaign, token, key)
	mustBalance(t, allocated, 25)
	free, _ := ledger.FreeBalance(campaign, token)
	mustBalance(t, free, 75)

	err := ledger.Release(campaign, token, key, big.NewInt(26))
	var allocErr *InsufficientAllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("over-release: got %v", err)
	}
}

func TestLedgerFeeLifecycle(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token, recipient := addr(1), addr(2), addr(9)

	if err := ledger.Credit(campaign, token, big.NewInt(200)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.EarmarkFee(campaign, token, recipient, big.NewInt(50)); err != nil {
		t.Fatalf("earmark: %v", err)
	}
	// Earmarked fees stay on-hand but leave the free balance.
	balance, _ := ledger.Balance(campaign, token)
	mustBalance(t, balance, 200)
	free, _ := ledger.FreeBalance(campaign, token)
	mustBalance(t, free, 150)

	collected, err := ledger.CollectFee(campaign, token, recipient)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	mustBalance(t, collected, 50)
	balance, _ = ledger.Balance(campaign, token)
	mustBalance(t, balance, 150)

	// Second collection yields zero, not an error.
	collected, err = ledger.CollectFee(campaign, token, recipient)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	mustBalance(t, collected, 0)
}

func TestLedgerEarmarkFeeRespectsFreeBalance(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token, recipient := addr(1), addr(2), addr(9)

	if err := ledger.Credit(campaign, token, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key32(1), big.NewInt(80)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.EarmarkFee(campaign, token, recipient, big.NewInt(30)); !errors.Is(err, ErrInsufficientCampaignFunds) {
		t.Fatalf("earmark over free: got %v", err)
	}
}

func TestLedgerDebit(t *testing.T) {
	ledger, _ := newTestLedger()
	campaign, token := addr(1), addr(2)

	if err := ledger.Credit(campaign, token, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Reserve(campaign, token, key32(1), big.NewInt(60)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Debit(campaign, token, big.NewInt(50)); !errors.Is(err, ErrInsufficientCampaignFunds) {
		t.Fatalf("debit beyond free: got %v", err)
	}
	if err := ledger.Debit(campaign, token, big.NewInt(40)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, _ := ledger.Balance(campaign, token)
	mustBalance(t, balance, 60)
	free, _ := ledger.FreeBalance(campaign, token)
	mustBalance(t, free, 0)
}
