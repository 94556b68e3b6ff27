package ledger

import (
	"errors"
	"math/big"
	"testing"
)

func TestMintPairCouplesClaims(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if l.BalanceOf(Principal, "alice").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal balance mismatch")
	}
	if l.BalanceOf(Yield, "alice").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("yield balance mismatch")
	}
	if l.TotalSupply(Principal).Cmp(l.TotalSupply(Yield)) != 0 {
		t.Fatalf("supplies diverged after mint")
	}
}

func TestMintPairRejectsZero(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := l.MintPair("alice", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
}

func TestIndependentBurn(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.Burn(Yield, "alice", big.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if l.BalanceOf(Yield, "alice").Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("yield balance mismatch after burn")
	}
	if l.BalanceOf(Principal, "alice").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal balance must be untouched by yield burn")
	}
}

func TestBurnInsufficient(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(Principal, "alice", big.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := l.Burn(Principal, "bob", big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unknown holder, got %v", err)
	}
}

func TestBurnPairAtomic(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(Yield, "alice", big.NewInt(60)); err != nil {
		t.Fatalf("burn: %v", err)
	}

	// Yield side lacks balance, so neither side may change.
	if err := l.BurnPair("alice", big.NewInt(50), big.NewInt(50)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.BalanceOf(Principal, "alice").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal changed on failed pair burn")
	}
	if l.BalanceOf(Yield, "alice").Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("yield changed on failed pair burn")
	}

	if err := l.BurnPair("alice", big.NewInt(100), big.NewInt(40)); err != nil {
		t.Fatalf("pair burn: %v", err)
	}
	if l.TotalSupply(Principal).Sign() != 0 || l.TotalSupply(Yield).Sign() != 0 {
		t.Fatalf("supply not drained: %s / %s", l.TotalSupply(Principal), l.TotalSupply(Yield))
	}
}

func TestTransferPreservesSupply(t *testing.T) {
	l := NewShareLedger()
	if err := l.MintPair("alice", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	supplyBefore := l.TotalSupply(Yield)

	if err := l.Transfer(Yield, "alice", "bob", big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if l.BalanceOf(Yield, "bob").Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("recipient balance mismatch")
	}
	if l.TotalSupply(Yield).Cmp(supplyBefore) != 0 {
		t.Fatalf("transfer changed supply")
	}
}

func TestRestoreRebuildsSupply(t *testing.T) {
	l := NewShareLedger()
	l.Restore(Principal, map[string]*big.Int{
		"alice": big.NewInt(70),
		"bob":   big.NewInt(30),
		"zero":  big.NewInt(0),
	})
	if l.TotalSupply(Principal).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("restored supply mismatch: %s", l.TotalSupply(Principal))
	}
	if l.BalanceOf(Principal, "zero").Sign() != 0 {
		t.Fatalf("zero balance should not be stored")
	}
}
