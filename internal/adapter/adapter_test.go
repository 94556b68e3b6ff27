package adapter

import (
	"context"
	"math/big"
	"testing"
	"time"

	"yieldsplit/internal/fixedmath"
)

func rate(whole int64, hundredths int64) *big.Int {
	r := new(big.Int).Mul(big.NewInt(whole*100+hundredths), fixedmath.Pow10(16))
	return r
}

func TestConverterRoundTripSameDecimals(t *testing.T) {
	conv := NewConverter(18, 18)
	r := rate(1, 10) // 1.10

	yield := new(big.Int).Mul(big.NewInt(100), fixedmath.One)
	backing, err := conv.NumAssetsPerYieldToken(yield, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(110), fixedmath.One)
	if backing.Cmp(want) != 0 {
		t.Fatalf("backing mismatch: %s != %s", backing, want)
	}

	back, err := conv.NumYieldTokensPerAsset(backing, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Cmp(yield) != 0 {
		t.Fatalf("round trip mismatch: %s != %s", back, yield)
	}
}

func TestConverterMixedDecimals(t *testing.T) {
	// 6-decimal backing, 8-decimal yield token.
	conv := NewConverter(6, 8)
	r := rate(2, 0)

	yield := big.NewInt(100_000_000) // 1.0 yield token
	backing, err := conv.NumAssetsPerYieldToken(yield, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backing.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("backing mismatch: %s", backing)
	}

	back, err := conv.NumYieldTokensPerAsset(backing, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Cmp(yield) != 0 {
		t.Fatalf("round trip mismatch: %s != %s", back, yield)
	}
}

func TestSnapshotNormalizedFromRay(t *testing.T) {
	// Aave-style ray rate 1.05e27 normalizes to 1.05e18.
	ray := new(big.Int).Mul(big.NewInt(105), fixedmath.Pow10(25))
	snap := RateSnapshot{Rate: ray, Decimals: 27}
	norm, err := snap.Normalized()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(105), fixedmath.Pow10(16))
	if norm.Cmp(want) != 0 {
		t.Fatalf("normalized mismatch: %s != %s", norm, want)
	}
}

func TestStaticSourceRefreshIdempotent(t *testing.T) {
	src := NewStaticSource("static", 18, 18, rate(1, 0))
	fixed := time.Unix(1_700_000_000, 0)
	src.SetClock(func() time.Time { return fixed })

	first, err := src.UpdateInterestRate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := src.UpdateInterestRate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Rate.Cmp(second.Rate) != 0 {
		t.Fatalf("refresh not idempotent: %s != %s", first.Rate, second.Rate)
	}
}

func TestStaticSourceDepositWithdraw(t *testing.T) {
	src := NewStaticSource("static", 18, 18, rate(1, 25))

	backing := new(big.Int).Mul(big.NewInt(125), fixedmath.One)
	minted, err := src.DepositToUnderlying(context.Background(), backing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(100), fixedmath.One)
	if minted.Cmp(want) != 0 {
		t.Fatalf("minted mismatch: %s != %s", minted, want)
	}

	received, err := src.WithdrawFromUnderlyingProtocol(context.Background(), minted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Cmp(backing) != 0 {
		t.Fatalf("received mismatch: %s != %s", received, backing)
	}
}

func TestStaticSourceRejectsZero(t *testing.T) {
	src := NewStaticSource("static", 18, 18, rate(1, 0))
	if _, err := src.DepositToUnderlying(context.Background(), big.NewInt(0)); err == nil {
		t.Fatalf("expected error for zero deposit")
	}
	if _, err := src.WithdrawFromUnderlyingProtocol(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil withdrawal")
	}
}
