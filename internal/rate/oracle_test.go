package rate

import (
	"context"
	"math/big"
	"testing"

	"yieldsplit/internal/adapter"
	"yieldsplit/internal/fixedmath"
)

func fixedRate(hundredths int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(hundredths), fixedmath.Pow10(16))
}

func newTestOracle(t *testing.T, initial *big.Int) (*Oracle, *adapter.StaticSource) {
	t.Helper()
	src := adapter.NewStaticSource("static", 18, 18, initial)
	oracle, err := NewOracle(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("new oracle: %v", err)
	}
	return oracle, src
}

func TestOracleStoresIncreases(t *testing.T) {
	oracle, src := newTestOracle(t, fixedRate(100))

	src.SetRate(fixedRate(110))
	effective, err := oracle.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if effective.Cmp(fixedRate(110)) != 0 {
		t.Fatalf("effective rate mismatch: %s", effective)
	}
	if oracle.Current().Cmp(fixedRate(110)) != 0 {
		t.Fatalf("stored rate mismatch: %s", oracle.Current())
	}
	if oracle.Halted() {
		t.Fatalf("unexpected halt on rate increase")
	}
	if oracle.Initial().Cmp(fixedRate(100)) != 0 {
		t.Fatalf("initial rate changed: %s", oracle.Initial())
	}
}

func TestOracleRefreshIdempotent(t *testing.T) {
	oracle, _ := newTestOracle(t, fixedRate(100))

	first, err := oracle.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second, err := oracle.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("refresh not idempotent: %s != %s", first, second)
	}
}

func TestOracleClampsAndHaltsOnDecrease(t *testing.T) {
	oracle, src := newTestOracle(t, fixedRate(100))

	src.SetRate(fixedRate(95))
	effective, err := oracle.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if effective.Cmp(fixedRate(100)) != 0 {
		t.Fatalf("expected clamp to previous rate, got %s", effective)
	}
	if !oracle.Halted() {
		t.Fatalf("expected halt flag after decrease")
	}

	// Halt is permanent even if the rate recovers.
	src.SetRate(fixedRate(120))
	if _, err := oracle.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !oracle.Halted() {
		t.Fatalf("halt flag must be permanent")
	}
	if oracle.Current().Cmp(fixedRate(120)) != 0 {
		t.Fatalf("recovered rate should still be stored: %s", oracle.Current())
	}
}

func TestOracleFreezeAtMaturity(t *testing.T) {
	oracle, src := newTestOracle(t, fixedRate(100))

	src.SetRate(fixedRate(110))
	frozen, err := oracle.FreezeAtMaturity(context.Background())
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen.Cmp(fixedRate(110)) != 0 {
		t.Fatalf("frozen rate mismatch: %s", frozen)
	}

	// A later observation must not move the frozen rate.
	src.SetRate(fixedRate(130))
	again, err := oracle.FreezeAtMaturity(context.Background())
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if again.Cmp(fixedRate(110)) != 0 {
		t.Fatalf("maturity rate changed after freeze: %s", again)
	}
	if oracle.Maturity().Cmp(fixedRate(110)) != 0 {
		t.Fatalf("stored maturity mismatch: %s", oracle.Maturity())
	}
}

func TestOracleRestore(t *testing.T) {
	src := adapter.NewStaticSource("static", 18, 18, fixedRate(100))
	oracle := Restore(src, nil, fixedRate(100), fixedRate(105), nil, true)

	if !oracle.Halted() {
		t.Fatalf("restored halt flag lost")
	}
	if oracle.Maturity() != nil {
		t.Fatalf("maturity should be unset")
	}
	if oracle.Current().Cmp(fixedRate(105)) != 0 {
		t.Fatalf("restored current mismatch: %s", oracle.Current())
	}
}
