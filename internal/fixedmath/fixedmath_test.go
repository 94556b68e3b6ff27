package fixedmath

import (
	"errors"
	"math/big"
	"testing"
)

func TestMulDivTruncates(t *testing.T) {
	got, err := MulDiv(big.NewInt(10), big.NewInt(10), big.NewInt(3), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("expected 33, got %s", got)
	}
}

func TestMulDivRoundsUp(t *testing.T) {
	got, err := MulDiv(big.NewInt(10), big.NewInt(10), big.NewInt(3), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(34)) != 0 {
		t.Fatalf("expected 34, got %s", got)
	}
}

func TestMulDivExactNoRounding(t *testing.T) {
	got, err := MulDiv(big.NewInt(6), big.NewInt(4), big.NewInt(8), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("expected 3, got %s", got)
	}
}

func TestMulDivNegativeRoundsAwayFromZero(t *testing.T) {
	got, err := MulDiv(big.NewInt(-10), big.NewInt(10), big.NewInt(3), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(-34)) != 0 {
		t.Fatalf("expected -34, got %s", got)
	}
}

func TestMulDivDivideByZero(t *testing.T) {
	if _, err := MulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0), false); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
	if _, err := MulDiv(big.NewInt(1), big.NewInt(1), nil, false); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero for nil denominator, got %v", err)
	}
}

func TestMulDivWideIntermediate(t *testing.T) {
	// a*b overflows 256 bits but the quotient does not.
	big255 := new(big.Int).Lsh(big.NewInt(1), 255)
	got, err := MulDiv(big255, big.NewInt(4), big.NewInt(8), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := new(big.Int).Rsh(big255, 1)
	if got.Cmp(want) != 0 {
		t.Fatalf("quotient mismatch: %s != %s", got, want)
	}
}

func TestMulDivOverflow(t *testing.T) {
	big256 := new(big.Int).Lsh(big.NewInt(1), 256)
	if _, err := MulDiv(big256, big.NewInt(2), big.NewInt(1), false); !errors.Is(err, ErrNumericOverflow) {
		t.Fatalf("expected ErrNumericOverflow, got %v", err)
	}
}

func TestRescale(t *testing.T) {
	up, err := Rescale(big.NewInt(5), 6, 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.Cmp(new(big.Int).Mul(big.NewInt(5), Pow10(12))) != 0 {
		t.Fatalf("upscale mismatch: %s", up)
	}

	down, err := Rescale(up, 18, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if down.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("downscale mismatch: %s", down)
	}
}
