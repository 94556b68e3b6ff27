package rate

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"yieldsplit/internal/adapter"
)

// Source is the slice of the protocol adapter the oracle needs.
type Source interface {
	Name() string
	UpdateInterestRate(ctx context.Context) (adapter.RateSnapshot, error)
}

// Oracle tracks the pool's interest rate in the internal 1e18 precision.
// It is owned by exactly one pool engine, which serializes all calls, so no
// internal locking is needed.
type Oracle struct {
	source Source
	logger *zap.Logger

	initial    *big.Int
	current    *big.Int
	maturity   *big.Int
	halted     bool
	observedAt time.Time
}

// NewOracle fetches the first observation from the source and records it as
// both the initial and current rate.
func NewOracle(ctx context.Context, source Source, logger *zap.Logger) (*Oracle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	snap, err := source.UpdateInterestRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial rate: %w", err)
	}
	normalized, err := snap.Normalized()
	if err != nil {
		return nil, fmt.Errorf("normalize initial rate: %w", err)
	}
	if normalized.Sign() <= 0 {
		return nil, fmt.Errorf("initial rate must be positive, got %s", normalized)
	}
	return &Oracle{
		source:     source,
		logger:     logger,
		initial:    normalized,
		current:    new(big.Int).Set(normalized),
		observedAt: snap.ObservedAt,
	}, nil
}

// Restore rebuilds an oracle from persisted pool state. maturity may be nil
// when the pool has not crossed its maturity timestamp yet.
func Restore(source Source, logger *zap.Logger, initial, current, maturity *big.Int, halted bool) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Oracle{
		source:  source,
		logger:  logger,
		initial: new(big.Int).Set(initial),
		current: new(big.Int).Set(current),
		halted:  halted,
	}
	if maturity != nil {
		o.maturity = new(big.Int).Set(maturity)
	}
	return o
}

// Refresh pulls a new observation and applies the comparison policy: a rate
// below the stored value is a negative-yield event — the pool halts
// permanently and the usable rate is clamped to the previous observation so
// already-minted claims stay solvent. A rate at or above the stored value is
// stored and used. The effective rate is returned.
func (o *Oracle) Refresh(ctx context.Context) (*big.Int, error) {
	snap, err := o.source.UpdateInterestRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh rate: %w", err)
	}
	normalized, err := snap.Normalized()
	if err != nil {
		return nil, fmt.Errorf("normalize rate: %w", err)
	}

	if normalized.Cmp(o.current) < 0 {
		if !o.halted {
			o.logger.Warn("negative yield detected, pool halted",
				zap.String("source", o.source.Name()),
				zap.String("previous", o.current.String()),
				zap.String("observed", normalized.String()),
			)
		}
		o.halted = true
		o.observedAt = snap.ObservedAt
		return new(big.Int).Set(o.current), nil
	}

	o.current = normalized
	o.observedAt = snap.ObservedAt
	return new(big.Int).Set(o.current), nil
}

// FreezeAtMaturity fixes the maturity rate from the same comparison logic
// as Refresh. It is applied lazily on the first interaction at or after the
// maturity timestamp and is permanent.
func (o *Oracle) FreezeAtMaturity(ctx context.Context) (*big.Int, error) {
	if o.maturity != nil {
		return new(big.Int).Set(o.maturity), nil
	}
	effective, err := o.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	o.maturity = new(big.Int).Set(effective)
	o.logger.Info("maturity rate frozen", zap.String("rate", o.maturity.String()))
	return effective, nil
}

// Initial returns the rate recorded at pool creation.
func (o *Oracle) Initial() *big.Int { return new(big.Int).Set(o.initial) }

// Current returns the most recently stored rate.
func (o *Oracle) Current() *big.Int { return new(big.Int).Set(o.current) }

// Maturity returns the frozen maturity rate, or nil before the freeze.
func (o *Oracle) Maturity() *big.Int {
	if o.maturity == nil {
		return nil
	}
	return new(big.Int).Set(o.maturity)
}

// Halted reports whether a negative-yield event was ever observed.
func (o *Oracle) Halted() bool { return o.halted }

// ObservedAt returns the timestamp of the latest observation.
func (o *Oracle) ObservedAt() time.Time { return o.observedAt }
