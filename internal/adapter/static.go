package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// StaticSource is a deterministic in-memory yield source used by tests and
// the CLI's offline mode. The rate only moves when SetRate is called, and
// deposits and withdrawals convert ideally at the current rate.
type StaticSource struct {
	Converter
	name string

	mu   sync.Mutex
	rate *big.Int
	now  func() time.Time
}

func NewStaticSource(name string, backingDecimals, yieldDecimals uint8, initialRate *big.Int) *StaticSource {
	return &StaticSource{
		Converter: NewConverter(backingDecimals, yieldDecimals),
		name:      name,
		rate:      new(big.Int).Set(initialRate),
		now:       time.Now,
	}
}

// SetClock overrides the observation clock, for deterministic tests.
func (s *StaticSource) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetRate replaces the source's rate (1e18 precision).
func (s *StaticSource) SetRate(rate *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = new(big.Int).Set(rate)
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) RateDecimals() uint8 { return 18 }

func (s *StaticSource) CurrentInterestRate(_ context.Context) (RateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RateSnapshot{Rate: new(big.Int).Set(s.rate), Decimals: 18, ObservedAt: s.now().UTC()}, nil
}

// UpdateInterestRate is a no-op refresh: the stored and live values are the
// same for an in-memory source.
func (s *StaticSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	return s.CurrentInterestRate(ctx)
}

func (s *StaticSource) DepositToUnderlying(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive deposit", ErrOperationFailed)
	}
	s.mu.Lock()
	rate := new(big.Int).Set(s.rate)
	s.mu.Unlock()
	minted, err := s.NumYieldTokensPerAsset(amount, rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return minted, nil
}

func (s *StaticSource) WithdrawFromUnderlyingProtocol(_ context.Context, yieldAmount *big.Int) (*big.Int, error) {
	if yieldAmount == nil || yieldAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive withdrawal", ErrOperationFailed)
	}
	s.mu.Lock()
	rate := new(big.Int).Set(s.rate)
	s.mu.Unlock()
	received, err := s.NumAssetsPerYieldToken(yieldAmount, rate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	return received, nil
}
