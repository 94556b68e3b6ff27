package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"yieldsplit/internal/adapter"
	"yieldsplit/internal/fixedmath"
	"yieldsplit/internal/ledger"
	"yieldsplit/internal/rate"
)

var (
	ErrZeroAmount            = errors.New("pool: amount must be positive")
	ErrUnequalShares         = errors.New("pool: principal and yield amounts must match before maturity")
	ErrInsufficientLiquidity = errors.New("pool: payout exceeds pool backing")
	ErrHalted                = errors.New("pool: minting halted after negative yield")
	ErrMatured               = errors.New("pool: deposits closed after maturity")
	ErrInsufficientShares    = errors.New("pool: insufficient claim balance")
)

// Config fixes the pool's immutable parameters and, on restore, its
// persisted mutable state.
type Config struct {
	MaturityTime time.Time
	Clock        func() time.Time

	// Restore-only fields; leave zero for a fresh pool.
	Matured      bool
	BackingYield *big.Int
	FeeShares    *big.Int
}

// Engine orchestrates deposits and redemptions for one pool. It exclusively
// owns its oracle and ledger and holds a non-owning reference to the
// protocol adapter. Operations are serialized by a per-pool mutex held for
// the full span of rate refresh, computation, ledger mutation, and adapter
// calls.
type Engine struct {
	mu     sync.Mutex
	source adapter.ProtocolAdapter
	oracle *rate.Oracle
	shares *ledger.ShareLedger
	fees   FeeProvider
	logger *zap.Logger
	clock  func() time.Time

	maturityTime time.Time
	matured      bool
	backingYield *big.Int // yield-bearing tokens held by the pool
	feeShares    *big.Int // shares withheld as deposit fees
}

func NewEngine(cfg Config, source adapter.ProtocolAdapter, oracle *rate.Oracle, shares *ledger.ShareLedger, fees FeeProvider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	backingYield := big.NewInt(0)
	if cfg.BackingYield != nil {
		backingYield = new(big.Int).Set(cfg.BackingYield)
	}
	feeShares := big.NewInt(0)
	if cfg.FeeShares != nil {
		feeShares = new(big.Int).Set(cfg.FeeShares)
	}
	return &Engine{
		source:       source,
		oracle:       oracle,
		shares:       shares,
		fees:         fees,
		logger:       logger,
		clock:        clock,
		maturityTime: cfg.MaturityTime,
		matured:      cfg.Matured,
		backingYield: backingYield,
		feeShares:    feeShares,
	}
}

// DepositBacking moves backing tokens into the yield source and mints equal
// principal and yield claims against the value received.
func (e *Engine) DepositBacking(ctx context.Context, holder string, amount *big.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	effective, err := e.refreshState(ctx)
	if err != nil {
		return nil, err
	}
	if e.matured {
		return nil, ErrMatured
	}
	if e.oracle.Halted() {
		return nil, ErrHalted
	}

	actualYield, err := e.source.DepositToUnderlying(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("deposit to source: %w", err)
	}

	receipt, err := e.mintForYield(holder, actualYield, effective, OpDepositBacking, amount, AssetBacking)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DepositYieldBearing mints claims against tokens already in yield-bearing
// form; no adapter deposit is needed.
func (e *Engine) DepositYieldBearing(ctx context.Context, holder string, yieldAmount *big.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if yieldAmount == nil || yieldAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	effective, err := e.refreshState(ctx)
	if err != nil {
		return nil, err
	}
	if e.matured {
		return nil, ErrMatured
	}
	if e.oracle.Halted() {
		return nil, ErrHalted
	}

	return e.mintForYield(holder, yieldAmount, effective, OpDepositYieldBearing, yieldAmount, AssetYieldBearing)
}

// mintForYield converts received yield-bearing tokens into claim shares,
// applies the deposit fee, and commits the mint. Shares are denominated in
// backing units at the pool's initial rate, which is what makes principal
// redemption 1:1 at maturity.
func (e *Engine) mintForYield(holder string, actualYield, effective *big.Int, kind OpKind, amountIn *big.Int, assetIn AssetKind) (*Receipt, error) {
	backingValue, err := e.source.NumAssetsPerYieldToken(actualYield, effective)
	if err != nil {
		return nil, fmt.Errorf("convert deposit: %w", err)
	}

	// Round minted shares down and the fee up: ambiguity resolves in the
	// pool's favor.
	minted, err := fixedmath.MulDiv(backingValue, e.oracle.Initial(), effective, false)
	if err != nil {
		return nil, fmt.Errorf("compute shares: %w", err)
	}
	fee, err := fixedmath.MulFixed(minted, e.fees.DepositFee(), true)
	if err != nil {
		return nil, fmt.Errorf("compute deposit fee: %w", err)
	}
	net := new(big.Int).Sub(minted, fee)
	if net.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	if err := e.shares.MintPair(holder, net); err != nil {
		return nil, err
	}
	e.backingYield.Add(e.backingYield, actualYield)
	e.feeShares.Add(e.feeShares, fee)

	e.logger.Info("deposit",
		zap.String("kind", string(kind)),
		zap.String("holder", holder),
		zap.String("amount_in", amountIn.String()),
		zap.String("shares", net.String()),
		zap.String("fee_shares", fee.String()),
		zap.String("rate", effective.String()),
	)

	return &Receipt{
		Kind:         kind,
		Holder:       holder,
		AmountIn:     new(big.Int).Set(amountIn),
		AssetIn:      assetIn,
		AmountOut:    new(big.Int).Set(net),
		AssetOut:     AssetYieldBearing,
		SharesMinted: net,
		Fee:          fee,
		RateUsed:     new(big.Int).Set(effective),
		Matured:      e.matured,
		Timestamp:    e.clock().UTC(),
	}, nil
}

// Redeem burns claims and pays out in the yield-bearing asset.
func (e *Engine) Redeem(ctx context.Context, holder string, principals, yields *big.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeem(ctx, holder, principals, yields, false)
}

// RedeemToBacking burns claims and withdraws the payout from the yield
// source as backing tokens.
func (e *Engine) RedeemToBacking(ctx context.Context, holder string, principals, yields *big.Int) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeem(ctx, holder, principals, yields, true)
}

func (e *Engine) redeem(ctx context.Context, holder string, principals, yields *big.Int, toBacking bool) (*Receipt, error) {
	if principals == nil {
		principals = big.NewInt(0)
	}
	if yields == nil {
		yields = big.NewInt(0)
	}
	if principals.Sign() == 0 && yields.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if principals.Sign() < 0 || yields.Sign() < 0 {
		return nil, ErrZeroAmount
	}

	effective, err := e.refreshState(ctx)
	if err != nil {
		return nil, err
	}

	var payout *big.Int
	var feeRate *big.Int
	if e.matured {
		payout, err = e.maturityPayout(principals, yields, effective)
		feeRate = e.fees.MaturityRedeemFee()
	} else {
		// An unmatured yield claim has no realizable value without its
		// paired principal, so both must burn in equal amounts.
		if principals.Cmp(yields) != 0 {
			return nil, ErrUnequalShares
		}
		payout, err = fixedmath.MulDiv(principals, effective, e.oracle.Initial(), false)
		feeRate = e.fees.EarlyRedeemFee()
	}
	if err != nil {
		return nil, fmt.Errorf("compute payout: %w", err)
	}

	fee, err := fixedmath.MulFixed(payout, feeRate, true)
	if err != nil {
		return nil, fmt.Errorf("compute redemption fee: %w", err)
	}
	netBacking := new(big.Int).Sub(payout, fee)
	if netBacking.Sign() < 0 {
		netBacking = big.NewInt(0)
	}

	yieldOut, err := e.source.NumYieldTokensPerAsset(netBacking, effective)
	if err != nil {
		return nil, fmt.Errorf("convert payout: %w", err)
	}
	if yieldOut.Cmp(e.backingYield) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	// Validate claim balances before any external movement so the burn
	// after the adapter call cannot fail.
	if e.shares.BalanceOf(ledger.Principal, holder).Cmp(principals) < 0 {
		return nil, ErrInsufficientShares
	}
	if e.shares.BalanceOf(ledger.Yield, holder).Cmp(yields) < 0 {
		return nil, ErrInsufficientShares
	}

	amountOut := yieldOut
	assetOut := AssetYieldBearing
	if toBacking {
		received, err := e.source.WithdrawFromUnderlyingProtocol(ctx, yieldOut)
		if err != nil {
			return nil, fmt.Errorf("withdraw from source: %w", err)
		}
		amountOut = received
		assetOut = AssetBacking
	}

	if err := e.shares.BurnPair(holder, principals, yields); err != nil {
		return nil, err
	}
	e.backingYield.Sub(e.backingYield, yieldOut)

	kind := OpRedeem
	if toBacking {
		kind = OpRedeemToBacking
	}
	e.logger.Info("redeem",
		zap.String("kind", string(kind)),
		zap.String("holder", holder),
		zap.String("principals", principals.String()),
		zap.String("yields", yields.String()),
		zap.String("amount_out", amountOut.String()),
		zap.String("fee", fee.String()),
		zap.String("rate", effective.String()),
		zap.Bool("matured", e.matured),
	)

	return &Receipt{
		Kind:             kind,
		Holder:           holder,
		AmountOut:        amountOut,
		AssetOut:         assetOut,
		PrincipalsBurned: new(big.Int).Set(principals),
		YieldsBurned:     new(big.Int).Set(yields),
		Fee:              fee,
		RateUsed:         new(big.Int).Set(effective),
		Matured:          e.matured,
		Timestamp:        e.clock().UTC(),
	}, nil
}

// maturityPayout splits the redemption into the principal's fixed value and
// the yield's excess above the initial rate, floored at zero.
func (e *Engine) maturityPayout(principals, yields, maturityRate *big.Int) (*big.Int, error) {
	payout := new(big.Int).Set(principals)

	initial := e.oracle.Initial()
	if maturityRate.Cmp(initial) > 0 && yields.Sign() > 0 {
		excess := new(big.Int).Sub(maturityRate, initial)
		yieldPayout, err := fixedmath.MulDiv(yields, excess, initial, false)
		if err != nil {
			return nil, err
		}
		payout.Add(payout, yieldPayout)
	}
	return payout, nil
}

// refreshState advances the maturity state machine and returns the rate in
// effect for this operation: the live comparison result while active, the
// frozen rate once matured.
func (e *Engine) refreshState(ctx context.Context) (*big.Int, error) {
	if e.matured {
		if frozen := e.oracle.Maturity(); frozen != nil {
			return frozen, nil
		}
	}
	if !e.clock().Before(e.maturityTime) {
		frozen, err := e.oracle.FreezeAtMaturity(ctx)
		if err != nil {
			return nil, err
		}
		if !e.matured {
			e.matured = true
			e.logger.Info("pool matured", zap.Time("maturity", e.maturityTime), zap.String("rate", frozen.String()))
		}
		return frozen, nil
	}
	return e.oracle.Refresh(ctx)
}

// Snapshot is a persistable copy of the pool's mutable state.
type Snapshot struct {
	Matured         bool
	Halted          bool
	InitialRate     *big.Int
	CurrentRate     *big.Int
	MaturityRate    *big.Int
	BackingYield    *big.Int
	FeeShares       *big.Int
	PrincipalSupply *big.Int
	YieldSupply     *big.Int
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Matured:         e.matured,
		Halted:          e.oracle.Halted(),
		InitialRate:     e.oracle.Initial(),
		CurrentRate:     e.oracle.Current(),
		MaturityRate:    e.oracle.Maturity(),
		BackingYield:    new(big.Int).Set(e.backingYield),
		FeeShares:       new(big.Int).Set(e.feeShares),
		PrincipalSupply: e.shares.TotalSupply(ledger.Principal),
		YieldSupply:     e.shares.TotalSupply(ledger.Yield),
	}
}

// RefreshRate pulls a fresh observation through the maturity state machine
// without moving any funds and returns the effective rate.
func (e *Engine) RefreshRate(ctx context.Context) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshState(ctx)
}

// MaturityTime returns the pool's fixed maturity timestamp.
func (e *Engine) MaturityTime() time.Time {
	return e.maturityTime
}

// Matured reports whether the pool has entered its terminal state.
func (e *Engine) Matured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matured
}

// Halted reports whether minting is permanently suspended.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.Halted()
}
