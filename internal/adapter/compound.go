package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldsplit/internal/chain"
)

const cTokenABIJSON = `[
  {"inputs": [], "name": "exchangeRateStored", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "accrueInterest", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "mintAmount", "type": "uint256"}], "name": "mint", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "redeemTokens", "type": "uint256"}], "name": "redeem", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	cTokenABI     abi.ABI
	cTokenABIOnce sync.Once
	cTokenABIErr  error
)

func getCTokenABI() (abi.ABI, error) {
	cTokenABIOnce.Do(func() {
		cTokenABI, cTokenABIErr = abi.JSON(strings.NewReader(cTokenABIJSON))
	})
	return cTokenABI, cTokenABIErr
}

// cTokens always carry 8 decimals.
const cTokenDecimals = 8

// CTokenConfig identifies a Compound-style market. Rari Fuse pools expose
// the same cToken interface, so both sources share this shape.
type CTokenConfig struct {
	CToken             common.Address
	Underlying         common.Address
	Holder             common.Address
	UnderlyingDecimals uint8
	MaxRetries         int
	RetryBackoff       time.Duration
}

// CTokenSource adapts a Compound-style market. The stored exchange rate is
// scaled by 10^(18 - 8 + underlyingDecimals).
type CTokenSource struct {
	Converter
	name        string
	cfg         CTokenConfig
	chainClient *chain.Client
	invoker     Invoker
	logger      *zap.Logger
}

func NewCompoundSource(cfg CTokenConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *CTokenSource {
	return newCTokenSource("compound", cfg, chainClient, invoker, logger)
}

// NewRariSource adapts a Rari Fuse pool market, which is cToken-shaped.
func NewRariSource(cfg CTokenConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *CTokenSource {
	return newCTokenSource("rari", cfg, chainClient, invoker, logger)
}

func newCTokenSource(name string, cfg CTokenConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *CTokenSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CTokenSource{
		Converter:   NewConverter(cfg.UnderlyingDecimals, cTokenDecimals),
		name:        name,
		cfg:         cfg,
		chainClient: chainClient,
		invoker:     invoker,
		logger:      logger,
	}
}

func (c *CTokenSource) Name() string { return c.name }

func (c *CTokenSource) RateDecimals() uint8 {
	return 18 - cTokenDecimals + c.cfg.UnderlyingDecimals
}

func (c *CTokenSource) CurrentInterestRate(ctx context.Context) (RateSnapshot, error) {
	marketABI, err := getCTokenABI()
	if err != nil {
		return RateSnapshot{}, err
	}
	rate, err := callUint256(ctx, c.chainClient, marketABI, c.cfg.CToken, c.cfg.MaxRetries, c.cfg.RetryBackoff, "exchangeRateStored")
	if err != nil {
		return RateSnapshot{}, err
	}
	return RateSnapshot{Rate: rate, Decimals: c.RateDecimals(), ObservedAt: observationTime(ctx, c.chainClient)}, nil
}

// UpdateInterestRate accrues market interest when an invoker is configured,
// then reads the stored rate. Without an invoker it falls back to the stored
// value, which is what a read-only deployment observes anyway.
func (c *CTokenSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	if c.invoker != nil {
		marketABI, err := getCTokenABI()
		if err != nil {
			return RateSnapshot{}, err
		}
		calldata, err := marketABI.Pack("accrueInterest")
		if err != nil {
			return RateSnapshot{}, fmt.Errorf("pack accrueInterest: %w", err)
		}
		if _, err := c.invoker.Invoke(ctx, c.cfg.CToken, nil, calldata); err != nil {
			return RateSnapshot{}, fmt.Errorf("%w: accrueInterest: %v", ErrOperationFailed, err)
		}
	}
	return c.CurrentInterestRate(ctx)
}

func (c *CTokenSource) DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error) {
	marketABI, err := getCTokenABI()
	if err != nil {
		return nil, err
	}
	calldata, err := marketABI.Pack("mint", amount)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}

	// mint returns an error code, not an amount; the actual cTokens
	// received come from the holder's balance change.
	received, err := invokeForBalanceDiff(ctx, c.invoker, c.chainClient, c.cfg.CToken, c.cfg.Holder, c.cfg.CToken, nil, calldata, c.cfg.MaxRetries, c.cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	c.logger.Info("ctoken mint", zap.String("source", c.name), zap.String("amount", amount.String()), zap.String("received", received.String()))
	return received, nil
}

func (c *CTokenSource) WithdrawFromUnderlyingProtocol(ctx context.Context, yieldAmount *big.Int) (*big.Int, error) {
	marketABI, err := getCTokenABI()
	if err != nil {
		return nil, err
	}
	calldata, err := marketABI.Pack("redeem", yieldAmount)
	if err != nil {
		return nil, fmt.Errorf("pack redeem: %w", err)
	}

	received, err := invokeForBalanceDiff(ctx, c.invoker, c.chainClient, c.cfg.Underlying, c.cfg.Holder, c.cfg.CToken, nil, calldata, c.cfg.MaxRetries, c.cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	c.logger.Info("ctoken redeem", zap.String("source", c.name), zap.String("burned", yieldAmount.String()), zap.String("received", received.String()))
	return received, nil
}
