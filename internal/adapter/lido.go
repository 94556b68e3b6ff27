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
	"yieldsplit/internal/fixedmath"
)

const lidoABIJSON = `[
  {"inputs": [{"internalType": "uint256", "name": "_sharesAmount", "type": "uint256"}], "name": "getPooledEthByShares", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "_referral", "type": "address"}], "name": "submit", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "payable", "type": "function"}
]`

var (
	lidoABI     abi.ABI
	lidoABIOnce sync.Once
	lidoABIErr  error
)

func getLidoABI() (abi.ABI, error) {
	lidoABIOnce.Do(func() {
		lidoABI, lidoABIErr = abi.JSON(strings.NewReader(lidoABIJSON))
	})
	return lidoABI, lidoABIErr
}

// LidoConfig identifies the stETH contract.
type LidoConfig struct {
	StETH        common.Address
	Referral     common.Address
	MaxRetries   int
	RetryBackoff time.Duration
}

// LidoSource treats one stETH share as the yield token; the rate is the ETH
// value of 1e18 shares. Both sides use 18 decimals.
type LidoSource struct {
	Converter
	cfg         LidoConfig
	chainClient *chain.Client
	invoker     Invoker
	logger      *zap.Logger
}

func NewLidoSource(cfg LidoConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *LidoSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LidoSource{
		Converter:   NewConverter(18, 18),
		cfg:         cfg,
		chainClient: chainClient,
		invoker:     invoker,
		logger:      logger,
	}
}

func (l *LidoSource) Name() string { return "lido" }

func (l *LidoSource) RateDecimals() uint8 { return 18 }

func (l *LidoSource) CurrentInterestRate(ctx context.Context) (RateSnapshot, error) {
	stethABI, err := getLidoABI()
	if err != nil {
		return RateSnapshot{}, err
	}
	rate, err := callUint256(ctx, l.chainClient, stethABI, l.cfg.StETH, l.cfg.MaxRetries, l.cfg.RetryBackoff, "getPooledEthByShares", fixedmath.One)
	if err != nil {
		return RateSnapshot{}, err
	}
	return RateSnapshot{Rate: rate, Decimals: 18, ObservedAt: observationTime(ctx, l.chainClient)}, nil
}

// UpdateInterestRate is a no-op refresh: Lido's share price only moves on
// oracle reports, there is no caller-triggered accrual.
func (l *LidoSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	return l.CurrentInterestRate(ctx)
}

func (l *LidoSource) DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error) {
	if l.invoker == nil {
		return nil, fmt.Errorf("%w: no invoker configured", ErrOperationFailed)
	}
	stethABI, err := getLidoABI()
	if err != nil {
		return nil, err
	}
	calldata, err := stethABI.Pack("submit", l.cfg.Referral)
	if err != nil {
		return nil, fmt.Errorf("pack submit: %w", err)
	}

	ret, err := l.invoker.Invoke(ctx, l.cfg.StETH, amount, calldata)
	if err != nil {
		return nil, fmt.Errorf("%w: submit: %v", ErrOperationFailed, err)
	}
	values, err := stethABI.Unpack("submit", ret)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: decode submit return", ErrOperationFailed)
	}
	shares, ok := values[0].(*big.Int)
	if !ok || shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no shares received", ErrOperationFailed)
	}
	l.logger.Info("lido submit", zap.String("amount", amount.String()), zap.String("shares", shares.String()))
	return shares, nil
}

// WithdrawFromUnderlyingProtocol is not available: stETH cannot be redeemed
// for ETH directly. Redemptions from a Lido-backed pool stay in stETH.
func (l *LidoSource) WithdrawFromUnderlyingProtocol(_ context.Context, _ *big.Int) (*big.Int, error) {
	return nil, fmt.Errorf("%w: lido withdrawal", ErrUnsupported)
}
