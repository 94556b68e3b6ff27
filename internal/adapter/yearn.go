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

const yearnVaultABIJSON = `[
  {"inputs": [], "name": "pricePerShare", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "_amount", "type": "uint256"}], "name": "deposit", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "maxShares", "type": "uint256"}], "name": "withdraw", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	yearnABI     abi.ABI
	yearnABIOnce sync.Once
	yearnABIErr  error
)

func getYearnABI() (abi.ABI, error) {
	yearnABIOnce.Do(func() {
		yearnABI, yearnABIErr = abi.JSON(strings.NewReader(yearnVaultABIJSON))
	})
	return yearnABI, yearnABIErr
}

// YearnConfig identifies a Yearn V2 vault.
type YearnConfig struct {
	Vault              common.Address
	UnderlyingDecimals uint8
	MaxRetries         int
	RetryBackoff       time.Duration
}

// YearnSource adapts a Yearn V2 vault. pricePerShare carries the vault's
// own decimals, which match the underlying token.
type YearnSource struct {
	Converter
	cfg         YearnConfig
	chainClient *chain.Client
	invoker     Invoker
	logger      *zap.Logger
}

func NewYearnSource(cfg YearnConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *YearnSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YearnSource{
		Converter:   NewConverter(cfg.UnderlyingDecimals, cfg.UnderlyingDecimals),
		cfg:         cfg,
		chainClient: chainClient,
		invoker:     invoker,
		logger:      logger,
	}
}

func (y *YearnSource) Name() string { return "yearn" }

func (y *YearnSource) RateDecimals() uint8 { return y.cfg.UnderlyingDecimals }

func (y *YearnSource) CurrentInterestRate(ctx context.Context) (RateSnapshot, error) {
	vaultABI, err := getYearnABI()
	if err != nil {
		return RateSnapshot{}, err
	}
	rate, err := callUint256(ctx, y.chainClient, vaultABI, y.cfg.Vault, y.cfg.MaxRetries, y.cfg.RetryBackoff, "pricePerShare")
	if err != nil {
		return RateSnapshot{}, err
	}
	return RateSnapshot{Rate: rate, Decimals: y.RateDecimals(), ObservedAt: observationTime(ctx, y.chainClient)}, nil
}

// UpdateInterestRate is a no-op refresh: the share price reflects harvests
// already settled on chain.
func (y *YearnSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	return y.CurrentInterestRate(ctx)
}

func (y *YearnSource) DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error) {
	return y.invokeAmount(ctx, "deposit", amount)
}

func (y *YearnSource) WithdrawFromUnderlyingProtocol(ctx context.Context, yieldAmount *big.Int) (*big.Int, error) {
	return y.invokeAmount(ctx, "withdraw", yieldAmount)
}

// invokeAmount handles both vault entry points, which return the actual
// amount moved in their single uint256 output.
func (y *YearnSource) invokeAmount(ctx context.Context, method string, amount *big.Int) (*big.Int, error) {
	if y.invoker == nil {
		return nil, fmt.Errorf("%w: no invoker configured", ErrOperationFailed)
	}
	vaultABI, err := getYearnABI()
	if err != nil {
		return nil, err
	}
	calldata, err := vaultABI.Pack(method, amount)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ret, err := y.invoker.Invoke(ctx, y.cfg.Vault, nil, calldata)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOperationFailed, method, err)
	}
	values, err := vaultABI.Unpack(method, ret)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: decode %s return", ErrOperationFailed, method)
	}
	actual, ok := values[0].(*big.Int)
	if !ok || actual.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s reported zero", ErrOperationFailed, method)
	}
	y.logger.Info("yearn "+method, zap.String("amount", amount.String()), zap.String("actual", actual.String()))
	return actual, nil
}
