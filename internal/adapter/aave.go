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

const aaveLendingPoolABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "asset", "type": "address"}], "name": "getReserveNormalizedIncome", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "asset", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}, {"internalType": "address", "name": "onBehalfOf", "type": "address"}, {"internalType": "uint16", "name": "referralCode", "type": "uint16"}], "name": "deposit", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "asset", "type": "address"}, {"internalType": "uint256", "name": "amount", "type": "uint256"}, {"internalType": "address", "name": "to", "type": "address"}], "name": "withdraw", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "nonpayable", "type": "function"}
]`

var (
	aaveABI     abi.ABI
	aaveABIOnce sync.Once
	aaveABIErr  error
)

func getAaveABI() (abi.ABI, error) {
	aaveABIOnce.Do(func() {
		aaveABI, aaveABIErr = abi.JSON(strings.NewReader(aaveLendingPoolABIJSON))
	})
	return aaveABI, aaveABIErr
}

// AaveConfig identifies an Aave V2 reserve.
type AaveConfig struct {
	LendingPool   common.Address
	Asset         common.Address
	AToken        common.Address
	Holder        common.Address
	AssetDecimals uint8
	MaxRetries    int
	RetryBackoff  time.Duration
}

// AaveSource reads the reserve's normalized income as the interest rate.
// aTokens rebase 1:1 with the asset, so yield decimals equal asset decimals
// and the rate carries Aave's ray (1e27) precision.
type AaveSource struct {
	Converter
	cfg         AaveConfig
	chainClient *chain.Client
	invoker     Invoker
	logger      *zap.Logger
}

func NewAaveSource(cfg AaveConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *AaveSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AaveSource{
		Converter:   NewConverter(cfg.AssetDecimals, cfg.AssetDecimals),
		cfg:         cfg,
		chainClient: chainClient,
		invoker:     invoker,
		logger:      logger,
	}
}

func (a *AaveSource) Name() string { return "aave" }

func (a *AaveSource) RateDecimals() uint8 { return 27 }

func (a *AaveSource) CurrentInterestRate(ctx context.Context) (RateSnapshot, error) {
	poolABI, err := getAaveABI()
	if err != nil {
		return RateSnapshot{}, err
	}
	rate, err := callUint256(ctx, a.chainClient, poolABI, a.cfg.LendingPool, a.cfg.MaxRetries, a.cfg.RetryBackoff, "getReserveNormalizedIncome", a.cfg.Asset)
	if err != nil {
		return RateSnapshot{}, err
	}
	return RateSnapshot{Rate: rate, Decimals: 27, ObservedAt: observationTime(ctx, a.chainClient)}, nil
}

// UpdateInterestRate is a no-op refresh: Aave's normalized income is already
// computed to current time on every read.
func (a *AaveSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	return a.CurrentInterestRate(ctx)
}

func (a *AaveSource) DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error) {
	poolABI, err := getAaveABI()
	if err != nil {
		return nil, err
	}
	calldata, err := poolABI.Pack("deposit", a.cfg.Asset, amount, a.cfg.Holder, uint16(0))
	if err != nil {
		return nil, fmt.Errorf("pack deposit: %w", err)
	}

	received, err := invokeForBalanceDiff(ctx, a.invoker, a.chainClient, a.cfg.AToken, a.cfg.Holder, a.cfg.LendingPool, nil, calldata, a.cfg.MaxRetries, a.cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	a.logger.Info("aave deposit", zap.String("amount", amount.String()), zap.String("received", received.String()))
	return received, nil
}

func (a *AaveSource) WithdrawFromUnderlyingProtocol(ctx context.Context, yieldAmount *big.Int) (*big.Int, error) {
	poolABI, err := getAaveABI()
	if err != nil {
		return nil, err
	}
	calldata, err := poolABI.Pack("withdraw", a.cfg.Asset, yieldAmount, a.cfg.Holder)
	if err != nil {
		return nil, fmt.Errorf("pack withdraw: %w", err)
	}

	received, err := invokeForBalanceDiff(ctx, a.invoker, a.chainClient, a.cfg.Asset, a.cfg.Holder, a.cfg.LendingPool, nil, calldata, a.cfg.MaxRetries, a.cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	a.logger.Info("aave withdraw", zap.String("burned", yieldAmount.String()), zap.String("received", received.String()))
	return received, nil
}
