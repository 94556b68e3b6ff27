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

const stakeWiseABIJSON = `[
  {"inputs": [], "name": "rewardPerToken", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "stake", "outputs": [], "stateMutability": "payable", "type": "function"}
]`

var (
	stakeWiseABI     abi.ABI
	stakeWiseABIOnce sync.Once
	stakeWiseABIErr  error
)

func getStakeWiseABI() (abi.ABI, error) {
	stakeWiseABIOnce.Do(func() {
		stakeWiseABI, stakeWiseABIErr = abi.JSON(strings.NewReader(stakeWiseABIJSON))
	})
	return stakeWiseABI, stakeWiseABIErr
}

// StakeWiseConfig identifies the StakeWise pool and its staked-ETH token.
type StakeWiseConfig struct {
	Pool         common.Address
	StakedToken  common.Address
	Holder       common.Address
	MaxRetries   int
	RetryBackoff time.Duration
}

// StakeWiseSource adapts the StakeWise pool. sETH2 itself stays 1:1 with
// ETH; accrued rewards are tracked per staked token, so the conversion rate
// is 1 plus the accumulated reward per token.
type StakeWiseSource struct {
	Converter
	cfg         StakeWiseConfig
	chainClient *chain.Client
	invoker     Invoker
	logger      *zap.Logger
}

func NewStakeWiseSource(cfg StakeWiseConfig, chainClient *chain.Client, invoker Invoker, logger *zap.Logger) *StakeWiseSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StakeWiseSource{
		Converter:   NewConverter(18, 18),
		cfg:         cfg,
		chainClient: chainClient,
		invoker:     invoker,
		logger:      logger,
	}
}

func (s *StakeWiseSource) Name() string { return "stakewise" }

func (s *StakeWiseSource) RateDecimals() uint8 { return 18 }

func (s *StakeWiseSource) CurrentInterestRate(ctx context.Context) (RateSnapshot, error) {
	poolABI, err := getStakeWiseABI()
	if err != nil {
		return RateSnapshot{}, err
	}
	reward, err := callUint256(ctx, s.chainClient, poolABI, s.cfg.Pool, s.cfg.MaxRetries, s.cfg.RetryBackoff, "rewardPerToken")
	if err != nil {
		return RateSnapshot{}, err
	}
	rate := new(big.Int).Add(fixedmath.One, reward)
	return RateSnapshot{Rate: rate, Decimals: 18, ObservedAt: observationTime(ctx, s.chainClient)}, nil
}

// UpdateInterestRate is a no-op refresh: reward accumulation is settled by
// the StakeWise oracles, not by callers.
func (s *StakeWiseSource) UpdateInterestRate(ctx context.Context) (RateSnapshot, error) {
	return s.CurrentInterestRate(ctx)
}

func (s *StakeWiseSource) DepositToUnderlying(ctx context.Context, amount *big.Int) (*big.Int, error) {
	poolABI, err := getStakeWiseABI()
	if err != nil {
		return nil, err
	}
	calldata, err := poolABI.Pack("stake")
	if err != nil {
		return nil, fmt.Errorf("pack stake: %w", err)
	}

	received, err := invokeForBalanceDiff(ctx, s.invoker, s.chainClient, s.cfg.StakedToken, s.cfg.Holder, s.cfg.Pool, amount, calldata, s.cfg.MaxRetries, s.cfg.RetryBackoff)
	if err != nil {
		return nil, err
	}
	s.logger.Info("stakewise stake", zap.String("amount", amount.String()), zap.String("received", received.String()))
	return received, nil
}

// WithdrawFromUnderlyingProtocol is not available: staked ETH exits go
// through the validator exit queue, not a synchronous call.
func (s *StakeWiseSource) WithdrawFromUnderlyingProtocol(_ context.Context, _ *big.Int) (*big.Int, error) {
	return nil, fmt.Errorf("%w: stakewise withdrawal", ErrUnsupported)
}
