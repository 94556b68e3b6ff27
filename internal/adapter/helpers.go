package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"yieldsplit/internal/chain"
)

const erc20BalanceOfABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	balanceOfABI    abi.ABI
	balanceOfOnce   sync.Once
	balanceOfABIErr error
)

func getBalanceOfABI() (abi.ABI, error) {
	balanceOfOnce.Do(func() {
		balanceOfABI, balanceOfABIErr = abi.JSON(strings.NewReader(erc20BalanceOfABIJSON))
	})
	return balanceOfABI, balanceOfABIErr
}

// callUint256 packs a contract method, performs an eth_call with retry, and
// unpacks a single uint256 return value.
func callUint256(
	ctx context.Context,
	chainClient *chain.Client,
	contractABI abi.ABI,
	to common.Address,
	retries int,
	backoff time.Duration,
	method string,
	args ...interface{},
) (*big.Int, error) {
	if chainClient == nil {
		return nil, fmt.Errorf("chain client is nil")
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &to, Data: data}
	var resp []byte
	err = chain.WithRetry(ctx, retries, backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = chainClient.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return value, nil
}

func balanceOf(ctx context.Context, chainClient *chain.Client, token, owner common.Address, retries int, backoff time.Duration) (*big.Int, error) {
	erc20ABI, err := getBalanceOfABI()
	if err != nil {
		return nil, err
	}
	return callUint256(ctx, chainClient, erc20ABI, token, retries, backoff, "balanceOf", owner)
}

// invokeForBalanceDiff executes a mutating call and reports the holder's
// token balance change as the actual amount received.
func invokeForBalanceDiff(
	ctx context.Context,
	invoker Invoker,
	chainClient *chain.Client,
	token, holder, to common.Address,
	value *big.Int,
	calldata []byte,
	retries int,
	backoff time.Duration,
) (*big.Int, error) {
	if invoker == nil {
		return nil, fmt.Errorf("%w: no invoker configured", ErrOperationFailed)
	}

	before, err := balanceOf(ctx, chainClient, token, holder, retries, backoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	if _, err := invoker.Invoke(ctx, to, value, calldata); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}
	after, err := balanceOf(ctx, chainClient, token, holder, retries, backoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	received := new(big.Int).Sub(after, before)
	if received.Sign() <= 0 {
		return nil, fmt.Errorf("%w: no tokens received", ErrOperationFailed)
	}
	return received, nil
}

// observationTime stamps a snapshot with chain time when available, falling
// back to local time.
func observationTime(ctx context.Context, chainClient *chain.Client) time.Time {
	if chainClient != nil {
		if number, err := chainClient.LatestBlockNumber(ctx); err == nil {
			if ts, err := chainClient.BlockTimestamp(ctx, number); err == nil {
				return time.Unix(int64(ts), 0).UTC()
			}
		}
	}
	return time.Now().UTC()
}
