// Package chain binds the keeper to Synthetix futures contracts over a go-ethereum client.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// Backend is the subset of *ethclient.Client the keeper needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client wraps a backend with an RPC rate limit shared by every contract handle.
type Client struct {
	Backend Backend
	ChainID *big.Int

	limiter *rate.Limiter
}

// NewClient fetches the chain id and builds a client. ratePerSec <= 0 disables limiting.
func NewClient(ctx context.Context, backend Backend, ratePerSec float64, burst int) (*Client, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c := &Client{Backend: backend, ChainID: chainID}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return c, nil
}

// wait blocks until the rate limiter admits one more request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}
