package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

// ExchangeRates reads oracle round ids from the ExchangeRates contract.
type ExchangeRates struct {
	address  common.Address
	client   *Client
	contract *bind.BoundContract
}

var _ keeper.RoundOracle = (*ExchangeRates)(nil)

func NewExchangeRates(address common.Address, client *Client) *ExchangeRates {
	b := client.Backend
	return &ExchangeRates{
		address:  address,
		client:   client,
		contract: bind.NewBoundContract(address, exchangeRatesABI, b, b, b),
	}
}

func (r *ExchangeRates) CurrentRoundID(ctx context.Context, asset keeper.Asset) (*big.Int, error) {
	out, err := r.client.call(ctx, r.contract, "getCurrentRoundId", [32]byte(asset))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getCurrentRoundId: unexpected result len %d", len(out))
	}
	round, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getCurrentRoundId: unexpected type %T", out[0])
	}
	return round, nil
}
