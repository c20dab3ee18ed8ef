package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/nextprice-keeper/pkg/crypto"
	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

// ErrReverted is returned when an execution transaction is mined with a failed status.
var ErrReverted = errors.New("transaction reverted")

// FuturesMarket is a keeper.Market backed by an on-chain FuturesMarket contract.
type FuturesMarket struct {
	address  common.Address
	client   *Client
	signer   *crypto.Signer
	contract *bind.BoundContract
}

var _ keeper.Market = (*FuturesMarket)(nil)

func NewFuturesMarket(address common.Address, client *Client, signer *crypto.Signer) *FuturesMarket {
	b := client.Backend
	return &FuturesMarket{
		address:  address,
		client:   client,
		signer:   signer,
		contract: bind.NewBoundContract(address, futuresMarketABI, b, b, b),
	}
}

func (m *FuturesMarket) Address() common.Address { return m.address }

func (m *FuturesMarket) BaseAsset(ctx context.Context) (keeper.Asset, error) {
	out, err := m.client.call(ctx, m.contract, "baseAsset")
	if err != nil {
		return keeper.Asset{}, err
	}
	if len(out) != 1 {
		return keeper.Asset{}, fmt.Errorf("baseAsset: unexpected result len %d", len(out))
	}
	key, ok := out[0].([32]byte)
	if !ok {
		return keeper.Asset{}, fmt.Errorf("baseAsset: unexpected type %T", out[0])
	}
	return keeper.Asset(key), nil
}

// ExecuteNextPriceOrder sends executeNextPriceOrder(account) and waits for it to be mined.
// The receipt is returned even when the transaction reverted.
func (m *FuturesMarket) ExecuteNextPriceOrder(ctx context.Context, account common.Address) (*types.Receipt, error) {
	if m.signer == nil {
		return nil, fmt.Errorf("market %s has no signer", m.address.Hex())
	}
	if err := m.client.wait(ctx); err != nil {
		return nil, err
	}

	opts, err := m.signer.TransactOpts(ctx, m.client.ChainID)
	if err != nil {
		return nil, err
	}
	tx, err := m.contract.Transact(opts, "executeNextPriceOrder", account)
	if err != nil {
		return nil, fmt.Errorf("send executeNextPriceOrder: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, m.client.Backend, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}
	return receipt, nil
}
