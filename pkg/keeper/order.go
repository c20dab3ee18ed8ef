package keeper

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MaxFailures is the number of failed execution attempts after which an order is discarded.
const MaxFailures = 100

// Asset is a bytes32 currency key (e.g. "sETH") identifying an oracle round counter.
type Asset [32]byte

// Market is a futures market contract the keeper executes orders against.
// One handle is shared by every order submitted to that market.
type Market interface {
	Address() common.Address
	BaseAsset(ctx context.Context) (Asset, error)
	// ExecuteNextPriceOrder submits the execution transaction and blocks until it is mined.
	// A reverted receipt is returned as an error.
	ExecuteNextPriceOrder(ctx context.Context, account common.Address) (*types.Receipt, error)
}

// RoundOracle reports the latest oracle round for an asset.
type RoundOracle interface {
	CurrentRoundID(ctx context.Context, asset Asset) (*big.Int, error)
}

// Order is a pending next-price order, one per account.
type Order struct {
	Account common.Address
	Market  Market

	// Carried as decimal strings; never converted to native numerics.
	SizeDelta     string
	CommitDeposit string
	KeeperDeposit string

	TargetRoundID *big.Int
	TrackingCode  string

	FailureCount int
}

// MarketAddress returns the address of the order's market, or the zero address if unset.
func (o *Order) MarketAddress() common.Address {
	if o.Market == nil {
		return common.Address{}
	}
	return o.Market.Address()
}

// EventKind distinguishes order events forwarded by the ingestor.
type EventKind int

const (
	OrderSubmitted EventKind = iota
	OrderRemoved
)

func (k EventKind) String() string {
	switch k {
	case OrderSubmitted:
		return "submitted"
	case OrderRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a registry mutation decoded from a market log.
// For OrderRemoved only Account (and Market) are meaningful.
type Event struct {
	Kind        EventKind
	Order       *Order
	Account     common.Address
	BlockNumber uint64
	TxHash      common.Hash
}
