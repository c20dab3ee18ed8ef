package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
)

// DiscoverMarkets lists every market registered with the FuturesMarketManager.
func DiscoverMarkets(ctx context.Context, client *Client, manager common.Address) ([]common.Address, error) {
	b := client.Backend
	contract := bind.NewBoundContract(manager, futuresMarketManagerABI, b, b, b)

	out, err := client.call(ctx, contract, "allMarkets")
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("allMarkets: unexpected result len %d", len(out))
	}
	markets, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("allMarkets: unexpected type %T", out[0])
	}
	return markets, nil
}
