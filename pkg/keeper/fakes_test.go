package keeper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var errReverted = errors.New("execution reverted")

func assetOf(sym string) Asset {
	var a Asset
	copy(a[:], sym)
	return a
}

type fakeMarket struct {
	addr     common.Address
	asset    Asset
	assetErr error

	mu      sync.Mutex
	results []error // consumed one per execute call; nil when exhausted
	calls   []common.Address
	active  map[common.Address]int
	maxSeen int

	started chan common.Address // optional, notified when an execute call begins
	release chan struct{}       // optional, execute blocks until closed or sent on
}

func newFakeMarket(hexAddr, sym string) *fakeMarket {
	return &fakeMarket{
		addr:   common.HexToAddress(hexAddr),
		asset:  assetOf(sym),
		active: make(map[common.Address]int),
	}
}

func (m *fakeMarket) Address() common.Address { return m.addr }

func (m *fakeMarket) BaseAsset(ctx context.Context) (Asset, error) {
	if m.assetErr != nil {
		return Asset{}, m.assetErr
	}
	return m.asset, nil
}

func (m *fakeMarket) ExecuteNextPriceOrder(ctx context.Context, account common.Address) (*types.Receipt, error) {
	m.mu.Lock()
	m.calls = append(m.calls, account)
	m.active[account]++
	if m.active[account] > m.maxSeen {
		m.maxSeen = m.active[account]
	}
	var result error
	if len(m.results) > 0 {
		result = m.results[0]
		m.results = m.results[1:]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active[account]--
		m.mu.Unlock()
	}()

	if m.started != nil {
		m.started <- account
	}
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	receipt := &types.Receipt{TxHash: common.BytesToHash(account.Bytes())}
	if result != nil {
		return receipt, result
	}
	receipt.Status = types.ReceiptStatusSuccessful
	return receipt, nil
}

func (m *fakeMarket) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *fakeMarket) failNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.results = append(m.results, err)
	}
}

type fakeOracle struct {
	mu     sync.Mutex
	rounds map[Asset]*big.Int
	err    error
	calls  int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{rounds: make(map[Asset]*big.Int)}
}

func (o *fakeOracle) set(asset Asset, round int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rounds[asset] = big.NewInt(round)
}

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *fakeOracle) CurrentRoundID(ctx context.Context, asset Asset) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	r, ok := o.rounds[asset]
	if !ok {
		return nil, errors.New("unknown asset")
	}
	return new(big.Int).Set(r), nil
}

func newOrder(m Market, hexAccount string, target int64) *Order {
	return &Order{
		Account:       common.HexToAddress(hexAccount),
		Market:        m,
		SizeDelta:     "-1000000000000000000",
		CommitDeposit: "0",
		KeeperDeposit: "2000000000000000000",
		TargetRoundID: big.NewInt(target),
		TrackingCode:  "KWENTA",
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// holds fails unless cond stays true for the whole of d.
func holds(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !cond() {
			t.Fatalf("%s did not hold", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
