package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

// fakeBackend answers contract calls by decoding the selector against the package ABIs.
type fakeBackend struct {
	chainID *big.Int

	mu            sync.Mutex
	baseAsset     [32]byte
	rounds        map[[32]byte]*big.Int
	markets       []common.Address
	callErr       error
	sendErr       error
	receiptStatus uint64
	sent          []*types.Transaction
	calls         int
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(10),
		rounds:        make(map[[32]byte]*big.Int),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (b *fakeBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *fakeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.callErr != nil {
		return nil, b.callErr
	}
	if len(call.Data) < 4 {
		return nil, errors.New("short calldata")
	}
	for _, parsed := range []abi.ABI{futuresMarketABI, futuresMarketManagerABI, exchangeRatesABI} {
		method, err := parsed.MethodById(call.Data[:4])
		if err != nil {
			continue
		}
		switch method.Name {
		case "baseAsset":
			return method.Outputs.Pack(b.baseAsset)
		case "allMarkets":
			return method.Outputs.Pack(b.markets)
		case "getCurrentRoundId":
			args, err := method.Inputs.Unpack(call.Data[4:])
			if err != nil {
				return nil, err
			}
			round, ok := b.rounds[args[0].([32]byte)]
			if !ok {
				round = new(big.Int)
			}
			return method.Outputs.Pack(round)
		}
	}
	return nil, fmt.Errorf("unknown selector %x", call.Data[:4])
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (b *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.sent)), nil
}

func (b *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (b *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 250_000, nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.sent {
		if tx.Hash() == txHash {
			return &types.Receipt{
				Status:      b.receiptStatus,
				TxHash:      txHash,
				BlockNumber: big.NewInt(2),
			}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (b *fakeBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (b *fakeBackend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBackend) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.chainID, nil
}

func (b *fakeBackend) sentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// stubMarket satisfies keeper.Market for decode and watcher tests.
type stubMarket struct{ addr common.Address }

func (m stubMarket) Address() common.Address { return m.addr }

func (m stubMarket) BaseAsset(ctx context.Context) (keeper.Asset, error) {
	return keeper.Asset{}, nil
}

func (m stubMarket) ExecuteNextPriceOrder(ctx context.Context, account common.Address) (*types.Receipt, error) {
	return nil, errors.New("not supported")
}

type fakeSubscription struct {
	errCh chan error
	once  sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error { return s.errCh }
func (s *fakeSubscription) Unsubscribe()      { s.once.Do(func() {}) }

// session is one established pair of subscriptions, exposed to the test.
type session struct {
	logs    chan<- types.Log
	heads   chan<- *types.Header
	logSub  *fakeSubscription
	headSub *fakeSubscription
}

// fakeSubscriber models a node: logs mined while no log subscription is live only show up in a
// later FilterLogs.
type fakeSubscriber struct {
	mu        sync.Mutex
	backfill  []types.Log
	filterErr error
	queries   []ethereum.FilterQuery
	calls     []string
	pending   chan<- types.Log
	live      chan<- types.Log
	logSub    *fakeSubscription

	// minedAfterFilter is mined right after the next FilterLogs answers.
	minedAfterFilter []types.Log

	sessions chan *session
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{sessions: make(chan *session, 4)}
}

func (f *fakeSubscriber) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "FilterLogs")
	f.queries = append(f.queries, q)
	if err := f.filterErr; err != nil {
		f.filterErr = nil
		return nil, err
	}
	logs := f.backfill
	if f.live != nil {
		for _, l := range f.minedAfterFilter {
			f.live <- l
		}
	}
	f.minedAfterFilter = nil
	return logs, nil
}

func (f *fakeSubscriber) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "SubscribeFilterLogs")
	f.pending = ch
	f.live = ch
	f.logSub = newFakeSubscription()
	return f.logSub, nil
}

func (f *fakeSubscriber) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	f.mu.Lock()
	logs, logSub := f.pending, f.logSub
	f.mu.Unlock()

	headSub := newFakeSubscription()
	f.sessions <- &session{logs: logs, heads: ch, logSub: logSub, headSub: headSub}
	return headSub, nil
}

// dropLogs ends the session's log subscription the way a websocket close does.
func (f *fakeSubscriber) dropLogs(s *session, err error) {
	f.mu.Lock()
	f.live = nil
	f.mu.Unlock()
	s.logSub.errCh <- err
}

func (f *fakeSubscriber) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSubscriber) filterQueries() []ethereum.FilterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ethereum.FilterQuery(nil), f.queries...)
}

func submittedLog(t *testing.T, market, account common.Address, block uint64, sizeDelta, target int64, code string) types.Log {
	t.Helper()
	data, err := futuresMarketABI.Events["NextPriceOrderSubmitted"].Inputs.NonIndexed().Pack(
		big.NewInt(sizeDelta),
		big.NewInt(target),
		big.NewInt(5e18),
		big.NewInt(2e18),
		FormatBytes32String(code),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     market,
		Topics:      []common.Hash{OrderSubmittedTopic, common.BytesToHash(account.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

func removedLog(market, account common.Address, block uint64) types.Log {
	return types.Log{
		Address:     market,
		Topics:      []common.Hash{OrderRemovedTopic, common.BytesToHash(account.Bytes())},
		Data:        make([]byte, 32*6),
		BlockNumber: block,
	}
}

func recvEvent(t *testing.T, ch <-chan keeper.Event) keeper.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return keeper.Event{}
	}
}
