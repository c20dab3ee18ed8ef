package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
	"github.com/uhyunpark/nextprice-keeper/pkg/util"
)

// Subscriber is the streaming part of Backend.
type Subscriber interface {
	ethereum.LogFilterer
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Watcher forwards market order logs and new block numbers to the keeper.
// Dropped subscriptions are re-established with exponential backoff. Once the new log
// subscription is live, logs emitted while disconnected are backfilled with FilterLogs.
type Watcher struct {
	Sub     Subscriber
	Markets map[common.Address]keeper.Market

	ReconnectBase time.Duration
	ReconnectMax  time.Duration

	Logger *zap.SugaredLogger
	Clock  util.Clock

	lastBlock uint64 // highest block seen in a head or log
}

func NewWatcher(sub Subscriber, markets []keeper.Market, logger *zap.SugaredLogger) *Watcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	byAddr := make(map[common.Address]keeper.Market, len(markets))
	for _, m := range markets {
		byAddr[m.Address()] = m
	}
	return &Watcher{
		Sub:           sub,
		Markets:       byAddr,
		ReconnectBase: time.Second,
		ReconnectMax:  30 * time.Second,
		Logger:        logger,
		Clock:         util.RealClock{},
	}
}

// Query returns the log filter for both order events across all watched markets.
func (w *Watcher) Query() ethereum.FilterQuery {
	addrs := make([]common.Address, 0, len(w.Markets))
	for a := range w.Markets {
		addrs = append(addrs, a)
	}
	return ethereum.FilterQuery{
		Addresses: addrs,
		Topics:    [][]common.Hash{{OrderSubmittedTopic, OrderRemovedTopic}},
	}
}

// Run streams until ctx is done. Order events are delivered in log order and never dropped;
// block signals are dropped when the keeper already has a full backlog of passes.
func (w *Watcher) Run(ctx context.Context, events chan<- keeper.Event, blocks chan<- uint64) error {
	for addr := range w.Markets {
		w.Logger.Infow("market_listeners_set_up", "market", addr.Hex())
	}

	delay := w.ReconnectBase
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := w.session(ctx, events, blocks, !first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// The session was healthy for a while; start over from the base delay.
			delay = w.ReconnectBase
		}
		first = false

		w.Logger.Warnw("subscription_lost", "err", err, "retry_in", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.Clock.After(delay):
		}
		delay *= 2
		if delay > w.ReconnectMax {
			delay = w.ReconnectMax
		}
	}
}

// session runs one pair of log/head subscriptions. It returns nil if the subscriptions were
// established and later ended, or the setup error otherwise. With replay set, logs missed while
// disconnected are backfilled once the log subscription is live.
func (w *Watcher) session(ctx context.Context, events chan<- keeper.Event, blocks chan<- uint64, replay bool) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logsCh := make(chan types.Log, 256)
	logSub, err := w.Sub.SubscribeFilterLogs(sessionCtx, w.Query(), logsCh)
	if err != nil {
		return err
	}
	defer logSub.Unsubscribe()

	headsCh := make(chan *types.Header, 16)
	headSub, err := w.Sub.SubscribeNewHead(sessionCtx, headsCh)
	if err != nil {
		return err
	}
	defer headSub.Unsubscribe()

	if replay {
		if err := w.backfill(ctx, events); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-logSub.Err():
			w.Logger.Warnw("log_subscription_ended", "err", err)
			return nil

		case err := <-headSub.Err():
			w.Logger.Warnw("head_subscription_ended", "err", err)
			return nil

		case vLog := <-logsCh:
			w.forward(ctx, vLog, events)

		case hdr := <-headsCh:
			if hdr == nil || hdr.Number == nil {
				continue
			}
			w.observe(hdr.Number.Uint64())
			select {
			case blocks <- hdr.Number.Uint64():
			default:
				w.Logger.Debugw("block_signal_dropped", "block", hdr.Number.Uint64())
			}
		}
	}
}

func (w *Watcher) forward(ctx context.Context, vLog types.Log, events chan<- keeper.Event) {
	if vLog.Removed {
		w.Logger.Debugw("reorged_log_ignored", "tx", vLog.TxHash.Hex(), "block", vLog.BlockNumber)
		return
	}
	market, ok := w.Markets[vLog.Address]
	if !ok {
		return
	}
	ev, err := DecodeOrderLog(vLog, market)
	if err != nil {
		w.Logger.Warnw("order_log_decode_failed", "tx", vLog.TxHash.Hex(), "err", err)
		return
	}
	w.observe(vLog.BlockNumber)
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) observe(block uint64) {
	if block > w.lastBlock {
		w.lastBlock = block
	}
}

// backfill replays order logs from the last block seen onwards. The last block is replayed in
// full: a repeated submission replaces the identical order and a repeated removal is a no-op.
func (w *Watcher) backfill(ctx context.Context, events chan<- keeper.Event) error {
	if w.lastBlock == 0 {
		return nil
	}
	from := w.lastBlock
	q := w.Query()
	q.FromBlock = new(big.Int).SetUint64(from)

	logs, err := w.Sub.FilterLogs(ctx, q)
	if err != nil {
		w.Logger.Warnw("backfill_failed", "from_block", from, "err", err)
		return err
	}
	w.Logger.Infow("backfill_complete", "from_block", from, "logs", len(logs))
	for _, vLog := range logs {
		w.forward(ctx, vLog, events)
	}
	return nil
}
