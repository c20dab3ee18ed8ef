package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/nextprice-keeper/pkg/util"
)

// RemovalReason says why an order left the registry.
type RemovalReason string

const (
	ReasonExecuted    RemovalReason = "executed"
	ReasonStale       RemovalReason = "stale"
	ReasonMaxFailures RemovalReason = "max_failures"
	ReasonRemoved     RemovalReason = "removed_event"
	ReasonReplaced    RemovalReason = "replaced"
)

// OrderUpdate is published whenever an order enters or leaves the registry.
type OrderUpdate struct {
	Account       common.Address `json:"account"`
	Market        common.Address `json:"market"`
	Status        string         `json:"status"` // "received" or "removed"
	Reason        RemovalReason  `json:"reason,omitempty"`
	TargetRoundID string         `json:"targetRoundId,omitempty"`
	TrackingCode  string         `json:"trackingCode,omitempty"`
	FailureCount  int            `json:"failureCount"`
	BlockNumber   uint64         `json:"blockNumber"`
	Time          time.Time      `json:"time"`
}

// PassStats summarises one block pass.
type PassStats struct {
	Block         uint64        `json:"block"`
	Evaluated     int           `json:"evaluated"`
	Pending       int           `json:"pending"`
	Stale         int           `json:"stale"`
	Executed      int           `json:"executed"`
	Failed        int           `json:"failed"`
	Discarded     int           `json:"discarded"`
	Skipped       int           `json:"skipped"`
	QueryFailures int           `json:"queryFailures"`
	Duration      time.Duration `json:"duration"`
}

// Status is a point-in-time view of the keeper for the status API.
type Status struct {
	LastBlock    uint64    `json:"lastBlock"`
	Passes       uint64    `json:"passes"`
	Pending      int       `json:"pending"`
	InFlight     int       `json:"inFlight"`
	LastPass     PassStats `json:"lastPass"`
	LastPassTime time.Time `json:"lastPassTime"`
}

// Journal stores execution outcomes for later inspection.
type Journal interface {
	Append(exec Execution) error
}

// Keeper owns the order registry and in-flight set and drives block passes.
// Order events and block signals are consumed by a single loop, so passes never overlap and
// registry mutations from events land between passes.
type Keeper struct {
	Registry   *Registry
	InFlight   *InFlight
	Dispatcher *Dispatcher
	Oracle     RoundOracle

	// QueryTimeout bounds each base-asset and round lookup. Zero means no bound.
	QueryTimeout time.Duration

	Logger  *zap.SugaredLogger
	Clock   util.Clock
	Journal Journal // optional

	// Optional hooks, called synchronously from the keeper loop.
	OnOrderUpdate func(OrderUpdate)
	OnExecution   func(Execution)
	OnPass        func(PassStats)

	mu     sync.Mutex
	status Status
}

// New creates a keeper with an empty registry.
func New(oracle RoundOracle, logger *zap.SugaredLogger) *Keeper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	reg := NewRegistry()
	inflight := NewInFlight()
	return &Keeper{
		Registry:   reg,
		InFlight:   inflight,
		Dispatcher: NewDispatcher(reg, inflight, logger),
		Oracle:     oracle,
		Logger:     logger,
		Clock:      util.RealClock{},
	}
}

// Run consumes order events and block signals until ctx is done or blocks is closed.
// Each block signal triggers one pass that runs to completion before anything else is read.
func (k *Keeper) Run(ctx context.Context, events <-chan Event, blocks <-chan uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			k.Apply(ev)

		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			// Events that arrived alongside the block are applied first.
			events = k.drainEvents(events)
			k.RunPass(ctx, block)
		}
	}
}

func (k *Keeper) drainEvents(events <-chan Event) <-chan Event {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			k.Apply(ev)
		default:
			return events
		}
	}
}

// Apply mutates the registry for one ingested event.
func (k *Keeper) Apply(ev Event) {
	switch ev.Kind {
	case OrderSubmitted:
		o := ev.Order
		if o == nil {
			return
		}
		if prev, ok := k.Registry.Get(o.Account); ok {
			k.publishRemoval(prev, ReasonReplaced, ev.BlockNumber)
		}
		k.Registry.Insert(o)
		k.Logger.Infow("order_received",
			"account", o.Account.Hex(),
			"market", o.MarketAddress().Hex(),
			"tracking_code", o.TrackingCode,
			"target_round", o.TargetRoundID.String(),
			"size_delta", o.SizeDelta,
			"block", ev.BlockNumber)
		k.publish(OrderUpdate{
			Account:       o.Account,
			Market:        o.MarketAddress(),
			Status:        "received",
			TargetRoundID: o.TargetRoundID.String(),
			TrackingCode:  o.TrackingCode,
			BlockNumber:   ev.BlockNumber,
			Time:          k.Clock.Now(),
		})

	case OrderRemoved:
		prev, ok := k.Registry.Get(ev.Account)
		if !ok {
			return
		}
		k.Registry.Delete(ev.Account)
		k.Logger.Infow("order_removed", "account", ev.Account.Hex(), "block", ev.BlockNumber)
		k.publishRemoval(prev, ReasonRemoved, ev.BlockNumber)
	}
}

// RunPass evaluates every registered order once, in submission order.
func (k *Keeper) RunPass(ctx context.Context, block uint64) PassStats {
	start := k.Clock.Now()
	stats := PassStats{Block: block}

	for _, o := range k.Registry.Snapshot() {
		if ctx.Err() != nil {
			break
		}
		stats.Evaluated++
		k.evaluate(ctx, block, o, &stats)
	}

	stats.Duration = k.Clock.Now().Sub(start)

	k.mu.Lock()
	k.status.LastBlock = block
	k.status.Passes++
	k.status.LastPass = stats
	k.status.LastPassTime = start
	k.mu.Unlock()

	k.Logger.Debugw("pass_complete",
		"block", block,
		"evaluated", stats.Evaluated,
		"executed", stats.Executed,
		"stale", stats.Stale,
		"failed", stats.Failed,
		"query_failures", stats.QueryFailures,
		"duration_ms", stats.Duration.Milliseconds())
	if k.OnPass != nil {
		k.OnPass(stats)
	}
	return stats
}

func (k *Keeper) evaluate(ctx context.Context, block uint64, o *Order, stats *PassStats) {
	current, err := k.currentRound(ctx, o)
	if errors.Is(err, ErrInterrupted) {
		return
	}
	if err != nil {
		// Treated as Pending for this pass.
		stats.QueryFailures++
		k.Logger.Warnw("upstream_query_failed",
			"block", block,
			"account", o.Account.Hex(),
			"market", o.MarketAddress().Hex(),
			"err", err)
		return
	}

	k.Logger.Debugw("order_checked",
		"block", block,
		"account", o.Account.Hex(),
		"rounds_until_target", RoundsUntilTarget(current, o.TargetRoundID).String())

	switch Classify(current, o.TargetRoundID) {
	case Pending:
		stats.Pending++

	case Stale:
		stats.Stale++
		k.Registry.Remove(o)
		k.Logger.Infow("order_stale",
			"block", block,
			"account", o.Account.Hex(),
			"target_round", o.TargetRoundID.String(),
			"current_round", current.String())
		k.publishRemoval(o, ReasonStale, block)

	case Ready:
		exec := k.Dispatcher.Attempt(ctx, o, block)
		k.recordExecution(exec)
		switch exec.Result {
		case Skipped:
			stats.Skipped++
		case Executed:
			stats.Executed++
			k.publishRemoval(o, ReasonExecuted, block)
		case Retry:
			stats.Failed++
		case Discarded:
			stats.Failed++
			stats.Discarded++
			k.publishRemoval(o, ReasonMaxFailures, block)
		}
	}
}

func (k *Keeper) currentRound(ctx context.Context, o *Order) (*big.Int, error) {
	if o.Market == nil {
		return nil, fmt.Errorf("%w: order has no market", ErrUpstreamQueryFailed)
	}

	qctx, cancel := k.queryContext(ctx)
	asset, err := o.Market.BaseAsset(qctx)
	cancel()
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return nil, ierr
		}
		return nil, fmt.Errorf("%w: base asset: %w", ErrUpstreamQueryFailed, err)
	}

	qctx, cancel = k.queryContext(ctx)
	current, err := k.Oracle.CurrentRoundID(qctx, asset)
	cancel()
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return nil, ierr
		}
		return nil, fmt.Errorf("%w: current round: %w", ErrUpstreamQueryFailed, err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: current round: empty result", ErrUpstreamQueryFailed)
	}
	return current, nil
}

func (k *Keeper) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if k.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, k.QueryTimeout)
}

func (k *Keeper) recordExecution(exec Execution) {
	if exec.Result == Skipped {
		return
	}
	if k.Journal != nil {
		if err := k.Journal.Append(exec); err != nil {
			k.Logger.Warnw("journal_append_failed", "account", exec.Account.Hex(), "err", err)
		}
	}
	if k.OnExecution != nil {
		k.OnExecution(exec)
	}
}

func (k *Keeper) publishRemoval(o *Order, reason RemovalReason, block uint64) {
	k.publish(OrderUpdate{
		Account:       o.Account,
		Market:        o.MarketAddress(),
		Status:        "removed",
		Reason:        reason,
		TargetRoundID: o.TargetRoundID.String(),
		TrackingCode:  o.TrackingCode,
		FailureCount:  o.FailureCount,
		BlockNumber:   block,
		Time:          k.Clock.Now(),
	})
}

func (k *Keeper) publish(u OrderUpdate) {
	if k.OnOrderUpdate != nil {
		k.OnOrderUpdate(u)
	}
}

// Status returns a copy of the keeper's progress counters.
func (k *Keeper) Status() Status {
	k.mu.Lock()
	st := k.status
	k.mu.Unlock()
	st.Pending = k.Registry.Len()
	st.InFlight = k.InFlight.Len()
	return st
}

// Orders copies the pending orders in submission order.
func (k *Keeper) Orders() []OrderView { return k.Registry.Views() }

// Order copies the pending order for account.
func (k *Keeper) Order(account common.Address) (OrderView, bool) { return k.Registry.View(account) }
