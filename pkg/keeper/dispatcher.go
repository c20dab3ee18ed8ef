package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/nextprice-keeper/pkg/util"
)

// Result is the outcome of one dispatch attempt.
type Result int

const (
	// Skipped: the account already had an attempt in flight. Nothing was sent.
	Skipped Result = iota
	// Executed: the execution transaction was mined successfully and the order removed.
	Executed
	// Retry: the attempt failed below the failure ceiling; the order stays registered.
	Retry
	// Discarded: the attempt failed and the order hit MaxFailures; the order was removed.
	Discarded
	// Interrupted: the keeper stopped mid-attempt. The order and its failure count are untouched.
	Interrupted
)

var resultNames = map[Result]string{
	Skipped:     "skipped",
	Executed:    "executed",
	Retry:       "retry",
	Discarded:   "discarded",
	Interrupted: "interrupted",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Result) MarshalText() ([]byte, error) {
	name, ok := resultNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown result %d", int(r))
	}
	return []byte(name), nil
}

func (r *Result) UnmarshalText(text []byte) error {
	for res, name := range resultNames {
		if name == string(text) {
			*r = res
			return nil
		}
	}
	return fmt.Errorf("unknown result %q", text)
}

// Execution records one dispatch attempt.
type Execution struct {
	Account       common.Address `json:"account"`
	Market        common.Address `json:"market"`
	TargetRoundID string         `json:"targetRoundId"`
	BlockNumber   uint64         `json:"blockNumber"`
	Result        Result         `json:"result"`
	FailureCount  int            `json:"failureCount"`
	TxHash        common.Hash    `json:"txHash"`
	Error         string         `json:"error,omitempty"`
	Time          time.Time      `json:"time"`
}

// Dispatcher executes ready orders, allowing at most one outstanding attempt per account.
type Dispatcher struct {
	Registry *Registry
	InFlight *InFlight

	// ConfirmTimeout bounds submission plus the wait for the receipt. Zero means no bound.
	ConfirmTimeout time.Duration

	Logger *zap.SugaredLogger
	Clock  util.Clock
}

// NewDispatcher creates a dispatcher over the given registry and in-flight set.
func NewDispatcher(reg *Registry, inflight *InFlight, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		Registry: reg,
		InFlight: inflight,
		Logger:   logger,
		Clock:    util.RealClock{},
	}
}

// Attempt executes o, which must have been classified Ready.
// Failures are absorbed here: ErrDispatchFailed bumps o.FailureCount, ErrInterrupted leaves it
// alone, and neither propagates.
func (d *Dispatcher) Attempt(ctx context.Context, o *Order, block uint64) Execution {
	exec := Execution{
		Account:       o.Account,
		Market:        o.MarketAddress(),
		TargetRoundID: o.TargetRoundID.String(),
		BlockNumber:   block,
		Time:          d.Clock.Now(),
	}

	if !d.InFlight.TryAcquire(o.Account) {
		exec.Result = Skipped
		exec.FailureCount = o.FailureCount
		return exec
	}
	defer d.InFlight.Release(o.Account)

	d.Logger.Infow("execution_attempt",
		"block", block,
		"account", o.Account.Hex(),
		"market", exec.Market.Hex(),
		"target_round", exec.TargetRoundID,
		"failures", o.FailureCount)

	err := d.execute(ctx, o, &exec)
	if err == nil {
		d.Registry.Remove(o)
		exec.Result = Executed
		exec.FailureCount = o.FailureCount
		d.Logger.Infow("execution_succeeded",
			"block", block,
			"account", o.Account.Hex(),
			"tx", exec.TxHash.Hex())
		return exec
	}

	exec.Error = err.Error()
	if errors.Is(err, ErrInterrupted) {
		exec.Result = Interrupted
		exec.FailureCount = o.FailureCount
		d.Logger.Infow("execution_interrupted",
			"block", block,
			"account", o.Account.Hex(),
			"tx", exec.TxHash.Hex(),
			"err", err)
		return exec
	}

	exec.FailureCount = d.Registry.recordFailure(o)

	if exec.FailureCount >= MaxFailures {
		d.Registry.Remove(o)
		exec.Result = Discarded
		d.Logger.Warnw("order_discarded_max_failures",
			"block", block,
			"account", o.Account.Hex(),
			"failures", o.FailureCount,
			"err", err)
		return exec
	}

	exec.Result = Retry
	d.Logger.Warnw("execution_failed",
		"block", block,
		"account", o.Account.Hex(),
		"failures", o.FailureCount,
		"err", err)
	return exec
}

func (d *Dispatcher) execute(ctx context.Context, o *Order, exec *Execution) error {
	if o.Market == nil {
		return fmt.Errorf("%w: order for %s has no market", ErrDispatchFailed, o.Account.Hex())
	}

	execCtx := ctx
	if d.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := o.Market.ExecuteNextPriceOrder(execCtx, o.Account)
	if receipt != nil {
		exec.TxHash = receipt.TxHash
	}
	if err != nil {
		if ierr := interrupted(ctx, err); ierr != nil {
			return ierr
		}
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	return nil
}
