package keeper

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrDispatchFailed wraps any failure to get an execution transaction mined successfully.
	// Counted against the order's failure ceiling.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrUpstreamQueryFailed wraps base-asset and round lookups that failed.
	// The order is skipped for the current pass and its failure count is untouched.
	ErrUpstreamQueryFailed = errors.New("upstream query failed")

	// ErrInterrupted wraps work cut short because the keeper is stopping.
	// Nothing is counted against the order.
	ErrInterrupted = errors.New("interrupted")
)

// interrupted wraps err with ErrInterrupted when ctx, the keeper's own context, is done.
// Deadlines set below ctx, such as the confirm timeout, are not interruptions.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}
