package keeper

import "math/big"

// StaleAfterRounds is how far the oracle may advance past an order's target round before the
// order can no longer be executed on-chain.
const StaleAfterRounds = 2

// Readiness is the lifecycle verdict for an order against the current oracle round.
type Readiness int

const (
	Pending Readiness = iota
	Ready
	Stale
)

func (r Readiness) String() string {
	switch r {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

var staleWindow = big.NewInt(StaleAfterRounds)

// Classify maps the current round and an order's target round to a verdict:
//
//	current <  target                  -> Pending
//	target  <= current < target+2      -> Ready
//	current >= target+2                -> Stale
func Classify(current, target *big.Int) Readiness {
	staleAt := new(big.Int).Add(target, staleWindow)
	switch {
	case current.Cmp(staleAt) >= 0:
		return Stale
	case current.Cmp(target) >= 0:
		return Ready
	default:
		return Pending
	}
}

// RoundsUntilTarget returns target-current; negative once the target has passed.
func RoundsUntilTarget(current, target *big.Int) *big.Int {
	return new(big.Int).Sub(target, current)
}
