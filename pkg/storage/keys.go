package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Journal key schema for Pebble storage:
//
//   exec:<address>:<unixnano>:<seq> → keeper.Execution (per-account history)
//   recent:<unixnano>:<seq>         → keeper.Execution (all accounts, time ordered)
//   upd:<address>:<unixnano>:<seq>  → keeper.OrderUpdate (lifecycle audit)
//
// Timestamps and sequence numbers are zero-padded so keys sort chronologically.

const (
	prefixExecution = "exec:"
	prefixRecent    = "recent:"
	prefixUpdate    = "upd:"
)

func stamp(t time.Time) int64 {
	if t.IsZero() || t.UnixNano() < 0 {
		return 0
	}
	return t.UnixNano()
}

// executionKey returns "exec:{address}:{unixnano}:{seq}"
func executionKey(addr common.Address, t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%010d", prefixExecution, addr.Hex(), stamp(t), seq))
}

// executionPrefix returns "exec:{address}:"
func executionPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixExecution, addr.Hex()))
}

// recentKey returns "recent:{unixnano}:{seq}"
func recentKey(t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%010d", prefixRecent, stamp(t), seq))
}

// updateKey returns "upd:{address}:{unixnano}:{seq}"
func updateKey(addr common.Address, t time.Time, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%010d", prefixUpdate, addr.Hex(), stamp(t), seq))
}

// updatePrefix returns "upd:{address}:"
func updatePrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixUpdate, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
