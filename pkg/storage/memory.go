package storage

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

// InMemoryJournal is used when no JOURNAL_PATH is configured. Each list is capped at max
// entries, dropping the oldest.
type InMemoryJournal struct {
	mu         sync.Mutex
	max        int
	executions []keeper.Execution
	updates    []keeper.OrderUpdate
}

func NewInMemoryJournal(max int) *InMemoryJournal {
	return &InMemoryJournal{max: max}
}

func (j *InMemoryJournal) Append(exec keeper.Execution) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.executions = append(j.executions, exec)
	if j.max > 0 && len(j.executions) > j.max {
		j.executions = j.executions[len(j.executions)-j.max:]
	}
	return nil
}

func (j *InMemoryJournal) RecordUpdate(u keeper.OrderUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates = append(j.updates, u)
	if j.max > 0 && len(j.updates) > j.max {
		j.updates = j.updates[len(j.updates)-j.max:]
	}
	return nil
}

func (j *InMemoryJournal) Executions(account common.Address, limit int) ([]keeper.Execution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return newestFirst(j.executions, limit, func(e keeper.Execution) bool { return e.Account == account }), nil
}

func (j *InMemoryJournal) RecentExecutions(limit int) ([]keeper.Execution, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return newestFirst(j.executions, limit, func(keeper.Execution) bool { return true }), nil
}

func (j *InMemoryJournal) Updates(account common.Address, limit int) ([]keeper.OrderUpdate, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return newestFirst(j.updates, limit, func(u keeper.OrderUpdate) bool { return u.Account == account }), nil
}

func (j *InMemoryJournal) Close() error { return nil }

func newestFirst[T any](items []T, limit int, keep func(T) bool) []T {
	var out []T
	for i := len(items) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if keep(items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}
