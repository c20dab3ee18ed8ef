// Package storage keeps an append-only journal of execution outcomes and order lifecycle
// updates. The journal is an audit trail; the keeper never rebuilds its registry from it.
package storage

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/nextprice-keeper/pkg/keeper"
)

// Journal is implemented by PebbleJournal and InMemoryJournal.
// Listing methods return newest entries first; limit <= 0 means no limit.
type Journal interface {
	keeper.Journal
	RecordUpdate(u keeper.OrderUpdate) error
	Executions(account common.Address, limit int) ([]keeper.Execution, error)
	RecentExecutions(limit int) ([]keeper.Execution, error)
	Updates(account common.Address, limit int) ([]keeper.OrderUpdate, error)
	Close() error
}

var (
	_ Journal = (*PebbleJournal)(nil)
	_ Journal = (*InMemoryJournal)(nil)
)

type PebbleJournal struct {
	db  *pebble.DB
	seq atomic.Uint64
}

func NewPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleJournal{db: db}, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

// Append writes one execution under both its account key and the global recent key.
func (j *PebbleJournal) Append(exec keeper.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	seq := j.seq.Add(1)
	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(executionKey(exec.Account, exec.Time, seq), data, nil); err != nil {
		return fmt.Errorf("failed to stage execution: %w", err)
	}
	if err := batch.Set(recentKey(exec.Time, seq), data, nil); err != nil {
		return fmt.Errorf("failed to stage execution: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// RecordUpdate persists an order lifecycle update
func (j *PebbleJournal) RecordUpdate(u keeper.OrderUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	if err := j.db.Set(updateKey(u.Account, u.Time, j.seq.Add(1)), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save update: %w", err)
	}
	return nil
}

func (j *PebbleJournal) Executions(account common.Address, limit int) ([]keeper.Execution, error) {
	var out []keeper.Execution
	err := j.scanReverse(executionPrefix(account), limit, func(val []byte) error {
		var exec keeper.Execution
		if err := json.Unmarshal(val, &exec); err != nil {
			return err
		}
		out = append(out, exec)
		return nil
	})
	return out, err
}

func (j *PebbleJournal) RecentExecutions(limit int) ([]keeper.Execution, error) {
	var out []keeper.Execution
	err := j.scanReverse([]byte(prefixRecent), limit, func(val []byte) error {
		var exec keeper.Execution
		if err := json.Unmarshal(val, &exec); err != nil {
			return err
		}
		out = append(out, exec)
		return nil
	})
	return out, err
}

func (j *PebbleJournal) Updates(account common.Address, limit int) ([]keeper.OrderUpdate, error) {
	var out []keeper.OrderUpdate
	err := j.scanReverse(updatePrefix(account), limit, func(val []byte) error {
		var u keeper.OrderUpdate
		if err := json.Unmarshal(val, &u); err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

// scanReverse walks a prefix from the newest key backwards. Entries that fail to decode are
// skipped.
func (j *PebbleJournal) scanReverse(prefix []byte, limit int, fn func(val []byte) error) error {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	n := 0
	for iter.Last(); iter.Valid() && (limit <= 0 || n < limit); iter.Prev() {
		if err := fn(iter.Value()); err != nil {
			continue
		}
		n++
	}
	return iter.Error()
}
