package keeper

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// InFlight tracks accounts with an outstanding execution attempt.
type InFlight struct {
	mu       sync.Mutex
	accounts map[common.Address]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{accounts: make(map[common.Address]struct{})}
}

// TryAcquire marks account in flight. Returns false if it already was.
func (f *InFlight) TryAcquire(account common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account]; ok {
		return false
	}
	f.accounts[account] = struct{}{}
	return true
}

func (f *InFlight) Release(account common.Address) {
	f.mu.Lock()
	delete(f.accounts, account)
	f.mu.Unlock()
}

func (f *InFlight) Has(account common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.accounts[account]
	return ok
}

func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}
