package keeper

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry holds pending orders in submission order.
// It is safe for concurrent use; the keeper loop is its only writer.
type Registry struct {
	mu     sync.RWMutex
	orders []*Order
}

// NewRegistry creates an empty order registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert appends an order. An existing order for the same account is replaced: the old entry
// is dropped and the new one goes to the tail. Returns true if an entry was replaced.
func (r *Registry) Insert(o *Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.deleteLocked(o.Account)
	r.orders = append(r.orders, o)
	return replaced
}

// Delete removes the order for account. Deleting an unknown account is a no-op.
func (r *Registry) Delete(account common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(account)
}

func (r *Registry) deleteLocked(account common.Address) bool {
	for i, o := range r.orders {
		if o.Account == account {
			r.orders = append(r.orders[:i], r.orders[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the order for account
func (r *Registry) Get(account common.Address) (*Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Account == account {
			return o, true
		}
	}
	return nil, false
}

// Remove deletes exactly o (pointer identity), leaving a replacement order for the same
// account untouched.
func (r *Registry) Remove(o *Order) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.orders {
		if cur == o {
			r.orders = append(r.orders[:i], r.orders[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the current orders in submission order.
// The slice is a copy; later inserts and deletes do not affect it.
func (r *Registry) Snapshot() []*Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Order, len(r.orders))
	copy(out, r.orders)
	return out
}

// Len returns the number of pending orders
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// recordFailure bumps o's failure count under the registry lock so View readers never race
// the dispatcher.
func (r *Registry) recordFailure(o *Order) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.FailureCount++
	return o.FailureCount
}

// OrderView is a point-in-time copy of an order for readers outside the keeper loop.
type OrderView struct {
	Account       common.Address `json:"account"`
	Market        common.Address `json:"market"`
	SizeDelta     string         `json:"sizeDelta"`
	CommitDeposit string         `json:"commitDeposit"`
	KeeperDeposit string         `json:"keeperDeposit"`
	TargetRoundID string         `json:"targetRoundId"`
	TrackingCode  string         `json:"trackingCode"`
	FailureCount  int            `json:"failureCount"`
}

func viewOf(o *Order) OrderView {
	v := OrderView{
		Account:       o.Account,
		Market:        o.MarketAddress(),
		SizeDelta:     o.SizeDelta,
		CommitDeposit: o.CommitDeposit,
		KeeperDeposit: o.KeeperDeposit,
		TrackingCode:  o.TrackingCode,
		FailureCount:  o.FailureCount,
	}
	if o.TargetRoundID != nil {
		v.TargetRoundID = o.TargetRoundID.String()
	}
	return v
}

// Views copies every pending order in submission order.
func (r *Registry) Views() []OrderView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]OrderView, len(r.orders))
	for i, o := range r.orders {
		out[i] = viewOf(o)
	}
	return out
}

// View copies the pending order for account.
func (r *Registry) View(account common.Address) (OrderView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Account == account {
			return viewOf(o), true
		}
	}
	return OrderView{}, false
}
