// Package view holds the in-memory view model: the session user and the
// ordered product collection.
//
// The Store is an explicit object passed to the session builder and the
// mutation engine; there is no package-level state. Readers always receive
// deep copies, so presentation never observes a half-applied commit.
package view

import (
	"errors"
	"fmt"
	"sync"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Store is the view model holder.
type Store struct {
	mu       sync.RWMutex
	user     *market.User
	products []market.Product
	loaded   bool
	revision uint64
	epoch    uint64

	subMu sync.Mutex
	subs  []chan struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Reset discards all cached state. Called on account switch.
func (s *Store) Reset() {
	s.mu.Lock()
	s.user = nil
	s.products = nil
	s.loaded = false
	s.revision++
	s.epoch++
	s.mu.Unlock()
	s.notify()
}

// SetUser publishes the session user.
func (s *Store) SetUser(u market.User) {
	c := u.Clone()
	s.mu.Lock()
	s.user = &c
	s.revision++
	s.mu.Unlock()
	s.notify()
}

// ReplaceProducts swaps in a freshly aggregated collection.
func (s *Store) ReplaceProducts(products []market.Product) {
	cp := cloneProducts(products)
	s.mu.Lock()
	s.products = cp
	s.loaded = true
	s.revision++
	s.mu.Unlock()
	s.notify()
}

// User returns the session user, if one is published.
func (s *Store) User() (market.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return market.User{}, false
	}
	return s.user.Clone(), true
}

// ErrStale is returned by CommitFor and AppendFor when the store was reset
// or now holds a different account.
var ErrStale = errors.New("view belongs to another session")

// Owner identifies the session a write was started under.
type Owner struct {
	Epoch   uint64
	Account market.Address
}

// UserOwner returns the session user together with its Owner, read under
// one lock.
func (s *Store) UserOwner() (market.User, Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return market.User{}, Owner{Epoch: s.epoch}, false
	}
	return s.user.Clone(), Owner{Epoch: s.epoch, Account: s.user.Address}, true
}

// owns reports whether o still describes the current session. Caller
// holds mu.
func (s *Store) owns(o Owner) bool {
	return s.epoch == o.Epoch && s.user != nil && s.user.Address == o.Account
}

// Loaded reports whether a product collection has been published since
// the last Reset.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Products returns the collection in ledger order.
func (s *Store) Products() []market.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneProducts(s.products)
}

// Visible returns the products the session user is shown: freelancers and
// evaluators only see funded products.
func (s *Store) Visible() []market.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return []market.Product{}
	}
	role := s.user.Role
	out := make([]market.Product, 0, len(s.products))
	for _, p := range s.products {
		if (role == market.RoleFreelancer || role == market.RoleEvaluator) && !p.HasFunds {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

// Product returns one product by id.
func (s *Store) Product(id string) (market.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return market.Product{}, false
	}
	return s.products[i].Clone(), true
}

// Revision increments on every published change.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Change is what a commit function decided to do with its product.
type Change int

const (
	// Keep writes the product and user back.
	Keep Change = iota
	// Remove drops the product from the collection.
	Remove
)

// Commit applies fn to copies of one product and the user, then publishes
// both together. If the product is unknown nothing is applied.
func (s *Store) Commit(id string, fn func(p *market.Product, u *market.User) Change) error {
	s.mu.Lock()
	return s.commitLocked(id, fn)
}

// CommitFor is Commit guarded by an Owner: when the session changed since
// o was taken nothing is applied and ErrStale is returned.
func (s *Store) CommitFor(o Owner, id string, fn func(p *market.Product, u *market.User) Change) error {
	s.mu.Lock()
	if !s.owns(o) {
		s.mu.Unlock()
		return ErrStale
	}
	return s.commitLocked(id, fn)
}

// commitLocked expects mu held and releases it.
func (s *Store) commitLocked(id string, fn func(p *market.Product, u *market.User) Change) error {
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("product %s not in view", id)
	}
	p := s.products[i].Clone()
	var u market.User
	if s.user != nil {
		u = s.user.Clone()
	}

	switch fn(&p, &u) {
	case Remove:
		s.products = append(s.products[:i:i], s.products[i+1:]...)
	default:
		s.products[i] = p
	}
	if s.user != nil {
		s.user = &u
	}
	s.revision++
	s.mu.Unlock()
	s.notify()
	return nil
}

// Append adds a product created by the session user, together with any
// user change.
func (s *Store) Append(p market.Product, fn func(u *market.User)) {
	s.mu.Lock()
	s.appendLocked(p, fn)
}

// AppendFor is Append guarded by an Owner.
func (s *Store) AppendFor(o Owner, p market.Product, fn func(u *market.User)) error {
	s.mu.Lock()
	if !s.owns(o) {
		s.mu.Unlock()
		return ErrStale
	}
	s.appendLocked(p, fn)
	return nil
}

func (s *Store) appendLocked(p market.Product, fn func(u *market.User)) {
	s.products = append(s.products, p.Clone())
	if s.user != nil && fn != nil {
		u := s.user.Clone()
		fn(&u)
		s.user = &u
	}
	s.revision++
	s.mu.Unlock()
	s.notify()
}

// Subscribe returns a channel that receives a signal after changes.
// Signals coalesce; a slow reader sees at least one pending signal.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.products {
		if s.products[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneProducts(in []market.Product) []market.Product {
	out := make([]market.Product, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
