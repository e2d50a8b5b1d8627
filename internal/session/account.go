package session

import (
	"sync"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// AccountSource supplies the active account and signals when it changes.
// Changes is level-triggered: only the latest account matters.
type AccountSource interface {
	Current() market.Address
	Changes() <-chan market.Address
}

// StaticAccount never changes.
type StaticAccount market.Address

// Current implements AccountSource.
func (a StaticAccount) Current() market.Address {
	return market.Address(a)
}

// Changes implements AccountSource. The channel never delivers.
func (a StaticAccount) Changes() <-chan market.Address {
	return nil
}

// AccountFeed is a switchable account source. A pending change that has
// not been consumed yet is replaced by a newer one.
type AccountFeed struct {
	mu      sync.Mutex
	current market.Address
	ch      chan market.Address
	closed  bool
}

// NewAccountFeed starts with initial as the active account.
func NewAccountFeed(initial market.Address) *AccountFeed {
	return &AccountFeed{
		current: market.NormalizeAddress(string(initial)),
		ch:      make(chan market.Address, 1),
	}
}

// Current implements AccountSource.
func (f *AccountFeed) Current() market.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Changes implements AccountSource.
func (f *AccountFeed) Changes() <-chan market.Address {
	return f.ch
}

// Switch makes addr the active account.
func (f *AccountFeed) Switch(addr market.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.current = market.NormalizeAddress(string(addr))
	select {
	case <-f.ch:
	default:
	}
	f.ch <- f.current
}

// Close ends the feed; watchers return.
func (f *AccountFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
