// Package ledgertest provides a ledger.Transport wrapper for tests that
// records traffic, injects failures, and holds writes open.
package ledgertest

import (
	"context"
	"sync"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
)

// Invocation is one recorded operation.
type Invocation struct {
	Kind   string // "call" or "send"
	Method string
	Opts   ledger.CallOpts
	Args   []string
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// Transport wraps another transport.
type Transport struct {
	next ledger.Transport

	mu     sync.Mutex
	log    []Invocation
	faults map[string][]error
	gates  map[string]*gate
}

// New wraps next.
func New(next ledger.Transport) *Transport {
	return &Transport{
		next:   next,
		faults: make(map[string][]error),
		gates:  make(map[string]*gate),
	}
}

// Fail makes the next operation on method return err without reaching the
// wrapped transport. Repeated calls queue up.
func (t *Transport) Fail(method string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults[method] = append(t.faults[method], err)
}

// Hold blocks the next operation on method until release is called.
// entered is closed once that operation is blocked.
func (t *Transport) Hold(method string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	t.mu.Lock()
	t.gates[method] = g
	t.mu.Unlock()

	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

// Calls returns every recorded operation in order.
func (t *Transport) Calls() []Invocation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Invocation, len(t.log))
	copy(out, t.log)
	return out
}

// Writes returns the recorded write operations.
func (t *Transport) Writes() []Invocation {
	var out []Invocation
	for _, inv := range t.Calls() {
		if inv.Kind == "send" {
			out = append(out, inv)
		}
	}
	return out
}

// Count reports how many times method was invoked.
func (t *Transport) Count(method string) int {
	n := 0
	for _, inv := range t.Calls() {
		if inv.Method == method {
			n++
		}
	}
	return n
}

// Reset drops the recorded log.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = nil
}

func (t *Transport) enter(kind, method string, opts ledger.CallOpts, args []string) (*gate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log = append(t.log, Invocation{Kind: kind, Method: method, Opts: opts, Args: append([]string(nil), args...)})

	g := t.gates[method]
	delete(t.gates, method)

	if q := t.faults[method]; len(q) > 0 {
		t.faults[method] = q[1:]
		return g, q[0]
	}
	return g, nil
}

func wait(ctx context.Context, g *gate) error {
	if g == nil {
		return nil
	}
	close(g.entered)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call implements ledger.Transport.
func (t *Transport) Call(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Tuple, error) {
	g, fault := t.enter("call", method, opts, args)
	if err := wait(ctx, g); err != nil {
		return nil, err
	}
	if fault != nil {
		return nil, fault
	}
	return t.next.Call(ctx, method, opts, args...)
}

// Send implements ledger.Transport.
func (t *Transport) Send(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Receipt, error) {
	g, fault := t.enter("send", method, opts, args)
	if err := wait(ctx, g); err != nil {
		return ledger.Receipt{}, err
	}
	if fault != nil {
		return ledger.Receipt{}, fault
	}
	return t.next.Send(ctx, method, opts, args...)
}

var _ ledger.Transport = (*Transport)(nil)
