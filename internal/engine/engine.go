package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

// Engine validates, submits, and optimistically applies mutations for the
// account whose user is published in the view store.
type Engine struct {
	contract *ledger.Contract
	store    *view.Store
	ids      IDGenerator
	clock    Sequencer
	markers  *markers
	logger   *slog.Logger

	histMu  sync.Mutex
	history []Record
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the UUIDv7 mutation id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the sequencer used to number history records.
func WithClock(c Sequencer) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine writing through c and committing into store.
func New(c *ledger.Contract, store *view.Store, opts ...Option) *Engine {
	e := &Engine{
		contract: c,
		store:    store,
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
		markers:  newMarkers(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome describes a confirmed mutation.
type Outcome struct {
	MutationID string `json:"mutation_id"`
	Action     Action `json:"action"`
	ProductID  string `json:"product_id,omitempty"`
	TxID       string `json:"tx_id,omitempty"`
}

// Record is one entry of the engine's mutation history. Code is "OK" for
// confirmed mutations and the error code otherwise.
type Record struct {
	Seq        int64          `json:"seq"`
	MutationID string         `json:"mutation_id"`
	Action     Action         `json:"action"`
	ProductID  string         `json:"product_id,omitempty"`
	Account    market.Address `json:"account,omitempty"`
	Code       string         `json:"code"`
	Reason     string         `json:"reason,omitempty"`
	TxID       string         `json:"tx_id,omitempty"`
}

// History returns every mutation attempt in sequence order.
func (e *Engine) History() []Record {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

// InFlight reports whether action on productID is waiting for the ledger.
// CreateProduct uses the empty product id.
func (e *Engine) InFlight(productID string, action Action) bool {
	return e.markers.held(productID, action)
}

// mutation is one request moving through the protocol. check and submit
// see snapshots; apply runs inside the store commit. Creates have no
// product and use create instead of apply.
type mutation struct {
	action    Action
	productID string

	check  func(p *market.Product, u *market.User) error
	submit func(ctx context.Context, u market.User, p *market.Product) (ledger.Receipt, error)
	apply  func(p *market.Product, u *market.User, rcpt ledger.Receipt) view.Change
	create func(u market.User, rcpt ledger.Receipt) (market.Product, bool)
}

func (e *Engine) run(ctx context.Context, m mutation) (Outcome, error) {
	out := Outcome{
		MutationID: e.ids.Generate(),
		Action:     m.action,
		ProductID:  m.productID,
	}
	log := e.logger.With("mutation", out.MutationID, "action", string(m.action), "product", m.productID)

	u, owner, ok := e.store.UserOwner()
	if !ok {
		return out, e.fail(log, out, "", ErrCodeNoSession, "no account loaded", nil)
	}
	if !e.markers.acquire(m.productID, m.action) {
		return out, e.fail(log, out, u.Address, ErrCodeInFlight, "action already in progress", nil)
	}
	defer e.markers.release(m.productID, m.action)

	var snapshot *market.Product
	if m.productID != "" {
		p, ok := e.store.Product(m.productID)
		if !ok {
			return out, e.fail(log, out, u.Address, ErrCodeUnknownProduct, "product not in view", nil)
		}
		snapshot = &p
	}

	if err := m.check(snapshot, &u); err != nil {
		return out, e.fail(log, out, u.Address, ErrCodePrecheck, err.Error(), nil)
	}

	log.Debug("submitting mutation", "account", u.Address)
	rcpt, err := m.submit(ctx, u, snapshot)
	if err != nil {
		return out, e.fail(log, out, u.Address, ErrCodeRejected, ledger.Reason(err), err)
	}
	out.TxID = rcpt.TxID

	// The view is only touched if it still belongs to the account that
	// signed; after a switch the next load reads the ledger instead.
	var viewErr error
	if m.create != nil {
		p, ok := m.create(u, rcpt)
		if ok {
			viewErr = e.store.AppendFor(owner, p, nil)
			out.ProductID = p.ID
		} else {
			log.Warn("confirmed create carries no product id; view stale until reload", "tx", rcpt.TxID)
		}
	} else {
		viewErr = e.store.CommitFor(owner, m.productID, func(p *market.Product, cu *market.User) view.Change {
			return m.apply(p, cu, rcpt)
		})
	}
	switch {
	case errors.Is(viewErr, view.ErrStale):
		log.Warn("account changed while mutation was in flight; view not updated", "tx", rcpt.TxID, "account", u.Address)
	case viewErr != nil:
		log.Warn("confirmed write not reflected in view", "tx", rcpt.TxID, "error", viewErr)
	}

	e.record(Record{
		MutationID: out.MutationID,
		Action:     out.Action,
		ProductID:  out.ProductID,
		Account:    u.Address,
		Code:       "OK",
		TxID:       out.TxID,
	})
	log.Info("mutation applied", "tx", rcpt.TxID)
	return out, nil
}

func (e *Engine) fail(log *slog.Logger, out Outcome, account market.Address, code ErrorCode, reason string, cause error) error {
	e.record(Record{
		MutationID: out.MutationID,
		Action:     out.Action,
		ProductID:  out.ProductID,
		Account:    account,
		Code:       string(code),
		Reason:     reason,
	})
	if code == ErrCodeRejected {
		log.Warn("mutation rejected", "reason", reason)
	} else {
		log.Info("mutation refused", "code", string(code), "reason", reason)
	}
	return &MutationError{Code: code, Action: out.Action, ProductID: out.ProductID, Reason: reason, Err: cause}
}

func (e *Engine) record(r Record) {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	r.Seq = e.clock.Next()
	e.history = append(e.history, r)
}
