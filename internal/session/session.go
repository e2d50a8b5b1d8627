// Package session builds the current account's view and drives full
// reloads of the product collection.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/procateodor/blockchain-marketplace/internal/aggregate"
	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/normalize"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

// ErrNoAccount is returned by Reload before any account was loaded.
var ErrNoAccount = errors.New("session: no account loaded")

// Session owns the view store's lifecycle for one client.
type Session struct {
	contract   *ledger.Contract
	aggregator *aggregate.Aggregator
	store      *view.Store
	logger     *slog.Logger

	// mu serializes loads; the store is replaced by one loader at a time.
	mu      sync.Mutex
	account market.Address
	lastErr error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a Session publishing into store.
func New(c *ledger.Contract, agg *aggregate.Aggregator, store *view.Store, opts ...Option) *Session {
	s := &Session{
		contract:   c,
		aggregator: agg,
		store:      store,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the view store the session publishes into.
func (s *Session) Store() *view.Store {
	return s.store
}

// Account returns the currently loaded account.
func (s *Session) Account() market.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// LastError returns the error of the most recent load, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Load discards all cached state and builds the view for account.
//
// If the ledger rejects the user lookup, no user is published and products
// are not aggregated. If aggregation fails the user stays published and
// the product collection stays empty.
func (s *Session) Load(ctx context.Context, account market.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account = market.NormalizeAddress(string(account))
	s.store.Reset()
	s.lastErr = s.load(ctx)
	return s.lastErr
}

// Reload refreshes the user and products for the current account without
// discarding them first. On failure the previous collection is kept.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == "" {
		return ErrNoAccount
	}
	s.lastErr = s.load(ctx)
	return s.lastErr
}

func (s *Session) load(ctx context.Context) error {
	account := s.account
	log := s.logger.With("account", account)

	u, err := s.loadUser(ctx, account)
	if err != nil {
		log.Warn("user load failed", "reason", ledger.Reason(err))
		return err
	}
	s.store.SetUser(u)

	products, err := s.aggregator.Load(ctx, account)
	if err != nil {
		log.Warn("product load failed", "error", err)
		return err
	}
	s.store.ReplaceProducts(products)

	log.Info("session loaded", "role", u.Role.String(), "products", len(products))
	return nil
}

func (s *Session) loadUser(ctx context.Context, account market.Address) (market.User, error) {
	t, err := s.contract.User(ctx, account)
	if err != nil {
		return market.User{}, &aggregate.LoadError{Op: ledger.MethodGetUser, Err: err}
	}
	u, err := normalize.User(account, t)
	if err != nil {
		return market.User{}, &aggregate.LoadError{Op: ledger.MethodGetUser, Err: err}
	}
	t, err = s.contract.BalanceOf(ctx, account, account)
	if err != nil {
		return market.User{}, &aggregate.LoadError{Op: ledger.MethodBalanceOf, Err: err}
	}
	if u.Tokens, err = normalize.Balance(t); err != nil {
		return market.User{}, &aggregate.LoadError{Op: ledger.MethodBalanceOf, Err: err}
	}
	return u, nil
}

// Watch loads the source's current account, then performs a full Load for
// every account change until ctx is done or the source closes. Load
// failures are logged and kept in LastError; they do not stop watching.
func (s *Session) Watch(ctx context.Context, src AccountSource) error {
	if err := s.Load(ctx, src.Current()); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	changes := src.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addr, ok := <-changes:
			if !ok {
				return nil
			}
			s.logger.Info("account changed", "account", addr)
			if err := s.Load(ctx, addr); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
