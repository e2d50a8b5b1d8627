// Package aggregate rebuilds composite product records from the many
// independent, non-atomic reads the ledger exposes.
//
// Products are fetched concurrently and every read for one product runs
// in a bounded fan-out. The first failure cancels the whole load: callers
// get either every product or an error, never a partial list. Output keeps
// ledger id order regardless of completion order.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/normalize"
)

// Default concurrency limits.
const (
	DefaultProductConcurrency = 4
	DefaultReadFanOut         = 8
)

// LoadError reports which read aborted an aggregation.
type LoadError struct {
	ProductID string // empty for reads not tied to one product
	Op        string
	Err       error
}

func (e *LoadError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("load %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("load product %s: %s: %v", e.ProductID, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Reason is the ledger rejection reason, or the full error text.
func (e *LoadError) Reason() string {
	return ledger.Reason(e.Err)
}

// Aggregator assembles products for one viewing account at a time.
type Aggregator struct {
	contract           *ledger.Contract
	logger             *slog.Logger
	productConcurrency int
	readFanOut         int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithProductConcurrency bounds how many products load at once.
func WithProductConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.productConcurrency = n
		}
	}
}

// WithReadFanOut bounds concurrent reads within one product.
func WithReadFanOut(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.readFanOut = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// New creates an Aggregator reading through c.
func New(c *ledger.Contract, opts ...Option) *Aggregator {
	a := &Aggregator{
		contract:           c,
		logger:             slog.Default(),
		productConcurrency: DefaultProductConcurrency,
		readFanOut:         DefaultReadFanOut,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load returns every live product in ledger id order, as seen by viewer.
func (a *Aggregator) Load(ctx context.Context, viewer market.Address) ([]market.Product, error) {
	viewer = market.NormalizeAddress(string(viewer))

	raw, err := a.contract.ProductIDs(ctx, viewer)
	if err != nil {
		return nil, &LoadError{Op: ledger.MethodGetProducts, Err: err}
	}
	ids, err := normalize.IDs(raw)
	if err != nil {
		return nil, &LoadError{Op: ledger.MethodGetProducts, Err: err}
	}

	products := make([]market.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.productConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := a.product(gctx, viewer, id)
			if err != nil {
				return err
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Warn("aggregation aborted", "viewer", viewer, "error", err)
		return nil, err
	}

	a.logger.Debug("aggregated products", "viewer", viewer, "count", len(products))
	return products, nil
}

// Product assembles a single product.
func (a *Aggregator) Product(ctx context.Context, viewer market.Address, id string) (market.Product, error) {
	return a.product(ctx, market.NormalizeAddress(string(viewer)), id)
}

// memberRead collects the per-address reads for one joined freelancer.
type memberRead struct {
	addr    market.Address
	profile market.Profile
	amount  int64
}

func (a *Aggregator) product(ctx context.Context, viewer market.Address, id string) (market.Product, error) {
	fail := func(op string, err error) error {
		return &LoadError{ProductID: id, Op: op, Err: err}
	}

	var (
		core     normalize.ProductCore
		joined   []market.Address
		team     []market.Address
		funds    int64
		viewerIn int64
	)

	// First wave: reads keyed only by product id.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.readFanOut)
	g.Go(func() error {
		t, err := a.contract.Product(gctx, viewer, id)
		if err != nil {
			return fail(ledger.MethodGetProduct, err)
		}
		if core, err = normalize.Product(t); err != nil {
			return fail(ledger.MethodGetProduct, err)
		}
		return nil
	})
	g.Go(func() error {
		t, err := a.contract.ProductFreelancers(gctx, viewer, id)
		if err != nil {
			return fail(ledger.MethodGetProductFreelancers, err)
		}
		if joined, err = normalize.Addresses("freelancers", t); err != nil {
			return fail(ledger.MethodGetProductFreelancers, err)
		}
		return nil
	})
	g.Go(func() error {
		t, err := a.contract.ProductTeam(gctx, viewer, id)
		if err != nil {
			return fail(ledger.MethodGetProductTeam, err)
		}
		if team, err = normalize.Addresses("team", t); err != nil {
			return fail(ledger.MethodGetProductTeam, err)
		}
		return nil
	})
	g.Go(func() error {
		t, err := a.contract.CurrentProductFunds(gctx, viewer, id)
		if err != nil {
			return fail(ledger.MethodGetCurrentProductFunds, err)
		}
		if funds, err = normalize.Amount("funds", t); err != nil {
			return fail(ledger.MethodGetCurrentProductFunds, err)
		}
		return nil
	})
	g.Go(func() error {
		t, err := a.contract.MyCurrentProductFunds(gctx, viewer, id)
		if err != nil {
			return fail(ledger.MethodGetMyCurrentProductFunds, err)
		}
		if viewerIn, err = normalize.Amount("spent", t); err != nil {
			return fail(ledger.MethodGetMyCurrentProductFunds, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return market.Product{}, err
	}

	// Second wave: reads that need addresses from the first.
	var (
		managerProfile   market.Profile
		evaluatorProfile market.Profile
		managerNote      = normalize.Absent()
		evaluatorNote    = normalize.Absent()
		members          = make([]memberRead, len(joined))
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(a.readFanOut)
	g.Go(func() error {
		t, err := a.contract.UserDetails(gctx, viewer, core.Manager)
		if err != nil {
			return fail(ledger.MethodGetUserDetails, err)
		}
		if managerProfile, err = normalize.Profile(t); err != nil {
			return fail(ledger.MethodGetUserDetails, err)
		}
		return nil
	})
	g.Go(func() error {
		t, err := a.contract.ManagerNotification(gctx, core.Manager, id)
		if err != nil {
			return fail(ledger.MethodGetManagerNotifications, err)
		}
		if managerNote, err = normalize.Notification(t); err != nil {
			return fail(ledger.MethodGetManagerNotifications, err)
		}
		return nil
	})
	// An unassigned evaluator cannot be queried; its notification stays
	// absent.
	if core.Evaluator != "" {
		g.Go(func() error {
			t, err := a.contract.UserDetails(gctx, viewer, core.Evaluator)
			if err != nil {
				return fail(ledger.MethodGetUserDetails, err)
			}
			if evaluatorProfile, err = normalize.Profile(t); err != nil {
				return fail(ledger.MethodGetUserDetails, err)
			}
			return nil
		})
		g.Go(func() error {
			t, err := a.contract.EvaluatorNotification(gctx, core.Evaluator, id)
			if err != nil {
				return fail(ledger.MethodGetEvaluatorNotifications, err)
			}
			if evaluatorNote, err = normalize.Notification(t); err != nil {
				return fail(ledger.MethodGetEvaluatorNotifications, err)
			}
			return nil
		})
	}
	for i, addr := range joined {
		members[i].addr = addr
		g.Go(func() error {
			t, err := a.contract.UserDetails(gctx, viewer, addr)
			if err != nil {
				return fail(ledger.MethodGetUserDetails, err)
			}
			if members[i].profile, err = normalize.Profile(t); err != nil {
				return fail(ledger.MethodGetUserDetails, err)
			}
			return nil
		})
		g.Go(func() error {
			t, err := a.contract.FreelancerAmount(gctx, addr, id)
			if err != nil {
				return fail(ledger.MethodGetFreelancerAmount, err)
			}
			if members[i].amount, err = normalize.Amount("pledge", t); err != nil {
				return fail(ledger.MethodGetFreelancerAmount, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return market.Product{}, err
	}

	p := market.Product{
		ID:                    id,
		Description:           core.Description,
		Dev:                   core.Dev,
		Rev:                   core.Rev,
		Domain:                core.Domain,
		Manager:               market.Party{Address: core.Manager, Name: managerProfile.Name},
		Evaluator:             market.Party{Name: market.Unassigned},
		HasFunds:              core.HasFunds,
		Status:                core.Status,
		Funds:                 funds,
		Contributions:         map[market.Address]int64{},
		Freelancers:           []market.Member{},
		Team:                  []market.Member{},
		ManagerNotification:   managerNote,
		EvaluatorNotification: evaluatorNote,
	}
	if core.Evaluator != "" {
		p.Evaluator = market.Party{Address: core.Evaluator, Name: evaluatorProfile.Name}
	}
	if viewerIn > 0 {
		p.Contributions[viewer] = viewerIn
	}

	byAddr := make(map[market.Address]market.Member, len(members))
	for pos, m := range members {
		byAddr[m.addr] = market.Member{Address: m.addr, Profile: m.profile, Amount: m.amount, Position: pos}
		if m.addr == viewer {
			p.IsAssigned = true
		}
	}
	inTeam := make(map[market.Address]bool, len(team))
	for _, addr := range team {
		m, ok := byAddr[addr]
		if !ok {
			return market.Product{}, fail(ledger.MethodGetProductTeam, fmt.Errorf("team member %s never joined", addr))
		}
		inTeam[addr] = true
		p.Team = append(p.Team, m)
	}
	for _, m := range members {
		if !inTeam[m.addr] {
			p.Freelancers = append(p.Freelancers, byAddr[m.addr])
		}
	}
	return p, nil
}
