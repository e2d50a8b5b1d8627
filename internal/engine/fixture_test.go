package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/aggregate"
	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/ledger/ledgertest"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/session"
	"github.com/procateodor/blockchain-marketplace/internal/testutil"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

type fixture struct {
	rec      *ledgertest.Transport
	contract *ledger.Contract
	store    *view.Store
	session  *session.Session
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	rec := ledgertest.New(testutil.NewLedger(t))
	c := ledger.NewContract(rec, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := view.New()
	agg := aggregate.New(c, aggregate.WithLogger(logger))

	opts = append([]Option{WithLogger(logger)}, opts...)
	return &fixture{
		rec:      rec,
		contract: c,
		store:    store,
		session:  session.New(c, agg, store, session.WithLogger(logger)),
		engine:   New(c, store, opts...),
	}
}

func (f *fixture) login(t *testing.T, addr market.Address) {
	t.Helper()
	require.NoError(t, f.session.Load(context.Background(), addr))
	f.rec.Reset()
}

func (f *fixture) product(t *testing.T, id string) market.Product {
	t.Helper()
	p, ok := f.store.Product(id)
	require.True(t, ok, "product %s not in view", id)
	return p
}

func (f *fixture) user(t *testing.T) market.User {
	t.Helper()
	u, ok := f.store.User()
	require.True(t, ok)
	return u
}

// funded creates a product and fully funds it from Financer.
func (f *fixture) funded(t *testing.T, dev, rev int64) string {
	t.Helper()
	id := testutil.MustCreate(t, f.contract, "site", dev, rev)
	_, err := f.contract.FinanceProduct(context.Background(), testutil.Financer, id, dev+rev)
	require.NoError(t, err)
	return id
}

// staffed returns a product in progress whose only team member is
// Freelancer with a pledge of dev.
func (f *fixture) staffed(t *testing.T, dev, rev int64) string {
	t.Helper()
	ctx := context.Background()
	id := f.funded(t, dev, rev)
	_, err := f.contract.AddFreelancer(ctx, testutil.Freelancer, id, dev)
	require.NoError(t, err)
	_, err = f.contract.AddToTeam(ctx, testutil.Manager, id, testutil.Freelancer)
	require.NoError(t, err)
	return id
}

// underReview returns a staffed product whose completion was signaled, and
// the pending manager notification id.
func (f *fixture) underReview(t *testing.T, dev, rev int64, withEvaluator bool) (string, string) {
	t.Helper()
	ctx := context.Background()
	id := f.staffed(t, dev, rev)
	if withEvaluator {
		_, err := f.contract.AddEvaluator(ctx, testutil.Evaluator, id)
		require.NoError(t, err)
	}
	rcpt, err := f.contract.NotifyManagerDone(ctx, testutil.Freelancer, id)
	require.NoError(t, err)
	return id, rcpt.Events[ledger.EventNotificationID]
}

// requireConverged reloads from the ledger and checks the optimistic view
// matched it exactly.
func (f *fixture) requireConverged(t *testing.T) {
	t.Helper()
	products := f.store.Products()
	u := f.user(t)

	require.NoError(t, f.session.Reload(context.Background()))

	assert.Equal(t, products, f.store.Products(), "optimistic products diverged from ledger")
	assertSameUser(t, u, f.user(t))
}

func assertSameUser(t *testing.T, want, got market.User) {
	t.Helper()
	assert.Equal(t, want.Tokens.String(), got.Tokens.String(), "token balance")
	want.Tokens, got.Tokens = nil, nil
	assert.Equal(t, want, got)
}
