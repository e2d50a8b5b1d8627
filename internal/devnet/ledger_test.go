package devnet

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	for i := 0; i < 3; i++ {
		l, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		l.Close()
	}

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	var version int
	require.NoError(t, l.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_InMemory(t *testing.T) {
	l, err := Open(":memory:")
	require.NoError(t, err)
	defer l.Close()

	ids, err := l.Call(context.Background(), ledger.MethodGetProducts, ledger.CallOpts{})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRegister(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	err := l.Register(ctx, manager, "again", "", market.RoleManager, nil)
	assert.Error(t, err, "duplicate address")

	err = l.Register(ctx, market.NullAddress, "nobody", "", market.RoleManager, nil)
	assert.Error(t, err, "null address")

	err = l.Register(ctx, "0xABC", "Upper", "", market.RoleFinancer, big.NewInt(-1))
	assert.Error(t, err, "negative balance")

	accounts, err := l.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 6)
}

func TestGetUser_Unregistered(t *testing.T) {
	_, c := newTestLedger(t)

	_, err := c.User(context.Background(), "0x0000000000000000000000000000000000000fff")
	requireRevert(t, err, "User not registered")
}

func TestCreateProduct(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()

	t.Run("only managers", func(t *testing.T) {
		_, err := c.CreateProduct(ctx, financer, "x", 10, 1, "web")
		requireRevert(t, err, "Only managers can create products")
	})

	t.Run("positive budgets", func(t *testing.T) {
		_, err := c.CreateProduct(ctx, manager, "x", 0, 1, "web")
		requireRevert(t, err, "Budgets must be positive")
	})

	t.Run("initial state", func(t *testing.T) {
		id := newProduct(t, c, 100, 20)
		p, err := c.Product(ctx, manager, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.Tuple{"site", "100", "20", "web", string(manager), string(market.NullAddress), false, "0"}, p)
	})
}

func TestProductIDs_SkipSentinel(t *testing.T) {
	l, c := newTestLedger(t)
	ctx := context.Background()

	_, err := l.db.Exec(`
		INSERT INTO products (id, description, dev, rev, domain, manager, evaluator)
		VALUES (98, 'old', 1, 1, 'web', ?, ?)
	`, string(manager), string(market.NullAddress))
	require.NoError(t, err)

	id := newProduct(t, c, 10, 1)
	assert.Equal(t, "100", id)

	_, err = c.DeleteProduct(ctx, manager, "98")
	require.NoError(t, err)

	ids, err := c.ProductIDs(ctx, manager)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{market.NoProduct, "100"}, ids)

	_, err = c.Product(ctx, manager, "98")
	requireRevert(t, err, "Product does not exist")
}

func TestFinanceProduct_Boundary(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 100, 20)

	_, err := c.FinanceProduct(ctx, financer, id, 60)
	require.NoError(t, err)

	_, err = c.FinanceProduct(ctx, financer2, id, 61)
	requireRevert(t, err, "Too many funds sent")

	_, err = c.FinanceProduct(ctx, financer2, id, 60)
	require.NoError(t, err)

	p, err := c.Product(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, true, p[6])

	funds, err := c.CurrentProductFunds(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{"120"}, funds)

	mine, err := c.MyCurrentProductFunds(ctx, financer, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{"60"}, mine)

	assert.Equal(t, "940", balance(t, c, financer))

	_, err = c.FinanceProduct(ctx, financer, id, 1)
	requireRevert(t, err, "Product already has funds")
}

func TestFinanceProduct_NotEnoughTokens(t *testing.T) {
	_, c := newTestLedger(t)
	id := newProduct(t, c, 5000, 20)

	_, err := c.FinanceProduct(context.Background(), financer, id, 1001)
	requireRevert(t, err, "Not enough tokens")
	assert.Equal(t, "1000", balance(t, c, financer))
}

func TestWithdrawFunds(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 100, 20)

	_, err := c.FinanceProduct(ctx, financer, id, 30)
	require.NoError(t, err)

	_, err = c.WithdrawFunds(ctx, financer, id, 31)
	requireRevert(t, err, "Not enough funds")

	_, err = c.WithdrawFunds(ctx, financer, id, 30)
	require.NoError(t, err)

	mine, err := c.MyCurrentProductFunds(ctx, financer, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{"0"}, mine)
	assert.Equal(t, "1000", balance(t, c, financer))
}

func TestWithdrawFunds_LockedOnceFunded(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 100, 20)

	_, err := c.FinanceProduct(ctx, financer, id, 120)
	require.NoError(t, err)

	_, err = c.WithdrawFunds(ctx, financer, id, 1)
	requireRevert(t, err, "Product already has funds")

	mine, err := c.MyCurrentProductFunds(ctx, financer, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{"120"}, mine)
}

func TestDeleteProduct_RefundsContributions(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 100, 20)

	_, err := c.FinanceProduct(ctx, financer, id, 25)
	require.NoError(t, err)

	_, err = c.DeleteProduct(ctx, financer, id)
	requireRevert(t, err, "Only the manager can delete the product")

	_, err = c.DeleteProduct(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, "1000", balance(t, c, financer))

	_, err = c.DeleteProduct(ctx, manager, id)
	requireRevert(t, err, "Product does not exist")
}

func TestAddFreelancer(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 50, 10)

	_, err := c.AddFreelancer(ctx, freelancer, id, 51)
	requireRevert(t, err, "Funds exceeded")

	_, err = c.AddFreelancer(ctx, manager, id, 10)
	requireRevert(t, err, "Only freelancers can join products")

	_, err = c.AddFreelancer(ctx, freelancer, id, 20)
	require.NoError(t, err)

	_, err = c.AddFreelancer(ctx, freelancer, id, 20)
	requireRevert(t, err, "Freelancer already joined")

	amount, err := c.FreelancerAmount(ctx, freelancer, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{"20"}, amount)

	list, err := c.ProductFreelancers(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{string(freelancer)}, list)
}

func TestAddToTeam_AutoTransition(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := newProduct(t, c, 50, 10)

	_, err := c.AddFreelancer(ctx, freelancer, id, 20)
	require.NoError(t, err)
	_, err = c.AddFreelancer(ctx, other, id, 30)
	require.NoError(t, err)

	_, err = c.AddToTeam(ctx, manager, id, freelancer)
	requireRevert(t, err, "Product is not funded")

	_, err = c.FinanceProduct(ctx, financer, id, 60)
	require.NoError(t, err)

	_, err = c.AddToTeam(ctx, manager, id, other)
	require.NoError(t, err)
	_, err = c.AddToTeam(ctx, manager, id, other)
	requireRevert(t, err, "Freelancer already in team")

	p, err := c.Product(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, "0", p[7], "still in backlog below dev")

	_, err = c.AddToTeam(ctx, manager, id, freelancer)
	require.NoError(t, err)

	p, err = c.Product(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, "1", p[7])

	team, err := c.ProductTeam(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{string(other), string(freelancer)}, team)
}

func TestReviewCycle_ManagerDeclineWithoutEvaluator(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := staffed(t, c, 100, 20)

	_, err := c.NotifyManagerDone(ctx, other, id)
	requireRevert(t, err, "Only team members can signal completion")

	rcpt, err := c.NotifyManagerDone(ctx, freelancer, id)
	require.NoError(t, err)
	notification := rcpt.Events[ledger.EventNotificationID]
	require.NotEmpty(t, notification)

	n, err := c.ManagerNotification(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{notification, "0"}, n)

	_, err = c.ManagerNotification(ctx, freelancer, id)
	requireRevert(t, err, "Only the manager can read manager notifications")

	_, err = c.DenyDone(ctx, manager, notification, evaluator)
	requireRevert(t, err, "Evaluator mismatch")

	rcpt, err = c.DenyDone(ctx, manager, notification, "")
	require.NoError(t, err)
	assert.NotEmpty(t, rcpt.Events[ledger.EventNotificationID])

	n, err = c.ManagerNotification(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Tuple{notification, "2"}, n)

	p, err := c.Product(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, "2", p[7], "still under review")

	_, err = c.AcceptDone(ctx, manager, notification)
	requireRevert(t, err, "Notification already handled")
}

func TestAcceptDone_PaysTeam(t *testing.T) {
	_, c := newTestLedger(t)
	ctx := context.Background()
	id := staffed(t, c, 100, 20)

	rcpt, err := c.NotifyManagerDone(ctx, freelancer, id)
	require.NoError(t, err)

	_, err = c.AcceptDone(ctx, manager, rcpt.Events[ledger.EventNotificationID])
	require.NoError(t, err)

	assert.Equal(t, "120", balance(t, c, freelancer))
	u, err := c.User(ctx, manager)
	require.NoError(t, err)
	assert.Equal(t, "1", u[1])

	p, err := c.Product(ctx, manager, id)
	require.NoError(t, err)
	assert.Equal(t, "3", p[7])
}

func TestEvaluation(t *testing.T) {
	setup := func(t *testing.T) (*ledger.Contract, string, string) {
		_, c := newTestLedger(t)
		ctx := context.Background()
		id := staffed(t, c, 100, 20)
		_, err := c.AddEvaluator(ctx, evaluator, id)
		require.NoError(t, err)
		rcpt, err := c.NotifyManagerDone(ctx, freelancer, id)
		require.NoError(t, err)
		rcpt, err = c.DenyDone(ctx, manager, rcpt.Events[ledger.EventNotificationID], evaluator)
		require.NoError(t, err)
		return c, id, rcpt.Events[ledger.EventNotificationID]
	}

	t.Run("positive pays evaluator and team", func(t *testing.T) {
		c, id, notification := setup(t)
		ctx := context.Background()

		n, err := c.EvaluatorNotification(ctx, evaluator, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.Tuple{notification, "0"}, n)

		_, err = c.PositiveEvaluation(ctx, manager, notification)
		requireRevert(t, err, "Only the evaluator can review the product")

		_, err = c.PositiveEvaluation(ctx, evaluator, notification)
		require.NoError(t, err)
		assert.Equal(t, "20", balance(t, c, evaluator))
		assert.Equal(t, "100", balance(t, c, freelancer))

		p, err := c.Product(ctx, manager, id)
		require.NoError(t, err)
		assert.Equal(t, "3", p[7])
	})

	t.Run("negative releases team", func(t *testing.T) {
		c, id, notification := setup(t)
		ctx := context.Background()

		_, err := c.NegativeEvaluation(ctx, evaluator, notification)
		require.NoError(t, err)

		p, err := c.Product(ctx, manager, id)
		require.NoError(t, err)
		assert.Equal(t, "0", p[7])

		team, err := c.ProductTeam(ctx, manager, id)
		require.NoError(t, err)
		assert.Empty(t, team)

		list, err := c.ProductFreelancers(ctx, manager, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.Tuple{string(freelancer)}, list)

		n, err := c.EvaluatorNotification(ctx, evaluator, id)
		require.NoError(t, err)
		assert.Equal(t, ledger.Tuple{notification, "2"}, n)
		assert.Equal(t, "0", balance(t, c, evaluator))

		_, err = c.AddToTeam(ctx, manager, id, freelancer)
		require.NoError(t, err)
		p, err = c.Product(ctx, manager, id)
		require.NoError(t, err)
		assert.Equal(t, "1", p[7], "re-staffing restarts the work")
	})
}

func TestSend_OutOfGasIsJournaled(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Send(ctx, ledger.MethodCreateProduct, ledger.CallOpts{From: manager}, "x", "1", "1", "web")
	requireRevert(t, err, "Out of gas")

	_, err = l.Send(ctx, ledger.MethodCreateProduct, ledger.CallOpts{From: manager, Gas: 1}, "x", "1", "1", "web")
	require.NoError(t, err)

	entries, err := l.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].OK)
	assert.Contains(t, entries[0].Outcome, "Out of gas")
	assert.True(t, entries[1].OK)
	assert.Equal(t, []string{"x", "1", "1", "web"}, entries[1].Args)
	assert.NotEqual(t, entries[0].TxID, entries[1].TxID)
}

func TestCall_UnknownMethod(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Call(context.Background(), "nope", ledger.CallOpts{})
	assert.Error(t, err)
	_, err = l.Send(context.Background(), "nope", ledger.CallOpts{Gas: 1})
	assert.Error(t, err)
}
