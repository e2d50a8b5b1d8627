package devnet

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

const (
	manager    market.Address = "0x00000000000000000000000000000000000000a1"
	financer   market.Address = "0x00000000000000000000000000000000000000b1"
	financer2  market.Address = "0x00000000000000000000000000000000000000b2"
	freelancer market.Address = "0x00000000000000000000000000000000000000c1"
	other      market.Address = "0x00000000000000000000000000000000000000c2"
	evaluator  market.Address = "0x00000000000000000000000000000000000000d1"
)

// newTestLedger opens a file-backed ledger with one account per role.
func newTestLedger(t *testing.T) (*Ledger, *ledger.Contract) {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	ctx := context.Background()
	accounts := []struct {
		addr    market.Address
		name    string
		role    market.Role
		balance int64
	}{
		{manager, "Mara", market.RoleManager, 0},
		{financer, "Finn", market.RoleFinancer, 1000},
		{financer2, "Fay", market.RoleFinancer, 1000},
		{freelancer, "Lena", market.RoleFreelancer, 0},
		{other, "Otto", market.RoleFreelancer, 0},
		{evaluator, "Eve", market.RoleEvaluator, 0},
	}
	for _, a := range accounts {
		require.NoError(t, l.Register(ctx, a.addr, a.name, "web", a.role, big.NewInt(a.balance)))
	}
	return l, ledger.NewContract(l, 0)
}

// newProduct creates a product as the manager and returns its id.
func newProduct(t *testing.T, c *ledger.Contract, dev, rev int64) string {
	t.Helper()
	rcpt, err := c.CreateProduct(context.Background(), manager, "site", dev, rev, "web")
	require.NoError(t, err)
	id := rcpt.Events[ledger.EventProductID]
	require.NotEmpty(t, id)
	return id
}

// staffed returns a funded product in progress with freelancer pledging dev.
func staffed(t *testing.T, c *ledger.Contract, dev, rev int64) string {
	t.Helper()
	ctx := context.Background()
	id := newProduct(t, c, dev, rev)
	_, err := c.FinanceProduct(ctx, financer, id, dev+rev)
	require.NoError(t, err)
	_, err = c.AddFreelancer(ctx, freelancer, id, dev)
	require.NoError(t, err)
	_, err = c.AddToTeam(ctx, manager, id, freelancer)
	require.NoError(t, err)
	return id
}

func balance(t *testing.T, c *ledger.Contract, addr market.Address) string {
	t.Helper()
	res, err := c.BalanceOf(context.Background(), addr, addr)
	require.NoError(t, err)
	return res[0].(string)
}

func requireRevert(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, reason, ledger.Reason(err))
}
