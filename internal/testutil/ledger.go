package testutil

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/devnet"
	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Fixture accounts registered by NewLedger.
const (
	Manager     market.Address = "0x00000000000000000000000000000000000000a1"
	Financer    market.Address = "0x00000000000000000000000000000000000000b1"
	Financer2   market.Address = "0x00000000000000000000000000000000000000b2"
	Freelancer  market.Address = "0x00000000000000000000000000000000000000c1"
	Freelancer2 market.Address = "0x00000000000000000000000000000000000000c2"
	Freelancer3 market.Address = "0x00000000000000000000000000000000000000c3"
	Evaluator   market.Address = "0x00000000000000000000000000000000000000d1"
	Stranger    market.Address = "0x00000000000000000000000000000000000000ff"
)

// FixtureBalance is every financer's starting balance.
const FixtureBalance = 1000

// Account is one fixture account.
type Account struct {
	Alias   string
	Address market.Address
	Name    string
	Role    market.Role
	Balance int64
}

// Fixtures are the accounts RegisterFixtures creates, keyed in scenarios
// by Alias.
var Fixtures = []Account{
	{"manager", Manager, "Mara", market.RoleManager, 0},
	{"financer", Financer, "Finn", market.RoleFinancer, FixtureBalance},
	{"financer2", Financer2, "Fay", market.RoleFinancer, FixtureBalance},
	{"freelancer", Freelancer, "Lena", market.RoleFreelancer, 0},
	{"freelancer2", Freelancer2, "Otto", market.RoleFreelancer, 0},
	{"freelancer3", Freelancer3, "Ivo", market.RoleFreelancer, 0},
	{"evaluator", Evaluator, "Eve", market.RoleEvaluator, 0},
}

// RegisterFixtures registers every fixture account in the "web" domain.
func RegisterFixtures(ctx context.Context, l *devnet.Ledger) error {
	for _, a := range Fixtures {
		if err := l.Register(ctx, a.Address, a.Name, "web", a.Role, big.NewInt(a.Balance)); err != nil {
			return err
		}
	}
	return nil
}

// NewLedger opens a temporary devnet ledger with the fixture accounts
// registered. Stranger is left unregistered.
func NewLedger(t *testing.T) *devnet.Ledger {
	t.Helper()
	l, err := devnet.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	require.NoError(t, RegisterFixtures(context.Background(), l))
	return l
}

// MustCreate creates a product as Manager and returns its id.
func MustCreate(t *testing.T, c *ledger.Contract, description string, dev, rev int64) string {
	t.Helper()
	rcpt, err := c.CreateProduct(context.Background(), Manager, description, dev, rev, "web")
	require.NoError(t, err)
	return rcpt.Events[ledger.EventProductID]
}
