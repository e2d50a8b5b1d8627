package devnet

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Register creates an account. Registration happens outside the client,
// so it is an administrative operation rather than a ledger write.
func (l *Ledger) Register(ctx context.Context, addr market.Address, name, domain string, role market.Role, balance *big.Int) error {
	addr = market.NormalizeAddress(string(addr))
	if addr == "" || addr.IsNull() {
		return fmt.Errorf("register: invalid address %q", addr)
	}
	if role < market.RoleManager || role > market.RoleFinancer {
		return fmt.Errorf("register: invalid role %d", role)
	}
	if balance == nil {
		balance = new(big.Int)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("register: negative balance %s", balance)
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO users (address, name, reputation, domain, role, balance)
		VALUES (?, ?, 0, ?, ?, ?)
	`, string(addr), name, domain, int(role), balance.String())
	if err != nil {
		return fmt.Errorf("register %s: %w", addr, err)
	}
	return nil
}

// Entry is one journaled write attempt.
type Entry struct {
	Seq     int64          `json:"seq"`
	TxID    string         `json:"tx_id"`
	Method  string         `json:"method"`
	Sender  market.Address `json:"sender"`
	Args    []string       `json:"args"`
	OK      bool           `json:"ok"`
	Outcome string         `json:"outcome"`
}

// Journal returns every write attempt in submission order.
func (l *Ledger) Journal(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, id, method, sender, args, ok, outcome
		FROM transactions ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			args string
			ok   int
		)
		if err := rows.Scan(&e.Seq, &e.TxID, &e.Method, &e.Sender, &args, &ok, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		e.Args = []string{}
		if args != "" {
			e.Args = strings.Split(args, "\x1f")
		}
		e.OK = ok != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// Account is a registered user as stored by the ledger.
type Account struct {
	Address market.Address `json:"address"`
	Name    string         `json:"name"`
	Role    market.Role    `json:"role"`
	Balance string         `json:"balance"`
}

// Accounts lists registered users ordered by address.
func (l *Ledger) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT address, name, role, balance FROM users ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var (
			a    Account
			role int
		)
		if err := rows.Scan(&a.Address, &a.Name, &role, &a.Balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Role = market.Role(role)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
