package devnet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

type userRow struct {
	Address    market.Address
	Name       string
	Reputation int64
	Domain     string
	Role       market.Role
	Balance    *big.Int
}

type productRow struct {
	ID          int64
	Description string
	Dev         int64
	Rev         int64
	Domain      string
	Manager     market.Address
	Evaluator   market.Address
	HasFunds    bool
	Status      market.Status
}

type memberRow struct {
	Address      market.Address
	Amount       int64
	Position     int64
	TeamPosition sql.NullInt64
}

type notificationRow struct {
	ID        int64
	ProductID int64
	Audience  string
	Status    market.NotificationStatus
	Active    bool
}

const (
	audienceManager   = "manager"
	audienceEvaluator = "evaluator"
)

var errNoUser = ledger.Revert("User not registered")

func loadUser(ctx context.Context, q queryer, addr market.Address) (userRow, error) {
	var (
		u       userRow
		role    int
		balance string
	)
	err := q.QueryRowContext(ctx, `
		SELECT address, name, reputation, domain, role, balance
		FROM users WHERE address = ?
	`, string(addr)).Scan(&u.Address, &u.Name, &u.Reputation, &u.Domain, &role, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return userRow{}, errNoUser
	}
	if err != nil {
		return userRow{}, fmt.Errorf("load user: %w", err)
	}
	u.Role = market.Role(role)
	b, ok := new(big.Int).SetString(balance, 10)
	if !ok {
		return userRow{}, fmt.Errorf("load user: corrupt balance %q", balance)
	}
	u.Balance = b
	return u, nil
}

func requireRole(ctx context.Context, q queryer, addr market.Address, role market.Role, reason string) (userRow, error) {
	u, err := loadUser(ctx, q, addr)
	if err != nil {
		return userRow{}, err
	}
	if u.Role != role {
		return userRow{}, ledger.Revert(reason)
	}
	return u, nil
}

// adjustBalance adds delta (which may be negative) to an account balance.
func adjustBalance(ctx context.Context, q queryer, addr market.Address, delta *big.Int) error {
	u, err := loadUser(ctx, q, addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(u.Balance, delta)
	if next.Sign() < 0 {
		return ledger.Revert("Not enough tokens")
	}
	if _, err := q.ExecContext(ctx, `UPDATE users SET balance = ? WHERE address = ?`, next.String(), string(addr)); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func loadProduct(ctx context.Context, q queryer, rawID string) (productRow, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || rawID == market.NoProduct {
		return productRow{}, ledger.Revert("Product does not exist")
	}
	var (
		p         productRow
		hasFunds  int
		status    int
		deleted   int
		evaluator string
	)
	err = q.QueryRowContext(ctx, `
		SELECT id, description, dev, rev, domain, manager, evaluator, has_funds, status, deleted
		FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.Description, &p.Dev, &p.Rev, &p.Domain, &p.Manager, &evaluator, &hasFunds, &status, &deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted != 0) {
		return productRow{}, ledger.Revert("Product does not exist")
	}
	if err != nil {
		return productRow{}, fmt.Errorf("load product: %w", err)
	}
	p.Evaluator = market.Address(evaluator)
	p.HasFunds = hasFunds != 0
	p.Status = market.Status(status)
	return p, nil
}

func (p productRow) idString() string {
	return strconv.FormatInt(p.ID, 10)
}

func loadMembers(ctx context.Context, q queryer, productID int64, teamOnly bool) ([]memberRow, error) {
	query := `
		SELECT address, amount, position, team_position
		FROM freelancers WHERE product_id = ?
		ORDER BY position ASC`
	if teamOnly {
		query = `
		SELECT address, amount, position, team_position
		FROM freelancers WHERE product_id = ? AND team_position IS NOT NULL
		ORDER BY team_position ASC`
	}
	rows, err := q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query freelancers: %w", err)
	}
	defer rows.Close()

	members := []memberRow{}
	for rows.Next() {
		var m memberRow
		if err := rows.Scan(&m.Address, &m.Amount, &m.Position, &m.TeamPosition); err != nil {
			return nil, fmt.Errorf("scan freelancer: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate freelancers: %w", err)
	}
	return members, nil
}

func productFunds(ctx context.Context, q queryer, productID int64) (int64, error) {
	var funds int64
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE product_id = ?
	`, productID).Scan(&funds)
	if err != nil {
		return 0, fmt.Errorf("sum contributions: %w", err)
	}
	return funds, nil
}

func contribution(ctx context.Context, q queryer, productID int64, addr market.Address) (int64, error) {
	var amount int64
	err := q.QueryRowContext(ctx, `
		SELECT amount FROM contributions WHERE product_id = ? AND address = ?
	`, productID, string(addr)).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load contribution: %w", err)
	}
	return amount, nil
}

func activeNotification(ctx context.Context, q queryer, productID int64, audience string) (notificationRow, bool, error) {
	var (
		n      notificationRow
		status int
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, product_id, audience, status
		FROM notifications
		WHERE product_id = ? AND audience = ? AND active = 1
		ORDER BY id DESC LIMIT 1
	`, productID, audience).Scan(&n.ID, &n.ProductID, &n.Audience, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return notificationRow{}, false, nil
	}
	if err != nil {
		return notificationRow{}, false, fmt.Errorf("load notification: %w", err)
	}
	n.Status = market.NotificationStatus(status)
	n.Active = true
	return n, true, nil
}

func loadNotification(ctx context.Context, q queryer, rawID string, audience string) (notificationRow, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || rawID == market.NoNotification {
		return notificationRow{}, ledger.Revert("Notification does not exist")
	}
	var (
		n      notificationRow
		status int
		active int
	)
	err = q.QueryRowContext(ctx, `
		SELECT id, product_id, audience, status, active
		FROM notifications WHERE id = ?
	`, id).Scan(&n.ID, &n.ProductID, &n.Audience, &status, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return notificationRow{}, ledger.Revert("Notification does not exist")
	}
	if err != nil {
		return notificationRow{}, fmt.Errorf("load notification: %w", err)
	}
	if n.Audience != audience || active == 0 {
		return notificationRow{}, ledger.Revert("Notification does not exist")
	}
	n.Status = market.NotificationStatus(status)
	n.Active = true
	return n, nil
}

// nextID allocates the next id for a table, skipping the reserved value
// the ledger uses as a "none" marker.
func nextID(ctx context.Context, q queryer, table string) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) + 1 FROM %s`, table)).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", table, err)
	}
	if strconv.FormatInt(id, 10) == market.NoProduct {
		id++
	}
	return id, nil
}
