package devnet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// writeFunc applies one ledger write inside a transaction. Returned events
// are copied into the receipt.
type writeFunc func(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error)

var writes = map[string]struct {
	arity int
	fn    writeFunc
}{
	ledger.MethodCreateProduct:      {4, createProduct},
	ledger.MethodFinanceProduct:     {2, financeProduct},
	ledger.MethodWithdrawFunds:      {2, withdrawFunds},
	ledger.MethodDeleteProduct:      {1, deleteProduct},
	ledger.MethodAddEvaluator:       {1, addEvaluator},
	ledger.MethodAddFreelancer:      {2, addFreelancer},
	ledger.MethodAddToTeam:          {2, addToTeam},
	ledger.MethodNotifyManagerDone:  {1, notifyManagerDone},
	ledger.MethodAcceptDone:         {1, acceptDone},
	ledger.MethodDenyDone:           {2, denyDone},
	ledger.MethodPositiveEvaluation: {1, positiveEvaluation},
	ledger.MethodNegativeEvaluation: {1, negativeEvaluation},
}

// Send implements ledger.Transport for write methods. Every attempt is
// journaled, reverted or not; a reverted write leaves no other trace.
func (l *Ledger) Send(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Receipt, error) {
	w, ok := writes[method]
	if !ok {
		return ledger.Receipt{}, fmt.Errorf("devnet: unknown write method %q", method)
	}
	if len(args) != w.arity {
		return ledger.Receipt{}, fmt.Errorf("devnet: %s expects %d args, got %d", method, w.arity, len(args))
	}
	from := market.NormalizeAddress(string(opts.From))
	txID := ulid.Make().String()

	var (
		events map[string]string
		err    error
	)
	if opts.Gas == 0 {
		err = ledger.Revert("Out of gas")
	} else {
		events, err = l.apply(ctx, w.fn, from, args)
	}

	outcome := "ok"
	if err != nil {
		outcome = err.Error()
	}
	if jerr := l.journal(ctx, txID, method, from, args, err == nil, outcome); jerr != nil {
		return ledger.Receipt{}, jerr
	}
	if err != nil {
		return ledger.Receipt{}, err
	}
	return ledger.Receipt{TxID: txID, Events: events}, nil
}

func (l *Ledger) apply(ctx context.Context, fn writeFunc, from market.Address, args []string) (map[string]string, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	events, err := fn(ctx, tx, from, args)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return events, nil
}

func (l *Ledger) journal(ctx context.Context, txID, method string, from market.Address, args []string, ok bool, outcome string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions (id, method, sender, args, ok, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
	`, txID, method, string(from), strings.Join(args, "\x1f"), boolInt(ok), outcome)
	if err != nil {
		return fmt.Errorf("journal transaction: %w", err)
	}
	return nil
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ledger.Revert("Invalid amount")
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func createProduct(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	if _, err := requireRole(ctx, tx, from, market.RoleManager, "Only managers can create products"); err != nil {
		return nil, err
	}
	dev, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}
	rev, err := parseAmount(args[2])
	if err != nil {
		return nil, err
	}
	if dev <= 0 || rev <= 0 {
		return nil, ledger.Revert("Budgets must be positive")
	}
	id, err := nextID(ctx, tx, "products")
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, description, dev, rev, domain, manager, evaluator, has_funds, status, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 0)
	`, id, args[0], dev, rev, args[3], string(from), string(market.NullAddress), int(market.StatusBacklog))
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return map[string]string{ledger.EventProductID: itoa(id)}, nil
}

func financeProduct(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	if _, err := requireRole(ctx, tx, from, market.RoleFinancer, "Only financers can fund products"); err != nil {
		return nil, err
	}
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	v, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}
	if v <= 0 {
		return nil, ledger.Revert("Amount must be positive")
	}
	if p.HasFunds {
		return nil, ledger.Revert("Product already has funds")
	}
	funds, err := productFunds(ctx, tx, p.ID)
	if err != nil {
		return nil, err
	}
	budget := p.Dev + p.Rev
	if funds+v > budget {
		return nil, ledger.Revert("Too many funds sent")
	}
	if err := adjustBalance(ctx, tx, from, big.NewInt(-v)); err != nil {
		return nil, err
	}
	if err := addContribution(ctx, tx, p.ID, from, v); err != nil {
		return nil, err
	}
	return nil, setHasFunds(ctx, tx, p.ID, funds+v >= budget)
}

func withdrawFunds(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	if _, err := requireRole(ctx, tx, from, market.RoleFinancer, "Only financers can withdraw funds"); err != nil {
		return nil, err
	}
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	v, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}
	if v <= 0 {
		return nil, ledger.Revert("Amount must be positive")
	}
	// A fully funded product keeps its contributions; withdrawal is only
	// open while funding is still in progress.
	if p.HasFunds {
		return nil, ledger.Revert("Product already has funds")
	}
	have, err := contribution(ctx, tx, p.ID, from)
	if err != nil {
		return nil, err
	}
	if have < v {
		return nil, ledger.Revert("Not enough funds")
	}
	if err := addContribution(ctx, tx, p.ID, from, -v); err != nil {
		return nil, err
	}
	return nil, adjustBalance(ctx, tx, from, big.NewInt(v))
}

func deleteProduct(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	if from != p.Manager {
		return nil, ledger.Revert("Only the manager can delete the product")
	}
	if p.HasFunds {
		return nil, ledger.Revert("Product already has funds")
	}

	rows, err := tx.QueryContext(ctx, `SELECT address, amount FROM contributions WHERE product_id = ?`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("query contributions: %w", err)
	}
	type refund struct {
		addr   market.Address
		amount int64
	}
	var refunds []refund
	for rows.Next() {
		var r refund
		if err := rows.Scan(&r.addr, &r.amount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		refunds = append(refunds, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	for _, r := range refunds {
		if err := adjustBalance(ctx, tx, r.addr, big.NewInt(r.amount)); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE product_id = ?`, p.ID); err != nil {
		return nil, fmt.Errorf("clear contributions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET deleted = 1 WHERE id = ?`, p.ID); err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	return nil, nil
}

func addEvaluator(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	if _, err := requireRole(ctx, tx, from, market.RoleEvaluator, "Only evaluators can evaluate products"); err != nil {
		return nil, err
	}
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	if !p.Evaluator.IsNull() {
		return nil, ledger.Revert("Product already has an evaluator")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET evaluator = ? WHERE id = ?`, string(from), p.ID); err != nil {
		return nil, fmt.Errorf("assign evaluator: %w", err)
	}
	return nil, nil
}

func addFreelancer(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	if _, err := requireRole(ctx, tx, from, market.RoleFreelancer, "Only freelancers can join products"); err != nil {
		return nil, err
	}
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	v, err := parseAmount(args[1])
	if err != nil {
		return nil, err
	}
	if p.Status != market.StatusBacklog {
		return nil, ledger.Revert("Product is not in backlog")
	}
	if v <= 0 {
		return nil, ledger.Revert("Amount must be positive")
	}
	if v > p.Dev {
		return nil, ledger.Revert("Funds exceeded")
	}
	members, err := loadMembers(ctx, tx, p.ID, false)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.Address == from {
			return nil, ledger.Revert("Freelancer already joined")
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO freelancers (product_id, address, amount, position, team_position)
		VALUES (?, ?, ?, ?, NULL)
	`, p.ID, string(from), v, len(members))
	if err != nil {
		return nil, fmt.Errorf("insert freelancer: %w", err)
	}
	return nil, nil
}

func addToTeam(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	if from != p.Manager {
		return nil, ledger.Revert("Only the manager can staff the product")
	}
	if !p.HasFunds {
		return nil, ledger.Revert("Product is not funded")
	}
	if p.Status != market.StatusBacklog {
		return nil, ledger.Revert("Product is not in backlog")
	}
	members, err := loadMembers(ctx, tx, p.ID, false)
	if err != nil {
		return nil, err
	}
	target := market.NormalizeAddress(args[1])
	var (
		candidate *memberRow
		teamSum   int64
		teamSize  int64
	)
	for i := range members {
		m := &members[i]
		if m.TeamPosition.Valid {
			teamSum += m.Amount
			teamSize++
			if m.Address == target {
				return nil, ledger.Revert("Freelancer already in team")
			}
			continue
		}
		if m.Address == target {
			candidate = m
		}
	}
	if candidate == nil {
		return nil, ledger.Revert("Freelancer did not join the product")
	}
	if teamSum+candidate.Amount > p.Dev {
		return nil, ledger.Revert("Team budget exceeded")
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE freelancers SET team_position = ? WHERE product_id = ? AND address = ?
	`, teamSize, p.ID, string(target))
	if err != nil {
		return nil, fmt.Errorf("add to team: %w", err)
	}
	if teamSum+candidate.Amount == p.Dev {
		return nil, setStatus(ctx, tx, p.ID, market.StatusInProgress)
	}
	return nil, nil
}

func notifyManagerDone(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	p, err := loadProduct(ctx, tx, args[0])
	if err != nil {
		return nil, err
	}
	team, err := loadMembers(ctx, tx, p.ID, true)
	if err != nil {
		return nil, err
	}
	inTeam := false
	for _, m := range team {
		if m.Address == from {
			inTeam = true
			break
		}
	}
	if !inTeam {
		return nil, ledger.Revert("Only team members can signal completion")
	}
	if p.Status != market.StatusInProgress {
		return nil, ledger.Revert("Product is not in progress")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE notifications SET active = 0 WHERE product_id = ?`, p.ID); err != nil {
		return nil, fmt.Errorf("retire notifications: %w", err)
	}
	id, err := insertNotification(ctx, tx, p.ID, audienceManager)
	if err != nil {
		return nil, err
	}
	if err := setStatus(ctx, tx, p.ID, market.StatusUnderReview); err != nil {
		return nil, err
	}
	return map[string]string{ledger.EventNotificationID: itoa(id)}, nil
}

func acceptDone(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	n, p, err := reviewTarget(ctx, tx, args[0], audienceManager)
	if err != nil {
		return nil, err
	}
	if from != p.Manager {
		return nil, ledger.Revert("Only the manager can review the product")
	}
	if err := setNotificationStatus(ctx, tx, n.ID, market.NotificationAccepted); err != nil {
		return nil, err
	}
	team, err := loadMembers(ctx, tx, p.ID, true)
	if err != nil {
		return nil, err
	}
	if err := payPledges(ctx, tx, team); err != nil {
		return nil, err
	}
	if len(team) > 0 {
		share := p.Rev / int64(len(team))
		remainder := p.Rev - share*int64(len(team))
		for i, m := range team {
			reward := share
			if i == 0 {
				reward += remainder
			}
			if err := adjustBalance(ctx, tx, m.Address, big.NewInt(reward)); err != nil {
				return nil, err
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET reputation = reputation + 1 WHERE address = ?`, string(p.Manager)); err != nil {
		return nil, fmt.Errorf("update reputation: %w", err)
	}
	return nil, setStatus(ctx, tx, p.ID, market.StatusDone)
}

func denyDone(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	n, p, err := reviewTarget(ctx, tx, args[0], audienceManager)
	if err != nil {
		return nil, err
	}
	if from != p.Manager {
		return nil, ledger.Revert("Only the manager can review the product")
	}
	if market.NormalizeAddress(args[1]) != p.Evaluator {
		return nil, ledger.Revert("Evaluator mismatch")
	}
	if err := setNotificationStatus(ctx, tx, n.ID, market.NotificationDenied); err != nil {
		return nil, err
	}
	id, err := insertNotification(ctx, tx, p.ID, audienceEvaluator)
	if err != nil {
		return nil, err
	}
	return map[string]string{ledger.EventNotificationID: itoa(id)}, nil
}

func positiveEvaluation(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	n, p, err := reviewTarget(ctx, tx, args[0], audienceEvaluator)
	if err != nil {
		return nil, err
	}
	if p.Evaluator.IsNull() || from != p.Evaluator {
		return nil, ledger.Revert("Only the evaluator can review the product")
	}
	if err := setNotificationStatus(ctx, tx, n.ID, market.NotificationAccepted); err != nil {
		return nil, err
	}
	team, err := loadMembers(ctx, tx, p.ID, true)
	if err != nil {
		return nil, err
	}
	if err := payPledges(ctx, tx, team); err != nil {
		return nil, err
	}
	if err := adjustBalance(ctx, tx, p.Evaluator, big.NewInt(p.Rev)); err != nil {
		return nil, err
	}
	return nil, setStatus(ctx, tx, p.ID, market.StatusDone)
}

func negativeEvaluation(ctx context.Context, tx *sql.Tx, from market.Address, args []string) (map[string]string, error) {
	n, p, err := reviewTarget(ctx, tx, args[0], audienceEvaluator)
	if err != nil {
		return nil, err
	}
	if p.Evaluator.IsNull() || from != p.Evaluator {
		return nil, ledger.Revert("Only the evaluator can review the product")
	}
	if err := setNotificationStatus(ctx, tx, n.ID, market.NotificationDenied); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE freelancers SET team_position = NULL WHERE product_id = ?`, p.ID); err != nil {
		return nil, fmt.Errorf("release team: %w", err)
	}
	return nil, setStatus(ctx, tx, p.ID, market.StatusBacklog)
}

// reviewTarget resolves a pending notification and its product, which
// must be under review.
func reviewTarget(ctx context.Context, tx *sql.Tx, rawID, audience string) (notificationRow, productRow, error) {
	n, err := loadNotification(ctx, tx, rawID, audience)
	if err != nil {
		return notificationRow{}, productRow{}, err
	}
	if n.Status != market.NotificationPending {
		return notificationRow{}, productRow{}, ledger.Revert("Notification already handled")
	}
	p, err := loadProduct(ctx, tx, itoa(n.ProductID))
	if err != nil {
		return notificationRow{}, productRow{}, err
	}
	if p.Status != market.StatusUnderReview {
		return notificationRow{}, productRow{}, ledger.Revert("Product is not under review")
	}
	return n, p, nil
}

func payPledges(ctx context.Context, tx *sql.Tx, team []memberRow) error {
	for _, m := range team {
		if err := adjustBalance(ctx, tx, m.Address, big.NewInt(m.Amount)); err != nil {
			return err
		}
	}
	return nil
}

func addContribution(ctx context.Context, tx *sql.Tx, productID int64, addr market.Address, delta int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO contributions (product_id, address, amount) VALUES (?, ?, ?)
		ON CONFLICT (product_id, address) DO UPDATE SET amount = amount + excluded.amount
	`, productID, string(addr), delta)
	if err != nil {
		return fmt.Errorf("record contribution: %w", err)
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM contributions WHERE product_id = ? AND address = ? AND amount = 0`, productID, string(addr))
	if err != nil {
		return fmt.Errorf("prune contribution: %w", err)
	}
	return nil
}

func setHasFunds(ctx context.Context, tx *sql.Tx, productID int64, hasFunds bool) error {
	if _, err := tx.ExecContext(ctx, `UPDATE products SET has_funds = ? WHERE id = ?`, boolInt(hasFunds), productID); err != nil {
		return fmt.Errorf("update funding: %w", err)
	}
	return nil
}

func setStatus(ctx context.Context, tx *sql.Tx, productID int64, status market.Status) error {
	if _, err := tx.ExecContext(ctx, `UPDATE products SET status = ? WHERE id = ?`, int(status), productID); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, productID int64, audience string) (int64, error) {
	id, err := nextID(ctx, tx, "notifications")
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, product_id, audience, status, active)
		VALUES (?, ?, ?, ?, 1)
	`, id, productID, audience, int(market.NotificationPending))
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return id, nil
}

func setNotificationStatus(ctx context.Context, tx *sql.Tx, id int64, status market.NotificationStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE notifications SET status = ? WHERE id = ?`, int(status), id)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New("update notification: no rows")
	}
	return nil
}
