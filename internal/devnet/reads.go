package devnet

import (
	"context"
	"fmt"
	"strconv"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

type readFunc func(ctx context.Context, q queryer, from market.Address, args []string) (ledger.Tuple, error)

var reads = map[string]struct {
	arity int
	fn    readFunc
}{
	ledger.MethodGetProducts:               {0, readProducts},
	ledger.MethodGetProduct:                {1, readProduct},
	ledger.MethodGetProductFreelancers:     {1, readFreelancers},
	ledger.MethodGetProductTeam:            {1, readTeam},
	ledger.MethodGetUserDetails:            {1, readUserDetails},
	ledger.MethodGetFreelancerAmount:       {1, readFreelancerAmount},
	ledger.MethodGetCurrentProductFunds:    {1, readCurrentFunds},
	ledger.MethodGetMyCurrentProductFunds:  {1, readMyFunds},
	ledger.MethodGetManagerNotifications:   {1, readManagerNotification},
	ledger.MethodGetEvaluatorNotifications: {1, readEvaluatorNotification},
	ledger.MethodGetUser:                   {0, readUser},
	ledger.MethodBalanceOf:                 {1, readBalance},
}

// Call implements ledger.Transport for read methods.
func (l *Ledger) Call(ctx context.Context, method string, opts ledger.CallOpts, args ...string) (ledger.Tuple, error) {
	r, ok := reads[method]
	if !ok {
		return nil, fmt.Errorf("devnet: unknown read method %q", method)
	}
	if len(args) != r.arity {
		return nil, fmt.Errorf("devnet: %s expects %d args, got %d", method, r.arity, len(args))
	}
	return r.fn(ctx, l.db, market.NormalizeAddress(string(opts.From)), args)
}

func readProducts(ctx context.Context, q queryer, _ market.Address, _ []string) (ledger.Tuple, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, deleted FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := ledger.Tuple{}
	for rows.Next() {
		var (
			id      int64
			deleted int
		)
		if err := rows.Scan(&id, &deleted); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if deleted != 0 {
			out = append(out, market.NoProduct)
			continue
		}
		out = append(out, strconv.FormatInt(id, 10))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func readProduct(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{
		p.Description,
		itoa(p.Dev),
		itoa(p.Rev),
		p.Domain,
		string(p.Manager),
		string(p.Evaluator),
		p.HasFunds,
		itoa(int64(p.Status)),
	}, nil
}

func readFreelancers(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	return readMembers(ctx, q, args[0], false)
}

func readTeam(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	return readMembers(ctx, q, args[0], true)
}

func readMembers(ctx context.Context, q queryer, rawID string, teamOnly bool) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, rawID)
	if err != nil {
		return nil, err
	}
	members, err := loadMembers(ctx, q, p.ID, teamOnly)
	if err != nil {
		return nil, err
	}
	out := make(ledger.Tuple, 0, len(members))
	for _, m := range members {
		out = append(out, string(m.Address))
	}
	return out, nil
}

func readUserDetails(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	u, err := loadUser(ctx, q, market.NormalizeAddress(args[0]))
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{u.Name, itoa(u.Reputation), u.Domain}, nil
}

func readFreelancerAmount(ctx context.Context, q queryer, from market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	var amount int64
	err = q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(amount), 0) FROM freelancers WHERE product_id = ? AND address = ?
	`, p.ID, string(from)).Scan(&amount)
	if err != nil {
		return nil, fmt.Errorf("load pledge: %w", err)
	}
	return ledger.Tuple{itoa(amount)}, nil
}

func readCurrentFunds(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	funds, err := productFunds(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{itoa(funds)}, nil
}

func readMyFunds(ctx context.Context, q queryer, from market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	amount, err := contribution(ctx, q, p.ID, from)
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{itoa(amount)}, nil
}

func readManagerNotification(ctx context.Context, q queryer, from market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	if from != p.Manager {
		return nil, ledger.Revert("Only the manager can read manager notifications")
	}
	return readNotification(ctx, q, p.ID, audienceManager)
}

func readEvaluatorNotification(ctx context.Context, q queryer, from market.Address, args []string) (ledger.Tuple, error) {
	p, err := loadProduct(ctx, q, args[0])
	if err != nil {
		return nil, err
	}
	if from.IsNull() || from != p.Evaluator {
		return nil, ledger.Revert("Only the evaluator can read evaluator notifications")
	}
	return readNotification(ctx, q, p.ID, audienceEvaluator)
}

func readNotification(ctx context.Context, q queryer, productID int64, audience string) (ledger.Tuple, error) {
	n, ok, err := activeNotification(ctx, q, productID, audience)
	if err != nil {
		return nil, err
	}
	if !ok {
		return ledger.Tuple{market.NoNotification, "0"}, nil
	}
	return ledger.Tuple{itoa(n.ID), itoa(int64(n.Status))}, nil
}

func readUser(ctx context.Context, q queryer, from market.Address, _ []string) (ledger.Tuple, error) {
	u, err := loadUser(ctx, q, from)
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{u.Name, itoa(u.Reputation), u.Domain, itoa(int64(u.Role))}, nil
}

func readBalance(ctx context.Context, q queryer, _ market.Address, args []string) (ledger.Tuple, error) {
	u, err := loadUser(ctx, q, market.NormalizeAddress(args[0]))
	if err != nil {
		return nil, err
	}
	return ledger.Tuple{u.Balance.String()}, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

var _ ledger.Transport = (*Ledger)(nil)
