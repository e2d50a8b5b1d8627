package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Contract is the typed facade over a Transport.
type Contract struct {
	transport Transport
	maxGas    uint64
}

// NewContract wraps a transport. A zero maxGas selects DefaultMaxGas.
func NewContract(t Transport, maxGas uint64) *Contract {
	if maxGas == 0 {
		maxGas = DefaultMaxGas
	}
	return &Contract{transport: t, maxGas: maxGas}
}

// MaxGas returns the resource cap attached to writes.
func (c *Contract) MaxGas() uint64 {
	return c.maxGas
}

func (c *Contract) call(ctx context.Context, from market.Address, method string, args ...string) (Tuple, error) {
	res, err := c.transport.Call(ctx, method, CallOpts{From: from}, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return res, nil
}

func (c *Contract) send(ctx context.Context, from market.Address, method string, args ...string) (Receipt, error) {
	rcpt, err := c.transport.Send(ctx, method, CallOpts{From: from, Gas: c.maxGas}, args...)
	if err != nil {
		return Receipt{}, fmt.Errorf("%s: %w", method, err)
	}
	return rcpt, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// ProductIDs lists every product slot, deleted ones as market.NoProduct.
func (c *Contract) ProductIDs(ctx context.Context, from market.Address) (Tuple, error) {
	return c.call(ctx, from, MethodGetProducts)
}

// Product returns (description, dev, rev, domain, manager, evaluator,
// hasFunds, status).
func (c *Contract) Product(ctx context.Context, from market.Address, id string) (Tuple, error) {
	return c.call(ctx, from, MethodGetProduct, id)
}

// ProductFreelancers lists every freelancer that joined, in join order.
func (c *Contract) ProductFreelancers(ctx context.Context, from market.Address, id string) (Tuple, error) {
	return c.call(ctx, from, MethodGetProductFreelancers, id)
}

// ProductTeam lists team members in the order they were added.
func (c *Contract) ProductTeam(ctx context.Context, from market.Address, id string) (Tuple, error) {
	return c.call(ctx, from, MethodGetProductTeam, id)
}

// UserDetails returns (name, reputation, domain) for addr.
func (c *Contract) UserDetails(ctx context.Context, from, addr market.Address) (Tuple, error) {
	return c.call(ctx, from, MethodGetUserDetails, string(addr))
}

// FreelancerAmount returns the pledge of the calling account, so it must
// be issued as the member being looked up.
func (c *Contract) FreelancerAmount(ctx context.Context, member market.Address, id string) (Tuple, error) {
	return c.call(ctx, member, MethodGetFreelancerAmount, id)
}

// CurrentProductFunds returns the total contributed by all financers.
func (c *Contract) CurrentProductFunds(ctx context.Context, from market.Address, id string) (Tuple, error) {
	return c.call(ctx, from, MethodGetCurrentProductFunds, id)
}

// MyCurrentProductFunds returns the calling account's own contribution.
func (c *Contract) MyCurrentProductFunds(ctx context.Context, from market.Address, id string) (Tuple, error) {
	return c.call(ctx, from, MethodGetMyCurrentProductFunds, id)
}

// ManagerNotification returns (id, status); it must be issued as the
// product's manager.
func (c *Contract) ManagerNotification(ctx context.Context, manager market.Address, id string) (Tuple, error) {
	return c.call(ctx, manager, MethodGetManagerNotifications, id)
}

// EvaluatorNotification returns (id, status); it must be issued as the
// product's evaluator, never as the null address.
func (c *Contract) EvaluatorNotification(ctx context.Context, evaluator market.Address, id string) (Tuple, error) {
	if evaluator.IsNull() {
		return nil, fmt.Errorf("%s: evaluator address is unassigned", MethodGetEvaluatorNotifications)
	}
	return c.call(ctx, evaluator, MethodGetEvaluatorNotifications, id)
}

// User returns (name, reputation, domain, role) of the calling account.
func (c *Contract) User(ctx context.Context, from market.Address) (Tuple, error) {
	return c.call(ctx, from, MethodGetUser)
}

// BalanceOf returns the token balance of addr as a decimal string.
func (c *Contract) BalanceOf(ctx context.Context, from, addr market.Address) (Tuple, error) {
	return c.call(ctx, from, MethodBalanceOf, string(addr))
}

// CreateProduct registers a new product owned by from.
func (c *Contract) CreateProduct(ctx context.Context, from market.Address, description string, dev, rev int64, domain string) (Receipt, error) {
	return c.send(ctx, from, MethodCreateProduct, description, itoa(dev), itoa(rev), domain)
}

// FinanceProduct contributes amount tokens.
func (c *Contract) FinanceProduct(ctx context.Context, from market.Address, id string, amount int64) (Receipt, error) {
	return c.send(ctx, from, MethodFinanceProduct, id, itoa(amount))
}

// WithdrawFunds takes back part of the caller's contribution.
func (c *Contract) WithdrawFunds(ctx context.Context, from market.Address, id string, amount int64) (Receipt, error) {
	return c.send(ctx, from, MethodWithdrawFunds, id, itoa(amount))
}

// DeleteProduct removes an unfunded product.
func (c *Contract) DeleteProduct(ctx context.Context, from market.Address, id string) (Receipt, error) {
	return c.send(ctx, from, MethodDeleteProduct, id)
}

// AddEvaluator assigns the caller as evaluator.
func (c *Contract) AddEvaluator(ctx context.Context, from market.Address, id string) (Receipt, error) {
	return c.send(ctx, from, MethodAddEvaluator, id)
}

// AddFreelancer joins the caller with a pledge.
func (c *Contract) AddFreelancer(ctx context.Context, from market.Address, id string, amount int64) (Receipt, error) {
	return c.send(ctx, from, MethodAddFreelancer, id, itoa(amount))
}

// AddToTeam moves a joined freelancer into the team.
func (c *Contract) AddToTeam(ctx context.Context, from market.Address, id string, freelancer market.Address) (Receipt, error) {
	return c.send(ctx, from, MethodAddToTeam, id, string(freelancer))
}

// NotifyManagerDone signals completion to the manager.
func (c *Contract) NotifyManagerDone(ctx context.Context, from market.Address, id string) (Receipt, error) {
	return c.send(ctx, from, MethodNotifyManagerDone, id)
}

// AcceptDone accepts the work referenced by a manager notification.
func (c *Contract) AcceptDone(ctx context.Context, from market.Address, notificationID string) (Receipt, error) {
	return c.send(ctx, from, MethodAcceptDone, notificationID)
}

// DenyDone declines the work and routes it to the evaluator.
func (c *Contract) DenyDone(ctx context.Context, from market.Address, notificationID string, evaluator market.Address) (Receipt, error) {
	if evaluator == "" {
		evaluator = market.NullAddress
	}
	return c.send(ctx, from, MethodDenyDone, notificationID, string(evaluator))
}

// PositiveEvaluation accepts the work as evaluator.
func (c *Contract) PositiveEvaluation(ctx context.Context, from market.Address, notificationID string) (Receipt, error) {
	return c.send(ctx, from, MethodPositiveEvaluation, notificationID)
}

// NegativeEvaluation sends the work back for rework.
func (c *Contract) NegativeEvaluation(ctx context.Context, from market.Address, notificationID string) (Receipt, error) {
	return c.send(ctx, from, MethodNegativeEvaluation, notificationID)
}
