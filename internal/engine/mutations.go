package engine

import (
	"context"
	"math/big"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

// CreateProduct registers a new product managed by the session user.
func (e *Engine) CreateProduct(ctx context.Context, description string, dev, rev int64, domain string) (Outcome, error) {
	return e.run(ctx, mutation{
		action: ActionCreate,
		check: func(_ *market.Product, u *market.User) error {
			if u.Role != market.RoleManager {
				return violation("only managers can create products")
			}
			if dev <= 0 || rev <= 0 {
				return violation("budgets must be positive")
			}
			return nil
		},
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.CreateProduct(ctx, u.Address, description, dev, rev, domain)
		},
		create: func(u market.User, rcpt ledger.Receipt) (market.Product, bool) {
			id := rcpt.Events[ledger.EventProductID]
			if id == "" {
				return market.Product{}, false
			}
			return market.Product{
				ID:            id,
				Description:   description,
				Dev:           dev,
				Rev:           rev,
				Domain:        domain,
				Manager:       market.Party{Address: u.Address, Name: u.Name},
				Evaluator:     market.Party{Name: market.Unassigned},
				Status:        market.StatusBacklog,
				Contributions: map[market.Address]int64{},
				Freelancers:   []market.Member{},
				Team:          []market.Member{},
			}, true
		},
	})
}

// Fund contributes amount tokens from the session user.
func (e *Engine) Fund(ctx context.Context, productID string, amount int64) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionFund,
		productID: productID,
		check: func(p *market.Product, u *market.User) error {
			return checkFund(p, u, amount)
		},
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.FinanceProduct(ctx, u.Address, productID, amount)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.Funds += amount
			p.Contributions[u.Address] += amount
			p.HasFunds = p.Funds >= p.Budget()
			u.Tokens = addTokens(u.Tokens, -amount)
			return view.Keep
		},
	})
}

func checkFund(p *market.Product, u *market.User, amount int64) error {
	if u.Role != market.RoleFinancer {
		return violation("only financers can fund products")
	}
	if amount <= 0 {
		return violation("amount must be positive")
	}
	if p.HasFunds {
		return violation("product already has funds")
	}
	if p.Funds+amount > p.Budget() {
		return violation("too many funds sent: %d + %d exceeds budget %d", p.Funds, amount, p.Budget())
	}
	if u.Tokens == nil || u.Tokens.Cmp(big.NewInt(amount)) < 0 {
		return violation("not enough tokens")
	}
	return nil
}

// Withdraw takes back part of the session user's contribution.
func (e *Engine) Withdraw(ctx context.Context, productID string, amount int64) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionWithdraw,
		productID: productID,
		check: func(p *market.Product, u *market.User) error {
			return checkWithdraw(p, u, amount)
		},
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.WithdrawFunds(ctx, u.Address, productID, amount)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.Funds -= amount
			left := p.Contributions[u.Address] - amount
			if left == 0 {
				delete(p.Contributions, u.Address)
			} else {
				p.Contributions[u.Address] = left
			}
			u.Tokens = addTokens(u.Tokens, amount)
			return view.Keep
		},
	})
}

func checkWithdraw(p *market.Product, u *market.User, amount int64) error {
	if u.Role != market.RoleFinancer {
		return violation("only financers can withdraw funds")
	}
	if amount <= 0 {
		return violation("amount must be positive")
	}
	// Contributions are locked once the budget is met.
	if p.HasFunds {
		return violation("product already has funds")
	}
	if spent := p.Spent(u.Address); spent-amount < 0 {
		return violation("not enough funds: contributed %d, withdrawing %d", spent, amount)
	}
	return nil
}

// Delete removes an unfunded product managed by the session user.
func (e *Engine) Delete(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionDelete,
		productID: productID,
		check:     checkDelete,
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.DeleteProduct(ctx, u.Address, productID)
		},
		apply: func(*market.Product, *market.User, ledger.Receipt) view.Change {
			return view.Remove
		},
	})
}

func checkDelete(p *market.Product, u *market.User) error {
	if err := checkManagerOf(p, u, "delete the product"); err != nil {
		return err
	}
	if p.HasFunds {
		return violation("product already has funds")
	}
	return nil
}

// AssignEvaluator takes the product as its evaluator.
func (e *Engine) AssignEvaluator(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionAssignEvaluator,
		productID: productID,
		check:     checkAssignEvaluator,
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.AddEvaluator(ctx, u.Address, productID)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.Evaluator = market.Party{Address: u.Address, Name: u.Name}
			return view.Keep
		},
	})
}

func checkAssignEvaluator(p *market.Product, u *market.User) error {
	if u.Role != market.RoleEvaluator {
		return violation("only evaluators can evaluate products")
	}
	if p.EvaluatorAssigned() {
		return violation("product already has an evaluator")
	}
	return nil
}

// Join pledges amount of the dev budget as a freelancer.
func (e *Engine) Join(ctx context.Context, productID string, amount int64) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionJoin,
		productID: productID,
		check: func(p *market.Product, u *market.User) error {
			return checkJoin(p, u, amount)
		},
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.AddFreelancer(ctx, u.Address, productID, amount)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.IsAssigned = true
			p.Freelancers = append(p.Freelancers, market.Member{
				Address:  u.Address,
				Profile:  u.Profile,
				Amount:   amount,
				Position: len(p.Freelancers) + len(p.Team),
			})
			return view.Keep
		},
	})
}

func checkJoin(p *market.Product, u *market.User, amount int64) error {
	if u.Role != market.RoleFreelancer {
		return violation("only freelancers can join products")
	}
	if p.Status != market.StatusBacklog {
		return violation("product is not in backlog")
	}
	if amount <= 0 {
		return violation("amount must be positive")
	}
	if amount > p.Dev {
		return violation("funds exceeded: pledge %d exceeds dev budget %d", amount, p.Dev)
	}
	if p.IsAssigned {
		return violation("already joined this product")
	}
	return nil
}

// AddToTeam moves a joined freelancer into the team. Reaching the dev
// budget exactly starts the work.
func (e *Engine) AddToTeam(ctx context.Context, productID string, freelancer market.Address) (Outcome, error) {
	freelancer = market.NormalizeAddress(string(freelancer))
	return e.run(ctx, mutation{
		action:    ActionAddToTeam,
		productID: productID,
		check: func(p *market.Product, u *market.User) error {
			return checkAddToTeam(p, u, freelancer)
		},
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.AddToTeam(ctx, u.Address, productID, freelancer)
		},
		apply: func(p *market.Product, _ *market.User, _ ledger.Receipt) view.Change {
			m, i, ok := p.Freelancer(freelancer)
			if !ok {
				return view.Keep
			}
			p.Freelancers = append(p.Freelancers[:i:i], p.Freelancers[i+1:]...)
			p.Team = append(p.Team, m)
			if p.TeamSum() == p.Dev && market.CanTransition(p.Status, market.StatusInProgress) {
				p.Status = market.StatusInProgress
			}
			return view.Keep
		},
	})
}

func checkAddToTeam(p *market.Product, u *market.User, freelancer market.Address) error {
	if err := checkManagerOf(p, u, "staff the product"); err != nil {
		return err
	}
	if !p.HasFunds {
		return violation("product is not funded")
	}
	if p.Status != market.StatusBacklog {
		return violation("product is not in backlog")
	}
	if p.InTeam(freelancer) {
		return violation("freelancer %s is already in the team", freelancer)
	}
	m, _, ok := p.Freelancer(freelancer)
	if !ok {
		return violation("freelancer %s did not join the product", freelancer)
	}
	if sum := p.TeamSum(); sum+m.Amount > p.Dev {
		return violation("team budget exceeded: %d + %d exceeds dev budget %d", sum, m.Amount, p.Dev)
	}
	return nil
}

// SignalDone tells the manager the team finished the work.
func (e *Engine) SignalDone(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionSignalDone,
		productID: productID,
		check:     checkSignalDone,
		submit: func(ctx context.Context, u market.User, _ *market.Product) (ledger.Receipt, error) {
			return e.contract.NotifyManagerDone(ctx, u.Address, productID)
		},
		apply: func(p *market.Product, _ *market.User, rcpt ledger.Receipt) view.Change {
			p.Status = market.StatusUnderReview
			p.ManagerNotification = pending(rcpt)
			p.EvaluatorNotification = market.Notification{}
			return view.Keep
		},
	})
}

func checkSignalDone(p *market.Product, u *market.User) error {
	if !p.InTeam(u.Address) {
		return violation("only team members can signal completion")
	}
	if p.Status != market.StatusInProgress {
		return violation("product is not in progress")
	}
	return nil
}

// ManagerAccept accepts the finished work as the product's manager.
func (e *Engine) ManagerAccept(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionManagerAccept,
		productID: productID,
		check:     checkManagerReview,
		submit: func(ctx context.Context, u market.User, p *market.Product) (ledger.Receipt, error) {
			return e.contract.AcceptDone(ctx, u.Address, p.ManagerNotification.ID)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.Status = market.StatusDone
			p.ManagerNotification.Status = market.NotificationAccepted
			// Pledges and the rev split go to team accounts, which are
			// never the session user here.
			u.Reputation++
			return view.Keep
		},
	})
}

// ManagerDecline rejects the finished work and routes it to the evaluator.
func (e *Engine) ManagerDecline(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionManagerDecline,
		productID: productID,
		check:     checkManagerReview,
		submit: func(ctx context.Context, u market.User, p *market.Product) (ledger.Receipt, error) {
			return e.contract.DenyDone(ctx, u.Address, p.ManagerNotification.ID, p.Evaluator.Address)
		},
		apply: func(p *market.Product, _ *market.User, rcpt ledger.Receipt) view.Change {
			p.ManagerNotification.Status = market.NotificationDenied
			p.EvaluatorNotification = pending(rcpt)
			return view.Keep
		},
	})
}

func checkManagerReview(p *market.Product, u *market.User) error {
	if err := checkManagerOf(p, u, "review the product"); err != nil {
		return err
	}
	if p.Status != market.StatusUnderReview {
		return violation("product is not under review")
	}
	if n := p.ManagerNotification; !n.Present || n.Status != market.NotificationPending {
		return violation("no pending manager notification")
	}
	return nil
}

// EvaluatorAccept accepts the work as the assigned evaluator, who is
// credited the rev budget.
func (e *Engine) EvaluatorAccept(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionEvaluatorAccept,
		productID: productID,
		check:     checkEvaluatorReview,
		submit: func(ctx context.Context, u market.User, p *market.Product) (ledger.Receipt, error) {
			return e.contract.PositiveEvaluation(ctx, u.Address, p.EvaluatorNotification.ID)
		},
		apply: func(p *market.Product, u *market.User, _ ledger.Receipt) view.Change {
			p.Status = market.StatusDone
			p.EvaluatorNotification.Status = market.NotificationAccepted
			u.Tokens = addTokens(u.Tokens, p.Rev)
			return view.Keep
		},
	})
}

// EvaluatorDecline sends the work back for rework. The team is released
// so the manager can staff the product again.
func (e *Engine) EvaluatorDecline(ctx context.Context, productID string) (Outcome, error) {
	return e.run(ctx, mutation{
		action:    ActionEvaluatorDecline,
		productID: productID,
		check:     checkEvaluatorReview,
		submit: func(ctx context.Context, u market.User, p *market.Product) (ledger.Receipt, error) {
			return e.contract.NegativeEvaluation(ctx, u.Address, p.EvaluatorNotification.ID)
		},
		apply: func(p *market.Product, _ *market.User, _ ledger.Receipt) view.Change {
			p.Status = market.StatusBacklog
			p.EvaluatorNotification.Status = market.NotificationDenied
			p.ReleaseTeam()
			return view.Keep
		},
	})
}

func checkEvaluatorReview(p *market.Product, u *market.User) error {
	if u.Role != market.RoleEvaluator || !p.EvaluatorAssigned() || p.Evaluator.Address != u.Address {
		return violation("only the evaluator can review the product")
	}
	if p.Status != market.StatusUnderReview {
		return violation("product is not under review")
	}
	if n := p.EvaluatorNotification; !n.Present || n.Status != market.NotificationPending {
		return violation("no pending evaluator notification")
	}
	return nil
}

func checkManagerOf(p *market.Product, u *market.User, what string) error {
	if u.Role != market.RoleManager || p.Manager.Address != u.Address {
		return violation("only the manager can %s", what)
	}
	return nil
}

func pending(rcpt ledger.Receipt) market.Notification {
	return market.Notification{
		ID:      rcpt.Events[ledger.EventNotificationID],
		Status:  market.NotificationPending,
		Present: true,
	}
}

func addTokens(tokens *big.Int, delta int64) *big.Int {
	out := big.NewInt(delta)
	if tokens != nil {
		out.Add(out, tokens)
	}
	return out
}
