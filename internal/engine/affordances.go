package engine

import (
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Affordances lists the actions the session user can start on productID
// right now, in Actions order. An action is offered when its pre-check
// passes for the smallest valid request and it is not already in flight.
// The empty product id asks about CreateProduct.
func (e *Engine) Affordances(productID string) []Action {
	out := []Action{}
	u, ok := e.store.User()
	if !ok {
		return out
	}
	if productID == "" {
		if u.Role == market.RoleManager && !e.InFlight("", ActionCreate) {
			out = append(out, ActionCreate)
		}
		return out
	}
	p, ok := e.store.Product(productID)
	if !ok {
		return out
	}

	checks := map[Action]func(*market.Product, *market.User) error{
		ActionFund:     func(p *market.Product, u *market.User) error { return checkFund(p, u, 1) },
		ActionWithdraw: func(p *market.Product, u *market.User) error { return checkWithdraw(p, u, 1) },
		ActionDelete:   checkDelete,
		ActionJoin:     func(p *market.Product, u *market.User) error { return checkJoin(p, u, 1) },
		ActionAddToTeam: func(p *market.Product, u *market.User) error {
			for _, m := range p.Freelancers {
				if checkAddToTeam(p, u, m.Address) == nil {
					return nil
				}
			}
			return violation("no freelancer can be added")
		},
		ActionAssignEvaluator:  checkAssignEvaluator,
		ActionSignalDone:       checkSignalDone,
		ActionManagerAccept:    checkManagerReview,
		ActionManagerDecline:   checkManagerReview,
		ActionEvaluatorAccept:  checkEvaluatorReview,
		ActionEvaluatorDecline: checkEvaluatorReview,
	}
	for _, a := range Actions {
		check, ok := checks[a]
		if !ok || e.InFlight(productID, a) {
			continue
		}
		if check(&p, &u) == nil {
			out = append(out, a)
		}
	}
	return out
}
