package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/procateodor/blockchain-marketplace/internal/aggregate"
	"github.com/procateodor/blockchain-marketplace/internal/devnet"
	"github.com/procateodor/blockchain-marketplace/internal/engine"
	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/logging"
	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/normalize"
	"github.com/procateodor/blockchain-marketplace/internal/session"
	"github.com/procateodor/blockchain-marketplace/internal/testutil"
	"github.com/procateodor/blockchain-marketplace/internal/view"
)

// Harness holds the components of one scenario run.
type Harness struct {
	ledger   *devnet.Ledger
	contract *ledger.Contract
	store    *view.Store
	agg      *aggregate.Aggregator
	session  *session.Session
	engine   *engine.Engine

	accounts map[string]market.Address
	aliases  map[market.Address]string
	current  string
}

// Run executes a scenario on a fresh in-memory ledger.
//
// Step and assertion failures are collected in the result. The error is
// reserved for runs that could not be carried out: a bad setup step, an
// unknown account, a session that fails to load.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	l, err := devnet.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory ledger: %w", err)
	}
	defer l.Close()

	h, err := newHarness(ctx, l, scenario.Accounts)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, err := h.direct(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup step %d (%s as %s): %w", i, step.Action, step.As, err)
		}
		ev.Phase, ev.Step = "setup", i
		result.Trace = append(result.Trace, ev)
	}

	for i, step := range scenario.Flow {
		ev, err := h.flowStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow step %d (%s as %s): %w", i, step.Action, step.As, err)
		}
		ev.Phase, ev.Step = "flow", i
		result.Trace = append(result.Trace, ev)

		want := step.Expect
		if want == "" {
			want = ExpectOK
		}
		if ev.Outcome != want {
			result.AddError(fmt.Sprintf("flow[%d] %s as %s: expected %s, got %s (%s)", i, step.Action, step.As, want, ev.Outcome, ev.Reason))
		} else if step.Reason != "" && !strings.Contains(ev.Reason, step.Reason) {
			result.AddError(fmt.Sprintf("flow[%d] %s as %s: reason %q does not contain %q", i, step.Action, step.As, ev.Reason, step.Reason))
		}
		h.recordTransitions(result)
	}

	for _, msg := range h.evaluate(ctx, scenario.Assertions, result) {
		result.AddError(msg)
	}

	result.Account = h.current
	result.Final = h.snapshot()
	return result, nil
}

func newHarness(ctx context.Context, l *devnet.Ledger, specs []AccountSpec) (*Harness, error) {
	h := &Harness{
		ledger:   l,
		contract: ledger.NewContract(l, 0),
		store:    view.New(),
		accounts: make(map[string]market.Address),
		aliases:  make(map[market.Address]string),
	}
	logger := logging.Discard()
	h.agg = aggregate.New(h.contract, aggregate.WithLogger(logger))
	h.session = session.New(h.contract, h.agg, h.store, session.WithLogger(logger))
	h.engine = engine.New(h.contract, h.store,
		engine.WithIDGenerator(testutil.NewSequenceGenerator("mut")),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithLogger(logger),
	)

	if len(specs) == 0 {
		if err := testutil.RegisterFixtures(ctx, l); err != nil {
			return nil, fmt.Errorf("register fixtures: %w", err)
		}
		for _, a := range testutil.Fixtures {
			h.alias(a.Alias, a.Address)
		}
		h.alias("stranger", testutil.Stranger)
		return h, nil
	}

	for _, spec := range specs {
		role, _ := market.ParseRole(spec.Role)
		addr := market.NormalizeAddress(spec.Address)
		domain := spec.Domain
		if domain == "" {
			domain = "web"
		}
		if err := l.Register(ctx, addr, spec.Name, domain, role, big.NewInt(spec.Balance)); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.Alias, err)
		}
		h.alias(spec.Alias, addr)
	}
	return h, nil
}

func (h *Harness) alias(name string, addr market.Address) {
	h.accounts[name] = addr
	h.aliases[addr] = name
}

// resolve maps an alias or a raw address to an address.
func (h *Harness) resolve(who string) (market.Address, error) {
	if addr, ok := h.accounts[who]; ok {
		return addr, nil
	}
	if strings.HasPrefix(who, "0x") {
		return market.NormalizeAddress(who), nil
	}
	return "", fmt.Errorf("unknown account %q", who)
}

func (h *Harness) name(addr market.Address) string {
	if a, ok := h.aliases[addr]; ok {
		return a
	}
	return string(addr)
}

func (h *Harness) flowStep(ctx context.Context, step Step) (TraceEvent, error) {
	if step.Direct {
		ev, err := h.direct(ctx, step)
		if err != nil {
			var re *ledger.RevertError
			if !errors.As(err, &re) {
				return TraceEvent{}, err
			}
			ev.Outcome, ev.Reason = ExpectRejected, re.Reason
		}
		return ev, nil
	}

	if step.As != h.current {
		addr, err := h.resolve(step.As)
		if err != nil {
			return TraceEvent{}, err
		}
		// An account that fails to load leaves no session user; the engine
		// reports that as no_session.
		_ = h.session.Load(ctx, addr)
		h.current = step.As
	} else if step.Reload {
		if err := h.session.Reload(ctx); err != nil {
			return TraceEvent{}, fmt.Errorf("reload session: %w", err)
		}
	}

	ev := TraceEvent{As: step.As, Action: step.Action, Product: step.Product, Args: step.Args}
	out, err := h.mutate(ctx, step)
	if out.ProductID != "" {
		ev.Product = out.ProductID
	}
	ev.MutationID = out.MutationID
	if hist := h.engine.History(); len(hist) > 0 {
		ev.Seq = hist[len(hist)-1].Seq
	}

	var me *engine.MutationError
	switch {
	case err == nil:
		ev.Outcome = ExpectOK
	case errors.As(err, &me):
		ev.Outcome = strings.ToLower(string(me.Code))
		ev.Reason = me.Reason
	default:
		return TraceEvent{}, err
	}
	return ev, nil
}

func (h *Harness) mutate(ctx context.Context, step Step) (engine.Outcome, error) {
	action, err := engine.ParseAction(step.Action)
	if err != nil {
		return engine.Outcome{}, err
	}
	e, id := h.engine, step.Product
	switch action {
	case engine.ActionCreate:
		return e.CreateProduct(ctx, argString(step.Args, "description"), argInt(step.Args, "dev"), argInt(step.Args, "rev"), argStringOr(step.Args, "domain", "web"))
	case engine.ActionFund:
		return e.Fund(ctx, id, argInt(step.Args, "amount"))
	case engine.ActionWithdraw:
		return e.Withdraw(ctx, id, argInt(step.Args, "amount"))
	case engine.ActionDelete:
		return e.Delete(ctx, id)
	case engine.ActionAssignEvaluator:
		return e.AssignEvaluator(ctx, id)
	case engine.ActionJoin:
		return e.Join(ctx, id, argInt(step.Args, "amount"))
	case engine.ActionAddToTeam:
		who, err := h.resolve(argString(step.Args, "freelancer"))
		if err != nil {
			return engine.Outcome{}, err
		}
		return e.AddToTeam(ctx, id, who)
	case engine.ActionSignalDone:
		return e.SignalDone(ctx, id)
	case engine.ActionManagerAccept:
		return e.ManagerAccept(ctx, id)
	case engine.ActionManagerDecline:
		return e.ManagerDecline(ctx, id)
	case engine.ActionEvaluatorAccept:
		return e.EvaluatorAccept(ctx, id)
	case engine.ActionEvaluatorDecline:
		return e.EvaluatorDecline(ctx, id)
	}
	return engine.Outcome{}, fmt.Errorf("unhandled action %s", action)
}

// direct writes a step straight to the ledger. Review actions look up the
// product's pending notification first.
func (h *Harness) direct(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{As: step.As, Action: step.Action, Product: step.Product, Args: step.Args, Direct: true}
	from, err := h.resolve(step.As)
	if err != nil {
		return ev, err
	}
	action, err := engine.ParseAction(step.Action)
	if err != nil {
		return ev, err
	}

	c, id := h.contract, step.Product
	var rcpt ledger.Receipt
	switch action {
	case engine.ActionCreate:
		rcpt, err = c.CreateProduct(ctx, from, argString(step.Args, "description"), argInt(step.Args, "dev"), argInt(step.Args, "rev"), argStringOr(step.Args, "domain", "web"))
	case engine.ActionFund:
		rcpt, err = c.FinanceProduct(ctx, from, id, argInt(step.Args, "amount"))
	case engine.ActionWithdraw:
		rcpt, err = c.WithdrawFunds(ctx, from, id, argInt(step.Args, "amount"))
	case engine.ActionDelete:
		rcpt, err = c.DeleteProduct(ctx, from, id)
	case engine.ActionAssignEvaluator:
		rcpt, err = c.AddEvaluator(ctx, from, id)
	case engine.ActionJoin:
		rcpt, err = c.AddFreelancer(ctx, from, id, argInt(step.Args, "amount"))
	case engine.ActionAddToTeam:
		var who market.Address
		if who, err = h.resolve(argString(step.Args, "freelancer")); err == nil {
			rcpt, err = c.AddToTeam(ctx, from, id, who)
		}
	case engine.ActionSignalDone:
		rcpt, err = c.NotifyManagerDone(ctx, from, id)
	case engine.ActionManagerAccept, engine.ActionManagerDecline:
		var n market.Notification
		if n, err = h.pendingNotification(ctx, from, id, false); err != nil {
			break
		}
		if action == engine.ActionManagerAccept {
			rcpt, err = c.AcceptDone(ctx, from, n.ID)
		} else {
			var evaluator market.Address
			if evaluator, err = h.evaluatorOf(ctx, from, id); err == nil {
				rcpt, err = c.DenyDone(ctx, from, n.ID, evaluator)
			}
		}
	case engine.ActionEvaluatorAccept, engine.ActionEvaluatorDecline:
		var n market.Notification
		if n, err = h.pendingNotification(ctx, from, id, true); err != nil {
			break
		}
		if action == engine.ActionEvaluatorAccept {
			rcpt, err = c.PositiveEvaluation(ctx, from, n.ID)
		} else {
			rcpt, err = c.NegativeEvaluation(ctx, from, n.ID)
		}
	}
	if err != nil {
		return ev, err
	}
	if action == engine.ActionCreate {
		ev.Product = rcpt.Events[ledger.EventProductID]
	}
	ev.Outcome = ExpectOK
	return ev, nil
}

func (h *Harness) pendingNotification(ctx context.Context, from market.Address, id string, evaluator bool) (market.Notification, error) {
	var (
		t   ledger.Tuple
		err error
	)
	if evaluator {
		t, err = h.contract.EvaluatorNotification(ctx, from, id)
	} else {
		t, err = h.contract.ManagerNotification(ctx, from, id)
	}
	if err != nil {
		return market.Notification{}, err
	}
	return normalize.Notification(t)
}

func (h *Harness) evaluatorOf(ctx context.Context, from market.Address, id string) (market.Address, error) {
	p, err := h.agg.Product(ctx, from, id)
	if err != nil {
		return "", err
	}
	return p.Evaluator.Address, nil
}

func (h *Harness) recordTransitions(r *Result) {
	for _, p := range h.store.Products() {
		hist := r.Transitions[p.ID]
		st := p.Status.String()
		if len(hist) == 0 || hist[len(hist)-1] != st {
			r.Transitions[p.ID] = append(hist, st)
		}
	}
}

func (h *Harness) snapshot() []ProductSnapshot {
	out := []ProductSnapshot{}
	for _, p := range h.store.Products() {
		s := ProductSnapshot{
			ID:                    p.ID,
			Status:                p.Status.String(),
			Funds:                 p.Funds,
			HasFunds:              p.HasFunds,
			Evaluator:             p.Evaluator.Name,
			Freelancers:           []string{},
			Team:                  []string{},
			ManagerNotification:   notificationStatus(p.ManagerNotification),
			EvaluatorNotification: notificationStatus(p.EvaluatorNotification),
		}
		for _, m := range p.Freelancers {
			s.Freelancers = append(s.Freelancers, h.name(m.Address))
		}
		for _, m := range p.Team {
			s.Team = append(s.Team, h.name(m.Address))
		}
		out = append(out, s)
	}
	return out
}

func notificationStatus(n market.Notification) string {
	if !n.Present {
		return "absent"
	}
	return n.Status.String()
}

func argString(args map[string]any, key string) string {
	return argStringOr(args, key, "")
}

func argStringOr(args map[string]any, key, fallback string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback
	}
	return fmt.Sprint(v)
}

// argInt reads an integer argument; YAML may hand back int or float64.
func argInt(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
