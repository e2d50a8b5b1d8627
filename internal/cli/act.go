package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procateodor/blockchain-marketplace/internal/engine"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// ActOptions holds flags for the act command.
type ActOptions struct {
	*RootOptions
	Amount      int64
	Description string
	Dev         int64
	Rev         int64
	Domain      string
	Freelancer  string
}

// ActResult is a confirmed mutation with the product as the view now
// shows it. Product is nil after a delete.
type ActResult struct {
	Outcome engine.Outcome `json:"outcome"`
	Product *ProductView   `json:"product,omitempty"`
}

func (r ActResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s confirmed", r.Outcome.Action)
	if r.Outcome.ProductID != "" {
		fmt.Fprintf(&b, " on product %s", r.Outcome.ProductID)
	}
	fmt.Fprintf(&b, " (mutation %s, tx %s)", r.Outcome.MutationID, r.Outcome.TxID)
	if p := r.Product; p != nil {
		fmt.Fprintf(&b, "\n  status: %s\n  funds:  %d/%d\n  team:   %d", p.Status, p.Funds, p.Dev+p.Rev, len(p.Team))
	}
	return b.String()
}

// MutationDetails is the error detail of a refused mutation.
type MutationDetails struct {
	Action  engine.Action `json:"action"`
	Product string        `json:"product,omitempty"`
}

// NewActCommand creates the act command.
func NewActCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "act <action> [product-id]",
		Short: "Perform a marketplace action as the session account",
		Long: `Validate an action against the loaded view, submit it to the ledger,
and print the confirmed result.

Actions: ` + actionNames() + `

Every action except create needs a product id.

Exit codes:
  0 - Action confirmed
  1 - Refused by a pre-check or rejected by the ledger
  2 - Command error (bad arguments, ledger unreachable)

Examples:
  marketctl act create --description "Landing page" --dev 100 --rev 20
  marketctl act fund 1 --amount 60
  marketctl act join 1 --amount 40
  marketctl act add_to_team 1 --freelancer 0x00000000000000000000000000000000000000c1
  marketctl act manager_accept 1`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Amount, "amount", 0, "tokens to fund, withdraw, or pledge")
	cmd.Flags().StringVar(&opts.Description, "description", "", "product description (create)")
	cmd.Flags().Int64Var(&opts.Dev, "dev", 0, "development budget (create)")
	cmd.Flags().Int64Var(&opts.Rev, "rev", 0, "review budget (create)")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "product domain (create; defaults to the manager's)")
	cmd.Flags().StringVar(&opts.Freelancer, "freelancer", "", "freelancer address (add_to_team)")

	return cmd
}

func actionNames() string {
	names := make([]string, len(engine.Actions))
	for i, a := range engine.Actions {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func runAction(opts *ActOptions, args []string, cmd *cobra.Command) error {
	action, err := engine.ParseAction(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid action", err)
	}
	var productID string
	if len(args) == 2 {
		productID = args[1]
	}
	if action != engine.ActionCreate && productID == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s needs a product id", action))
	}
	if action == engine.ActionAddToTeam && opts.Freelancer == "" {
		return NewExitError(ExitCommandError, "add_to_team needs --freelancer")
	}

	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	c, err := openClient(ctx, opts.RootOptions)
	if err != nil {
		return reportLoadError(opts.RootOptions, cmd, err)
	}
	defer c.Close()

	out := opts.formatter(cmd)
	out.VerboseLog("submitting %s as %s", action, c.session.Account())

	outcome, err := c.dispatch(ctx, opts, action, productID)
	if err != nil {
		var me *engine.MutationError
		if errors.As(err, &me) {
			_ = out.Error(string(me.Code), me.Reason, MutationDetails{Action: action, Product: productID})
			return WrapExitError(ExitFailure, fmt.Sprintf("%s refused", action), err)
		}
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", action), err)
	}

	result := ActResult{Outcome: outcome}
	if p, ok := c.session.Store().Product(outcome.ProductID); ok {
		view := newProductView(p, c.session.Account(), c.engine.Affordances(p.ID))
		result.Product = &view
	}
	return out.Success(result)
}

func (c *client) dispatch(ctx context.Context, opts *ActOptions, action engine.Action, id string) (engine.Outcome, error) {
	e := c.engine
	switch action {
	case engine.ActionCreate:
		domain := opts.Domain
		if domain == "" {
			u, _ := c.session.Store().User()
			domain = u.Domain
		}
		return e.CreateProduct(ctx, opts.Description, opts.Dev, opts.Rev, domain)
	case engine.ActionFund:
		return e.Fund(ctx, id, opts.Amount)
	case engine.ActionWithdraw:
		return e.Withdraw(ctx, id, opts.Amount)
	case engine.ActionDelete:
		return e.Delete(ctx, id)
	case engine.ActionAssignEvaluator:
		return e.AssignEvaluator(ctx, id)
	case engine.ActionJoin:
		return e.Join(ctx, id, opts.Amount)
	case engine.ActionAddToTeam:
		return e.AddToTeam(ctx, id, market.NormalizeAddress(opts.Freelancer))
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
