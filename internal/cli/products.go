package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/procateodor/blockchain-marketplace/internal/engine"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// MemberView is a freelancer as listed on a product.
type MemberView struct {
	Address    market.Address `json:"address"`
	Name       string         `json:"name"`
	Reputation int64          `json:"reputation"`
	Amount     int64          `json:"amount"`
}

// ProductView is the printable product with the actions the session user
// may start on it.
type ProductView struct {
	ID                    string          `json:"id"`
	Description           string          `json:"description"`
	Domain                string          `json:"domain"`
	Status                string          `json:"status"`
	Dev                   int64           `json:"dev"`
	Rev                   int64           `json:"rev"`
	Funds                 int64           `json:"funds"`
	HasFunds              bool            `json:"has_funds"`
	Spent                 int64           `json:"spent"`
	Manager               string          `json:"manager"`
	Evaluator             string          `json:"evaluator"`
	IsAssigned            bool            `json:"is_assigned"`
	Freelancers           []MemberView    `json:"freelancers"`
	Team                  []MemberView    `json:"team"`
	ManagerNotification   string          `json:"manager_notification,omitempty"`
	EvaluatorNotification string          `json:"evaluator_notification,omitempty"`
	Actions               []engine.Action `json:"actions"`
}

func newProductView(p market.Product, viewer market.Address, actions []engine.Action) ProductView {
	return ProductView{
		ID:                    p.ID,
		Description:           p.Description,
		Domain:                p.Domain,
		Status:                p.Status.String(),
		Dev:                   p.Dev,
		Rev:                   p.Rev,
		Funds:                 p.Funds,
		HasFunds:              p.HasFunds,
		Spent:                 p.Spent(viewer),
		Manager:               p.Manager.Name,
		Evaluator:             p.Evaluator.Name,
		IsAssigned:            p.IsAssigned,
		Freelancers:           memberViews(p.Freelancers),
		Team:                  memberViews(p.Team),
		ManagerNotification:   notificationView(p.ManagerNotification),
		EvaluatorNotification: notificationView(p.EvaluatorNotification),
		Actions:               actions,
	}
}

func memberViews(ms []market.Member) []MemberView {
	out := make([]MemberView, len(ms))
	for i, m := range ms {
		out[i] = MemberView{Address: m.Address, Name: m.Name, Reputation: m.Reputation, Amount: m.Amount}
	}
	return out
}

func notificationView(n market.Notification) string {
	if !n.Present {
		return ""
	}
	return n.Status.String()
}

// ProductList is the products command's result. Actions holds the
// actions that need no product (creating one).
type ProductList struct {
	Products []ProductView   `json:"products"`
	Actions  []engine.Action `json:"actions"`
}

func (l ProductList) String() string {
	var b strings.Builder
	if len(l.Products) == 0 {
		b.WriteString("No products.")
	} else {
		w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tFUNDS\tMANAGER\tEVALUATOR\tTEAM\tDESCRIPTION\tACTIONS")
		for _, p := range l.Products {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%d\t%s\t%s\n",
				p.ID, p.Status, p.Funds, p.Dev+p.Rev, p.Manager, p.Evaluator,
				len(p.Team), p.Description, joinActions(p.Actions))
		}
		w.Flush()
		s := strings.TrimSuffix(b.String(), "\n")
		b.Reset()
		b.WriteString(s)
	}
	if len(l.Actions) > 0 {
		fmt.Fprintf(&b, "\nAvailable: %s", joinActions(l.Actions))
	}
	return b.String()
}

func joinActions(actions []engine.Action) string {
	if len(actions) == 0 {
		return "-"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

// NewProductsCommand creates the products command.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List the products visible to the session account",
		Long: `Aggregate every product from the ledger and list those the session
account's role may see, with the actions it can start on each.

Freelancers and evaluators only see funded products.

Examples:
  marketctl products --account 0x00000000000000000000000000000000000000b1
  marketctl products --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProducts(rootOpts, cmd)
		},
	}
}

func listProducts(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := opts.commandContext(cmd)
	defer cancel()

	c, err := openClient(ctx, opts)
	if err != nil {
		return reportLoadError(opts, cmd, err)
	}
	defer c.Close()

	return opts.formatter(cmd).Success(c.productList())
}

func (c *client) productList() ProductList {
	viewer := c.session.Account()
	visible := c.session.Store().Visible()
	list := ProductList{
		Products: make([]ProductView, 0, len(visible)),
		Actions:  c.engine.Affordances(""),
	}
	for _, p := range visible {
		list.Products = append(list.Products, newProductView(p, viewer, c.engine.Affordances(p.ID)))
	}
	return list
}
