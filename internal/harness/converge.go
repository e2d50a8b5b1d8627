package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/procateodor/blockchain-marketplace/internal/market"
	"github.com/procateodor/blockchain-marketplace/internal/session"
)

// Divergence is one field where the optimistic view and the ledger
// disagree.
type Divergence struct {
	Product    string // empty for user fields
	Field      string
	Optimistic string
	Ledger     string
}

func (d Divergence) String() string {
	where := "user"
	if d.Product != "" {
		where = "product " + d.Product
	}
	return fmt.Sprintf("%s %s: view %s, ledger %s", where, d.Field, d.Optimistic, d.Ledger)
}

// Converge snapshots the session's view, reloads it from the ledger, and
// reports every field that changed. After Converge the view holds the
// ledger's state.
func Converge(ctx context.Context, s *session.Session) ([]Divergence, error) {
	store := s.Store()
	before := store.Products()
	beforeUser, hadUser := store.User()

	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	after := store.Products()
	afterUser, _ := store.User()

	var out []Divergence
	if hadUser {
		out = append(out, diffUser(beforeUser, afterUser)...)
	}

	byID := make(map[string]market.Product, len(after))
	for _, p := range after {
		byID[p.ID] = p
	}
	seen := make(map[string]bool, len(before))
	for _, p := range before {
		seen[p.ID] = true
		q, ok := byID[p.ID]
		if !ok {
			out = append(out, Divergence{Product: p.ID, Field: "presence", Optimistic: "present", Ledger: "absent"})
			continue
		}
		out = append(out, diffProduct(p, q)...)
	}
	for _, q := range after {
		if !seen[q.ID] {
			out = append(out, Divergence{Product: q.ID, Field: "presence", Optimistic: "absent", Ledger: "present"})
		}
	}
	if len(before) == len(after) {
		for i := range before {
			if before[i].ID != after[i].ID {
				out = append(out, Divergence{Field: "order", Optimistic: ids(before), Ledger: ids(after)})
				break
			}
		}
	}
	return out, nil
}

func diffUser(a, b market.User) []Divergence {
	var out []Divergence
	add := func(field string, x, y any) {
		if sx, sy := fmt.Sprint(x), fmt.Sprint(y); sx != sy {
			out = append(out, Divergence{Field: field, Optimistic: sx, Ledger: sy})
		}
	}
	add("address", a.Address, b.Address)
	add("name", a.Name, b.Name)
	add("reputation", a.Reputation, b.Reputation)
	add("domain", a.Domain, b.Domain)
	add("role", a.Role, b.Role)
	add("tokens", a.Tokens, b.Tokens)
	return out
}

func diffProduct(a, b market.Product) []Divergence {
	var out []Divergence
	add := func(field string, x, y string) {
		if x != y {
			out = append(out, Divergence{Product: a.ID, Field: field, Optimistic: x, Ledger: y})
		}
	}
	add("description", a.Description, b.Description)
	add("dev", fmt.Sprint(a.Dev), fmt.Sprint(b.Dev))
	add("rev", fmt.Sprint(a.Rev), fmt.Sprint(b.Rev))
	add("domain", a.Domain, b.Domain)
	add("manager", fmt.Sprint(a.Manager), fmt.Sprint(b.Manager))
	add("evaluator", fmt.Sprint(a.Evaluator), fmt.Sprint(b.Evaluator))
	add("has_funds", fmt.Sprint(a.HasFunds), fmt.Sprint(b.HasFunds))
	add("status", a.Status.String(), b.Status.String())
	add("funds", fmt.Sprint(a.Funds), fmt.Sprint(b.Funds))
	add("contributions", contributions(a.Contributions), contributions(b.Contributions))
	add("is_assigned", fmt.Sprint(a.IsAssigned), fmt.Sprint(b.IsAssigned))
	add("freelancers", members(a.Freelancers), members(b.Freelancers))
	add("team", members(a.Team), members(b.Team))
	add("manager_notification", notification(a.ManagerNotification), notification(b.ManagerNotification))
	add("evaluator_notification", notification(a.EvaluatorNotification), notification(b.EvaluatorNotification))
	return out
}

func contributions(c map[market.Address]int64) string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, c[market.Address(k)])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func members(ms []market.Member) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = fmt.Sprintf("%s:%d@%d", m.Address, m.Amount, m.Position)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func notification(n market.Notification) string {
	if !n.Present {
		return "absent"
	}
	return n.ID + ":" + n.Status.String()
}

func ids(ps []market.Product) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.ID
	}
	return strings.Join(parts, ",")
}
