package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, r *Result) []string {
	var msgs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertProduct:
			err = h.assertProduct(a)
		case AssertUser:
			err = h.assertUser(a)
		case AssertAbsent:
			if _, ok := h.store.Product(a.Product); ok {
				err = &AssertionError{Type: a.Type, Expected: "product " + a.Product + " absent", Actual: "present"}
			}
		case AssertTransitions:
			got := r.Transitions[a.Product]
			if strings.Join(got, ",") != strings.Join(a.Statuses, ",") {
				err = &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Statuses), Actual: fmt.Sprint(got)}
			}
		case AssertConverged:
			err = h.assertConverged(ctx, a)
		}
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func (h *Harness) assertProduct(a Assertion) error {
	p, ok := h.store.Product(a.Product)
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "product " + a.Product + " in view", Actual: "absent"}
	}
	fields := map[string]string{
		"description":            p.Description,
		"dev":                    fmt.Sprint(p.Dev),
		"rev":                    fmt.Sprint(p.Rev),
		"domain":                 p.Domain,
		"manager":                h.name(p.Manager.Address),
		"evaluator":              p.Evaluator.Name,
		"has_funds":              fmt.Sprint(p.HasFunds),
		"status":                 p.Status.String(),
		"funds":                  fmt.Sprint(p.Funds),
		"spent":                  fmt.Sprint(p.Spent(h.accounts[h.current])),
		"is_assigned":            fmt.Sprint(p.IsAssigned),
		"freelancers":            h.memberList(p.Freelancers),
		"team":                   h.memberList(p.Team),
		"manager_notification":   notificationStatus(p.ManagerNotification),
		"evaluator_notification": notificationStatus(p.EvaluatorNotification),
	}
	return matchFields(a.Type+" "+a.Product, fields, a.Expect)
}

func (h *Harness) assertUser(a Assertion) error {
	u, ok := h.store.User()
	if !ok {
		return &AssertionError{Type: a.Type, Expected: "a session user", Actual: "none"}
	}
	fields := map[string]string{
		"address":    h.name(u.Address),
		"name":       u.Name,
		"role":       u.Role.String(),
		"reputation": fmt.Sprint(u.Reputation),
		"domain":     u.Domain,
		"tokens":     fmt.Sprint(u.Tokens),
	}
	return matchFields(a.Type, fields, a.Expect)
}

func (h *Harness) assertConverged(ctx context.Context, a Assertion) error {
	divs, err := Converge(ctx, h.session)
	if err != nil {
		return err
	}
	ignore := make(map[string]bool, len(a.Ignore))
	for _, f := range a.Ignore {
		ignore[f] = true
	}
	var left []string
	for _, d := range divs {
		if !ignore[d.Field] {
			left = append(left, d.String())
		}
	}
	if len(left) > 0 {
		return &AssertionError{Type: a.Type, Expected: "no divergence", Actual: strings.Join(left, "; ")}
	}
	return nil
}

func (h *Harness) memberList(ms []market.Member) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = h.name(m.Address)
	}
	return strings.Join(names, ",")
}

// matchFields compares the expected subset against actual, all rendered as
// strings. A YAML list matches a comma-joined field.
func matchFields(what string, actual map[string]string, expect map[string]any) error {
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var diffs []string
	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			return fmt.Errorf("%s: unknown field %q", what, k)
		}
		want := render(expect[k])
		if got != want {
			diffs = append(diffs, fmt.Sprintf("%s=%q (want %q)", k, got, want))
		}
	}
	if len(diffs) > 0 {
		return &AssertionError{Type: what, Expected: "matching fields", Actual: strings.Join(diffs, ", ")}
	}
	return nil
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = render(e)
		}
		return strings.Join(parts, ",")
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprint(int64(val))
		}
	}
	return fmt.Sprint(v)
}
