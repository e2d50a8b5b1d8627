// Package normalize decodes positional ledger tuples into market records.
//
// Every function here is pure: the same tuple always yields the same
// record. Lookup tables map role, status and notification codes; the null
// address and the null notification id become "unassigned" and "absent"
// values instead of leaking through as placeholders.
package normalize

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// DecodeError reports a tuple that does not have the expected shape.
type DecodeError struct {
	Record string
	Field  string
	Value  any
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s.%s: %s (got %v)", e.Record, e.Field, e.Reason, e.Value)
}

// ProductCore is the scalar part of a product as stored on the ledger.
type ProductCore struct {
	Description string
	Dev         int64
	Rev         int64
	Domain      string
	Manager     market.Address
	Evaluator   market.Address // empty when unassigned
	HasFunds    bool
	Status      market.Status
}

// User decodes getUser: (name, reputation, domain, role).
func User(addr market.Address, t ledger.Tuple) (market.User, error) {
	if err := arity("user", t, 4); err != nil {
		return market.User{}, err
	}
	rep, err := int64At("user", "reputation", t, 1)
	if err != nil {
		return market.User{}, err
	}
	code, err := int64At("user", "role", t, 3)
	if err != nil {
		return market.User{}, err
	}
	role, err := Role(code)
	if err != nil {
		return market.User{}, err
	}
	return market.User{
		Address: market.NormalizeAddress(string(addr)),
		Profile: market.Profile{
			Name:       stringAt(t, 0),
			Reputation: rep,
			Domain:     stringAt(t, 2),
		},
		Role: role,
	}, nil
}

// Balance decodes balanceOf into an arbitrary-precision integer.
func Balance(t ledger.Tuple) (*big.Int, error) {
	if err := arity("balance", t, 1); err != nil {
		return nil, err
	}
	s := strings.TrimSpace(stringAt(t, 0))
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, &DecodeError{Record: "balance", Field: "tokens", Value: t[0], Reason: "not a non-negative integer"}
	}
	return v, nil
}

// Product decodes getProduct: (description, dev, rev, domain, manager,
// evaluator, hasFunds, status).
func Product(t ledger.Tuple) (ProductCore, error) {
	if err := arity("product", t, 8); err != nil {
		return ProductCore{}, err
	}
	dev, err := int64At("product", "dev", t, 1)
	if err != nil {
		return ProductCore{}, err
	}
	rev, err := int64At("product", "rev", t, 2)
	if err != nil {
		return ProductCore{}, err
	}
	hasFunds, err := boolAt("product", "hasFunds", t, 6)
	if err != nil {
		return ProductCore{}, err
	}
	code, err := int64At("product", "status", t, 7)
	if err != nil {
		return ProductCore{}, err
	}
	status, err := Status(code)
	if err != nil {
		return ProductCore{}, err
	}
	evaluator := market.NormalizeAddress(stringAt(t, 5))
	if evaluator.IsNull() {
		evaluator = ""
	}
	return ProductCore{
		Description: stringAt(t, 0),
		Dev:         dev,
		Rev:         rev,
		Domain:      stringAt(t, 3),
		Manager:     market.NormalizeAddress(stringAt(t, 4)),
		Evaluator:   evaluator,
		HasFunds:    hasFunds,
		Status:      status,
	}, nil
}

// Profile decodes getUserDetails: (name, reputation, domain).
func Profile(t ledger.Tuple) (market.Profile, error) {
	if err := arity("profile", t, 3); err != nil {
		return market.Profile{}, err
	}
	rep, err := int64At("profile", "reputation", t, 1)
	if err != nil {
		return market.Profile{}, err
	}
	return market.Profile{Name: stringAt(t, 0), Reputation: rep, Domain: stringAt(t, 2)}, nil
}

// Amount decodes a single bounded counter (funds, pledge, contribution).
func Amount(record string, t ledger.Tuple) (int64, error) {
	if err := arity(record, t, 1); err != nil {
		return 0, err
	}
	return int64At(record, "amount", t, 0)
}

// Notification decodes (id, status). The null id yields an absent
// notification regardless of the status code.
func Notification(t ledger.Tuple) (market.Notification, error) {
	if err := arity("notification", t, 2); err != nil {
		return market.Notification{}, err
	}
	id := strings.TrimSpace(stringAt(t, 0))
	if id == market.NoNotification || id == "" {
		return Absent(), nil
	}
	code, err := int64At("notification", "status", t, 1)
	if err != nil {
		return market.Notification{}, err
	}
	status, err := NotificationStatus(code)
	if err != nil {
		return market.Notification{}, err
	}
	return market.Notification{ID: id, Status: status, Present: true}, nil
}

// Absent is the synthesized "no notification" value.
func Absent() market.Notification {
	return market.Notification{}
}

// IDs decodes getProducts, dropping the reserved no-product id and keeping
// ledger order.
func IDs(t ledger.Tuple) ([]string, error) {
	ids := make([]string, 0, len(t))
	for i := range t {
		s, ok := t[i].(string)
		if !ok {
			return nil, &DecodeError{Record: "products", Field: strconv.Itoa(i), Value: t[i], Reason: "not a string id"}
		}
		s = strings.TrimSpace(s)
		if s == market.NoProduct {
			continue
		}
		ids = append(ids, s)
	}
	return ids, nil
}

// Addresses decodes an address list, lower-casing every entry.
func Addresses(record string, t ledger.Tuple) ([]market.Address, error) {
	out := make([]market.Address, 0, len(t))
	for i := range t {
		s, ok := t[i].(string)
		if !ok {
			return nil, &DecodeError{Record: record, Field: strconv.Itoa(i), Value: t[i], Reason: "not an address"}
		}
		out = append(out, market.NormalizeAddress(s))
	}
	return out, nil
}

// Role maps a ledger role code.
func Role(code int64) (market.Role, error) {
	if code < int64(market.RoleManager) || code > int64(market.RoleFinancer) {
		return 0, &DecodeError{Record: "user", Field: "role", Value: code, Reason: "unknown role code"}
	}
	return market.Role(code), nil
}

// Status maps a ledger product status code.
func Status(code int64) (market.Status, error) {
	if code < int64(market.StatusBacklog) || code > int64(market.StatusDone) {
		return 0, &DecodeError{Record: "product", Field: "status", Value: code, Reason: "unknown status code"}
	}
	return market.Status(code), nil
}

// NotificationStatus maps a ledger notification code.
func NotificationStatus(code int64) (market.NotificationStatus, error) {
	if code < int64(market.NotificationPending) || code > int64(market.NotificationDenied) {
		return 0, &DecodeError{Record: "notification", Field: "status", Value: code, Reason: "unknown notification code"}
	}
	return market.NotificationStatus(code), nil
}

func arity(record string, t ledger.Tuple, n int) error {
	if len(t) < n {
		return &DecodeError{Record: record, Field: "*", Value: len(t), Reason: fmt.Sprintf("expected %d fields", n)}
	}
	return nil
}

func stringAt(t ledger.Tuple, i int) string {
	switch v := t[i].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func int64At(record, field string, t ledger.Tuple, i int) (int64, error) {
	switch v := t[i].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		// JSON transports decode numbers as float64.
		if v != float64(int64(v)) {
			return 0, &DecodeError{Record: record, Field: field, Value: v, Reason: "not an integer"}
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, &DecodeError{Record: record, Field: field, Value: v, Reason: "not an integer"}
		}
		return n, nil
	default:
		return 0, &DecodeError{Record: record, Field: field, Value: v, Reason: "unsupported type"}
	}
}

func boolAt(record, field string, t ledger.Tuple, i int) (bool, error) {
	switch v := t[i].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, &DecodeError{Record: record, Field: field, Value: v, Reason: "not a boolean"}
		}
		return b, nil
	default:
		return false, &DecodeError{Record: record, Field: field, Value: v, Reason: "unsupported type"}
	}
}
