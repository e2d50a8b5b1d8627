package market

import (
	"math/big"
	"sort"
	"strings"
)

// Address is a lower-cased ledger account address.
type Address string

// NullAddress is the ledger's "no account" value.
const NullAddress Address = "0x0000000000000000000000000000000000000000"

// Unassigned is displayed in place of an evaluator name when no evaluator
// has been assigned.
const Unassigned = "Unassigned"

// NoProduct is the reserved product id the ledger reports for deleted
// slots. It never appears in an aggregated product list.
const NoProduct = "99"

// NoNotification is the ledger's "no notification" id.
const NoNotification = "99"

// NormalizeAddress lower-cases and trims an address.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// IsNull reports whether a is empty or the null address.
func (a Address) IsNull() bool {
	return a == "" || a == NullAddress
}

// Role is fixed at registration and never reassigned by the client.
type Role int

const (
	RoleManager Role = iota
	RoleFreelancer
	RoleEvaluator
	RoleFinancer
)

var roleNames = [...]string{"Manager", "Freelancer", "Evaluator", "Financer"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "Unknown"
	}
	return roleNames[r]
}

// ParseRole maps a role name back to its code.
func ParseRole(s string) (Role, bool) {
	for i, name := range roleNames {
		if strings.EqualFold(name, s) {
			return Role(i), true
		}
	}
	return 0, false
}

// Status is the product state machine:
//
//	Backlog -> InProgress -> UnderReview -> Done
//	UnderReview -> Backlog (rework)
type Status int

const (
	StatusBacklog Status = iota
	StatusInProgress
	StatusUnderReview
	StatusDone
)

var statusNames = [...]string{"Backlog", "In progress", "Under review", "Done"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

// ParseStatus accepts both display names and compact names ("InProgress").
func ParseStatus(s string) (Status, bool) {
	compact := strings.ReplaceAll(strings.ToLower(s), " ", "")
	for i, name := range statusNames {
		if strings.ReplaceAll(strings.ToLower(name), " ", "") == compact {
			return Status(i), true
		}
	}
	return 0, false
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to Status) bool {
	switch {
	case from == StatusBacklog && to == StatusInProgress:
		return true
	case from == StatusInProgress && to == StatusUnderReview:
		return true
	case from == StatusUnderReview && (to == StatusDone || to == StatusBacklog):
		return true
	}
	return false
}

// NotificationStatus is the review state of a manager or evaluator
// notification.
type NotificationStatus int

const (
	NotificationPending NotificationStatus = iota
	NotificationAccepted
	NotificationDenied
)

var notificationNames = [...]string{"Pending", "Accepted", "Denied"}

func (n NotificationStatus) String() string {
	if n < 0 || int(n) >= len(notificationNames) {
		return "Unknown"
	}
	return notificationNames[n]
}

// Notification is a pending-review marker routed to the manager or the
// evaluator. Present is false when the ledger reports no notification.
type Notification struct {
	ID      string
	Status  NotificationStatus
	Present bool
}

// Active reports whether the notification exists and is still reviewable.
func (n Notification) Active() bool {
	return n.Present && n.Status != NotificationDenied
}

// Profile is the public part of a registered user.
type Profile struct {
	Name       string
	Reputation int64
	Domain     string
}

// User is the session account's view.
type User struct {
	Address Address
	Profile
	Role   Role
	Tokens *big.Int
}

// Clone returns a deep copy.
func (u User) Clone() User {
	if u.Tokens != nil {
		u.Tokens = new(big.Int).Set(u.Tokens)
	}
	return u
}

// Member is a freelancer that joined a product, with the amount pledged.
// Position is the member's index in the ledger's join order.
type Member struct {
	Address Address
	Profile
	Amount   int64
	Position int
}

// Party is a manager or evaluator reference with its resolved name.
type Party struct {
	Address Address
	Name    string
}

// Product is the composite, UI-ready record assembled from many ledger
// reads.
type Product struct {
	ID          string
	Description string
	Dev         int64
	Rev         int64
	Domain      string
	Manager     Party
	Evaluator   Party
	HasFunds    bool
	Status      Status
	Funds       int64

	// Contributions is keyed by financer address. The aggregator only fills
	// the viewing account's entry; the ledger does not expose the others.
	Contributions map[Address]int64

	IsAssigned  bool
	Freelancers []Member
	Team        []Member

	ManagerNotification   Notification
	EvaluatorNotification Notification
}

// Budget is dev + rev, the funding target.
func (p *Product) Budget() int64 {
	return p.Dev + p.Rev
}

// Spent is the amount the given account contributed.
func (p *Product) Spent(a Address) int64 {
	return p.Contributions[a]
}

// TeamSum totals the pledges of the current team.
func (p *Product) TeamSum() int64 {
	var sum int64
	for _, m := range p.Team {
		sum += m.Amount
	}
	return sum
}

// EvaluatorAssigned reports whether an evaluator has taken the product.
func (p *Product) EvaluatorAssigned() bool {
	return !p.Evaluator.Address.IsNull()
}

// Freelancer finds a non-team freelancer by address.
func (p *Product) Freelancer(a Address) (Member, int, bool) {
	for i, m := range p.Freelancers {
		if m.Address == a {
			return m, i, true
		}
	}
	return Member{}, -1, false
}

// InTeam reports whether a is a team member.
func (p *Product) InTeam(a Address) bool {
	for _, m := range p.Team {
		if m.Address == a {
			return true
		}
	}
	return false
}

// ReleaseTeam moves every team member back into the freelancer list,
// restoring ledger join order.
func (p *Product) ReleaseTeam() {
	p.Freelancers = append(p.Freelancers, p.Team...)
	p.Team = []Member{}
	sort.SliceStable(p.Freelancers, func(i, j int) bool {
		return p.Freelancers[i].Position < p.Freelancers[j].Position
	})
}

// Clone returns a deep copy. Nil collections come back empty.
func (p Product) Clone() Product {
	c := make(map[Address]int64, len(p.Contributions))
	for k, v := range p.Contributions {
		c[k] = v
	}
	p.Contributions = c
	p.Freelancers = append([]Member{}, p.Freelancers...)
	p.Team = append([]Member{}, p.Team...)
	return p
}
