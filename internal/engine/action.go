package engine

import "fmt"

// Action names one kind of mutation.
type Action string

const (
	ActionCreate           Action = "create"
	ActionFund             Action = "fund"
	ActionWithdraw         Action = "withdraw"
	ActionDelete           Action = "delete"
	ActionAssignEvaluator  Action = "assign_evaluator"
	ActionJoin             Action = "join"
	ActionAddToTeam        Action = "add_to_team"
	ActionSignalDone       Action = "signal_done"
	ActionManagerAccept    Action = "manager_accept"
	ActionManagerDecline   Action = "manager_decline"
	ActionEvaluatorAccept  Action = "evaluator_accept"
	ActionEvaluatorDecline Action = "evaluator_decline"
)

// Actions lists every action in display order.
var Actions = []Action{
	ActionCreate,
	ActionFund,
	ActionWithdraw,
	ActionDelete,
	ActionAssignEvaluator,
	ActionJoin,
	ActionAddToTeam,
	ActionSignalDone,
	ActionManagerAccept,
	ActionManagerDecline,
	ActionEvaluatorAccept,
	ActionEvaluatorDecline,
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}
