package harness

// TraceEvent is one step of a scenario run.
type TraceEvent struct {
	Phase      string         `json:"phase"` // "setup" or "flow"
	Step       int            `json:"step"`
	As         string         `json:"as"`
	Action     string         `json:"action"`
	Product    string         `json:"product,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Direct     bool           `json:"direct,omitempty"`
	Outcome    string         `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	MutationID string         `json:"mutation_id,omitempty"`
	Seq        int64          `json:"seq,omitempty"`
}

// ProductSnapshot is the golden-file rendering of a product. Accounts are
// shown by alias.
type ProductSnapshot struct {
	ID                    string   `json:"id"`
	Status                string   `json:"status"`
	Funds                 int64    `json:"funds"`
	HasFunds              bool     `json:"has_funds"`
	Evaluator             string   `json:"evaluator"`
	Freelancers           []string `json:"freelancers"`
	Team                  []string `json:"team"`
	ManagerNotification   string   `json:"manager_notification"`
	EvaluatorNotification string   `json:"evaluator_notification"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step matched its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Account is the alias of the session account at the end of the flow,
	// and Final is its view.
	Account string            `json:"account,omitempty"`
	Final   []ProductSnapshot `json:"final"`

	// Transitions maps product id to the statuses it went through.
	Transitions map[string][]string `json:"transitions,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Final:       []ProductSnapshot{},
		Transitions: make(map[string][]string),
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
