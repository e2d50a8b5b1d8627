package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/procateodor/blockchain-marketplace/internal/engine"
	"github.com/procateodor/blockchain-marketplace/internal/market"
)

// Scenario is one scripted run against a fresh ledger.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Accounts replaces the default fixture accounts when non-empty.
	Accounts []AccountSpec `yaml:"accounts,omitempty"`

	// Setup steps are raw ledger writes and must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions"`
}

// AccountSpec registers one account under an alias.
type AccountSpec struct {
	Alias   string `yaml:"alias"`
	Address string `yaml:"address"`
	Name    string `yaml:"name"`
	Role    string `yaml:"role"`
	Domain  string `yaml:"domain,omitempty"`
	Balance int64  `yaml:"balance,omitempty"`
}

// Step is one action taken as an account.
type Step struct {
	As      string         `yaml:"as"`
	Action  string         `yaml:"action"`
	Product string         `yaml:"product,omitempty"`
	Args    map[string]any `yaml:"args,omitempty"`

	// Expect is ok, precheck, rejected, in_flight, unknown_product or
	// no_session. Empty means ok.
	Expect string `yaml:"expect,omitempty"`

	// Reason must be a substring of the failure reason.
	Reason string `yaml:"reason,omitempty"`

	// Direct sends the step straight to the ledger, bypassing the engine
	// and the cached view.
	Direct bool `yaml:"direct,omitempty"`

	// Reload refreshes the view from the ledger before the step.
	Reload bool `yaml:"reload,omitempty"`
}

// Assertion checks the view after the flow.
type Assertion struct {
	Type    string         `yaml:"type"`
	Product string         `yaml:"product,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`

	// Statuses is the expected status history (transitions).
	Statuses []string `yaml:"statuses,omitempty"`

	// Ignore lists divergence fields a converged assertion tolerates.
	Ignore []string `yaml:"ignore,omitempty"`
}

// Assertion type constants.
const (
	AssertProduct     = "product"
	AssertUser        = "user"
	AssertAbsent      = "absent"
	AssertTransitions = "transitions"
	AssertConverged   = "converged"
)

// Expected outcomes.
const (
	ExpectOK             = "ok"
	ExpectPrecheck       = "precheck"
	ExpectRejected       = "rejected"
	ExpectInFlight       = "in_flight"
	ExpectUnknownProduct = "unknown_product"
	ExpectNoSession      = "no_session"
)

var outcomes = map[string]bool{
	ExpectOK: true, ExpectPrecheck: true, ExpectRejected: true,
	ExpectInFlight: true, ExpectUnknownProduct: true, ExpectNoSession: true,
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios lists the scenario files in dir, sorted by name.
func FindScenarios(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}
	sort.Strings(out)
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Flow) == 0 {
		return errors.New("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, a := range s.Accounts {
		if a.Alias == "" || a.Address == "" {
			return fmt.Errorf("accounts[%d]: alias and address are required", i)
		}
		if aliases[a.Alias] {
			return fmt.Errorf("accounts[%d]: duplicate alias %q", i, a.Alias)
		}
		if _, ok := market.ParseRole(a.Role); !ok {
			return fmt.Errorf("accounts[%d]: unknown role %q", i, a.Role)
		}
		aliases[a.Alias] = true
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != "" && step.Expect != ExpectOK {
			return fmt.Errorf("setup[%d]: setup steps must succeed", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.As == "" {
		return errors.New("as is required")
	}
	a, err := engine.ParseAction(step.Action)
	if err != nil {
		return err
	}
	if a != engine.ActionCreate && step.Product == "" {
		return fmt.Errorf("product is required for %s", a)
	}
	if step.Expect != "" && !outcomes[step.Expect] {
		return fmt.Errorf("unknown expect %q", step.Expect)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertProduct:
		if a.Product == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: product and expect are required for product", index)
		}
	case AssertUser:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for user", index)
		}
	case AssertAbsent:
		if a.Product == "" {
			return fmt.Errorf("assertions[%d]: product is required for absent", index)
		}
	case AssertTransitions:
		if a.Product == "" || len(a.Statuses) == 0 {
			return fmt.Errorf("assertions[%d]: product and statuses are required for transitions", index)
		}
		var prev market.Status
		for i, st := range a.Statuses {
			cur, ok := market.ParseStatus(st)
			if !ok {
				return fmt.Errorf("assertions[%d]: unknown status %q", index, st)
			}
			if i > 0 && !market.CanTransition(prev, cur) {
				return fmt.Errorf("assertions[%d]: %s -> %s is not a valid transition", index, prev, cur)
			}
			prev = cur
		}
	case AssertConverged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
