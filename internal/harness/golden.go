package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/procateodor/blockchain-marketplace/internal/canonical"
)

// TraceSnapshot is what a golden file holds for one scenario.
type TraceSnapshot struct {
	Scenario string            `json:"scenario"`
	Trace    []TraceEvent      `json:"trace"`
	Account  string            `json:"account"`
	Final    []ProductSnapshot `json:"final"`
}

// Snapshot renders a result as indented canonical JSON.
func Snapshot(name string, r *Result) ([]byte, error) {
	return canonical.MarshalIndent(TraceSnapshot{
		Scenario: name,
		Trace:    r.Trace,
		Account:  r.Account,
		Final:    r.Final,
	})
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
