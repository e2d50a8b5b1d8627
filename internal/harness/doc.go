// Package harness runs marketplace scenarios end to end: an in-memory
// devnet ledger, a session, and the mutation engine, driven by YAML.
//
// # Scenario Format
//
//	name: fund_to_completion
//	description: "Two fundings land exactly on the budget"
//	setup:
//	  - as: manager
//	    action: create
//	    args: { description: site, dev: 100, rev: 20 }
//	flow:
//	  - as: financer
//	    action: fund
//	    product: "1"
//	    args: { amount: 61 }
//	    expect: precheck
//	    reason: too many funds sent
//	assertions:
//	  - type: product
//	    product: "1"
//	    expect: { funds: 120, has_funds: true }
//	  - type: converged
//
// Setup steps are written straight to the ledger and must succeed. Flow
// steps go through the engine as the named account; a change of account
// loads a fresh session, as an account switch would. A flow step marked
// `direct: true` bypasses the engine, which is how a scenario makes the
// cached view stale.
//
// # Assertion Types
//
//   - product: fields of one product in the current view
//   - user: fields of the session user
//   - absent: the product is not in the view
//   - transitions: the statuses a product went through during the flow
//   - converged: the optimistic view equals a fresh reload, minus any
//     fields listed in `ignore`
//
// # Determinism
//
// Mutation ids come from testutil.SequenceGenerator and history seq values
// from testutil.DeterministicClock, and ledger product ids are allocated
// in order, so the trace of a scenario is byte-stable and can be compared
// against a golden file.
package harness
