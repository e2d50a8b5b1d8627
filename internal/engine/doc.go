// Package engine implements the optimistic mutation engine.
//
// Every mutation follows one protocol:
//
//  1. Acquire the in-flight marker for (product id, action). A second
//     submission of the same action on the same product fails fast with
//     ErrCodeInFlight and never reaches the ledger.
//  2. Pre-check the request against a snapshot of the view. Violations are
//     reported as ErrCodePrecheck; nothing is sent.
//  3. Submit the write through the ledger contract as the session account,
//     with the configured gas cap.
//  4. On a receipt, apply the post-state transform to the product and the
//     session user in one store commit. The transform reproduces the
//     ledger's integer arithmetic so the view matches the next full reload.
//  5. On a rejection, leave the view untouched and report the ledger's
//     reason as ErrCodeRejected.
//
// The marker is released on every path. The engine never times out a call
// on its own; a hung ledger call only holds its own marker.
//
// Writes for different products, or different actions on one product, may
// run concurrently. The view store serializes the commits.
package engine
