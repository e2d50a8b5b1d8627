// Package market defines the typed view of marketplace state owned by the
// remote ledger.
//
// Nothing in this package talks to the ledger. Values here are produced by
// the normalize package at the adapter boundary and are held by the view
// store; no component past that boundary reads positional ledger tuples.
//
// Balances use math/big because token amounts can exceed the int64 range.
// Every other counter (dev, rev, funds, contributions, pledges) is bounded
// by the ledger and fits int64.
package market
