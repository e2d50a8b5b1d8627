// Package ledger is the client adapter for the marketplace ledger.
//
// Transport is the raw wire: method name, acting account, string arguments.
// Contract is the typed facade the rest of the client uses; it knows every
// ledger method and which account each read must be issued from.
//
// Results come back as positional tuples. They are decoded into named
// records by the normalize package and nowhere else.
//
// All operations may fail with a ledger-supplied rejection reason. Reason
// strips the adapter framing so the text can be shown verbatim.
package ledger
