// Package devnet is a local, SQLite-backed marketplace ledger.
//
// It implements ledger.Transport with the authoritative rules: every write
// runs in one SQLite transaction and either applies completely or is
// rejected with a revert reason. The client's optimistic transforms are a
// separate implementation of the same transitions; the harness compares the
// two.
//
// # Database Configuration
//
//   - WAL mode for file databases
//   - busy_timeout=5000
//   - foreign_keys=ON
//   - a single open connection, which also keeps ":memory:" databases alive
//
// Token balances are stored as decimal TEXT and handled with math/big.
// Deleted products keep their row and are reported as the reserved
// no-product id by getProducts. Id allocation skips that reserved value.
package devnet
