// Package ledger defines the append-only usage and cost ledger.
//
// Every provider attempt, successful or not, produces exactly one
// Record. Records are immutable once appended, so the ledger doubles
// as an audit trail: an all-local run sums to zero cost, and any
// fallback to a paid provider is attributable to that provider's ID.
package ledger
