// Package recall provides latency-budgeted retrieval over pluggable
// memory backends. A query that cannot complete within its budget
// returns a degraded partial result instead of blocking the caller.
package recall
