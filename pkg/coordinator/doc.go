// Package coordinator fans tasks out to execution engines, enforces
// the global coordination deadline, and merges engine outcomes into a
// single result. A valid task always produces a result; errors are
// reserved for tasks that never started.
package coordinator
