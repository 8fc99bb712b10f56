// Package api defines the core task, result, and error types shared by
// all coordination components.
//
// A Task is a tagged variant: its Kind selects exactly one payload
// field, and the Coordinator matches on the kind to decide which
// engines to dispatch. A CoordinationResult is always produced for a
// valid task, regardless of how many engines failed.
package api
