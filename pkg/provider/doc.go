// Package provider defines the pluggable completion backend contract,
// the prioritized provider registry, and the fallback router.
//
// Every backend, local or cloud, implements the one Provider interface
// so the registry holds interchangeable references. The Router walks
// the registry in priority order and never uses a lower-priority
// provider while a higher-priority healthy one would have succeeded.
package provider
