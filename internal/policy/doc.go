// Package policy defines the build-wide configuration consumed by the
// obscura pipeline and compiles it from CUE policy files.
//
// A Config is constructed once per run and never mutated afterwards -
// independent program units can be transformed in parallel against the
// same Config value.
//
// Configuration errors are never fatal: malformed options degrade to
// their defaults and are reported as diagnostics (spec'd fallback:
// invalid numeric option is treated as unset).
//
// DOCUMENTED POLICY CHOICE: when a blacklist filter and a whitelist
// filter are both configured on the same dimension and both match the
// same variable, the blacklist wins. This is a conservative,
// security-favoring default, not a behavior inherited from any
// particular front-end.
package policy
