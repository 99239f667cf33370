// Package resolver turns one configured model locator into the process-wide
// model state, trying a fixed cascade of strategies at startup:
//
//   - state.go: State (Loaded or Unloaded), immutable after construction.
//   - resolver.go: Resolver and the ordered strategies (direct, registry, run_scan).
//   - metrics.go: optional Prometheus instrumentation of resolution.
//   - service.go: Service, the gateway-facing view over a resolved State.
//   - errors.go: error types mapped to HTTP status codes by the gateway.
//
// Resolution never returns an error. Every failure is recorded as an Attempt
// and the most recent one is kept as the Unloaded state's last error.
package resolver
