// ABOUTME: Package metrics instruments the portal with Prometheus collectors
// ABOUTME: Store latency and errors, auth attempts, and session transitions

// Package metrics exposes Prometheus collectors for the portal.
//
// InstrumentStore decorates any store.RecordStore; SessionHooks plugs into
// session.Options. Both feed the same Metrics value, which the portal
// serves on its metrics endpoint.
package metrics
