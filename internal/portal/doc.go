// ABOUTME: Package portal wires the services into a runnable terminal portal
// ABOUTME: App construction, HTTP health endpoints, and the guarded shell

// Package portal assembles the record store, auth provider, session, and
// domain services from a config.Config and drives them from a terminal.
//
// Each shell page is a guard.Route. Navigating mounts a fresh view whose
// guard watches the session; a view renders only once its guard admits
// the current principal, and a sign-out while mounted sends the member to
// the login page. Slow page loads run through mount.Run so results for a
// view the member already left are dropped.
//
// When metrics are enabled, App.RunHTTP serves:
//
//	/health        liveness
//	/health/ready  store ping
//	/metrics       Prometheus registry (path configurable)
package portal
