// Package collector assembles the session-wide event log.
//
// A Collector moves through Idle, Open, Closing and Closed exactly once.
// It opens on Start or on the first event, starts closing when the
// top-level invocation reports its exit, drains late events for a grace
// period and then closes, producing an immutable session.Session.
package collector
