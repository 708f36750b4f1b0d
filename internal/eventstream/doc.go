// Package eventstream carries events from intercepted invocations to the
// collector.
//
// Any number of wrapper processes hold a Reporter pointed at the session
// address; the collector holds the single Listener. Each Reporter keeps one
// connection, so events from one sender arrive in the order they were sent.
package eventstream
