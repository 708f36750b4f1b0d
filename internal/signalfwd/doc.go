// Package signalfwd relays signals received by a supervising process to
// its child.
//
// A Forwarder owns the signal dispositions it captured until Release
// restores them. At most one Forwarder is active per process. Received
// signals go through one ordered queue and one relay goroutine, so the
// child sees them in arrival order.
package signalfwd
