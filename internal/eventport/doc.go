// Package eventport mirrors event targets across realms.
//
// Ownership boundary:
// - per-realm runtime (mirror storage, instrumentation registry)
// - origin pairing and registration multiplexing
// - event sanitization into transportable snapshots
// - outgoing mirror substitution and incoming mirror revival
//
// A Mirror is only usable from the realm that holds it. Every method of
// Runtime and Mirror must run on that realm's loop, except the origin
// relay, which may fire from any goroutine.
package eventport
