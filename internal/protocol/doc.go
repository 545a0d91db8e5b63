// Package protocol owns the eventport wire contract.
//
// Ownership boundary:
// - registration control messages (mirror -> origin)
// - event snapshot shape (origin -> mirror)
// - transfer metadata marker and wrap/unwrap helpers
//
// The marker key and message shapes are fixed: realms running different
// builds must agree on them byte for byte.
package protocol
