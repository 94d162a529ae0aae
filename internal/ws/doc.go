// Package ws relays watch-party events between the viewers of a session.
//
// The package implements:
//   - Registry: every live connection, grouped by session, with fan-out
//   - Handler: the per-connection reader and writer loops
//   - Service: wires a Registry and Handler to a session bridge and journal
//
// Playback events are applied to session state and echoed to everyone except
// the sender. Chat is rewritten to carry the sender's bound nickname and is
// echoed to everyone, sender included. Joins and leaves are announced to the
// whole session.
package ws
