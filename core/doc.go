// Package core defines the canonical data model shared by every layer of
// agentloop: the message union that makes up conversation history, the
// content-block union inside assistant messages, the normalized stream events
// emitted by provider adapters, and the lifecycle events the agent runtime
// publishes to subscribers.
//
// All unions are closed: each variant carries an unexported marker method so
// no external package can add a case, and every consumer switches
// exhaustively over the known variants.
package core
