// Package dispatch provides the buffered, single-consumer queue behind the engine's
// fire-and-forget side channels (audit events and user notifications).
package dispatch
