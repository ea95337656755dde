// Package state is the conversation state engine: a declared transition graph,
// per-user sessions with bounded back-navigation history, and per-state
// timeouts that expire through a token compare instead of cancel handles.
//
// Sessions live behind the Store interface; NewMemoryStore is the default and
// the storage packages provide Redis and SQL implementations.
package state
