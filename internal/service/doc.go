// Package service implements the business logic for the Schemascope
// diagram engine.
//
// DiagramService owns the selection state and coordinates the full update
// cycle: a user action mutates the selection, missing entity metadata is
// fetched through the cache, the synthesizer derives a fresh node/edge
// graph, and the incremental merge reconciles it against the previously
// rendered graph so user-arranged positions survive. Automatic layout runs
// only when explicitly requested.
//
// All state transitions are serialized behind one mutex: synthesis, merge
// and layout are pure and reentrant, but they must never observe a
// half-applied selection mutation, so each operation completes fully before
// the next begins.
//
// # Event System
//
// The service publishes events via EventBus for real-time delivery to
// connected renderer clients over Server-Sent Events. Every recomputation
// broadcasts the full replacement graph; the renderer owns reconciliation
// by ID.
package service
