// Package domain defines the core domain types for the Schemascope
// schema-diagram engine.
//
// This package contains the value objects the rest of the system is built
// from: entity metadata as returned by a schema provider, the user's
// selection state, and the derived node/edge graph handed to a renderer.
//
// # Core Types
//
// EntityDescription holds the full metadata for one entity (object type):
// its fields and its inbound child relationships. Descriptions are immutable
// once fetched; a schema API version switch invalidates them wholesale
// rather than patching individual entries.
//
// FieldDescriptor describes a single field. Reference fields carry their
// target entities and a relationship strength: a strong reference implies
// cascading-delete (master-detail) semantics, a weak one is an optional
// lookup.
//
// Selection is the explicit, copyable state of what the user has chosen:
// which entities are on the canvas, which fields each shows, and which
// inbound relationships are filtered per target entity.
//
// Graph, GraphNode and GraphEdge form the derived view consumed by the
// renderer. Edge IDs are deterministic functions of their endpoints and
// field, so recomputation yields byte-identical IDs for unchanged edges.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
// - Deterministic identity for everything the renderer reconciles on
package domain
