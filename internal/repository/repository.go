// Package repository defines the data access interfaces for Schemascope.
//
// Fetched entity descriptions are cheap to re-request but an org schema has
// hundreds of objects, so the metadata cache can be backed by a store that
// survives restarts. Descriptions are keyed by the schema API version: a
// version switch addresses a disjoint keyspace, so stale rows can never leak
// into a newer generation. Diagrams and node positions are deliberately not
// persisted.
package repository

import (
	"context"

	"schemascope/internal/domain"
)

// MetadataStore persists fetched entity descriptions per schema API version.
// The actual implementation is in the sqlite subpackage.
type MetadataStore interface {
	// SaveDescription upserts one entity description under an API version.
	SaveDescription(ctx context.Context, apiVersion string, desc *domain.EntityDescription) error

	// LoadDescriptions returns every description stored for an API version.
	LoadDescriptions(ctx context.Context, apiVersion string) ([]*domain.EntityDescription, error)

	// DeleteVersion drops all descriptions stored for an API version.
	DeleteVersion(ctx context.Context, apiVersion string) error

	// Close releases resources.
	Close() error
}
