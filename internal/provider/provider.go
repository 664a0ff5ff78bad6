package provider

import (
	"context"
	"errors"

	"schemascope/internal/domain"
)

// ErrEntityNotFound is returned when a named entity does not exist in the
// provider's schema.
var ErrEntityNotFound = errors.New("entity not found")

// EntitySummary is the lightweight per-entity record returned by a global
// listing, enough to populate a picker without describing every object.
type EntitySummary struct {
	Name        string `json:"name" yaml:"name"`
	Label       string `json:"label" yaml:"label"`
	LabelPlural string `json:"label_plural,omitempty" yaml:"label_plural,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	Custom      bool   `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Provider is the narrow interface to the external schema source. Transport,
// auth and retries live behind it; the engine only sees these three shapes.
type Provider interface {
	// ListEntities returns summaries for every entity in the schema.
	ListEntities(ctx context.Context) ([]EntitySummary, error)

	// Describe returns the full description for one entity.
	Describe(ctx context.Context, name string) (*domain.EntityDescription, error)

	// DescribeBatch describes several entities at once. A failure on one
	// name must not fail the rest: failed names are reported in the error
	// map and omitted from the result map.
	DescribeBatch(ctx context.Context, names []string) (map[string]*domain.EntityDescription, map[string]error, error)

	// APIVersion identifies the schema version backing this provider. The
	// engine invalidates its cache wholesale when this changes.
	APIVersion() string
}
