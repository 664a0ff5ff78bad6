package provider

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"schemascope/internal/domain"
)

// snapshotFile is the on-disk YAML shape of a schema dump.
type snapshotFile struct {
	APIVersion string                     `yaml:"api_version"`
	Entities   []domain.EntityDescription `yaml:"entities"`
}

// SnapshotProvider serves schema metadata from a YAML snapshot file. It is
// the Provider used when running against a captured schema dump instead of a
// live org, and doubles as the provider for tests.
type SnapshotProvider struct {
	apiVersion string
	entities   map[string]*domain.EntityDescription
	order      []string
}

// LoadSnapshot reads and validates a YAML schema snapshot.
func LoadSnapshot(path string) (*SnapshotProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot builds a SnapshotProvider from raw YAML.
func ParseSnapshot(data []byte) (*SnapshotProvider, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if file.APIVersion == "" {
		return nil, fmt.Errorf("snapshot missing api_version")
	}

	p := &SnapshotProvider{
		apiVersion: file.APIVersion,
		entities:   make(map[string]*domain.EntityDescription, len(file.Entities)),
	}
	for i := range file.Entities {
		desc := file.Entities[i]
		if desc.Name == "" {
			return nil, fmt.Errorf("snapshot entity %d missing name", i)
		}
		if _, dup := p.entities[desc.Name]; dup {
			return nil, fmt.Errorf("snapshot has duplicate entity %q", desc.Name)
		}
		if err := validateDescription(&desc); err != nil {
			return nil, fmt.Errorf("entity %q: %w", desc.Name, err)
		}
		p.entities[desc.Name] = &desc
		p.order = append(p.order, desc.Name)
	}
	sort.Strings(p.order)
	return p, nil
}

// validateDescription maps the loosely-typed snapshot payload onto the
// closed domain types, rejecting shapes the engine must never branch on.
func validateDescription(desc *domain.EntityDescription) error {
	if desc.Label == "" {
		desc.Label = desc.Name
	}
	seen := make(map[string]struct{}, len(desc.Fields))
	for i := range desc.Fields {
		f := &desc.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("field %d missing name", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if len(f.ReferenceTargets) > 0 {
			f.IsReference = true
		}
		if f.IsReference && len(f.ReferenceTargets) == 0 {
			return fmt.Errorf("reference field %q has no targets", f.Name)
		}
		switch f.Strength {
		case "", domain.StrengthWeak, domain.StrengthStrong:
		default:
			return fmt.Errorf("field %q has invalid strength %q", f.Name, f.Strength)
		}
	}
	for i := range desc.Relationships {
		r := &desc.Relationships[i]
		if r.ChildEntity == "" || r.ChildField == "" {
			return fmt.Errorf("relationship %d missing child entity or field", i)
		}
		switch r.Strength {
		case "", domain.StrengthWeak, domain.StrengthStrong:
		default:
			return fmt.Errorf("relationship %q has invalid strength %q", r.Key(), r.Strength)
		}
	}
	return nil
}

// ListEntities returns summaries for every entity in the snapshot.
func (p *SnapshotProvider) ListEntities(ctx context.Context) ([]EntitySummary, error) {
	out := make([]EntitySummary, 0, len(p.order))
	for _, name := range p.order {
		desc := p.entities[name]
		out = append(out, EntitySummary{
			Name:        desc.Name,
			Label:       desc.Label,
			LabelPlural: desc.LabelPlural,
			KeyPrefix:   desc.KeyPrefix,
			Custom:      desc.Custom,
		})
	}
	return out, nil
}

// Describe returns the description for one entity.
func (p *SnapshotProvider) Describe(ctx context.Context, name string) (*domain.EntityDescription, error) {
	desc, ok := p.entities[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrEntityNotFound)
	}
	return desc, nil
}

// DescribeBatch describes several entities, reporting per-name failures
// without failing the batch.
func (p *SnapshotProvider) DescribeBatch(ctx context.Context, names []string) (map[string]*domain.EntityDescription, map[string]error, error) {
	descs := make(map[string]*domain.EntityDescription, len(names))
	errs := make(map[string]error)
	for _, name := range names {
		desc, err := p.Describe(ctx, name)
		if err != nil {
			errs[name] = err
			continue
		}
		descs[name] = desc
	}
	return descs, errs, nil
}

// APIVersion identifies the snapshot's schema version.
func (p *SnapshotProvider) APIVersion() string {
	return p.apiVersion
}
