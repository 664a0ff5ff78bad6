package domain

// Strength classifies how tightly a reference binds the child to its parent.
type Strength string

const (
	// StrengthWeak is an optional lookup with no cascading-delete implication.
	StrengthWeak Strength = "weak"
	// StrengthStrong is a structural (master-detail) reference: deleting the
	// parent cascades to the child.
	StrengthStrong Strength = "strong"
)

// FieldDescriptor describes a single field on an entity. The reference
// attributes are only meaningful when IsReference is true.
type FieldDescriptor struct {
	Name             string   `json:"name" yaml:"name"`
	Label            string   `json:"label,omitempty" yaml:"label,omitempty"`
	DisplayType      string   `json:"display_type" yaml:"display_type"`
	Length           int      `json:"length,omitempty" yaml:"length,omitempty"`
	Nillable         bool     `json:"nillable,omitempty" yaml:"nillable,omitempty"`
	Custom           bool     `json:"custom,omitempty" yaml:"custom,omitempty"`
	IsReference      bool     `json:"is_reference,omitempty" yaml:"is_reference,omitempty"`
	ReferenceTargets []string `json:"reference_targets,omitempty" yaml:"reference_targets,omitempty"`
	RelationshipName string   `json:"relationship_name,omitempty" yaml:"relationship_name,omitempty"`
	Strength         Strength `json:"strength,omitempty" yaml:"strength,omitempty"`
}

// RelationshipDescriptor is the inbound (parent-side) view of a reference
// field that lives on a child entity. It states the same fact as the child's
// FieldDescriptor; when both are known the FieldDescriptor's strength wins.
type RelationshipDescriptor struct {
	ChildEntity      string   `json:"child_entity" yaml:"child_entity"`
	ChildField       string   `json:"child_field" yaml:"child_field"`
	RelationshipName string   `json:"relationship_name,omitempty" yaml:"relationship_name,omitempty"`
	Strength         Strength `json:"strength,omitempty" yaml:"strength,omitempty"`
}

// Key returns the "ChildEntity.ChildField" key used by relationship filters.
func (r RelationshipDescriptor) Key() string {
	return RelationshipKey(r.ChildEntity, r.ChildField)
}

// RelationshipKey builds the canonical filter key for a child reference field.
func RelationshipKey(childEntity, childField string) string {
	return childEntity + "." + childField
}

// EntityDescription is the full metadata for one entity. Immutable once
// inserted into the metadata cache; never mutated after creation.
type EntityDescription struct {
	Name          string                   `json:"name" yaml:"name"`
	Label         string                   `json:"label" yaml:"label"`
	LabelPlural   string                   `json:"label_plural,omitempty" yaml:"label_plural,omitempty"`
	KeyPrefix     string                   `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	Custom        bool                     `json:"custom,omitempty" yaml:"custom,omitempty"`
	Fields        []FieldDescriptor        `json:"fields" yaml:"fields"`
	Relationships []RelationshipDescriptor `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Field looks up a field descriptor by name.
func (e *EntityDescription) Field(name string) (FieldDescriptor, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Relationship looks up the inbound relationship for a child entity/field pair.
func (e *EntityDescription) Relationship(childEntity, childField string) (RelationshipDescriptor, bool) {
	for _, r := range e.Relationships {
		if r.ChildEntity == childEntity && r.ChildField == childField {
			return r, true
		}
	}
	return RelationshipDescriptor{}, false
}

// FieldNames returns the names of all fields in declaration order.
func (e *EntityDescription) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}
