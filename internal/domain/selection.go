package domain

// FieldMode is the explicit choice a caller makes when selecting an entity:
// start with no fields visible, or with every field visible once the
// entity's description is known. There is no implicit "all" sentinel; the
// field-selection set always spells out exactly what is shown.
type FieldMode string

const (
	FieldsNone FieldMode = "none"
	FieldsAll  FieldMode = "all"
)

// Selection is the explicit state of what the user has chosen to diagram.
// All setters are pure replacements; no operation leaves the maps partially
// updated. Selection is not safe for concurrent mutation - the caller
// serializes state transitions (one UI event at a time).
type Selection struct {
	order      []string
	fieldModes map[string]FieldMode
	// fields maps entity name -> explicitly selected field names.
	// A missing entry and an empty set both mean "show no fields".
	fields map[string]map[string]struct{}
	// relFilters maps a *target* entity -> allowed "child.field" keys with
	// the strength cached at toggle time. A non-empty set is an opt-in
	// filter on edges into that target; empty/absent shows everything.
	relFilters map[string]map[string]Strength

	// Display toggles.
	ShowSelfReferences bool
}

// NewSelection creates an empty selection with self-references visible.
func NewSelection() *Selection {
	return &Selection{
		fieldModes:         make(map[string]FieldMode),
		fields:             make(map[string]map[string]struct{}),
		relFilters:         make(map[string]map[string]Strength),
		ShowSelfReferences: true,
	}
}

// SelectEntity adds an entity to the selection. The field mode is the
// caller's explicit none-vs-all choice for the initial projection; it is
// applied by ApplyFieldMode once the entity's description is available.
// Returns false if the entity was already selected.
func (s *Selection) SelectEntity(name string, mode FieldMode) bool {
	if _, ok := s.fieldModes[name]; ok {
		return false
	}
	s.order = append(s.order, name)
	s.fieldModes[name] = mode
	return true
}

// RemoveEntity removes an entity, its field selection, and its relationship
// filter (it can no longer act as a filter target). Edges that referenced it
// disappear on the next synthesis because edges require both endpoints to be
// live nodes.
func (s *Selection) RemoveEntity(name string) {
	if _, ok := s.fieldModes[name]; !ok {
		return
	}
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	delete(s.fieldModes, name)
	delete(s.fields, name)
	delete(s.relFilters, name)
}

// IsSelected reports whether the entity is part of the selection.
func (s *Selection) IsSelected(name string) bool {
	_, ok := s.fieldModes[name]
	return ok
}

// Entities returns the selected entity names in insertion order.
func (s *Selection) Entities() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of selected entities.
func (s *Selection) Len() int {
	return len(s.order)
}

// FieldModeOf returns the none-vs-all choice made when the entity was added.
func (s *Selection) FieldModeOf(name string) (FieldMode, bool) {
	m, ok := s.fieldModes[name]
	return m, ok
}

// SetFields replaces the entity's field selection wholesale.
func (s *Selection) SetFields(entity string, fieldNames []string) {
	set := make(map[string]struct{}, len(fieldNames))
	for _, f := range fieldNames {
		set[f] = struct{}{}
	}
	s.fields[entity] = set
}

// FieldSelected reports whether a field is part of the entity's projection.
func (s *Selection) FieldSelected(entity, field string) bool {
	_, ok := s.fields[entity][field]
	return ok
}

// HasFieldSelection reports whether an explicit field set exists for the
// entity, distinguishing "never populated" from "populated empty". Both
// render as no fields, but ApplyFieldMode only acts on the former.
func (s *Selection) HasFieldSelection(entity string) bool {
	_, ok := s.fields[entity]
	return ok
}

// ApplyFieldMode materializes the at-add field choice once the entity's
// description is known. A FieldsAll entity with no explicit selection yet
// gets every field; explicit selections are never overridden.
func (s *Selection) ApplyFieldMode(desc *EntityDescription) {
	if desc == nil || !s.IsSelected(desc.Name) || s.HasFieldSelection(desc.Name) {
		return
	}
	if s.fieldModes[desc.Name] == FieldsAll {
		s.SetFields(desc.Name, desc.FieldNames())
	} else {
		s.SetFields(desc.Name, nil)
	}
}

// ToggleRelationship adds or removes a "child.field" key from the target
// entity's relationship filter. The strength is cached alongside the key so
// the rendered edge kind is authoritative even before the child entity's own
// description has been fetched.
func (s *Selection) ToggleRelationship(target, childKey string, strength Strength) {
	filter, ok := s.relFilters[target]
	if !ok {
		filter = make(map[string]Strength)
		s.relFilters[target] = filter
	}
	if _, present := filter[childKey]; present {
		delete(filter, childKey)
		if len(filter) == 0 {
			delete(s.relFilters, target)
		}
		return
	}
	filter[childKey] = strength
}

// RelationshipFilterSize returns the number of allowed keys for a target.
// Zero means no filter: all relationships into the target are shown.
func (s *Selection) RelationshipFilterSize(target string) int {
	return len(s.relFilters[target])
}

// RelationshipAllowed applies the opt-in filter law: with a non-empty filter
// on the target, only listed keys pass; with no filter, everything passes.
func (s *Selection) RelationshipAllowed(target, childKey string) bool {
	filter := s.relFilters[target]
	if len(filter) == 0 {
		return true
	}
	_, ok := filter[childKey]
	return ok
}

// CachedStrength returns the strength recorded when the relationship was
// toggled, used when the child's field metadata is not yet available.
func (s *Selection) CachedStrength(target, childKey string) (Strength, bool) {
	str, ok := s.relFilters[target][childKey]
	if !ok || str == "" {
		return "", false
	}
	return str, ok
}

// Clone returns an independent deep copy of the selection.
func (s *Selection) Clone() *Selection {
	c := NewSelection()
	c.order = append([]string(nil), s.order...)
	c.ShowSelfReferences = s.ShowSelfReferences
	for k, v := range s.fieldModes {
		c.fieldModes[k] = v
	}
	for entity, set := range s.fields {
		copied := make(map[string]struct{}, len(set))
		for f := range set {
			copied[f] = struct{}{}
		}
		c.fields[entity] = copied
	}
	for target, filter := range s.relFilters {
		copied := make(map[string]Strength, len(filter))
		for k, v := range filter {
			copied[k] = v
		}
		c.relFilters[target] = copied
	}
	return c
}
