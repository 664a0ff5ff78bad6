// Package synth turns entity descriptions plus a selection into a node/edge
// graph. Synthesize is a pure function: no I/O, fully deterministic, and
// recomputing from the same inputs yields byte-identical output, which is
// what lets the merge step key on IDs instead of diffing structures.
package synth

import (
	"fmt"
	"log"
	"sort"

	"schemascope/internal/domain"
)

// Options are the display toggles and limits the synthesizer honors.
type Options struct {
	// ShowSelfReferences controls whether A->A edges are emitted.
	ShowSelfReferences bool
	// MaxEntities caps the selection size; 0 means unlimited. Synthesis
	// refuses to proceed beyond the cap rather than truncating, because a
	// truncated graph would look complete while missing edges.
	MaxEntities int
}

// CapacityError reports a selection exceeding the configured entity cap.
// No partial graph accompanies it.
type CapacityError struct {
	Selected int
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("selection of %d entities exceeds graph capacity of %d", e.Selected, e.Limit)
}

// Synthesize derives the graph for the current selection from whatever
// descriptions are cached. A selected entity with no description yet simply
// yields no node - that is the expected steady state while fetches are in
// flight, not an error.
func Synthesize(descriptions map[string]*domain.EntityDescription, sel *domain.Selection, opts Options) (*domain.Graph, error) {
	selected := sel.Entities()
	if opts.MaxEntities > 0 && len(selected) > opts.MaxEntities {
		return nil, &CapacityError{Selected: len(selected), Limit: opts.MaxEntities}
	}

	graph := domain.NewGraph()
	nodeSet := make(map[string]struct{}, len(selected))

	for _, name := range selected {
		desc := descriptions[name]
		if desc == nil {
			continue
		}
		graph.Nodes = append(graph.Nodes, buildNode(desc, sel))
		nodeSet[name] = struct{}{}
	}

	seenIDs := make(map[string]struct{})
	for _, source := range selected {
		desc := descriptions[source]
		if desc == nil {
			continue
		}
		for _, field := range desc.Fields {
			if !field.IsReference {
				continue
			}
			for _, target := range field.ReferenceTargets {
				// An edge's target must itself be a visible node;
				// references to non-selected entities are not materialized.
				if _, visible := nodeSet[target]; !visible {
					continue
				}
				if source == target && !opts.ShowSelfReferences {
					continue
				}
				key := domain.RelationshipKey(source, field.Name)
				if !sel.RelationshipAllowed(target, key) {
					continue
				}
				id := domain.EdgeID(source, field.Name, target)
				if _, dup := seenIDs[id]; dup {
					continue
				}
				seenIDs[id] = struct{}{}

				graph.Edges = append(graph.Edges, domain.GraphEdge{
					ID:               id,
					Source:           source,
					Target:           target,
					Kind:             resolveStrength(descriptions, sel, source, field, target),
					ThroughField:     field.Name,
					RelationshipName: field.RelationshipName,
				})
			}
		}
	}

	assignFanOut(graph.Edges)
	return graph, nil
}

// buildNode projects the entity's fields through its selected-field set,
// preserving the entity's own field order so the visual layout stays stable
// regardless of selection order.
func buildNode(desc *domain.EntityDescription, sel *domain.Selection) domain.GraphNode {
	var display []domain.FieldDescriptor
	for _, f := range desc.Fields {
		if sel.FieldSelected(desc.Name, f.Name) {
			display = append(display, f)
		}
	}
	return domain.GraphNode{
		ID:            desc.Name,
		Label:         desc.Label,
		DisplayFields: display,
	}
}

// resolveStrength picks the edge kind by precedence: the child field's own
// strength, then the strength cached when the relationship was toggled, then
// weak. A missing strength must never be presented as strong, since strong
// implies cascading-delete semantics.
func resolveStrength(descriptions map[string]*domain.EntityDescription, sel *domain.Selection, source string, field domain.FieldDescriptor, target string) domain.Strength {
	if field.Strength != "" {
		// The parent's inbound view states the same fact; disagreement
		// indicates stale or mismatched metadata and is worth surfacing.
		if parent := descriptions[target]; parent != nil {
			if rel, ok := parent.Relationship(source, field.Name); ok && rel.Strength != "" && rel.Strength != field.Strength {
				log.Printf("Relationship strength mismatch for %s: field says %s, parent %s says %s",
					domain.EdgeID(source, field.Name, target), field.Strength, target, rel.Strength)
			}
		}
		return field.Strength
	}
	if cached, ok := sel.CachedStrength(target, domain.RelationshipKey(source, field.Name)); ok {
		return cached
	}
	return domain.StrengthWeak
}

// assignFanOut groups edges by directed (source, target) pair and spreads
// each group across fan slots. The slot order is the through-field name, a
// key stable across recomputation, so edges never jump between slots on an
// unrelated selection change.
func assignFanOut(edges []domain.GraphEdge) {
	groups := make(map[string][]int)
	for i, e := range edges {
		key := e.Source + "\x00" + e.Target
		groups[key] = append(groups[key], i)
	}
	for _, idxs := range groups {
		sort.Slice(idxs, func(a, b int) bool {
			return edges[idxs[a]].ThroughField < edges[idxs[b]].ThroughField
		})
		for slot, i := range idxs {
			edges[i].FanOutIndex = slot
			edges[i].FanOutTotal = len(idxs)
		}
	}
}
