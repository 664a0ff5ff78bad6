package synth

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"schemascope/internal/domain"
)

func entity(name string, fields ...domain.FieldDescriptor) *domain.EntityDescription {
	return &domain.EntityDescription{Name: name, Label: name, Fields: fields}
}

func refField(name string, strength domain.Strength, targets ...string) domain.FieldDescriptor {
	return domain.FieldDescriptor{
		Name:             name,
		DisplayType:      "reference",
		IsReference:      true,
		ReferenceTargets: targets,
		Strength:         strength,
	}
}

func textField(name string) domain.FieldDescriptor {
	return domain.FieldDescriptor{Name: name, DisplayType: "string"}
}

func selectAll(names ...string) *domain.Selection {
	sel := domain.NewSelection()
	for _, n := range names {
		sel.SelectEntity(n, domain.FieldsNone)
	}
	return sel
}

func defaultOpts() Options {
	return Options{ShowSelfReferences: true}
}

func TestSynthesizeParentChild(t *testing.T) {
	descs := map[string]*domain.EntityDescription{
		"Parent": entity("Parent", textField("Name")),
		"Child":  entity("Child", refField("parent_id", domain.StrengthStrong, "Parent")),
	}
	sel := selectAll("Parent", "Child")

	graph, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(graph.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(graph.Nodes))
	}
	if len(graph.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(graph.Edges))
	}

	edge := graph.Edges[0]
	if edge.Source != "Child" || edge.Target != "Parent" {
		t.Errorf("expected Child->Parent, got %s->%s", edge.Source, edge.Target)
	}
	if edge.Kind != domain.StrengthStrong {
		t.Errorf("expected strong edge, got %s", edge.Kind)
	}
	if edge.FanOutIndex != 0 || edge.FanOutTotal != 1 {
		t.Errorf("expected fan-out 0/1, got %d/%d", edge.FanOutIndex, edge.FanOutTotal)
	}
	if edge.ID != domain.EdgeID("Child", "parent_id", "Parent") {
		t.Errorf("unexpected edge ID %s", edge.ID)
	}
}

func TestSynthesizeDeterminism(t *testing.T) {
	descs := map[string]*domain.EntityDescription{
		"A": entity("A",
			refField("owner_id", domain.StrengthWeak, "B"),
			refField("backup_owner_id", domain.StrengthWeak, "B"),
			refField("self_id", domain.StrengthWeak, "A"),
		),
		"B": entity("B", refField("a_id", domain.StrengthStrong, "A")),
	}
	sel := selectAll("A", "B")

	first, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(first.Nodes, second.Nodes) {
		t.Error("node collections differ between identical syntheses")
	}
	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Error("edge collections differ between identical syntheses")
	}
}

func TestSynthesizeParallelEdges(t *testing.T) {
	// Two fields on A both referencing B fan out deterministically,
	// sorted by field name.
	descs := map[string]*domain.EntityDescription{
		"A": entity("A",
			refField("owner_id", domain.StrengthWeak, "B"),
			refField("backup_owner_id", domain.StrengthWeak, "B"),
		),
		"B": entity("B"),
	}
	sel := selectAll("A", "B")

	graph, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(graph.Edges))
	}

	byField := make(map[string]domain.GraphEdge)
	for _, e := range graph.Edges {
		if e.FanOutTotal != 2 {
			t.Errorf("edge %s: expected fanOutTotal 2, got %d", e.ID, e.FanOutTotal)
		}
		byField[e.ThroughField] = e
	}
	if byField["backup_owner_id"].FanOutIndex != 0 {
		t.Errorf("backup_owner_id should take slot 0, got %d", byField["backup_owner_id"].FanOutIndex)
	}
	if byField["owner_id"].FanOutIndex != 1 {
		t.Errorf("owner_id should take slot 1, got %d", byField["owner_id"].FanOutIndex)
	}
}

func TestSynthesizeSelfReferences(t *testing.T) {
	descs := map[string]*domain.EntityDescription{
		"Account": entity("Account", refField("parent_account_id", domain.StrengthWeak, "Account")),
	}
	sel := selectAll("Account")

	t.Run("visible when toggled on", func(t *testing.T) {
		graph, err := Synthesize(descs, sel, Options{ShowSelfReferences: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(graph.Edges) != 1 {
			t.Fatalf("expected 1 self edge, got %d", len(graph.Edges))
		}
		if e := graph.Edges[0]; e.Source != "Account" || e.Target != "Account" {
			t.Errorf("expected Account->Account, got %s->%s", e.Source, e.Target)
		}
	})

	t.Run("hidden when toggled off", func(t *testing.T) {
		graph, err := Synthesize(descs, sel, Options{ShowSelfReferences: false})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(graph.Edges) != 0 {
			t.Errorf("expected no edges, got %d", len(graph.Edges))
		}
	})
}

func TestSynthesizeRelationshipFilter(t *testing.T) {
	descs := map[string]*domain.EntityDescription{
		"Parent": entity("Parent"),
		"A":      entity("A", refField("parent_id", domain.StrengthWeak, "Parent")),
		"B":      entity("B", refField("parent_id", domain.StrengthWeak, "Parent")),
	}

	t.Run("empty filter shows everything", func(t *testing.T) {
		sel := selectAll("Parent", "A", "B")
		graph, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(graph.Edges) != 2 {
			t.Errorf("expected 2 edges, got %d", len(graph.Edges))
		}
	})

	t.Run("non-empty filter only removes", func(t *testing.T) {
		sel := selectAll("Parent", "A", "B")
		before, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		beforeIDs := make(map[string]struct{})
		for _, e := range before.Edges {
			beforeIDs[e.ID] = struct{}{}
		}

		sel.ToggleRelationship("Parent", "A.parent_id", domain.StrengthWeak)
		after, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(after.Edges) != 1 {
			t.Fatalf("expected 1 edge after filtering, got %d", len(after.Edges))
		}
		for _, e := range after.Edges {
			if _, ok := beforeIDs[e.ID]; !ok {
				t.Errorf("filter introduced edge %s that was absent before", e.ID)
			}
		}
		if after.Edges[0].Source != "A" {
			t.Errorf("expected the A edge to survive, got source %s", after.Edges[0].Source)
		}
	})
}

func TestSynthesizeStrengthResolution(t *testing.T) {
	t.Run("field strength wins", func(t *testing.T) {
		descs := map[string]*domain.EntityDescription{
			"Parent": {
				Name:  "Parent",
				Label: "Parent",
				Relationships: []domain.RelationshipDescriptor{
					{ChildEntity: "Child", ChildField: "parent_id", Strength: domain.StrengthWeak},
				},
			},
			"Child": entity("Child", refField("parent_id", domain.StrengthStrong, "Parent")),
		}
		sel := selectAll("Parent", "Child")
		graph, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if graph.Edges[0].Kind != domain.StrengthStrong {
			t.Errorf("expected field strength (strong) to win, got %s", graph.Edges[0].Kind)
		}
	})

	t.Run("toggle-cached strength used before child metadata", func(t *testing.T) {
		descs := map[string]*domain.EntityDescription{
			"Parent": entity("Parent"),
			"Child":  entity("Child", refField("parent_id", "", "Parent")),
		}
		sel := selectAll("Parent", "Child")
		sel.ToggleRelationship("Parent", "Child.parent_id", domain.StrengthStrong)

		graph, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if graph.Edges[0].Kind != domain.StrengthStrong {
			t.Errorf("expected cached toggle strength, got %s", graph.Edges[0].Kind)
		}
	})

	t.Run("unknown strength defaults to weak", func(t *testing.T) {
		descs := map[string]*domain.EntityDescription{
			"Parent": entity("Parent"),
			"Child":  entity("Child", refField("parent_id", "", "Parent")),
		}
		sel := selectAll("Parent", "Child")

		graph, err := Synthesize(descs, sel, defaultOpts())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if graph.Edges[0].Kind != domain.StrengthWeak {
			t.Errorf("missing strength must render weak, got %s", graph.Edges[0].Kind)
		}
	})
}

func TestSynthesizeFieldProjection(t *testing.T) {
	descs := map[string]*domain.EntityDescription{
		"Account": entity("Account", textField("Name"), textField("Industry"), textField("Phone")),
	}
	sel := selectAll("Account")
	// Selection order must not dictate display order - entity field order does.
	sel.SetFields("Account", []string{"Phone", "Name"})

	graph, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields := graph.Nodes[0].DisplayFields
	if len(fields) != 2 {
		t.Fatalf("expected 2 display fields, got %d", len(fields))
	}
	if fields[0].Name != "Name" || fields[1].Name != "Phone" {
		t.Errorf("expected entity field order [Name Phone], got [%s %s]", fields[0].Name, fields[1].Name)
	}
}

func TestSynthesizePendingEntities(t *testing.T) {
	// A selected entity with no cached description yields no node and no
	// edges into it - the expected steady state while fetches are in flight.
	descs := map[string]*domain.EntityDescription{
		"Child": entity("Child", refField("parent_id", domain.StrengthStrong, "Parent")),
	}
	sel := selectAll("Parent", "Child")

	graph, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(graph.Nodes))
	}
	if len(graph.Edges) != 0 {
		t.Errorf("expected no edges to a missing node, got %d", len(graph.Edges))
	}
}

func TestSynthesizeNonSelectedTargets(t *testing.T) {
	// References to non-selected entities are not materialized as edges.
	descs := map[string]*domain.EntityDescription{
		"Contact": entity("Contact", refField("account_id", domain.StrengthWeak, "Account")),
		"Account": entity("Account"),
	}
	sel := selectAll("Contact")

	graph, err := Synthesize(descs, sel, defaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(graph.Edges) != 0 {
		t.Errorf("expected no edges, got %d", len(graph.Edges))
	}
}

func TestSynthesizeCapacity(t *testing.T) {
	descs := make(map[string]*domain.EntityDescription)
	sel := domain.NewSelection()
	for i := 0; i < 75; i++ {
		name := fmt.Sprintf("Entity%02d", i)
		descs[name] = entity(name)
		sel.SelectEntity(name, domain.FieldsNone)
	}

	graph, err := Synthesize(descs, sel, Options{ShowSelfReferences: true, MaxEntities: 50})
	if err == nil {
		t.Fatal("expected capacity error")
	}
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %T", err)
	}
	if capErr.Selected != 75 || capErr.Limit != 50 {
		t.Errorf("expected 75/50, got %d/%d", capErr.Selected, capErr.Limit)
	}
	if graph != nil {
		t.Error("capacity error must not come with a partial graph")
	}
}

func TestSynthesizeInvariants(t *testing.T) {
	// Property test over pseudo-random selection subsets: edge endpoints are
	// always live nodes, edge IDs are unique, and every fan-out group is an
	// exact 0..total-1 partition.
	rng := rand.New(rand.NewSource(42))

	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("Obj%02d", i)
	}

	universe := make(map[string]*domain.EntityDescription, len(names))
	for i, name := range names {
		var fields []domain.FieldDescriptor
		for f := 0; f < 4; f++ {
			target := names[rng.Intn(len(names))]
			strength := domain.StrengthWeak
			if rng.Intn(3) == 0 {
				strength = domain.StrengthStrong
			}
			fields = append(fields, refField(fmt.Sprintf("ref_%d_%d", i, f), strength, target))
		}
		universe[name] = entity(name, fields...)
	}

	for trial := 0; trial < 50; trial++ {
		sel := domain.NewSelection()
		descs := make(map[string]*domain.EntityDescription)
		for _, name := range names {
			if rng.Intn(2) == 0 {
				continue
			}
			sel.SelectEntity(name, domain.FieldsNone)
			// Some selected entities stay unfetched.
			if rng.Intn(4) != 0 {
				descs[name] = universe[name]
			}
		}

		graph, err := Synthesize(descs, sel, Options{ShowSelfReferences: rng.Intn(2) == 0})
		if err != nil {
			t.Fatalf("trial %d: unexpected error: %v", trial, err)
		}

		nodeIDs := make(map[string]struct{}, len(graph.Nodes))
		for _, n := range graph.Nodes {
			nodeIDs[n.ID] = struct{}{}
		}

		edgeIDs := make(map[string]struct{}, len(graph.Edges))
		fanSlots := make(map[string]map[int]struct{})
		fanTotals := make(map[string]int)
		for _, e := range graph.Edges {
			if _, ok := nodeIDs[e.Source]; !ok {
				t.Fatalf("trial %d: edge %s has dangling source", trial, e.ID)
			}
			if _, ok := nodeIDs[e.Target]; !ok {
				t.Fatalf("trial %d: edge %s has dangling target", trial, e.ID)
			}
			if _, dup := edgeIDs[e.ID]; dup {
				t.Fatalf("trial %d: duplicate edge ID %s", trial, e.ID)
			}
			edgeIDs[e.ID] = struct{}{}

			if e.FanOutIndex < 0 || e.FanOutIndex >= e.FanOutTotal {
				t.Fatalf("trial %d: edge %s has fan index %d outside total %d", trial, e.ID, e.FanOutIndex, e.FanOutTotal)
			}
			pair := e.Source + "->" + e.Target
			if fanSlots[pair] == nil {
				fanSlots[pair] = make(map[int]struct{})
			}
			if _, taken := fanSlots[pair][e.FanOutIndex]; taken {
				t.Fatalf("trial %d: pair %s reuses fan slot %d", trial, pair, e.FanOutIndex)
			}
			fanSlots[pair][e.FanOutIndex] = struct{}{}
			if prev, ok := fanTotals[pair]; ok && prev != e.FanOutTotal {
				t.Fatalf("trial %d: pair %s has inconsistent fan totals %d and %d", trial, pair, prev, e.FanOutTotal)
			}
			fanTotals[pair] = e.FanOutTotal
		}

		for pair, slots := range fanSlots {
			if len(slots) != fanTotals[pair] {
				t.Fatalf("trial %d: pair %s has %d slots for total %d", trial, pair, len(slots), fanTotals[pair])
			}
		}
	}
}
