package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"schemascope/internal/domain"
	"schemascope/internal/layout"
	"schemascope/internal/merge"
	"schemascope/internal/metadata"
	"schemascope/internal/provider"
	"schemascope/internal/synth"
)

// Options configures the diagram service.
type Options struct {
	// DefaultFieldMode is the at-add field projection used when a caller
	// selects an entity without making the none-vs-all choice itself.
	DefaultFieldMode domain.FieldMode
	// MaxEntities caps the number of entities in one graph (0 = unlimited).
	MaxEntities int
}

// DiagramService coordinates selection state, metadata fetching, graph
// synthesis, incremental merge and on-demand layout.
type DiagramService struct {
	provider provider.Provider
	cache    *metadata.Cache
	engine   *layout.Engine
	eventBus *EventBus
	opts     Options

	mu        sync.Mutex
	selection *domain.Selection
	current   *domain.Graph
}

// NewDiagramService creates a diagram service.
func NewDiagramService(p provider.Provider, cache *metadata.Cache, engine *layout.Engine, eventBus *EventBus, opts Options) *DiagramService {
	if opts.DefaultFieldMode == "" {
		opts.DefaultFieldMode = domain.FieldsNone
	}
	return &DiagramService{
		provider:  p,
		cache:     cache,
		engine:    engine,
		eventBus:  eventBus,
		opts:      opts,
		selection: domain.NewSelection(),
		current:   domain.NewGraph(),
	}
}

// ListEntities returns summaries for every entity the provider knows.
func (s *DiagramService) ListEntities(ctx context.Context) ([]provider.EntitySummary, error) {
	return s.provider.ListEntities(ctx)
}

// DescribeEntity returns the full description for one entity, fetching it
// through the cache if needed.
func (s *DiagramService) DescribeEntity(ctx context.Context, name string) (*domain.EntityDescription, error) {
	if errs := s.cache.EnsureFetched(ctx, []string{name}); errs != nil {
		if err, ok := errs[name]; ok {
			return nil, fmt.Errorf("describe %s: %w", name, err)
		}
	}
	desc, state := s.cache.Get(name)
	if state != metadata.StateCached {
		return nil, fmt.Errorf("describe %s: description unavailable", name)
	}
	return desc, nil
}

// DescribeEntities fetches several descriptions in one provider round trip,
// reporting per-name failures without failing the batch. Graph-driven
// fetching stays on the cache's per-name coalescing path; this is the bulk
// entry point for callers that already know the full name set.
func (s *DiagramService) DescribeEntities(ctx context.Context, names []string) (map[string]*domain.EntityDescription, map[string]error) {
	return s.cache.FetchBatch(ctx, names)
}

// SelectEntity adds an entity to the diagram. The mode is the caller's
// explicit none-vs-all field choice; an empty mode falls back to the
// configured default. A fetch failure leaves the entity selected but absent
// from the graph until the caller retries; a capacity overflow rolls the
// selection back entirely.
func (s *DiagramService) SelectEntity(ctx context.Context, name string, mode domain.FieldMode) (*domain.Graph, error) {
	if mode == "" {
		mode = s.opts.DefaultFieldMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selection.SelectEntity(name, mode) {
		return s.current.Clone(), nil
	}

	var fetchErr error
	if errs := s.cache.EnsureFetched(ctx, []string{name}); errs != nil {
		if err, ok := errs[name]; ok {
			fetchErr = err
			log.Printf("Failed to fetch %s: %v", name, err)
		}
	}

	graph, err := s.resynthesize()
	if err != nil {
		s.selection.RemoveEntity(name)
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventEntitySelected,
		Payload: map[string]string{"entity": name},
	})

	if fetchErr != nil {
		return graph, fmt.Errorf("fetch %s: %w", name, fetchErr)
	}
	return graph, nil
}

// RemoveEntity removes an entity from the diagram along with its field
// selection and relationship filter. Edges that referenced it drop out of
// the next synthesis because both endpoints must be live nodes.
func (s *DiagramService) RemoveEntity(name string) (*domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selection.IsSelected(name) {
		return nil, fmt.Errorf("entity %s not selected", name)
	}
	s.selection.RemoveEntity(name)

	graph, err := s.resynthesize()
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventEntityRemoved,
		Payload: map[string]string{"entity": name},
	})
	return graph, nil
}

// SetFields replaces an entity's visible-field selection wholesale.
func (s *DiagramService) SetFields(entity string, fields []string) (*domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.selection.IsSelected(entity) {
		return nil, fmt.Errorf("entity %s not selected", entity)
	}
	s.selection.SetFields(entity, fields)

	graph, err := s.resynthesize()
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventFieldsChanged,
		Payload: map[string]string{"entity": entity},
	})
	return graph, nil
}

// ToggleRelationship adds or removes one "child.field" key from the target
// entity's relationship filter. The strength is cached with the selection so
// the rendered edge kind is right even before the child's metadata arrives.
func (s *DiagramService) ToggleRelationship(target, childKey string, strength domain.Strength) (*domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selection.ToggleRelationship(target, childKey, strength)

	graph, err := s.resynthesize()
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventRelationshipToggled,
		Payload: map[string]string{"target": target, "key": childKey},
	})
	return graph, nil
}

// SetSelfReferences toggles visibility of A->A edges.
func (s *DiagramService) SetSelfReferences(show bool) (*domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selection.ShowSelfReferences = show

	graph, err := s.resynthesize()
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventDisplayChanged,
		Payload: map[string]bool{"self_references": show},
	})
	return graph, nil
}

// Graph returns a copy of the current rendered graph.
func (s *DiagramService) Graph() *domain.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Selection returns a copy of the current selection state.
func (s *DiagramService) Selection() *domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Clone()
}

// SavePositions writes user-arranged positions back onto the current graph.
// Positions are diagram-owned state that round-trips through synthesis and
// merge; they live only as long as the process.
func (s *DiagramService) SavePositions(positions map[string]domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.current.Nodes {
		if pos, ok := positions[s.current.Nodes[i].ID]; ok {
			s.current.Nodes[i].Position = domain.NewPosition(pos.X, pos.Y)
		}
	}

	s.eventBus.Publish(Event{
		Type:    EventPositionsUpdated,
		Payload: map[string]int{"count": len(positions)},
	})
}

// AutoLayout re-flows the whole diagram with the layered layout engine. On
// failure the current arrangement is left untouched so the diagram is never
// unrenderable.
func (s *DiagramService) AutoLayout() (*domain.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.engine.Apply(s.current)
	if err != nil {
		return nil, fmt.Errorf("auto layout: %w", err)
	}
	s.current.Nodes = nodes

	graph := s.current.Clone()
	s.eventBus.Publish(Event{
		Type:    EventLayoutApplied,
		Payload: graph,
	})
	return graph, nil
}

// SwitchAPIVersion invalidates the metadata cache wholesale, warms it from
// the persistent store when possible, refetches the selected entities and
// resynthesizes. The selection itself survives a version switch.
func (s *DiagramService) SwitchAPIVersion(ctx context.Context, apiVersion string) (*domain.Graph, map[string]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Invalidate(apiVersion)
	if loaded, err := s.cache.WarmFromStore(ctx); err != nil {
		log.Printf("Failed to warm cache for version %s: %v", apiVersion, err)
	} else if loaded > 0 {
		log.Printf("Warmed %d descriptions for version %s", loaded, apiVersion)
	}

	fetchErrs := s.cache.EnsureFetched(ctx, s.selection.Entities())

	graph, err := s.resynthesize()
	if err != nil {
		return nil, fetchErrs, err
	}

	s.eventBus.Publish(Event{
		Type:    EventCacheInvalidated,
		Payload: map[string]string{"api_version": apiVersion},
	})
	return graph, fetchErrs, nil
}

// resynthesize derives a fresh graph from the cache and selection, merges
// it against the current one to keep positions, installs it as current and
// broadcasts it. Callers hold s.mu.
func (s *DiagramService) resynthesize() (*domain.Graph, error) {
	descriptions := s.cache.Descriptions()

	// Materialize the at-add field choice for any entity whose description
	// arrived since the last pass. Explicit selections are untouched.
	for _, name := range s.selection.Entities() {
		if desc := descriptions[name]; desc != nil {
			s.selection.ApplyFieldMode(desc)
		}
	}

	graph, err := synth.Synthesize(descriptions, s.selection, synth.Options{
		ShowSelfReferences: s.selection.ShowSelfReferences,
		MaxEntities:        s.opts.MaxEntities,
	})
	if err != nil {
		return nil, err
	}

	graph.Nodes = merge.Merge(graph, s.current.Nodes)
	s.current = graph

	rendered := graph.Clone()
	s.eventBus.Publish(Event{
		Type:    EventGraphUpdated,
		Payload: rendered,
	})
	return rendered, nil
}
