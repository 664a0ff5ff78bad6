package domain

// Graph is the derived node/edge view handed to the renderer. The renderer
// treats every delivery as a full replacement and reconciles by ID.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode represents one selected entity on the canvas.
type GraphNode struct {
	ID            string            `json:"id"` // entity name
	Label         string            `json:"label"`
	DisplayFields []FieldDescriptor `json:"display_fields"`
	Position      *Position         `json:"position,omitempty"`
	Collapsed     bool              `json:"collapsed"`
}

// GraphEdge represents one visible reference between two selected entities.
// FanOutIndex/FanOutTotal place the edge among all parallel edges sharing
// the same directed source-target pair so the renderer can offset
// overlapping lines.
type GraphEdge struct {
	ID               string   `json:"id"`
	Source           string   `json:"source"`
	Target           string   `json:"target"`
	Kind             Strength `json:"kind"`
	ThroughField     string   `json:"through_field"`
	RelationshipName string   `json:"relationship_name,omitempty"`
	FanOutIndex      int      `json:"fan_out_index"`
	FanOutTotal      int      `json:"fan_out_total"`
}

// EdgeID builds the deterministic edge identity from its endpoints and the
// field it flows through. Re-synthesis after an unrelated change must
// produce byte-identical IDs for unchanged edges, so the ID never depends
// on array order.
func EdgeID(source, field, target string) string {
	return source + "." + field + "." + target
}

// NewGraph creates an empty graph with initialized collections.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make([]GraphNode, 0),
		Edges: make([]GraphEdge, 0),
	}
}

// Node returns the node with the given ID, if present.
func (g *Graph) Node(id string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// HasNode reports whether a node with the given ID is present.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// EdgesTouching returns all edges with the given node as either endpoint.
func (g *Graph) EdgesTouching(id string) []GraphEdge {
	var out []GraphEdge
	for _, e := range g.Edges {
		if e.Source == id || e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of the graph. Positions are copied so the clone
// can be mutated without affecting the original.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Nodes: make([]GraphNode, len(g.Nodes)),
		Edges: make([]GraphEdge, len(g.Edges)),
	}
	copy(c.Edges, g.Edges)
	for i, n := range g.Nodes {
		n.Position = n.Position.Clone()
		fields := make([]FieldDescriptor, len(n.DisplayFields))
		copy(fields, n.DisplayFields)
		n.DisplayFields = fields
		c.Nodes[i] = n
	}
	return c
}
