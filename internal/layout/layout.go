// Package layout computes an automatic hierarchical arrangement for a
// schema graph. It is invoked explicitly, never on routine selection
// changes, so user-arranged positions are only replaced when asked for.
//
// The algorithm is a standard layered layout: estimate each node's rendered
// size from its visible fields and incident edges, break cycles by reversing
// back edges during ranking, assign layers with a topological sweep, then
// stack each layer along the cross axis and center it. Cycles (self
// references, mutual references) are tolerated structurally, not specially.
package layout

import (
	"errors"
	"fmt"
	"sort"

	"schemascope/internal/domain"
)

// Direction is the flow of the layered layout.
type Direction string

const (
	LeftToRight Direction = "lr"
	RightToLeft Direction = "rl"
	TopToBottom Direction = "tb"
	BottomToTop Direction = "bt"
)

// ParseDirection validates a configured direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case LeftToRight, RightToLeft, TopToBottom, BottomToTop:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid layout direction %q", s)
}

func (d Direction) horizontal() bool {
	return d == LeftToRight || d == RightToLeft
}

func (d Direction) reversed() bool {
	return d == RightToLeft || d == BottomToTop
}

// ErrTooManyNodes is returned when the graph exceeds the engine's hard node
// cap. Layout refuses rather than degrading silently; the merge path stays
// usable as a fallback.
var ErrTooManyNodes = errors.New("graph exceeds layout node cap")

// Engine holds the layout parameters. Zero values are filled by NewEngine.
type Engine struct {
	Direction Direction
	MaxNodes  int // 0 = unlimited

	LayerGap       float64 // gap between layers along the flow axis
	NodeGap        float64 // gap between nodes within a layer
	PerEdgeSpacing float64 // vertical room reserved per attached edge
	MinWidth       float64
	MinHeight      float64
	HeaderHeight   float64 // node title bar
	FieldRowHeight float64 // one visible field row
	CharWidth      float64 // monospace-ish width estimate per character
}

// NewEngine creates an engine with renderer-calibrated defaults.
func NewEngine(direction Direction, maxNodes int) *Engine {
	return &Engine{
		Direction:      direction,
		MaxNodes:       maxNodes,
		LayerGap:       120,
		NodeGap:        40,
		PerEdgeSpacing: 24,
		MinWidth:       180,
		MinHeight:      48,
		HeaderHeight:   40,
		FieldRowHeight: 22,
		CharWidth:      8,
	}
}

type size struct {
	w, h float64
}

// Apply computes positions for every node and returns a new node slice with
// positions set. The input graph is not modified; on error no positions are
// produced so the caller's current arrangement stays intact.
func (e *Engine) Apply(g *domain.Graph) ([]domain.GraphNode, error) {
	if len(g.Nodes) == 0 {
		return []domain.GraphNode{}, nil
	}
	if e.MaxNodes > 0 && len(g.Nodes) > e.MaxNodes {
		return nil, fmt.Errorf("layout refused for %d nodes (cap %d): %w", len(g.Nodes), e.MaxNodes, ErrTooManyNodes)
	}

	sizes := e.estimateSizes(g)
	outgoing, incoming := adjacency(g)
	back := findBackEdges(g, outgoing)
	layers := assignLayers(g, outgoing, incoming, back)

	nodes := make([]domain.GraphNode, len(g.Nodes))
	copy(nodes, g.Nodes)
	byID := make(map[string]*domain.GraphNode, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	e.position(layers, sizes, byID)
	return nodes, nil
}

// estimateSizes pre-computes each node's rendered box. Height is the larger
// of the field-list height and the room its attached edges need on the
// denser side, so nodes with many relationship lines get enough vertical
// space for every line to attach without overlap.
func (e *Engine) estimateSizes(g *domain.Graph) map[string]size {
	in := make(map[string]int)
	out := make(map[string]int)
	for _, edge := range g.Edges {
		out[edge.Source]++
		in[edge.Target]++
	}

	sizes := make(map[string]size, len(g.Nodes))
	for _, n := range g.Nodes {
		longest := len(n.Label)
		for _, f := range n.DisplayFields {
			if l := len(f.Name) + len(f.DisplayType) + 1; l > longest {
				longest = l
			}
		}
		w := float64(longest)*e.CharWidth + 2*e.CharWidth
		if w < e.MinWidth {
			w = e.MinWidth
		}

		h := e.HeaderHeight
		if !n.Collapsed {
			h += float64(len(n.DisplayFields)) * e.FieldRowHeight
		}
		edgeSide := in[n.ID]
		if out[n.ID] > edgeSide {
			edgeSide = out[n.ID]
		}
		if need := float64(edgeSide+1) * e.PerEdgeSpacing; need > h {
			h = need
		}
		if h < e.MinHeight {
			h = e.MinHeight
		}
		sizes[n.ID] = size{w: w, h: h}
	}
	return sizes
}

// adjacency builds deduplicated, sorted neighbor lists. Self-loops and
// parallel edges are irrelevant to ranking and are collapsed here.
func adjacency(g *domain.Graph) (outgoing, incoming map[string][]string) {
	outSet := make(map[string]map[string]struct{})
	for _, e := range g.Edges {
		if e.Source == e.Target {
			continue
		}
		if outSet[e.Source] == nil {
			outSet[e.Source] = make(map[string]struct{})
		}
		outSet[e.Source][e.Target] = struct{}{}
	}

	outgoing = make(map[string][]string)
	incoming = make(map[string][]string)
	for src, targets := range outSet {
		for t := range targets {
			outgoing[src] = append(outgoing[src], t)
			incoming[t] = append(incoming[t], src)
		}
	}
	for _, m := range []map[string][]string{outgoing, incoming} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return outgoing, incoming
}

type edgeKey struct {
	from, to string
}

// findBackEdges identifies edges that close cycles using a DFS over nodes in
// graph order with sorted neighbors, so the same graph always yields the
// same back-edge set.
func findBackEdges(g *domain.Graph, outgoing map[string][]string) map[edgeKey]struct{} {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(g.Nodes))
	back := make(map[edgeKey]struct{})

	var dfs func(id string)
	dfs = func(id string) {
		state[id] = visiting
		for _, next := range outgoing[id] {
			switch state[next] {
			case visiting:
				back[edgeKey{from: id, to: next}] = struct{}{}
			case unvisited:
				dfs(next)
			}
		}
		state[id] = done
	}

	for _, n := range g.Nodes {
		if state[n.ID] == unvisited {
			dfs(n.ID)
		}
	}
	return back
}

// assignLayers ranks nodes with a topological sweep over the graph minus its
// back edges. With back edges removed every component is a DAG, so the sweep
// covers all nodes; a trailing safety layer catches anything that slipped
// through regardless.
func assignLayers(g *domain.Graph, outgoing, incoming map[string][]string, back map[edgeKey]struct{}) [][]string {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for to, froms := range incoming {
		for _, from := range froms {
			if _, isBack := back[edgeKey{from: from, to: to}]; isBack {
				continue
			}
			inDegree[to]++
		}
	}

	var queue []string
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	sort.Strings(queue)

	var layers [][]string
	assigned := make(map[string]struct{}, len(g.Nodes))

	for len(queue) > 0 {
		layer := make([]string, len(queue))
		copy(layer, queue)
		layers = append(layers, layer)
		for _, id := range layer {
			assigned[id] = struct{}{}
		}

		var next []string
		for _, id := range layer {
			for _, succ := range outgoing[id] {
				if _, isBack := back[edgeKey{from: id, to: succ}]; isBack {
					continue
				}
				inDegree[succ]--
				if inDegree[succ] == 0 {
					if _, ok := assigned[succ]; !ok {
						next = append(next, succ)
					}
				}
			}
		}
		sort.Strings(next)
		queue = next
	}

	var leftover []string
	for _, n := range g.Nodes {
		if _, ok := assigned[n.ID]; !ok {
			leftover = append(leftover, n.ID)
		}
	}
	if len(leftover) > 0 {
		sort.Strings(leftover)
		layers = append(layers, leftover)
	}
	return layers
}

// position assigns final top-left coordinates. Layers advance along the
// flow axis; within a layer, nodes stack along the cross axis and each
// layer is centered against the tallest one. Nodes are centered within
// their layer's band, which is where the center-to-top-left translation
// happens.
func (e *Engine) position(layers [][]string, sizes map[string]size, byID map[string]*domain.GraphNode) {
	horizontal := e.Direction.horizontal()

	primaryExtent := func(id string) float64 {
		if horizontal {
			return sizes[id].w
		}
		return sizes[id].h
	}
	crossExtent := func(id string) float64 {
		if horizontal {
			return sizes[id].h
		}
		return sizes[id].w
	}

	// Per-layer band extents along the flow axis and stacking extents
	// across it.
	layerBand := make([]float64, len(layers))
	layerCross := make([]float64, len(layers))
	maxCross := 0.0
	for i, layer := range layers {
		for j, id := range layer {
			if p := primaryExtent(id); p > layerBand[i] {
				layerBand[i] = p
			}
			layerCross[i] += crossExtent(id)
			if j > 0 {
				layerCross[i] += e.NodeGap
			}
		}
		if layerCross[i] > maxCross {
			maxCross = layerCross[i]
		}
	}

	totalPrimary := 0.0
	for i, band := range layerBand {
		totalPrimary += band
		if i > 0 {
			totalPrimary += e.LayerGap
		}
	}

	offset := 0.0
	for i, layer := range layers {
		cross := (maxCross - layerCross[i]) / 2
		for _, id := range layer {
			node := byID[id]
			primary := offset + (layerBand[i]-primaryExtent(id))/2
			if e.Direction.reversed() {
				primary = totalPrimary - primary - primaryExtent(id)
			}
			if horizontal {
				node.Position = domain.NewPosition(primary, cross)
			} else {
				node.Position = domain.NewPosition(cross, primary)
			}
			cross += crossExtent(id) + e.NodeGap
		}
		offset += layerBand[i] + e.LayerGap
	}
}
