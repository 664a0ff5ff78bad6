// Package merge reconciles a freshly synthesized graph against the
// previously rendered one so user-arranged node positions survive
// recomputation. Only nodes carry state worth preserving; edges pass
// through synthesis untouched.
package merge

import (
	"schemascope/internal/domain"
)

// NodeWidth is the nominal rendered node width used to offset newly placed
// nodes clear of the cluster they attach to.
const NodeWidth = 240.0

// Origin coordinates for the first node of an empty diagram.
const (
	OriginX = 40.0
	OriginY = 40.0
)

// Merge copies position and collapsed state from previous nodes onto the
// next graph's nodes by ID, places newcomers deterministically, and drops
// nodes that no longer exist. The next graph's node slice is updated in
// place and returned.
func Merge(next *domain.Graph, previous []domain.GraphNode) []domain.GraphNode {
	prevByID := make(map[string]domain.GraphNode, len(previous))
	for _, n := range previous {
		prevByID[n.ID] = n
	}

	// placed tracks every node that already has a position: surviving nodes
	// first, then newcomers as they land, so consecutive placements never
	// stack on the same spot.
	placed := make(map[string]*domain.Position)
	var newcomers []int

	for i := range next.Nodes {
		node := &next.Nodes[i]
		if prev, ok := prevByID[node.ID]; ok {
			node.Position = prev.Position.Clone()
			node.Collapsed = prev.Collapsed
			if node.Position != nil {
				placed[node.ID] = node.Position
			}
			continue
		}
		newcomers = append(newcomers, i)
	}

	for _, i := range newcomers {
		node := &next.Nodes[i]
		node.Position = placeNew(node.ID, next, placed)
		placed[node.ID] = node.Position
	}

	return next.Nodes
}

// placeNew picks a deterministic position for a node absent from the
// previous graph:
//
//  1. adjacent to the nodes it connects to, when any of them are placed
//  2. to the right of the rightmost placed node otherwise
//  3. at a fixed origin in an empty diagram
func placeNew(id string, g *domain.Graph, placed map[string]*domain.Position) *domain.Position {
	var (
		sumX, sumY float64
		neighbors  int
	)
	for _, e := range g.Edges {
		var other string
		switch id {
		case e.Source:
			other = e.Target
		case e.Target:
			other = e.Source
		default:
			continue
		}
		if other == id {
			continue // self-reference says nothing about placement
		}
		if pos, ok := placed[other]; ok {
			sumX += pos.X
			sumY += pos.Y
			neighbors++
		}
	}

	if neighbors > 0 {
		// Average of the connected cluster, offset one node-width right so
		// the newcomer lands beside it instead of on top of it.
		return domain.NewPosition(sumX/float64(neighbors)+NodeWidth, sumY/float64(neighbors))
	}

	// Node order, not map order, so float accumulation is reproducible.
	var (
		maxX  float64
		sum   float64
		count int
		first = true
	)
	for _, n := range g.Nodes {
		pos, ok := placed[n.ID]
		if !ok {
			continue
		}
		if first || pos.X > maxX {
			maxX = pos.X
			first = false
		}
		sum += pos.Y
		count++
	}
	if count > 0 {
		return domain.NewPosition(maxX+NodeWidth, sum/float64(count))
	}

	return domain.NewPosition(OriginX, OriginY)
}
