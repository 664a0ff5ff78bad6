package domain

// Position is a node's top-left-anchored canvas coordinate. Positions are
// owned by the diagram: they round-trip through synthesis and merge but are
// never computed by the synthesizer itself.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPosition creates a position value.
func NewPosition(x, y float64) *Position {
	return &Position{X: x, Y: y}
}

// Clone returns an independent copy, or nil for a nil position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
