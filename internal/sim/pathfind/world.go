package pathfind

// Shape marks blocks whose walkability differs from their plain solidity.
type Shape uint8

const (
	ShapeNone Shape = iota
	// ShapeFence covers fences and fence gates. Agents treat them as two
	// blocks tall and never path over them.
	ShapeFence
	// ShapeStillLiquid covers stationary liquid. The block below a liquid
	// surface is never a ledge to stand under.
	ShapeStillLiquid
)

func (s Shape) String() string {
	switch s {
	case ShapeFence:
		return "FENCE"
	case ShapeStillLiquid:
		return "STILL_LIQUID"
	default:
		return "NONE"
	}
}

// BlockInfo is what the search needs to know about the block at a coordinate.
// Partial solids (slabs, fences, ...) are reported as solid.
type BlockInfo struct {
	Solid bool
	Shape Shape
}

// WorldView is the only access a search has into the world.
//
// QueryBlock reports valid=false when the partition owning pos is unloaded
// or otherwise unavailable; the search treats such coordinates as solid.
// Implementations are called from the search goroutine only and must apply
// whatever read discipline the underlying world needs.
type WorldView interface {
	QueryBlock(pos Vec3i) (info BlockInfo, valid bool)
}

// WorldViewFunc adapts a function to WorldView.
type WorldViewFunc func(pos Vec3i) (BlockInfo, bool)

func (f WorldViewFunc) QueryBlock(pos Vec3i) (BlockInfo, bool) { return f(pos) }
