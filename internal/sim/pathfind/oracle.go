package pathfind

// oracle answers solidity queries against the world. Unavailable partitions
// are solid so a search never walks into unloaded space.
type oracle struct {
	view WorldView

	queries     int
	unavailable int
}

func (o *oracle) isSolid(p Vec3i, cache *gridCache) bool {
	o.queries++
	info, valid := o.view.QueryBlock(p)
	if !valid {
		o.unavailable++
		return true
	}
	switch info.Shape {
	case ShapeFence:
		cache.force(p.Up())
	case ShapeStillLiquid:
		cache.force(p.Down())
	}
	return info.Solid
}
