// Package gen holds the deterministic hashing and feature placement used to
// generate terrain. Every function is pure in (seed, coordinates).
package gen

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func WithinSpawnClear(x, z, radius int) bool {
	if radius <= 0 {
		return false
	}
	r := int64(radius)
	dx := int64(x)
	dz := int64(z)
	return dx*dx+dz*dz <= r*r
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// InCluster reports whether (x,z) falls in a disk of the given radius around
// a hashed center. Each grid cell holds at most one center, present with
// probability probPermille/1000.
func InCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	r2 := radius * radius
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}
			ox := int((h >> 10) % uint64(grid))
			oz := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cz := cgz*grid + oz
			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

// OnSegment reports whether (x,z) lies on a straight axis-aligned segment
// anchored in a nearby grid cell. Segments run along x or z and are between
// grid/4 and grid/2 long.
func OnSegment(seed int64, x, z, grid int, probPermille uint64) bool {
	if grid < 4 || probPermille == 0 {
		return false
	}
	gx := FloorDiv(x, grid)
	gz := FloorDiv(z, grid)
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}
			ax := cgx*grid + int((h>>10)%uint64(grid))
			az := cgz*grid + int((h>>20)%uint64(grid))
			length := grid/4 + int((h>>30)%uint64(grid/4+1))
			alongX := (h>>40)&1 == 0
			if alongX {
				if z == az && x >= ax && x < ax+length {
					return true
				}
			} else if x == ax && z >= az && z < az+length {
				return true
			}
		}
	}
	return false
}

type Feature uint8

const (
	Plain Feature = iota
	// Wall is a log wall three blocks tall.
	Wall
	// Fence is a single fence block on the surface.
	Fence
	// Pond is a two-deep pool of still water sunk into the surface.
	Pond
)

func (f Feature) String() string {
	switch f {
	case Wall:
		return "WALL"
	case Fence:
		return "FENCE"
	case Pond:
		return "POND"
	default:
		return "PLAIN"
	}
}

// Params are the inputs to FeatureAt.
type Params struct {
	Seed             int64
	SpawnClearRadius int
	WallPermille     int
	FencePermille    int
	PondPermille     int
}

// FeatureAt classifies the column at (x,z). Densities are scaled so that the
// configured permille is roughly the share of segment anchors per grid cell.
func FeatureAt(p Params, x, z int) Feature {
	if WithinSpawnClear(x, z, p.SpawnClearRadius) {
		return Plain
	}
	switch {
	case OnSegment(p.Seed+201, x, z, 32, uint64(ClampPermille(p.WallPermille*50))):
		return Wall
	case OnSegment(p.Seed+301, x, z, 24, uint64(ClampPermille(p.FencePermille*50))):
		return Fence
	case InCluster(p.Seed+401, x, z, 48, 3, uint64(ClampPermille(p.PondPermille*50))):
		return Pond
	}
	return Plain
}
