package space

// Boundary is an axis aligned rectangle on the (X, Z) plane.
type Boundary struct {
	minX float64
	maxX float64
	minZ float64
	maxZ float64
}

// NewBoundary builds a boundary, swapping inverted limits so min <= max holds.
func NewBoundary(minX, maxX, minZ, maxZ float64) Boundary {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minZ > maxZ {
		minZ, maxZ = maxZ, minZ
	}
	return Boundary{minX: minX, maxX: maxX, minZ: minZ, maxZ: maxZ}
}

// MinX returns the lower x limit.
func (b Boundary) MinX() float64 { return b.minX }

// MaxX returns the upper x limit.
func (b Boundary) MaxX() float64 { return b.maxX }

// MinZ returns the lower z limit.
func (b Boundary) MinZ() float64 { return b.minZ }

// MaxZ returns the upper z limit.
func (b Boundary) MaxZ() float64 { return b.maxZ }

// Clip clamps the X and Z components of v into the boundary. Y is untouched.
func (b Boundary) Clip(v Vector) Vector {
	if v.X < b.minX {
		v.X = b.minX
	} else if v.X > b.maxX {
		v.X = b.maxX
	}
	if v.Z < b.minZ {
		v.Z = b.minZ
	} else if v.Z > b.maxZ {
		v.Z = b.maxZ
	}
	return v
}
