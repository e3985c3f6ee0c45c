package space

import "math"

// Vector is a simple R3 vector. Y is the vertical axis; the search plane is (X, Z).
type Vector struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

// NewVector builds a vector from its components.
func NewVector(x, y, z float64) Vector {
	return Vector{X: x, Y: y, Z: z}
}

// UnitX returns the unit vector parallel to the x axis.
func UnitX() Vector { return Vector{X: 1} }

// UnitY returns the unit vector parallel to the y axis.
func UnitY() Vector { return Vector{Y: 1} }

// UnitZ returns the unit vector parallel to the z axis.
func UnitZ() Vector { return Vector{Z: 1} }

// Add returns the component wise sum of two vectors.
func (v Vector) Add(other Vector) Vector {
	return Vector{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns the difference between two vectors.
func (v Vector) Sub(other Vector) Vector {
	return Vector{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies the vector by a scalar.
func (v Vector) Scale(c float64) Vector {
	return Vector{X: c * v.X, Y: c * v.Y, Z: c * v.Z}
}

// Dot returns the scalar dot product of two vectors.
func (v Vector) Dot(other Vector) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// RotateXY rotates the vector about the z axis by angle radians.
func (v Vector) RotateXY(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{
		X: v.X*cos + v.Y*sin,
		Y: -v.X*sin + v.Y*cos,
		Z: v.Z,
	}
}

// RotateXZ rotates the vector about the vertical axis by angle radians.
// Positive angles turn x towards -z.
func (v Vector) RotateXZ(angle float64) Vector {
	sin, cos := math.Sincos(angle)
	return Vector{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// Magnitude computes the Euclidean norm of the vector.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.Dot(v))
}

// IsZero reports whether every component is exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Unit returns a vector of magnitude one colinear with v. The zero vector
// has no direction and is returned unchanged instead of producing NaNs.
func (v Vector) Unit() Vector {
	magnitude := v.Magnitude()
	if magnitude == 0 {
		return Vector{}
	}
	inv := 1.0 / magnitude
	return Vector{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}
