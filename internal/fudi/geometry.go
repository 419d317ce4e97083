package fudi

import (
	"fmt"
	"math"
)

// quaternion in (x, y, z, w) order
type quat struct {
	x, y, z, w float64
}

const degree = math.Pi / 180

// quaternion of an intrinsic Z-Y-X (yaw, pitch, roll) rotation
func (r Rotation) quat() quat {
	cy, sy := math.Cos(r.Yaw*degree/2), math.Sin(r.Yaw*degree/2)
	cp, sp := math.Cos(r.Pitch*degree/2), math.Sin(r.Pitch*degree/2)
	cr, sr := math.Cos(r.Roll*degree/2), math.Sin(r.Roll*degree/2)
	return quat{
		x: sr*cp*cy - cr*sp*sy,
		y: cr*sp*cy + sr*cp*sy,
		z: cr*cp*sy - sr*sp*cy,
		w: cr*cp*cy + sr*sp*sy,
	}
}

func (q quat) rotation() Rotation {
	sinp := 2 * (q.w*q.y - q.z*q.x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch := math.Asin(sinp)
	var yaw, roll float64
	if math.Abs(sinp) > 1-1e-12 {
		// gimbal lock: fold roll into yaw
		yaw = -2 * math.Copysign(1, sinp) * math.Atan2(q.x, q.w)
		roll = 0
	} else {
		yaw = math.Atan2(2*(q.w*q.z+q.x*q.y), 1-2*(q.y*q.y+q.z*q.z))
		roll = math.Atan2(2*(q.w*q.x+q.y*q.z), 1-2*(q.x*q.x+q.y*q.y))
	}
	return Rotation{Yaw: cleanAngle(yaw / degree), Pitch: cleanAngle(pitch / degree), Roll: cleanAngle(roll / degree)}
}

func (a quat) mul(b quat) quat {
	return quat{
		x: a.w*b.x + a.x*b.w + a.y*b.z - a.z*b.y,
		y: a.w*b.y - a.x*b.z + a.y*b.w + a.z*b.x,
		z: a.w*b.z + a.x*b.y - a.y*b.x + a.z*b.w,
		w: a.w*b.w - a.x*b.x - a.y*b.y - a.z*b.z,
	}
}

func (q quat) conj() quat {
	return quat{x: -q.x, y: -q.y, z: -q.z, w: q.w}
}

func (q quat) apply(v Vector) Vector {
	p := q.mul(quat{x: v.X, y: v.Y, z: v.Z}).mul(q.conj())
	return Vector{X: p.x, Y: p.y, Z: p.z}
}

// cleanAngle rounds away float noise so 90 stays 90 after a round trip
func cleanAngle(a float64) float64 {
	r := math.Round(a*1e9) / 1e9
	if r == 0 {
		return 0
	}
	return r
}

// Multiply composes r then other, like FreeCAD's r*other
func (r Rotation) Multiply(other Rotation) Rotation {
	return r.quat().mul(other.quat()).rotation()
}

func (r Rotation) Inverted() Rotation {
	return r.quat().conj().rotation()
}

// Apply rotates v
func (r Rotation) Apply(v Vector) Vector {
	return r.quat().apply(v)
}

// RollPitchYaw returns the extrinsic x-y-z euler angles in radians
func (r Rotation) RollPitchYaw() (roll, pitch, yaw float64) {
	return r.Roll * degree, r.Pitch * degree, r.Yaw * degree
}

func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vector) Scale(f float64) Vector {
	return Vector{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Multiply applies other in the frame of p, like FreeCAD's p*other
func (p Placement) Multiply(other Placement) Placement {
	return Placement{
		Base:     p.Base.Add(p.Rotation.Apply(other.Base)),
		Rotation: p.Rotation.Multiply(other.Rotation),
	}
}

func (p Placement) Inverse() Placement {
	inv := p.Rotation.Inverted()
	return Placement{
		Base:     inv.Apply(p.Base.Scale(-1)),
		Rotation: inv,
	}
}

// PlacementFromMatrix reads a row-major 4x4 homogeneous matrix
func PlacementFromMatrix(m []float64) (Placement, error) {
	if len(m) != 16 && len(m) != 12 {
		return Placement{}, fmt.Errorf("%w: matrix needs 12 or 16 numbers, got %d", ErrMalformedValue, len(m))
	}
	at := func(row, col int) float64 { return m[row*4+col] }
	pitch := math.Asin(math.Max(-1, math.Min(1, -at(2, 0))))
	var yaw, roll float64
	if math.Abs(at(2, 0)) > 1-1e-12 {
		yaw = math.Atan2(-at(0, 1), at(1, 1))
	} else {
		yaw = math.Atan2(at(1, 0), at(0, 0))
		roll = math.Atan2(at(2, 1), at(2, 2))
	}
	return Placement{
		Base: Vector{X: at(0, 3), Y: at(1, 3), Z: at(2, 3)},
		Rotation: Rotation{
			Yaw:   cleanAngle(yaw / degree),
			Pitch: cleanAngle(pitch / degree),
			Roll:  cleanAngle(roll / degree),
		},
	}, nil
}
