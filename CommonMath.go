package liquidbox

import (
	"math"
)

// IsValid reports whether x is a finite number.
func IsValid(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Vec2 is a 2D column vector.
type Vec2 struct {
	X, Y float64
}

var Vec2Zero = Vec2{}

func V2(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{v.X + o.X, v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{v.X - o.X, v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{s * v.X, s * v.Y}
}

func (v Vec2) Neg() Vec2 {
	return Vec2{-v.X, -v.Y}
}

func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Cross returns the z component of the 3D cross product.
func (v Vec2) Cross(o Vec2) float64 {
	return v.X*o.Y - v.Y*o.X
}

// CrossVS is cross(v, s) for a scalar s on the z axis.
func CrossVS(v Vec2, s float64) Vec2 {
	return Vec2{s * v.Y, -s * v.X}
}

// CrossSV is cross(s, v) for a scalar s on the z axis.
func CrossSV(s float64, v Vec2) Vec2 {
	return Vec2{-s * v.Y, s * v.X}
}

func (v Vec2) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

func (v Vec2) LengthSquared() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Normalize scales v in place to unit length and returns the old length.
// Vectors shorter than epsilon are left unchanged and 0 is returned.
func (v *Vec2) Normalize() float64 {
	length := v.Length()
	if length < epsilon {
		return 0.0
	}
	inv := 1.0 / length
	v.X *= inv
	v.Y *= inv
	return length
}

// Normalized returns a unit-length copy of v.
func (v Vec2) Normalized() Vec2 {
	v.Normalize()
	return v
}

func (v Vec2) IsValid() bool {
	return IsValid(v.X) && IsValid(v.Y)
}

// Skew returns the perpendicular vector (-y, x).
func (v Vec2) Skew() Vec2 {
	return Vec2{-v.Y, v.X}
}

func (v Vec2) Abs() Vec2 {
	return Vec2{math.Abs(v.X), math.Abs(v.Y)}
}

func (v Vec2) Index(i int) float64 {
	if i == 0 {
		return v.X
	}
	return v.Y
}

func (v *Vec2) SetIndex(i int, value float64) {
	if i == 0 {
		v.X = value
		return
	}
	v.Y = value
}

func Vec2Min(a, b Vec2) Vec2 {
	return Vec2{math.Min(a.X, b.X), math.Min(a.Y, b.Y)}
}

func Vec2Max(a, b Vec2) Vec2 {
	return Vec2{math.Max(a.X, b.X), math.Max(a.Y, b.Y)}
}

func Distance(a, b Vec2) float64 {
	return a.Sub(b).Length()
}

func DistanceSquared(a, b Vec2) float64 {
	return a.Sub(b).LengthSquared()
}

// Vec3 is a 3D column vector.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v.X, s * v.Y, s * v.Z}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{v.Y*o.Z - v.Z*o.Y, v.Z*o.X - v.X*o.Z, v.X*o.Y - v.Y*o.X}
}

// Mat22 is a 2x2 matrix stored in column-major order.
type Mat22 struct {
	Ex, Ey Vec2
}

func (m Mat22) Inverse() Mat22 {
	a, b, c, d := m.Ex.X, m.Ey.X, m.Ex.Y, m.Ey.Y
	det := a*d - b*c
	if det != 0.0 {
		det = 1.0 / det
	}
	return Mat22{
		Ex: Vec2{det * d, -det * c},
		Ey: Vec2{-det * b, det * a},
	}
}

// Solve computes x in A*x = b without inverting A.
func (m Mat22) Solve(b Vec2) Vec2 {
	a11, a12, a21, a22 := m.Ex.X, m.Ey.X, m.Ex.Y, m.Ey.Y
	det := a11*a22 - a12*a21
	if det != 0.0 {
		det = 1.0 / det
	}
	return Vec2{det * (a22*b.X - a12*b.Y), det * (a11*b.Y - a21*b.X)}
}

func (m Mat22) MulV(v Vec2) Vec2 {
	return Vec2{m.Ex.X*v.X + m.Ey.X*v.Y, m.Ex.Y*v.X + m.Ey.Y*v.Y}
}

// Mat33 is a 3x3 matrix stored in column-major order.
type Mat33 struct {
	Ex, Ey, Ez Vec3
}

func (m Mat33) MulV(v Vec3) Vec3 {
	return m.Ex.Scale(v.X).Add(m.Ey.Scale(v.Y)).Add(m.Ez.Scale(v.Z))
}

// Solve33 computes x in A*x = b for the full matrix.
func (m Mat33) Solve33(b Vec3) Vec3 {
	det := m.Ex.Dot(m.Ey.Cross(m.Ez))
	if det != 0.0 {
		det = 1.0 / det
	}
	return Vec3{
		X: det * b.Dot(m.Ey.Cross(m.Ez)),
		Y: det * m.Ex.Dot(b.Cross(m.Ez)),
		Z: det * m.Ex.Dot(m.Ey.Cross(b)),
	}
}

// Solve22 solves the upper 2x2 block only.
func (m Mat33) Solve22(b Vec2) Vec2 {
	a11, a12, a21, a22 := m.Ex.X, m.Ey.X, m.Ex.Y, m.Ey.Y
	det := a11*a22 - a12*a21
	if det != 0.0 {
		det = 1.0 / det
	}
	return Vec2{det * (a22*b.X - a12*b.Y), det * (a11*b.Y - a21*b.X)}
}

// Rot is a rotation stored as sine and cosine.
type Rot struct {
	S, C float64
}

var RotIdentity = Rot{S: 0, C: 1}

func NewRot(angle float64) Rot {
	return Rot{S: math.Sin(angle), C: math.Cos(angle)}
}

func (r Rot) Angle() float64 {
	return math.Atan2(r.S, r.C)
}

func (r Rot) XAxis() Vec2 {
	return Vec2{r.C, r.S}
}

func (r Rot) YAxis() Vec2 {
	return Vec2{-r.S, r.C}
}

// MulV rotates v.
func (r Rot) MulV(v Vec2) Vec2 {
	return Vec2{r.C*v.X - r.S*v.Y, r.S*v.X + r.C*v.Y}
}

// MulTV inverse-rotates v.
func (r Rot) MulTV(v Vec2) Vec2 {
	return Vec2{r.C*v.X + r.S*v.Y, -r.S*v.X + r.C*v.Y}
}

// Mul returns q * r.
func (q Rot) Mul(r Rot) Rot {
	return Rot{S: q.S*r.C + q.C*r.S, C: q.C*r.C - q.S*r.S}
}

// MulT returns transpose(q) * r.
func (q Rot) MulT(r Rot) Rot {
	return Rot{S: q.C*r.S - q.S*r.C, C: q.C*r.C + q.S*r.S}
}

// Transform is a translation and rotation.
type Transform struct {
	P Vec2
	Q Rot
}

var TransformIdentity = Transform{Q: RotIdentity}

func NewTransform(position Vec2, angle float64) Transform {
	return Transform{P: position, Q: NewRot(angle)}
}

// MulV maps a local point to world space.
func (t Transform) MulV(v Vec2) Vec2 {
	return Vec2{
		X: t.Q.C*v.X - t.Q.S*v.Y + t.P.X,
		Y: t.Q.S*v.X + t.Q.C*v.Y + t.P.Y,
	}
}

// MulTV maps a world point to local space.
func (t Transform) MulTV(v Vec2) Vec2 {
	px := v.X - t.P.X
	py := v.Y - t.P.Y
	return Vec2{t.Q.C*px + t.Q.S*py, -t.Q.S*px + t.Q.C*py}
}

// Mul returns A * B.
func (a Transform) Mul(b Transform) Transform {
	return Transform{Q: a.Q.Mul(b.Q), P: a.Q.MulV(b.P).Add(a.P)}
}

// MulT returns inverse(A) * B.
func (a Transform) MulT(b Transform) Transform {
	return Transform{Q: a.Q.MulT(b.Q), P: a.Q.MulTV(b.P.Sub(a.P))}
}

// Sweep describes the motion of a body for TOI computation. Shapes are
// defined with respect to the body origin, which may not coincide with
// the center of mass.
type Sweep struct {
	LocalCenter Vec2
	C0, C       Vec2
	A0, A       float64

	// Alpha0 is the fraction of the current time step in [0,1]. C0 and A0
	// are the positions at Alpha0.
	Alpha0 float64
}

// Transform interpolates the sweep at beta in [0,1].
func (s Sweep) Transform(beta float64) Transform {
	var xf Transform
	xf.P = s.C0.Scale(1.0 - beta).Add(s.C.Scale(beta))
	xf.Q = NewRot((1.0-beta)*s.A0 + beta*s.A)
	xf.P = xf.P.Sub(xf.Q.MulV(s.LocalCenter))
	return xf
}

// Advance moves the sweep start forward to alpha.
func (s *Sweep) Advance(alpha float64) {
	assert(s.Alpha0 < 1.0)
	beta := (alpha - s.Alpha0) / (1.0 - s.Alpha0)
	s.C0 = s.C0.Add(s.C.Sub(s.C0).Scale(beta))
	s.A0 += beta * (s.A - s.A0)
	s.Alpha0 = alpha
}

// Normalize wraps the angles into [-pi, pi] around A0.
func (s *Sweep) Normalize() {
	const twoPi = 2.0 * math.Pi
	d := twoPi * math.Floor(s.A0/twoPi)
	s.A0 -= d
	s.A -= d
}

func clampf(a, low, high float64) float64 {
	return math.Max(low, math.Min(a, high))
}

func clampi(a, low, high int) int {
	return max(low, min(a, high))
}
