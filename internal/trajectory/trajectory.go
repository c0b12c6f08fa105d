// Package trajectory computes camera poses along parameterized camera
// paths used to animate a render sequence.
//
// Conventions, shared with the generated Blender scenes: Z is up,
// circular paths orbit in the XY plane at center.Z + height, and Euler
// rotations compose as Rz(roll)·Ry(yaw)·Rx(pitch). The look-at rule is
// implemented once, in LookAtRotation.
package trajectory

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// ErrInvalid reports a missing, contradictory or out-of-range
// trajectory configuration.
var ErrInvalid = errors.New("invalid trajectory")

// EulerAngles is an explicit camera orientation in radians.
type EulerAngles struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// Pose is a camera position plus orientation.
type Pose struct {
	Position r3.Vector
	Rotation EulerAngles
}

// LookAtRotation returns the orientation pointing a camera at position
// toward target: yaw = atan2(dy, dx), pitch = atan2(dz, horizontal
// distance), roll = 0.
func LookAtRotation(position, target r3.Vector) EulerAngles {
	d := target.Sub(position)
	return EulerAngles{
		Pitch: math.Atan2(d.Z, math.Hypot(d.X, d.Y)),
		Yaw:   math.Atan2(d.Y, d.X),
	}
}

// Spec is a closed set of trajectory variants: Linear, Circular and
// Custom. Adding a kind means adding a type to this package.
type Spec interface {
	validate() error
	poseAt(progress float64) Pose
}

// Linear moves the camera on a straight segment. Exactly one of LookAt
// and FixedRotation must be set; when both are, LookAt wins.
type Linear struct {
	Start r3.Vector
	End   r3.Vector

	LookAt        *r3.Vector
	FixedRotation *EulerAngles
}

func (l Linear) validate() error {
	if l.LookAt == nil && l.FixedRotation == nil {
		return errors.Wrap(ErrInvalid, "linear trajectory needs a look-at target or a fixed rotation")
	}
	return nil
}

func (l Linear) poseAt(progress float64) Pose {
	pos := l.Start.Add(l.End.Sub(l.Start).Mul(progress))
	if l.LookAt != nil {
		return Pose{Position: pos, Rotation: LookAtRotation(pos, *l.LookAt)}
	}
	return Pose{Position: pos, Rotation: *l.FixedRotation}
}

// Circular orbits the camera around Center in the XY plane, Height
// above it, always looking at LookAt (Center when nil). Angles are in
// radians.
type Circular struct {
	Center     r3.Vector
	Radius     float64
	Height     float64
	StartAngle float64
	EndAngle   float64

	LookAt *r3.Vector
}

func (c Circular) validate() error {
	if c.Radius <= 0 {
		return errors.Wrapf(ErrInvalid, "circular trajectory radius %g must be positive", c.Radius)
	}
	return nil
}

func (c Circular) poseAt(progress float64) Pose {
	angle := c.StartAngle + progress*(c.EndAngle-c.StartAngle)
	pos := r3.Vector{
		X: c.Center.X + c.Radius*math.Cos(angle),
		Y: c.Center.Y + c.Radius*math.Sin(angle),
		Z: c.Center.Z + c.Height,
	}
	target := c.Center
	if c.LookAt != nil {
		target = *c.LookAt
	}
	return Pose{Position: pos, Rotation: LookAtRotation(pos, target)}
}

// Keyframe anchors a pose at a time in [0,1].
type Keyframe struct {
	Time     float64
	Position r3.Vector
	Rotation EulerAngles
}

// Custom interpolates linearly between explicit keyframes. Progress
// outside the keyframe range clamps to the first or last keyframe.
type Custom struct {
	Keyframes []Keyframe
}

func (c Custom) validate() error {
	if len(c.Keyframes) == 0 {
		return errors.Wrap(ErrInvalid, "custom trajectory needs at least one keyframe")
	}
	for _, kf := range c.Keyframes {
		if kf.Time < 0 || kf.Time > 1 {
			return errors.Wrapf(ErrInvalid, "keyframe time %g outside [0,1]", kf.Time)
		}
	}
	return nil
}

func (c Custom) poseAt(progress float64) Pose {
	kfs := c.Keyframes
	if progress <= kfs[0].Time {
		return poseOf(kfs[0])
	}
	last := kfs[len(kfs)-1]
	if progress >= last.Time {
		return poseOf(last)
	}

	for i := 0; i < len(kfs)-1; i++ {
		a, b := kfs[i], kfs[i+1]
		if progress < a.Time || progress >= b.Time {
			continue
		}
		dt := b.Time - a.Time
		if dt == 0 {
			return poseOf(a)
		}
		frac := (progress - a.Time) / dt
		return Pose{
			Position: a.Position.Add(b.Position.Sub(a.Position).Mul(frac)),
			Rotation: EulerAngles{
				Pitch: lerp(a.Rotation.Pitch, b.Rotation.Pitch, frac),
				Yaw:   lerp(a.Rotation.Yaw, b.Rotation.Yaw, frac),
				Roll:  lerp(a.Rotation.Roll, b.Rotation.Roll, frac),
			},
		}
	}
	return poseOf(last)
}

func poseOf(kf Keyframe) Pose {
	return Pose{Position: kf.Position, Rotation: kf.Rotation}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Evaluator holds the active trajectory spec and evaluates poses along
// it. The zero value has no spec set and rejects evaluation.
type Evaluator struct {
	spec Spec
}

// NewEvaluator returns an evaluator with no trajectory set.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Set validates and installs the trajectory. Custom keyframes are
// copied and sorted ascending by time, so the caller's spec stays
// untouched.
func (e *Evaluator) Set(spec Spec) error {
	if spec == nil {
		return errors.Wrap(ErrInvalid, "no trajectory given")
	}
	if err := spec.validate(); err != nil {
		return err
	}
	if c, ok := spec.(Custom); ok {
		kfs := make([]Keyframe, len(c.Keyframes))
		copy(kfs, c.Keyframes)
		sort.SliceStable(kfs, func(i, j int) bool { return kfs[i].Time < kfs[j].Time })
		spec = Custom{Keyframes: kfs}
	}
	e.spec = spec
	return nil
}

// Evaluate computes the camera pose at normalized progress in [0,1].
func (e *Evaluator) Evaluate(progress float64) (Pose, error) {
	if e.spec == nil {
		return Pose{}, errors.Wrap(ErrInvalid, "no trajectory set")
	}
	if math.IsNaN(progress) || progress < 0 || progress > 1 {
		return Pose{}, errors.Wrapf(ErrInvalid, "progress %g outside [0,1]", progress)
	}
	return e.spec.poseAt(progress), nil
}
