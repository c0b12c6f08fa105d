package trajectory

import (
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// specFile is the YAML shape of a trajectory description. Fields that
// do not apply to the declared type are ignored.
type specFile struct {
	Type string `yaml:"type"`

	// linear
	Start         *vector `yaml:"start"`
	End           *vector `yaml:"end"`
	LookAt        *vector `yaml:"look_at"`
	FixedRotation *angles `yaml:"fixed_rotation"`

	// circular
	Center     *vector  `yaml:"center"`
	Radius     float64  `yaml:"radius"`
	Height     float64  `yaml:"height"`
	StartAngle *float64 `yaml:"start_angle"`
	EndAngle   *float64 `yaml:"end_angle"`

	// custom
	Keyframes []keyframeFile `yaml:"keyframes"`
}

type vector struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (v *vector) r3() r3.Vector {
	return r3.Vector{X: v.X, Y: v.Y, Z: v.Z}
}

func (v *vector) r3ptr() *r3.Vector {
	if v == nil {
		return nil
	}
	p := v.r3()
	return &p
}

type angles struct {
	Pitch float64 `yaml:"pitch"`
	Yaw   float64 `yaml:"yaw"`
	Roll  float64 `yaml:"roll"`
}

type keyframeFile struct {
	Time     float64 `yaml:"time"`
	Position vector  `yaml:"position"`
	Rotation angles  `yaml:"rotation"`
}

// LoadSpec reads a trajectory description from a YAML file. The result
// still goes through Evaluator.Set for validation.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sf specFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, errors.Wrapf(ErrInvalid, "parsing %s: %v", path, err)
	}

	switch sf.Type {
	case "linear":
		if sf.Start == nil || sf.End == nil {
			return nil, errors.Wrapf(ErrInvalid, "%s: linear trajectory needs start and end", path)
		}
		l := Linear{
			Start:  sf.Start.r3(),
			End:    sf.End.r3(),
			LookAt: sf.LookAt.r3ptr(),
		}
		if sf.FixedRotation != nil {
			l.FixedRotation = &EulerAngles{
				Pitch: sf.FixedRotation.Pitch,
				Yaw:   sf.FixedRotation.Yaw,
				Roll:  sf.FixedRotation.Roll,
			}
		}
		return l, nil
	case "circular":
		c := Circular{
			Radius: sf.Radius,
			Height: sf.Height,
			LookAt: sf.LookAt.r3ptr(),
		}
		if sf.Center != nil {
			c.Center = sf.Center.r3()
		}
		if sf.StartAngle != nil {
			c.StartAngle = *sf.StartAngle
		}
		// a full orbit unless the file says otherwise
		c.EndAngle = 2 * math.Pi
		if sf.EndAngle != nil {
			c.EndAngle = *sf.EndAngle
		}
		return c, nil
	case "custom":
		kfs := make([]Keyframe, len(sf.Keyframes))
		for i, kf := range sf.Keyframes {
			kfs[i] = Keyframe{
				Time:     kf.Time,
				Position: kf.Position.r3(),
				Rotation: EulerAngles{Pitch: kf.Rotation.Pitch, Yaw: kf.Rotation.Yaw, Roll: kf.Rotation.Roll},
			}
		}
		return Custom{Keyframes: kfs}, nil
	}
	return nil, errors.Wrapf(ErrInvalid, "%s: unknown trajectory type %q", path, sf.Type)
}
