package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/multierr"
)

// Format selects the physical encoding of a written PLY file.
type Format int

const (
	// FormatASCII writes one whitespace-separated record per line.
	FormatASCII Format = iota
	// FormatBinary writes packed little-endian records.
	FormatBinary
)

// Write serializes the cloud: positions as double, colors (when
// present) as uchar denormalized back to [0,255].
func Write(pc *PointCloud, w io.Writer, format Format) error {
	out := bufio.NewWriter(w)
	if err := writeHeader(pc, out, format); err != nil {
		return err
	}
	for i, p := range pc.Points {
		var err error
		switch format {
		case FormatASCII:
			if pc.HasColor {
				r, g, b := denormalize(pc.Colors[i])
				_, err = fmt.Fprintf(out, "%g %g %g %d %d %d\n", p.X, p.Y, p.Z, r, g, b)
			} else {
				_, err = fmt.Fprintf(out, "%g %g %g\n", p.X, p.Y, p.Z)
			}
		case FormatBinary:
			buf := make([]byte, 0, 27)
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.X))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Y))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Z))
			if pc.HasColor {
				r, g, b := denormalize(pc.Colors[i])
				buf = append(buf, r, g, b)
			}
			_, err = out.Write(buf)
		}
		if err != nil {
			return err
		}
	}
	return out.Flush()
}

// WriteFile writes the cloud to path, creating or truncating it.
func WriteFile(pc *PointCloud, path string, format Format) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return Write(pc, f, format)
}

func writeHeader(pc *PointCloud, out *bufio.Writer, format Format) error {
	name := formatASCII
	if format == FormatBinary {
		name = formatBinary
	}
	_, err := fmt.Fprintf(out, "ply\nformat %s 1.0\nelement vertex %d\n", name, len(pc.Points))
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(out, "property double x\nproperty double y\nproperty double z\n"); err != nil {
		return err
	}
	if pc.HasColor {
		if _, err = fmt.Fprintf(out, "property uchar red\nproperty uchar green\nproperty uchar blue\n"); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "end_header\n")
	return err
}

func denormalize(c Color) (uint8, uint8, uint8) {
	return channel255(c.R), channel255(c.G), channel255(c.B)
}

func channel255(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255.0))
}
