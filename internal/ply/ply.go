// Package ply reads and writes PLY point cloud files.
//
// Only the vertex element is interpreted. Positions are the properties
// named x, y and z; colors are present iff uchar properties named red,
// green and blue are declared. Both the ascii and the
// binary_little_endian encodings are supported. Positions and colors
// are stored as float64 regardless of the source encoding, with colors
// normalized from [0,255] to [0,1].
package ply

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound reports a missing input path.
	ErrNotFound = errors.New("point cloud file not found")
	// ErrMalformed reports a structurally invalid PLY file: bad header,
	// truncated vertex block or non-numeric coordinate data.
	ErrMalformed = errors.New("malformed ply file")
)

// Color is an RGB color with channels normalized to [0,1].
type Color struct {
	R, G, B float64
}

// White is the fallback color for records that declare colors but do
// not carry all three channels.
var White = Color{R: 1, G: 1, B: 1}

// Bounds is the axis-aligned extent of a cloud plus the per-axis mean.
type Bounds struct {
	Min    r3.Vector
	Max    r3.Vector
	Center r3.Vector
}

// PointCloud is an immutable, fully loaded point cloud. Point order is
// file order. Colors is empty when HasColor is false, otherwise it has
// one entry per point.
type PointCloud struct {
	Points   []r3.Vector
	Colors   []Color
	HasColor bool

	Path     string
	FileSize int64

	bounds Bounds
}

// Size returns the number of points.
func (pc *PointCloud) Size() int {
	return len(pc.Points)
}

// Bounds returns the extent computed while the cloud was parsed.
func (pc *PointCloud) Bounds() Bounds {
	return pc.bounds
}

// Load reads the PLY file at path into memory. It fails with
// ErrNotFound when the path does not exist and with ErrMalformed when
// the file cannot be parsed; a partial cloud is never returned.
func Load(path string) (*PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, path)
		}
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	in := bufio.NewReader(f)
	hdr, err := parseHeader(in)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	pc := &PointCloud{
		Points:   make([]r3.Vector, 0, hdr.vertexCount),
		HasColor: hdr.hasColor,
		Path:     path,
		FileSize: fi.Size(),
	}
	if hdr.hasColor {
		pc.Colors = make([]Color, 0, hdr.vertexCount)
	}

	acc := newBoundsAccum()
	err = readBody(in, hdr, func(p r3.Vector, c Color) {
		pc.Points = append(pc.Points, p)
		if hdr.hasColor {
			pc.Colors = append(pc.Colors, c)
		}
		acc.add(p)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	pc.bounds = acc.bounds()
	return pc, nil
}

type property struct {
	typ  string
	name string
}

type header struct {
	format      string
	vertexCount int
	properties  []property
	xi, yi, zi  int
	ri, gi, bi  int
	hasColor    bool
	hasAlpha    bool
}

const (
	formatASCII  = "ascii"
	formatBinary = "binary_little_endian"
)

// parseHeader consumes lines up to and including end_header. The
// vertex element must be the first element declared so that its records
// start right after the header in binary files.
func parseHeader(in *bufio.Reader) (*header, error) {
	magic, err := readHeaderLine(in)
	if err != nil {
		return nil, err
	}
	if magic != "ply" {
		return nil, errors.Wrap(ErrMalformed, "missing ply magic")
	}

	hdr := &header{
		vertexCount: -1,
		xi:          -1, yi: -1, zi: -1,
		ri: -1, gi: -1, bi: -1,
	}
	inVertexElement := false
	for {
		line, err := readHeaderLine(in)
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
			continue
		case "format":
			if len(fields) < 2 {
				return nil, errors.Wrap(ErrMalformed, "bad format line")
			}
			hdr.format = fields[1]
		case "element":
			if len(fields) < 3 {
				return nil, errors.Wrap(ErrMalformed, "bad element line")
			}
			if fields[1] == "vertex" {
				n, err := strconv.Atoi(fields[2])
				if err != nil || n < 0 {
					return nil, errors.Wrapf(ErrMalformed, "bad vertex count %q", fields[2])
				}
				if len(hdr.properties) > 0 || hdr.vertexCount >= 0 {
					return nil, errors.Wrap(ErrMalformed, "vertex element must be declared first")
				}
				hdr.vertexCount = n
				inVertexElement = true
			} else {
				if hdr.vertexCount < 0 {
					return nil, errors.Wrap(ErrMalformed, "vertex element must be declared first")
				}
				inVertexElement = false
			}
		case "property":
			if !inVertexElement {
				continue
			}
			if len(fields) >= 2 && fields[1] == "list" {
				return nil, errors.Wrap(ErrMalformed, "list property on vertex element")
			}
			if len(fields) < 3 {
				return nil, errors.Wrap(ErrMalformed, "bad property line")
			}
			idx := len(hdr.properties)
			p := property{typ: fields[1], name: fields[2]}
			if propSize(p.typ) == 0 {
				return nil, errors.Wrapf(ErrMalformed, "unknown property type %q", p.typ)
			}
			hdr.properties = append(hdr.properties, p)
			switch p.name {
			case "x":
				hdr.xi = idx
			case "y":
				hdr.yi = idx
			case "z":
				hdr.zi = idx
			case "red":
				if isUchar(p.typ) {
					hdr.ri = idx
				}
			case "green":
				if isUchar(p.typ) {
					hdr.gi = idx
				}
			case "blue":
				if isUchar(p.typ) {
					hdr.bi = idx
				}
			case "alpha":
				hdr.hasAlpha = true
			}
		case "end_header":
			if hdr.format != formatASCII && hdr.format != formatBinary {
				return nil, errors.Wrapf(ErrMalformed, "unsupported format %q", hdr.format)
			}
			if hdr.vertexCount < 0 {
				return nil, errors.Wrap(ErrMalformed, "missing vertex element")
			}
			if hdr.xi < 0 || hdr.yi < 0 || hdr.zi < 0 {
				return nil, errors.Wrap(ErrMalformed, "missing x/y/z properties")
			}
			hdr.hasColor = hdr.ri >= 0 && hdr.gi >= 0 && hdr.bi >= 0
			return hdr, nil
		}
	}
}

func readHeaderLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(ErrMalformed, "unterminated header")
	}
	return strings.TrimSpace(line), nil
}

func isUchar(typ string) bool {
	return typ == "uchar" || typ == "uint8"
}

// propSize returns the binary width of a scalar property type, or 0
// when the type is unknown.
func propSize(typ string) int {
	switch typ {
	case "char", "int8", "uchar", "uint8":
		return 1
	case "short", "int16", "ushort", "uint16":
		return 2
	case "int", "int32", "uint", "uint32", "float", "float32":
		return 4
	case "double", "float64":
		return 8
	}
	return 0
}

// readBody streams exactly vertexCount records to fn. The color passed
// to fn is meaningful only when the header declares colors; a record
// that does not carry all three channels yields White.
func readBody(in *bufio.Reader, hdr *header, fn func(p r3.Vector, c Color)) error {
	switch hdr.format {
	case formatASCII:
		return readASCIIBody(in, hdr, fn)
	case formatBinary:
		return readBinaryBody(in, hdr, fn)
	}
	return errors.Wrapf(ErrMalformed, "unsupported format %q", hdr.format)
}

func readASCIIBody(in *bufio.Reader, hdr *header, fn func(p r3.Vector, c Color)) error {
	for i := 0; i < hdr.vertexCount; {
		line, err := in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return errors.Wrapf(ErrMalformed, "truncated vertex block: have %d of %d records", i, hdr.vertexCount)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			if err == io.EOF {
				return errors.Wrapf(ErrMalformed, "truncated vertex block: have %d of %d records", i, hdr.vertexCount)
			}
			continue
		}
		if len(fields) < 3 || hdr.xi >= len(fields) || hdr.yi >= len(fields) || hdr.zi >= len(fields) {
			return errors.Wrapf(ErrMalformed, "record %d has %d fields", i, len(fields))
		}
		var p r3.Vector
		if p.X, err = strconv.ParseFloat(fields[hdr.xi], 64); err != nil {
			return errors.Wrapf(ErrMalformed, "record %d: non-numeric x %q", i, fields[hdr.xi])
		}
		if p.Y, err = strconv.ParseFloat(fields[hdr.yi], 64); err != nil {
			return errors.Wrapf(ErrMalformed, "record %d: non-numeric y %q", i, fields[hdr.yi])
		}
		if p.Z, err = strconv.ParseFloat(fields[hdr.zi], 64); err != nil {
			return errors.Wrapf(ErrMalformed, "record %d: non-numeric z %q", i, fields[hdr.zi])
		}

		c := White
		if hdr.hasColor && hdr.ri < len(fields) && hdr.gi < len(fields) && hdr.bi < len(fields) {
			r, rerr := strconv.ParseUint(fields[hdr.ri], 10, 8)
			g, gerr := strconv.ParseUint(fields[hdr.gi], 10, 8)
			b, berr := strconv.ParseUint(fields[hdr.bi], 10, 8)
			if rerr != nil || gerr != nil || berr != nil {
				return errors.Wrapf(ErrMalformed, "record %d: non-numeric color", i)
			}
			c = Color{R: float64(r) / 255.0, G: float64(g) / 255.0, B: float64(b) / 255.0}
		}
		fn(p, c)
		i++
	}
	return nil
}

func readBinaryBody(in *bufio.Reader, hdr *header, fn func(p r3.Vector, c Color)) error {
	offsets := make([]int, len(hdr.properties))
	recordSize := 0
	for i, p := range hdr.properties {
		offsets[i] = recordSize
		recordSize += propSize(p.typ)
	}

	rec := make([]byte, recordSize)
	for i := 0; i < hdr.vertexCount; i++ {
		if _, err := io.ReadFull(in, rec); err != nil {
			return errors.Wrapf(ErrMalformed, "truncated vertex block: have %d of %d records", i, hdr.vertexCount)
		}
		p := r3.Vector{
			X: binaryScalar(rec[offsets[hdr.xi]:], hdr.properties[hdr.xi].typ),
			Y: binaryScalar(rec[offsets[hdr.yi]:], hdr.properties[hdr.yi].typ),
			Z: binaryScalar(rec[offsets[hdr.zi]:], hdr.properties[hdr.zi].typ),
		}
		c := White
		if hdr.hasColor {
			c = Color{
				R: float64(rec[offsets[hdr.ri]]) / 255.0,
				G: float64(rec[offsets[hdr.gi]]) / 255.0,
				B: float64(rec[offsets[hdr.bi]]) / 255.0,
			}
		}
		fn(p, c)
	}
	return nil
}

func binaryScalar(b []byte, typ string) float64 {
	switch typ {
	case "char", "int8":
		return float64(int8(b[0]))
	case "uchar", "uint8":
		return float64(b[0])
	case "short", "int16":
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case "ushort", "uint16":
		return float64(binary.LittleEndian.Uint16(b))
	case "int", "int32":
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case "uint", "uint32":
		return float64(binary.LittleEndian.Uint32(b))
	case "float", "float32":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case "double", "float64":
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

type boundsAccum struct {
	min, max, sum r3.Vector
	n             int
}

func newBoundsAccum() *boundsAccum {
	inf := math.MaxFloat64
	return &boundsAccum{
		min: r3.Vector{X: inf, Y: inf, Z: inf},
		max: r3.Vector{X: -inf, Y: -inf, Z: -inf},
	}
}

func (a *boundsAccum) add(v r3.Vector) {
	a.min.X = math.Min(a.min.X, v.X)
	a.min.Y = math.Min(a.min.Y, v.Y)
	a.min.Z = math.Min(a.min.Z, v.Z)
	a.max.X = math.Max(a.max.X, v.X)
	a.max.Y = math.Max(a.max.Y, v.Y)
	a.max.Z = math.Max(a.max.Z, v.Z)
	a.sum = a.sum.Add(v)
	a.n++
}

// bounds returns the accumulated extent, or a zero Bounds when no
// points were seen.
func (a *boundsAccum) bounds() Bounds {
	if a.n == 0 {
		return Bounds{}
	}
	return Bounds{
		Min:    a.min,
		Max:    a.max,
		Center: a.sum.Mul(1 / float64(a.n)),
	}
}
