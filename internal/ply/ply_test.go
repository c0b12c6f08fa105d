package ply

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempPLY(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const coloredASCII = `ply
format ascii 1.0
comment generated by a scanner
element vertex 3
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
0 0 0 255 0 0
1.5 -2 0.25 0 128 255
-1 3 2 10 20 30
`

func TestLoadASCIIColored(t *testing.T) {
	path := writeTempPLY(t, "colored.ply", coloredASCII)

	pc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, pc.Size())
	assert.True(t, pc.HasColor)
	assert.Equal(t, path, pc.Path)
	assert.Greater(t, pc.FileSize, int64(0))

	assert.Equal(t, r3.Vector{X: 1.5, Y: -2, Z: 0.25}, pc.Points[1])
	assert.Equal(t, Color{R: 1, G: 0, B: 0}, pc.Colors[0])
	assert.Equal(t, Color{R: 0, G: 128.0 / 255.0, B: 1}, pc.Colors[1])
}

func TestLoadASCIIPositionOnly(t *testing.T) {
	path := writeTempPLY(t, "plain.ply", `ply
format ascii 1.0
element vertex 2
property double x
property double y
property double z
end_header
0 1 2
3 4 5
`)

	pc, err := Load(path)
	require.NoError(t, err)
	assert.False(t, pc.HasColor)
	assert.Empty(t, pc.Colors)
	assert.Equal(t, r3.Vector{X: 3, Y: 4, Z: 5}, pc.Points[1])
}

func TestColorNormalization(t *testing.T) {
	var body strings.Builder
	raws := []int{0, 1, 51, 128, 254, 255}
	for _, raw := range raws {
		fmt.Fprintf(&body, "0 0 0 %d %d %d\n", raw, raw, raw)
	}
	path := writeTempPLY(t, "channels.ply", fmt.Sprintf(`ply
format ascii 1.0
element vertex %d
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
%s`, len(raws), body.String()))

	pc, err := Load(path)
	require.NoError(t, err)
	for i, raw := range raws {
		want := float64(raw) / 255.0
		assert.InDelta(t, want, pc.Colors[i].R, 1e-9)
		assert.InDelta(t, want, pc.Colors[i].G, 1e-9)
		assert.InDelta(t, want, pc.Colors[i].B, 1e-9)
		assert.GreaterOrEqual(t, pc.Colors[i].R, 0.0)
		assert.LessOrEqual(t, pc.Colors[i].R, 1.0)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ply"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadTruncatedBody(t *testing.T) {
	path := writeTempPLY(t, "short.ply", `ply
format ascii 1.0
element vertex 5
property float x
property float y
property float z
end_header
0 0 0
1 1 1
2 2 2
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLoadNonNumericCoordinate(t *testing.T) {
	path := writeTempPLY(t, "nan.ply", `ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
end_header
0 zero 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestLoadMissingHeaderFields(t *testing.T) {
	for name, contents := range map[string]string{
		"no magic":     "format ascii 1.0\nelement vertex 0\nend_header\n",
		"no format":    "ply\nelement vertex 0\nproperty float x\nproperty float y\nproperty float z\nend_header\n",
		"no vertices":  "ply\nformat ascii 1.0\nend_header\n",
		"no positions": "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nend_header\n1\n",
		"no footer":    "ply\nformat ascii 1.0\nelement vertex 0\n",
	} {
		path := writeTempPLY(t, "bad.ply", contents)
		_, err := Load(path)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrMalformed), name)
	}
}

func TestLoadShortColorRecordFallsBackToWhite(t *testing.T) {
	path := writeTempPLY(t, "partial.ply", `ply
format ascii 1.0
element vertex 2
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
end_header
0 0 0 10 20 30
1 1 1 10 20
`)

	pc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, pc.Size())
	assert.Equal(t, Color{R: 10.0 / 255.0, G: 20.0 / 255.0, B: 30.0 / 255.0}, pc.Colors[0])
	assert.Equal(t, White, pc.Colors[1])
}

func binaryFixture(t *testing.T, points []r3.Vector, colors []Color) string {
	t.Helper()
	buf := []byte("ply\nformat binary_little_endian 1.0\n" +
		"element vertex 2\n" +
		"property double x\nproperty double y\nproperty double z\n" +
		"property uchar red\nproperty uchar green\nproperty uchar blue\n" +
		"end_header\n")
	for i, p := range points {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.X))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Y))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p.Z))
		r, g, b := denormalize(colors[i])
		buf = append(buf, r, g, b)
	}
	path := filepath.Join(t.TempDir(), "binary.ply")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestLoadBinary(t *testing.T) {
	points := []r3.Vector{{X: 0.5, Y: -1.25, Z: 3}, {X: -2, Y: 0, Z: 7.5}}
	colors := []Color{{R: 1, G: 0, B: 0.5019607843137255}, {R: 0, G: 1, B: 0}}
	path := binaryFixture(t, points, colors)

	pc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, pc.Size())
	assert.True(t, pc.HasColor)
	assert.Equal(t, points, pc.Points)
	for i := range colors {
		assert.InDelta(t, colors[i].R, pc.Colors[i].R, 1e-9)
		assert.InDelta(t, colors[i].G, pc.Colors[i].G, 1e-9)
		assert.InDelta(t, colors[i].B, pc.Colors[i].B, 1e-9)
	}
}

func TestLoadBinaryTruncated(t *testing.T) {
	points := []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}
	colors := []Color{{R: 1, G: 1, B: 1}, {R: 0, G: 0, B: 0}}
	path := binaryFixture(t, points, colors)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-10], 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestGetInfoMatchesLoad(t *testing.T) {
	logger := golog.NewTestLogger(t)
	path := writeTempPLY(t, "colored.ply", coloredASCII)

	pc, err := Load(path)
	require.NoError(t, err)
	info := GetInfo(path, logger)

	assert.Equal(t, pc.Size(), info.Count)
	assert.Equal(t, pc.HasColor, info.HasColor)
	assert.False(t, info.HasAlpha)
	assert.Equal(t, pc.FileSize, info.FileSize)
	assert.Equal(t, []string{"x", "y", "z", "red", "green", "blue"}, info.Properties)

	want := pc.Bounds()
	assert.InDelta(t, want.Min.X, info.Bounds.Min.X, 1e-12)
	assert.InDelta(t, want.Max.Y, info.Bounds.Max.Y, 1e-12)
	assert.InDelta(t, want.Center.Z, info.Bounds.Center.Z, 1e-12)
}

func TestGetInfoNeverFails(t *testing.T) {
	logger := golog.NewTestLogger(t)

	info := GetInfo(filepath.Join(t.TempDir(), "missing.ply"), logger)
	assert.Equal(t, 0, info.Count)
	assert.Equal(t, int64(0), info.FileSize)
	assert.False(t, info.HasColor)
	assert.Equal(t, Bounds{}, info.Bounds)

	bad := writeTempPLY(t, "bad.ply", "not a ply file\n")
	info = GetInfo(bad, logger)
	assert.Equal(t, 0, info.Count)
}

func TestBoundsCenter(t *testing.T) {
	path := writeTempPLY(t, "bounds.ply", `ply
format ascii 1.0
element vertex 4
property float x
property float y
property float z
end_header
-1 0 2
3 0 2
1 -4 2
1 4 2
`)

	pc, err := Load(path)
	require.NoError(t, err)
	b := pc.Bounds()
	assert.Equal(t, r3.Vector{X: -1, Y: -4, Z: 2}, b.Min)
	assert.Equal(t, r3.Vector{X: 3, Y: 4, Z: 2}, b.Max)
	assert.InDelta(t, 1.0, b.Center.X, 1e-12)
	assert.InDelta(t, 0.0, b.Center.Y, 1e-12)
	assert.InDelta(t, 2.0, b.Center.Z, 1e-12)
}
