package frame

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estebanfoucher/blender-renderer/internal/config"
	"github.com/estebanfoucher/blender-renderer/internal/ply"
	"github.com/estebanfoucher/blender-renderer/internal/trajectory"
)

func writeSequence(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		contents := fmt.Sprintf(`ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
end_header
%d 0 0
`, i)
		path := filepath.Join(dir, fmt.Sprintf("frame_%04d.ply", i))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	return dir
}

func linearEvaluator(t *testing.T) *trajectory.Evaluator {
	t.Helper()
	target := r3.Vector{}
	e := trajectory.NewEvaluator()
	require.NoError(t, e.Set(trajectory.Linear{
		Start:  r3.Vector{X: 0, Y: -10, Z: 5},
		End:    r3.Vector{X: 0, Y: 10, Z: 5},
		LookAt: &target,
	}))
	return e
}

func TestBuildLoadsCloudAndPose(t *testing.T) {
	dir := writeSequence(t, 3)
	settings := config.DefaultRenderSettings()
	settings.OutputDir = t.TempDir()

	b, err := NewBuilder(dir, linearEvaluator(t), settings)
	require.NoError(t, err)
	assert.Equal(t, 3, b.FrameCount())

	job, err := b.Build(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Index)
	require.Equal(t, 1, job.Cloud.Size())
	assert.Equal(t, 1.0, job.Cloud.Points[0].X)
	// midpoint of the linear trajectory
	assert.InDelta(t, 0.0, job.Pose.Position.Y, 1e-12)
	assert.Equal(t, filepath.Join(settings.OutputDir, "frame_0001.png"), job.OutputPath)
}

func TestProgressSubsamplingInvariance(t *testing.T) {
	// the skip factor never enters the progress computation: frame 20 of
	// a 100-frame sequence evaluates identically however densely the
	// sequence is sampled
	assert.Equal(t, Progress(20, 100), 20.0/99.0)
	assert.Equal(t, Progress(0, 100), 0.0)
	assert.Equal(t, Progress(99, 100), 1.0)
}

func TestProgressSingleFrame(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, 1))
}

func TestBuildPosesIndependentOfOtherFrames(t *testing.T) {
	dir := writeSequence(t, 5)
	settings := config.DefaultRenderSettings()
	settings.OutputDir = t.TempDir()
	b, err := NewBuilder(dir, linearEvaluator(t), settings)
	require.NoError(t, err)

	// building frame 2 twice, with unrelated frames built in between,
	// yields the identical pose
	first, err := b.Build(2, 5)
	require.NoError(t, err)
	_, err = b.Build(4, 5)
	require.NoError(t, err)
	second, err := b.Build(2, 5)
	require.NoError(t, err)
	assert.Equal(t, first.Pose, second.Pose)
}

func TestBuildPropagatesParserErrors(t *testing.T) {
	dir := writeSequence(t, 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame_0001.ply"), []byte("garbage"), 0o644))

	settings := config.DefaultRenderSettings()
	settings.OutputDir = t.TempDir()
	b, err := NewBuilder(dir, linearEvaluator(t), settings)
	require.NoError(t, err)

	_, err = b.Build(1, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ply.ErrMalformed))
}

func TestBuildIndexOutOfRange(t *testing.T) {
	dir := writeSequence(t, 2)
	settings := config.DefaultRenderSettings()
	b, err := NewBuilder(dir, linearEvaluator(t), settings)
	require.NoError(t, err)

	_, err = b.Build(5, 2)
	require.Error(t, err)
	_, err = b.Build(-1, 2)
	require.Error(t, err)
}

func TestNewBuilderEmptyDir(t *testing.T) {
	_, err := NewBuilder(t.TempDir(), linearEvaluator(t), config.DefaultRenderSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ply.ErrNotFound))
}

func TestNewBuilderMissingDir(t *testing.T) {
	_, err := NewBuilder(filepath.Join(t.TempDir(), "nope"), linearEvaluator(t), config.DefaultRenderSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ply.ErrNotFound))
}
