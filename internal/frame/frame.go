// Package frame assembles per-frame render jobs from a point cloud
// sequence and a camera trajectory.
package frame

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/estebanfoucher/blender-renderer/internal/config"
	"github.com/estebanfoucher/blender-renderer/internal/ply"
	"github.com/estebanfoucher/blender-renderer/internal/trajectory"
)

// Job is the self-contained description of one output frame, handed to
// the render engine and discarded after submission.
type Job struct {
	Index      int
	Cloud      *ply.PointCloud
	Pose       trajectory.Pose
	Settings   config.RenderSettings
	OutputPath string
}

// Builder turns frame indexes into Jobs. The file list is resolved once
// at construction; the builder itself never mutates state afterwards,
// so Build may be called from multiple goroutines.
type Builder struct {
	dir      string
	files    []string
	eval     *trajectory.Evaluator
	settings config.RenderSettings
}

// NewBuilder lists the .ply files under dir (sorted by name, which is
// sequence order) and prepares a builder over them.
func NewBuilder(dir string, eval *trajectory.Evaluator, settings config.RenderSettings) (*Builder, error) {
	files, err := ListSequence(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ply.ErrNotFound, "no ply files in %s", dir)
	}
	return &Builder{dir: dir, files: files, eval: eval, settings: settings}, nil
}

// ListSequence returns the sorted .ply paths under dir.
func ListSequence(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ply.ErrNotFound, dir)
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".ply") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// FrameCount returns the number of files in the sequence.
func (b *Builder) FrameCount() int {
	return len(b.files)
}

// Files returns the resolved sequence paths in frame order.
func (b *Builder) Files() []string {
	return b.files
}

// Build loads the cloud for frameIndex and evaluates the trajectory at
// progress frameIndex/(totalFrames-1). Both arguments refer to the
// ORIGINAL sequence, never to a subsampled one, so camera motion stays
// continuous regardless of how densely frames are sampled. Build
// performs no I/O beyond the delegated load and writes nothing.
func (b *Builder) Build(frameIndex, totalFrames int) (*Job, error) {
	if frameIndex < 0 || frameIndex >= totalFrames || frameIndex >= len(b.files) {
		return nil, errors.Errorf("frame index %d outside sequence of %d", frameIndex, totalFrames)
	}

	pose, err := b.eval.Evaluate(Progress(frameIndex, totalFrames))
	if err != nil {
		return nil, err
	}
	cloud, err := ply.Load(b.files[frameIndex])
	if err != nil {
		return nil, err
	}

	return &Job{
		Index:      frameIndex,
		Cloud:      cloud,
		Pose:       pose,
		Settings:   b.settings,
		OutputPath: OutputPath(b.settings, frameIndex),
	}, nil
}

// Progress maps a frame index to normalized trajectory progress. The
// denominator clamps to 1 so a single-frame sequence evaluates at 0.
func Progress(frameIndex, totalFrames int) float64 {
	den := totalFrames - 1
	if den < 1 {
		den = 1
	}
	return float64(frameIndex) / float64(den)
}

// OutputPath is the deterministic frame path: zero-padded index plus
// the configured format's extension, under the configured directory.
func OutputPath(settings config.RenderSettings, frameIndex int) string {
	ext := strings.ToLower(settings.FileFormat)
	if ext == "" {
		ext = "png"
	}
	return filepath.Join(settings.OutputDir, fmt.Sprintf("frame_%04d.%s", frameIndex, ext))
}
