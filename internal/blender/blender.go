// Package blender drives the external Blender process: it locates the
// executable, generates the per-frame scene script and points file,
// and turns a non-zero exit status into an error carrying the captured
// output.
package blender

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/estebanfoucher/blender-renderer/internal/frame"
)

// InvocationError reports a failed engine invocation for one frame,
// with whatever Blender wrote to stdout/stderr attached.
type InvocationError struct {
	Frame  int
	Err    error
	Output string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("blender invocation for frame %d failed: %v\noutput: %s", e.Frame, e.Err, e.Output)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// commonPaths are platform-typical Blender install locations probed
// after PATH.
var commonPaths = []string{
	"/Applications/Blender.app/Contents/MacOS/Blender",
	"/usr/bin/blender",
	"/usr/local/bin/blender",
	`C:\Program Files\Blender Foundation\Blender 4.0\blender.exe`,
	`C:\Program Files\Blender Foundation\Blender 3.6\blender.exe`,
}

// FindExecutable resolves the Blender binary. An explicit path must
// exist; otherwise PATH and the usual install locations are probed.
func FindExecutable(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Wrapf(err, "blender executable %s", explicit)
		}
		return explicit, nil
	}
	if p, err := exec.LookPath("blender"); err == nil {
		return p, nil
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.New("blender executable not found; install Blender or pass -blender")
}

// Engine renders frame jobs by spawning Blender in background mode.
type Engine struct {
	executable string
	logger     golog.Logger
}

// NewEngine returns an engine bound to the given Blender executable.
func NewEngine(executable string, logger golog.Logger) *Engine {
	return &Engine{executable: executable, logger: logger}
}

// Render renders one frame job. The points file and scene script are
// written to workDir; the rendered image lands at job.OutputPath.
// Success requires a zero exit status AND the output file existing.
func (e *Engine) Render(ctx context.Context, job *frame.Job, workDir string) error {
	pointsPath := filepath.Join(workDir, fmt.Sprintf("points_%04d.txt", job.Index))
	scriptPath := filepath.Join(workDir, fmt.Sprintf("frame_%04d.py", job.Index))

	if err := WritePoints(pointsPath, job.Cloud); err != nil {
		return err
	}
	if err := os.WriteFile(scriptPath, []byte(Script(job, pointsPath)), 0o644); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.executable, "--background", "--python", scriptPath, "--")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &InvocationError{Frame: job.Index, Err: err, Output: string(out)}
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		return &InvocationError{
			Frame:  job.Index,
			Err:    errors.Errorf("no frame produced at %s", job.OutputPath),
			Output: string(out),
		}
	}
	e.logger.Debugw("frame rendered", "frame", job.Index, "output", job.OutputPath)
	return nil
}
