package system

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
)

// InitResourceLimits raises the open-file limit; a render worker pool
// holds a cloud, a points file and a script per in-flight frame.
func InitResourceLimits(logger golog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warnw("could not read open-file limit", "error", err)
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warnw("could not raise open-file limit", "error", err)
	} else {
		logger.Debugw("open-file limit raised", "limit", rLimit.Cur)
	}
}

// Blender keeps one scene object per sphere; this is a coarse per-point
// footprint estimate observed on large clouds.
const bytesPerPoint = 2048

// CheckMemoryHeadroom warns when the host looks too small for the
// largest cloud in the sequence. It never blocks the render.
func CheckMemoryHeadroom(maxPoints int, logger golog.Logger) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		logger.Debugw("could not read memory stats", "error", err)
		return
	}
	need := uint64(maxPoints) * bytesPerPoint
	if need > vm.Available {
		logger.Warnw("sequence may exceed available memory",
			"points", maxPoints, "estimated_bytes", need, "available_bytes", vm.Available)
	}
}

// FindLatestSequenceDir returns the most recently modified
// subdirectory of root that contains at least one .ply file.
func FindLatestSequenceDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", err
	}

	var latestDir string
	var latestTime time.Time
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if !containsPLY(dir) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestDir = dir
		}
	}

	if latestDir == "" {
		return "", errors.Errorf("no point cloud sequences found under %s", root)
	}
	return latestDir, nil
}

func containsPLY(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".ply") {
			return true
		}
	}
	return false
}
