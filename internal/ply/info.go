package ply

import (
	"bufio"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Info is summary metadata about a PLY file, computed without
// retaining per-point arrays.
type Info struct {
	Path       string
	FileSize   int64
	Count      int
	HasColor   bool
	HasAlpha   bool
	Properties []string
	Bounds     Bounds
}

// GetInfo scans the file at path and returns its summary metadata. It
// never fails: any error is logged and a zeroed Info carrying only the
// path comes back, so a bad file cannot abort a bulk pre-scan of a
// whole sequence.
func GetInfo(path string, logger golog.Logger) Info {
	info, err := scan(path)
	if err != nil {
		logger.Warnw("point cloud pre-scan failed", "path", path, "error", err)
		return Info{Path: path}
	}
	return info
}

func scan(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.Wrap(ErrNotFound, path)
		}
		return Info{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	in := bufio.NewReader(f)
	hdr, err := parseHeader(in)
	if err != nil {
		return Info{}, err
	}

	acc := newBoundsAccum()
	err = readBody(in, hdr, func(p r3.Vector, _ Color) {
		acc.add(p)
	})
	if err != nil {
		return Info{}, err
	}

	names := make([]string, len(hdr.properties))
	for i, p := range hdr.properties {
		names[i] = p.name
	}
	return Info{
		Path:       path,
		FileSize:   fi.Size(),
		Count:      hdr.vertexCount,
		HasColor:   hdr.hasColor,
		HasAlpha:   hdr.hasAlpha,
		Properties: names,
		Bounds:     acc.bounds(),
	}, nil
}
