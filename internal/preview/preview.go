// Package preview composes a contact sheet from rendered frames so a
// whole sequence can be eyeballed without scrubbing through files.
package preview

import (
	"image"
	"image/png"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	xdraw "golang.org/x/image/draw"
)

// ContactSheet decodes the given frame images and scales each into a
// grid cell of cellWidth pixels, columns cells per row. Aspect ratio
// follows the first frame.
func ContactSheet(framePaths []string, columns, cellWidth int) (*image.RGBA, error) {
	if len(framePaths) == 0 {
		return nil, errors.New("no frames to compose")
	}
	if columns < 1 {
		columns = 1
	}
	if columns > len(framePaths) {
		columns = len(framePaths)
	}
	if cellWidth < 1 {
		cellWidth = 160
	}

	frames := make([]image.Image, 0, len(framePaths))
	for _, p := range framePaths {
		img, err := decode(p)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", p)
		}
		frames = append(frames, img)
	}

	first := frames[0].Bounds()
	cellHeight := cellWidth * first.Dy() / first.Dx()
	if cellHeight < 1 {
		cellHeight = 1
	}
	rows := (len(frames) + columns - 1) / columns

	sheet := image.NewRGBA(image.Rect(0, 0, columns*cellWidth, rows*cellHeight))
	for i, img := range frames {
		col, row := i%columns, i/columns
		cell := image.Rect(col*cellWidth, row*cellHeight, (col+1)*cellWidth, (row+1)*cellHeight)
		xdraw.ApproxBiLinear.Scale(sheet, cell, img, img.Bounds(), xdraw.Src, nil)
	}
	return sheet, nil
}

// WriteContactSheet composes the sheet and writes it as PNG.
func WriteContactSheet(framePaths []string, outPath string, columns, cellWidth int) (err error) {
	sheet, err := ContactSheet(framePaths, columns, cellWidth)
	if err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, sheet)
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
