package raster

import (
	"fmt"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
)

// Window is a rectangular region of an image in pixel coordinates.
type Window struct {
	Col, Row      int
	Width, Height int
}

func (w Window) String() string {
	return fmt.Sprintf("x=%d y=%d w=%d h=%d", w.Col, w.Row, w.Width, w.Height)
}

// Full returns the window covering a height x width image.
func Full(height, width int) Window {
	return Window{Width: width, Height: height}
}

func (w Window) within(height, width int) error {
	if w.Col < 0 || w.Row < 0 || w.Width <= 0 || w.Height <= 0 ||
		w.Col+w.Width > width || w.Row+w.Height > height {
		return errors.NewValueError("raster.Window",
			fmt.Sprintf("window %v outside image of %dx%d", w, height, width))
	}
	return nil
}

// Chunks is the chunk size of a lazy image along y and x. The zero value
// means the image is not chunked.
type Chunks struct {
	Y, X int
}

// IsZero reports whether no chunking is configured.
func (c Chunks) IsZero() bool {
	return c.Y <= 0 && c.X <= 0
}

// ChunkGrid splits a height x width image into row-major windows of at most
// chunks.Y x chunks.X pixels. A non-positive chunk size along an axis keeps
// that axis whole.
func ChunkGrid(height, width int, chunks Chunks) []Window {
	cy, cx := chunks.Y, chunks.X
	if cy <= 0 || cy > height {
		cy = height
	}
	if cx <= 0 || cx > width {
		cx = width
	}

	windows := make([]Window, 0, ((height+cy-1)/cy)*((width+cx-1)/cx))
	for row := 0; row < height; row += cy {
		h := min(cy, height-row)
		for col := 0; col < width; col += cx {
			windows = append(windows, Window{
				Col:    col,
				Row:    row,
				Width:  min(cx, width-col),
				Height: h,
			})
		}
	}
	return windows
}
