package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderText draws s in black on a white background with the built-in 7x13
// face, upscaled by scale, and returns it PNG-encoded. Used for engine
// self-tests and fixtures.
func RenderText(s string, scale int) ([]byte, error) {
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	const pad = 10

	width := font.MeasureString(face, s).Ceil() + 2*pad
	height := face.Height + 2*pad
	src := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.Draw(src, src.Bounds(), image.White, image.Point{}, xdraw.Src)

	d := &font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(pad, pad+face.Ascent),
	}
	d.DrawString(s)

	dst := image.NewGray(image.Rect(0, 0, width*scale, height*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
