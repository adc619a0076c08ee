package importer

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"voxelsmith.ai/internal/mesh"
)

// DecodeTexture decodes any registered image format into an RGBA8 texture
// with linear filtering and repeat wrapping.
func DecodeTexture(r io.Reader) (*mesh.Texture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode texture: empty image")
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return &mesh.Texture{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    nrgba.Pix,
		Filter: mesh.FilterLinear,
		Wrap:   mesh.WrapRepeat,
	}, nil
}
