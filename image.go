package viewcapture

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/porticus-lab/viewcapture/internal/pdf"
)

// MaxPagePixels caps the declared width × height of a page image. Larger
// images are rejected before their raster is allocated.
const MaxPagePixels = 64 << 20

// decodePageImage turns an encoded page image into a drawable raster. JPEGs
// that decode to YCbCr or grayscale, progressive ones included, are embedded
// as they are; everything else is decoded to 8-bit samples with a separate
// alpha channel when not opaque.
func decodePageImage(data []byte) (pdf.Image, error) {
	hdr, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return pdf.Image{}, err
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return pdf.Image{}, fmt.Errorf("empty %s image", format)
	}
	if int64(hdr.Width)*int64(hdr.Height) > MaxPagePixels {
		return pdf.Image{}, fmt.Errorf("%s image %dx%d exceeds %d pixels", format, hdr.Width, hdr.Height, MaxPagePixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return pdf.Image{}, err
	}
	b := img.Bounds()
	if b.Empty() {
		return pdf.Image{}, fmt.Errorf("empty %s image", format)
	}

	if format == "jpeg" {
		switch img.(type) {
		case *image.YCbCr:
			return pdf.Image{Width: b.Dx(), Height: b.Dy(), ColorSpace: pdf.DeviceRGB, JPEG: data}, nil
		case *image.Gray:
			return pdf.Image{Width: b.Dx(), Height: b.Dy(), ColorSpace: pdf.DeviceGray, JPEG: data}, nil
		}
	}

	if g, ok := img.(*image.Gray); ok {
		return grayImage(g), nil
	}
	return rgbImage(img), nil
}

func grayImage(g *image.Gray) pdf.Image {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	samples := make([]byte, 0, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := g.PixOffset(b.Min.X, y)
		samples = append(samples, g.Pix[off:off+w]...)
	}
	return pdf.Image{Width: w, Height: h, ColorSpace: pdf.DeviceGray, Samples: samples}
}

func rgbImage(img image.Image) pdf.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	samples := make([]byte, 0, w*h*3)
	var alpha []byte
	if !nrgba.Opaque() {
		alpha = make([]byte, 0, w*h)
	}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < len(row); x += 4 {
			samples = append(samples, row[x], row[x+1], row[x+2])
			if alpha != nil {
				alpha = append(alpha, row[x+3])
			}
		}
	}
	return pdf.Image{Width: w, Height: h, ColorSpace: pdf.DeviceRGB, Samples: samples, Alpha: alpha}
}
