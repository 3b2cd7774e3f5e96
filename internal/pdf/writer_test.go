package pdf

import (
	"bytes"
	"errors"
	"testing"
)

func rgbImage(w, h int) Image {
	samples := make([]byte, w*h*3)
	for i := range samples {
		samples[i] = byte(i)
	}
	return Image{Width: w, Height: h, ColorSpace: DeviceRGB, Samples: samples}
}

func TestWriter_PagesSizedToImages(t *testing.T) {
	w := NewWriter()
	sizes := [][2]int{{40, 30}, {12, 90}, {7, 7}}
	for _, s := range sizes {
		if err := w.AddImagePage(rgbImage(s[0], s[1])); err != nil {
			t.Fatalf("AddImagePage: %v", err)
		}
	}

	data, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	doc, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pages, err := doc.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != len(sizes) {
		t.Fatalf("got %d pages, want %d", len(pages), len(sizes))
	}
	for i, p := range pages {
		info := doc.GetPageInfo(p)
		if info.Width != float64(sizes[i][0]) || info.Height != float64(sizes[i][1]) {
			t.Errorf("page %d: MediaBox %vx%v, want %dx%d", i, info.Width, info.Height, sizes[i][0], sizes[i][1])
		}
		imgs := doc.PageImages(p)
		if len(imgs) != 1 {
			t.Fatalf("page %d: %d images, want 1", i, len(imgs))
		}
		if imgs[0].Width != sizes[i][0] || imgs[0].Height != sizes[i][1] {
			t.Errorf("page %d: image %dx%d, want %dx%d", i, imgs[0].Width, imgs[0].Height, sizes[i][0], sizes[i][1])
		}
		if imgs[0].Filter != "FlateDecode" {
			t.Errorf("page %d: filter %q, want FlateDecode", i, imgs[0].Filter)
		}
	}
}

func TestWriter_ImageStreamRoundTrip(t *testing.T) {
	img := rgbImage(5, 4)
	w := NewWriter()
	if err := w.AddImagePage(img); err != nil {
		t.Fatal(err)
	}
	data, err := w.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	pages, _ := doc.Pages()
	xobjs := doc.resolveDict(doc.resolveDict(pages[0]["Resources"])["XObject"])
	obj, err := doc.Resolve(xobjs["Im0"])
	if err != nil {
		t.Fatal(err)
	}
	raw, err := DecodeStream(obj.Dict, obj.Stream)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if !bytes.Equal(raw, img.Samples) {
		t.Error("decoded samples differ from the input")
	}
}

func TestWriter_JPEGAndMask(t *testing.T) {
	w := NewWriter()
	if err := w.AddImagePage(Image{Width: 2, Height: 2, ColorSpace: DeviceGray, JPEG: []byte{0xff, 0xd8, 0xff, 0xd9}}); err != nil {
		t.Fatal(err)
	}
	masked := rgbImage(2, 2)
	masked.Alpha = []byte{0, 64, 128, 255}
	if err := w.AddImagePage(masked); err != nil {
		t.Fatal(err)
	}

	data, err := w.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	pages, _ := doc.Pages()
	first := doc.PageImages(pages[0])[0]
	if first.Filter != "DCTDecode" || first.ColorSpace != "DeviceGray" || first.HasMask {
		t.Errorf("jpeg page image = %+v", first)
	}
	second := doc.PageImages(pages[1])[0]
	if !second.HasMask {
		t.Error("expected a soft mask on the second page")
	}
}

func TestWriter_Empty(t *testing.T) {
	data, err := NewWriter().Bytes()
	if err != nil {
		t.Fatal(err)
	}
	doc, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pages, err := doc.Pages()
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("got %d pages, want 0", len(pages))
	}
}

func TestWriter_Deterministic(t *testing.T) {
	build := func() []byte {
		w := NewWriter()
		_ = w.AddImagePage(rgbImage(9, 3))
		_ = w.AddImagePage(rgbImage(3, 9))
		b, err := w.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	if !bytes.Equal(build(), build()) {
		t.Error("identical pages produced different output")
	}
}

func TestWriter_InvalidImage(t *testing.T) {
	tests := []struct {
		name string
		img  Image
	}{
		{"zero size", Image{Width: 0, Height: 3, Samples: []byte{1}}},
		{"short samples", Image{Width: 2, Height: 2, Samples: []byte{1, 2, 3}}},
		{"no data", Image{Width: 2, Height: 2}},
		{"bad alpha", Image{Width: 1, Height: 1, Samples: []byte{1, 2, 3}, Alpha: []byte{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewWriter().AddImagePage(tt.img)
			if !errors.Is(err, ErrInvalidImage) {
				t.Errorf("AddImagePage = %v, want ErrInvalidImage", err)
			}
		})
	}
}
