package viewcapture_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/porticus-lab/viewcapture"
)

// fakeSurface replays scripted page-image requests instead of rendering.
type fakeSurface struct {
	mu      sync.Mutex
	observe func(string)

	// initial requests are issued during navigation.
	initial []string
	// onPress returns the requests issued by the n-th key press (1-based).
	onPress func(n int) []string
	// indicator is the indicator text; empty means it never appears.
	indicator string
	html      string
	navErr    error

	presses int
	keys    []string
	closes  int
}

func (f *fakeSurface) launcher(ctx context.Context, observe func(string)) (viewcapture.Surface, error) {
	f.observe = observe
	return f, nil
}

func (f *fakeSurface) Navigate(ctx context.Context, url string) error {
	for _, u := range f.initial {
		f.observe(u)
	}
	return f.navErr
}

func (f *fakeSurface) Press(ctx context.Context, key string) error {
	f.mu.Lock()
	f.presses++
	f.keys = append(f.keys, key)
	n := f.presses
	f.mu.Unlock()

	if f.onPress != nil {
		for _, u := range f.onPress(n) {
			f.observe(u)
		}
	}
	return nil
}

func (f *fakeSurface) WaitText(ctx context.Context, sel string) (string, error) {
	if f.indicator == "" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.indicator, nil
}

func (f *fakeSurface) OuterHTML(ctx context.Context) (string, error) {
	return f.html, nil
}

func (f *fakeSurface) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSurface) pressCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presses
}

// pngBytes encodes a w×h opaque PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// pageServer serves /viewerng/img?page=N as a PNG of (10+N)×(20+N) pixels.
// Pages listed in failing answer 500; pages in garbled answer non-image data.
func pageServer(t *testing.T, failing, garbled map[int]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			http.Error(w, "bad page", http.StatusBadRequest)
			return
		}
		if failing[n] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if garbled[n] {
			w.Write([]byte("not an image"))
			return
		}
		w.Write(pngBytes(t, 10+n, 20+n))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// pageURL builds a raw viewer request as the browser would issue it.
func pageURL(base string, page int) string {
	return fmt.Sprintf("%s/viewerng/img?id=doc&page=%d&skiphighlight=true&w=800&webp=true", base, page)
}
