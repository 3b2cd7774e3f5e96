package viewcapture_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/porticus-lab/viewcapture"
)

func requestsFor(t *testing.T, base string, pages ...int) []viewcapture.PageRequest {
	t.Helper()
	icpt := viewcapture.NewInterceptor(viewcapture.DefaultNormalizeConfig())
	for _, p := range pages {
		icpt.Observe(pageURL(base, p))
	}
	return icpt.Snapshot()
}

func TestFetcher_FetchAll(t *testing.T) {
	srv := pageServer(t, map[int]bool{1: true}, nil)
	reqs := requestsFor(t, srv.URL, 0, 1, 2)
	dir := t.TempDir()

	f := viewcapture.NewFetcher(2, 5*time.Second)
	pages := f.FetchAll(context.Background(), dir, reqs)

	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	for i, p := range pages {
		if p.Request.Sequence != i {
			t.Errorf("pages[%d].Sequence = %d", i, p.Request.Sequence)
		}
	}

	if !pages[0].OK() || !pages[2].OK() {
		t.Fatalf("pages 0 and 2 should succeed: %v, %v", pages[0].Err, pages[2].Err)
	}
	if want := filepath.Join(dir, "page_3.png"); pages[2].Path != want {
		t.Errorf("pages[2].Path = %q, want %q", pages[2].Path, want)
	}
	if _, err := os.Stat(pages[0].Path); err != nil {
		t.Errorf("stat page_1: %v", err)
	}

	var ferr *viewcapture.PageFetchError
	if !errors.As(pages[1].Err, &ferr) {
		t.Fatalf("pages[1].Err = %v, want *PageFetchError", pages[1].Err)
	}
	if ferr.StatusCode != http.StatusInternalServerError || ferr.Sequence != 1 {
		t.Errorf("PageFetchError = %+v", ferr)
	}
	if _, err := os.Stat(filepath.Join(dir, "page_2.png")); !os.IsNotExist(err) {
		t.Errorf("failed page left a file behind: %v", err)
	}
}

func TestFetcher_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	f := viewcapture.NewFetcher(1, time.Second)
	pages := f.FetchAll(context.Background(), t.TempDir(), requestsFor(t, base, 0))
	var ferr *viewcapture.PageFetchError
	if !errors.As(pages[0].Err, &ferr) || ferr.StatusCode != 0 {
		t.Fatalf("Err = %v, want transport PageFetchError", pages[0].Err)
	}
}

func TestFetcher_ExtensionFromContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	t.Cleanup(srv.Close)

	f := &viewcapture.Fetcher{Client: srv.Client(), UserAgent: "test"}
	pages := f.FetchAll(context.Background(), t.TempDir(), requestsFor(t, srv.URL, 0))
	if filepath.Ext(pages[0].Path) != ".jpg" {
		t.Errorf("Path = %q, want .jpg extension", pages[0].Path)
	}
}

func TestFetcher_Empty(t *testing.T) {
	f := viewcapture.NewFetcher(4, time.Second)
	if pages := f.FetchAll(context.Background(), t.TempDir(), nil); len(pages) != 0 {
		t.Errorf("got %d pages, want 0", len(pages))
	}
}

func TestFetcher_OversizeBody(t *testing.T) {
	body := bytes.Repeat([]byte{0x89}, 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			// Streamed without a Content-Length.
			w.Write(body[:50])
			w.(http.Flusher).Flush()
			w.Write(body[50:])
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f := &viewcapture.Fetcher{Client: srv.Client(), MaxBytes: 64}
	pages := f.FetchAll(context.Background(), dir, requestsFor(t, srv.URL, 0, 1))
	for i, p := range pages {
		var ferr *viewcapture.PageFetchError
		if !errors.As(p.Err, &ferr) {
			t.Errorf("pages[%d].Err = %v, want *PageFetchError", i, p.Err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("oversize pages left %d files behind", len(entries))
	}

	f.MaxBytes = 100
	pages = f.FetchAll(context.Background(), dir, requestsFor(t, srv.URL, 0, 1))
	if !pages[0].OK() || !pages[1].OK() {
		t.Errorf("bodies at the limit failed: %v, %v", pages[0].Err, pages[1].Err)
	}
}
