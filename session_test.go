package viewcapture_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/porticus-lab/viewcapture"
)

// chromeAvailable reports whether a Chrome/Chromium executable is in PATH.
func chromeAvailable() bool {
	for _, name := range []string{
		"chromium-browser", "chromium", "google-chrome",
		"google-chrome-stable", "chrome",
	} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func skipIfNoChrome(t *testing.T) {
	t.Helper()
	if !chromeAvailable() {
		t.Skip("skipping: Chrome/Chromium not found in PATH")
	}
}

// viewerServer mimics a viewer page that loads two page images.
func viewerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!DOCTYPE html><html><body>
<div class="indicator">1 of 2</div>
<img src="/viewerng/img?id=doc&page=0&w=800&webp=true">
<img src="/viewerng/img?id=doc&page=1&w=800&webp=true">
</body></html>`)
	})
	mux.HandleFunc("/viewerng/img", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes(t, 4, 4))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenSession_Chrome(t *testing.T) {
	skipIfNoChrome(t)
	srv := viewerServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sess, err := viewcapture.OpenSession(ctx, srv.URL+"/view",
		viewcapture.WithNoSandbox(),
		viewcapture.WithIndicatorSelector(".indicator"),
	)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	defer sess.Close()

	if n, err := sess.EstimatePages(ctx); err != nil || n != 2 {
		t.Errorf("EstimatePages = %d, %v; want 2", n, err)
	}
	if n := sess.Interceptor().Len(); n != 2 {
		t.Errorf("captured %d page requests, want 2", n)
	}
}

func TestOpenSession_Unreachable(t *testing.T) {
	skipIfNoChrome(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL + "/view"
	srv.Close()

	_, err := viewcapture.OpenSession(context.Background(), target,
		viewcapture.WithNoSandbox(),
		viewcapture.WithNavigationTimeout(30*time.Second),
	)
	if err == nil {
		t.Fatal("expected an error for an unreachable target")
	}
}
