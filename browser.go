package viewcapture

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
)

// chromeCandidates lists executable names searched in PATH.
var chromeCandidates = []string{
	"chromium-browser", "chromium", "google-chrome",
	"google-chrome-stable", "chrome",
}

// wellKnownChromePaths returns install locations checked before PATH.
func wellKnownChromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/snap/bin/chromium",
		}
	}
}

// resolveChrome picks the browser executable: the configured path, then
// CHROME_PATH, then well-known install locations, then PATH. When nothing is
// found and auto-download is enabled, a Chromium build is fetched. An empty
// path with a nil error lets chromedp apply its own lookup.
func resolveChrome(cfg *captureConfig) (string, error) {
	if cfg.chromePath != "" {
		return cfg.chromePath, nil
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p, nil
	}
	for _, p := range wellKnownChromePaths() {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	if cfg.autoDownload {
		return downloadBrowser()
	}
	return "", nil
}

// downloadBrowser downloads a compatible Chromium binary if one is not
// already cached and returns the path to the executable. The binary is
// stored in ~/.cache/rod/browser (Unix) or %APPDATA%\rod\browser (Windows).
func downloadBrowser() (string, error) {
	path, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", fmt.Errorf("downloading browser: %w", err)
	}
	return path, nil
}
