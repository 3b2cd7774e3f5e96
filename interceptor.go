package viewcapture

import (
	"cmp"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// NormalizeConfig defines which requests are page images and how their
// quality parameters are canonicalised.
type NormalizeConfig struct {
	// PathMarker must appear in the URL, e.g. "viewerng/img".
	PathMarker string
	// PageParam names the page index query parameter.
	PageParam string
	// FormatParam names the format parameter; it is forced to FormatValue.
	FormatParam string
	FormatValue string
	// WidthParam names the width parameter; it is forced to Width.
	WidthParam string
	Width      int
}

// DefaultNormalizeConfig returns the rules for the Drive viewer: lossless
// PNG instead of WebP at 2400 pixels wide.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{
		PathMarker:  "viewerng/img",
		PageParam:   "page",
		FormatParam: "webp",
		FormatValue: "false",
		WidthParam:  "w",
		Width:       2400,
	}
}

// Matches reports whether raw belongs to the page-image request class.
func (n NormalizeConfig) Matches(raw string) bool {
	return strings.Contains(raw, n.PathMarker) &&
		strings.Contains(raw, n.PageParam+"=") &&
		strings.Contains(raw, n.FormatParam+"=")
}

// Normalize returns the canonical form of a page-image URL. Query parameters
// are re-encoded in sorted order, so requests differing only in parameter
// order or in format and width collapse to one URL.
func (n NormalizeConfig) Normalize(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(n.FormatParam, n.FormatValue)
	q.Set(n.WidthParam, strconv.Itoa(n.Width))
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// PageRequest is a captured page-image URL and its discovery index.
type PageRequest struct {
	URL string
	// Sequence is the 0-based discovery order.
	Sequence int
	// Page is the page number carried in the URL, or -1 if absent.
	Page int
}

// Interceptor accumulates normalized page-image URLs in first-seen order.
// Observe may be called from any goroutine.
type Interceptor struct {
	norm NormalizeConfig

	mu   sync.Mutex
	seen map[string]struct{}
	reqs []PageRequest
}

// NewInterceptor returns an empty Interceptor using norm.
func NewInterceptor(norm NormalizeConfig) *Interceptor {
	return &Interceptor{
		norm: norm,
		seen: make(map[string]struct{}),
	}
}

// Observe inspects one outbound request URL and records it when it is a page
// image not seen before. It reports whether a new entry was added.
func (i *Interceptor) Observe(raw string) bool {
	if !i.norm.Matches(raw) {
		return false
	}
	canonical, err := i.norm.Normalize(raw)
	if err != nil {
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, dup := i.seen[canonical]; dup {
		return false
	}
	i.seen[canonical] = struct{}{}
	i.reqs = append(i.reqs, PageRequest{
		URL:      canonical,
		Sequence: len(i.reqs),
		Page:     pageNumber(canonical, i.norm.PageParam),
	})
	return true
}

// Len returns the number of captured requests.
func (i *Interceptor) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.reqs)
}

// Snapshot returns a copy of the captured requests in discovery order.
func (i *Interceptor) Snapshot() []PageRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]PageRequest, len(i.reqs))
	copy(out, i.reqs)
	return out
}

func pageNumber(raw, param string) int {
	u, err := url.Parse(raw)
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(u.Query().Get(param))
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// OrderByPage sorts reqs by their embedded page number, keeping discovery
// order for ties and placing requests without a page number last. Sequence
// indices are reassigned so they stay contiguous.
func OrderByPage(reqs []PageRequest) []PageRequest {
	out := make([]PageRequest, len(reqs))
	copy(out, reqs)
	slices.SortStableFunc(out, func(a, b PageRequest) int {
		switch {
		case a.Page < 0 && b.Page < 0:
			return 0
		case a.Page < 0:
			return 1
		case b.Page < 0:
			return -1
		}
		return cmp.Compare(a.Page, b.Page)
	})
	for i := range out {
		out[i].Sequence = i
	}
	return out
}
