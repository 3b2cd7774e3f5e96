package viewcapture

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	pageOfRe   = regexp.MustCompile(`(?i)(\d+)\s*of\s*(\d+)`)
	firstIntRe = regexp.MustCompile(`\d+`)
)

// Probe estimates how many pages a viewer holds. The estimate only sizes the
// scroll loop; it never bounds what is captured.
type Probe struct {
	// Selector matches the "page X of N" indicator.
	Selector string
	// Timeout bounds the wait for the indicator.
	Timeout time.Duration
	// Normalize identifies page images for the markup fallback.
	Normalize NormalizeConfig
}

// Estimate returns the viewer's page count, or 0 when it cannot be
// determined. When the indicator never appears, the page markup is searched
// for already rendered page images and the highest page number is used.
func (p Probe) Estimate(ctx context.Context, s Surface) int {
	waitCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	text, err := s.WaitText(waitCtx, p.Selector)
	if err == nil {
		if n := ParseIndicator(text); n > 0 {
			return n
		}
	}
	if ctx.Err() != nil {
		return 0
	}

	html, err := s.OuterHTML(ctx)
	if err != nil {
		return 0
	}
	return p.maxRenderedPage(html)
}

// ParseIndicator extracts a page total from indicator text. "3 of 42"
// yields 42. Other text yields its first integer, so "1 / 42" yields 1, and
// text without digits yields 0.
func ParseIndicator(text string) int {
	if m := pageOfRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[2])
		return n
	}
	if m := firstIntRe.FindString(text); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

func (p Probe) maxRenderedPage(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	maxPage := 0
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if !strings.Contains(src, p.Normalize.PathMarker) || !strings.Contains(src, p.Normalize.PageParam+"=") {
			return
		}
		if n := pageNumber(src, p.Normalize.PageParam); n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}
