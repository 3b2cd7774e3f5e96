// Package viewcapture rebuilds view-only hosted documents as PDF files.
//
// A viewer such as the Google Drive preview renders each page as an image it
// requests lazily while the reader scrolls. viewcapture drives a headless
// Chrome through the viewer, records every page-image request, downloads the
// images and assembles them into a document with one page per image.
//
// For a one-off capture use the package-level helper:
//
//	c, err := viewcapture.CaptureURL(ctx, "https://drive.google.com/file/d/<id>/view", "jobs/1")
//
// For repeated captures create a [Capturer] once; every capture opens its own
// browser:
//
//	capt := viewcapture.NewCapturer(
//	    viewcapture.WithNoSandbox(),
//	    viewcapture.WithLogger(logger),
//	)
//	c, err := capt.Capture(ctx, url, dir)
//	if err != nil {
//	    log.Fatal(err) // *LaunchError, *NavigationError or *AssemblyError
//	}
//	fmt.Println(c.Outcome, c.MissingPages())
//
// The pipeline stages are exported for callers that need finer control:
// [OpenSession] with [Probe], [ScrollDriver] and [Interceptor] for capture,
// [Fetcher] for downloads and [Assembler] for the document.
//
// Pages are ordered by the order in which the viewer requested them. Use
// [WithPageOrder] to order by the page number embedded in the request
// instead.
//
// Chrome or Chromium must be installed, or use [WithAutoDownload]:
//
//	capt := viewcapture.NewCapturer(viewcapture.WithAutoDownload())
package viewcapture
