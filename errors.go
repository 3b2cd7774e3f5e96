package viewcapture

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the library.
var (
	// ErrClosed is returned when attempting to use a closed [Session].
	ErrClosed = errors.New("viewcapture: session is closed")

	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("viewcapture: invalid URL")
)

// LaunchError reports that the browser could not be found or started. It is
// fatal to the job.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("viewcapture: launching browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError reports that the target could not be loaded or did not
// settle in time. It is fatal to the job.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("viewcapture: navigating to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// PageFetchError records a failed download of one captured page. It is
// attached to the page and never aborts the job.
type PageFetchError struct {
	Sequence   int
	URL        string
	StatusCode int
	Err        error
}

func (e *PageFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("viewcapture: fetching page %d: unexpected status %d", e.Sequence, e.StatusCode)
	}
	return fmt.Sprintf("viewcapture: fetching page %d: %v", e.Sequence, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// DecodeError records a downloaded page whose bytes could not be decoded as
// an image. The page is skipped during assembly.
type DecodeError struct {
	Sequence int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("viewcapture: decoding page %d: %v", e.Sequence, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AssemblyError reports a failure to produce or persist the artifact itself,
// as opposed to a single bad page. It is fatal to the job.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("viewcapture: assembling document: %v", e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
