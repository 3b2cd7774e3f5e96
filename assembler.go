package viewcapture

import (
	"log/slog"
	"os"

	"github.com/porticus-lab/viewcapture/internal/pdf"
)

// PageFailure names a captured page that is absent from the document.
type PageFailure struct {
	Sequence int
	Err      error
}

// AssemblyReport describes which captured pages made it into a document.
type AssemblyReport struct {
	// Included lists the sequences of the pages in the document, in order.
	Included []int
	// Skipped lists pages that failed to download or decode.
	Skipped []PageFailure
}

// Missing returns the sequences of the skipped pages.
func (r AssemblyReport) Missing() []int {
	if len(r.Skipped) == 0 {
		return nil
	}
	out := make([]int, len(r.Skipped))
	for i, f := range r.Skipped {
		out[i] = f.Sequence
	}
	return out
}

// Assembler combines downloaded page images into one document with one page
// per image, each page sized to its image.
type Assembler struct {
	Logger *slog.Logger
}

// Assemble walks pages in the given order. Pages that failed to download or
// cannot be decoded are skipped and reported. With no usable pages the result
// is a valid document with zero pages. Only a failure to build the document
// itself returns an error, as an [*AssemblyError].
func (a *Assembler) Assemble(pages []DownloadedPage) (*Result, AssemblyReport, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var report AssemblyReport
	w := pdf.NewWriter()
	for _, p := range pages {
		seq := p.Request.Sequence
		if !p.OK() {
			report.Skipped = append(report.Skipped, PageFailure{Sequence: seq, Err: p.Err})
			continue
		}

		img, err := readPageImage(p)
		if err == nil {
			err = w.AddImagePage(img)
		}
		if err != nil {
			derr := &DecodeError{Sequence: seq, Err: err}
			logger.Warn("skipping undecodable page", "sequence", seq, "path", p.Path, "error", err)
			report.Skipped = append(report.Skipped, PageFailure{Sequence: seq, Err: derr})
			continue
		}
		report.Included = append(report.Included, seq)
	}

	data, err := w.Bytes()
	if err != nil {
		return nil, report, &AssemblyError{Err: err}
	}
	logger.Info("document assembled", "pages", w.PageCount(), "skipped", len(report.Skipped))
	return &Result{data: data, pages: w.PageCount()}, report, nil
}

func readPageImage(p DownloadedPage) (pdf.Image, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return pdf.Image{}, err
	}
	return decodePageImage(data)
}
