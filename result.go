package viewcapture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Result holds an assembled document and provides helpers for common output
// formats such as raw bytes, base64 encoding, and streaming readers.
//
// Its methods may be called repeatedly; the underlying data is never
// modified.
type Result struct {
	data  []byte
	pages int
}

// Bytes returns the raw PDF content.
func (r *Result) Bytes() []byte {
	return r.data
}

// PageCount returns the number of pages in the document.
func (r *Result) PageCount() int {
	return r.pages
}

// Base64 returns the PDF encoded as a standard base64 string (RFC 4648).
func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.data)
}

// Reader returns an [*bytes.Reader] over the PDF content, suitable for
// uploads to object storage.
func (r *Result) Reader() *bytes.Reader {
	return bytes.NewReader(r.data)
}

// WriteTo writes the full PDF content to w. It implements [io.WriterTo].
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(r.data)
	return int64(n), err
}

// WriteToFile writes the PDF to path through a temporary file in the same
// directory, so readers never observe a partial document.
func (r *Result) WriteToFile(path string, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".viewcapture-*.pdf")
	if err != nil {
		return fmt.Errorf("viewcapture: creating temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(r.data); err != nil {
		tmp.Close()
		return fmt.Errorf("viewcapture: writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("viewcapture: setting permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("viewcapture: closing temp file: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("viewcapture: renaming to %s: %w", path, err)
	}
	return nil
}

// Len returns the size of the PDF in bytes.
func (r *Result) Len() int {
	return len(r.data)
}
