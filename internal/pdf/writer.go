package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ColorSpace names the device colour space of embedded samples.
type ColorSpace string

const (
	DeviceRGB  ColorSpace = "DeviceRGB"
	DeviceGray ColorSpace = "DeviceGray"
)

func (cs ColorSpace) components() int {
	if cs == DeviceGray {
		return 1
	}
	return 3
}

// Image is the raster drawn on one page. Exactly one of JPEG or Samples is
// set. JPEG data is embedded unchanged with DCTDecode; Samples are 8-bit
// interleaved components and are Flate-compressed. Alpha, when non-nil, holds
// one 8-bit coverage value per pixel and becomes a soft mask.
type Image struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	JPEG       []byte
	Samples    []byte
	Alpha      []byte
}

// ErrInvalidImage is returned by AddImagePage for inconsistent image data.
var ErrInvalidImage = errors.New("invalid image")

type encodedPage struct {
	width, height int
	cs            ColorSpace
	filter        string
	data          []byte
	mask          []byte
}

// Writer builds a document with one image per page, each page exactly as
// large as its image (one pixel maps to one point). Image streams are
// compressed as they are added, so only encoded data is kept in memory.
// Output is deterministic: identical pages produce identical bytes.
type Writer struct {
	pages []encodedPage
	level int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{level: zlib.DefaultCompression}
}

// PageCount returns the number of pages added so far.
func (w *Writer) PageCount() int { return len(w.pages) }

// AddImagePage appends a page sized to img and draws img over the whole page.
func (w *Writer) AddImagePage(img Image) error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	cs := img.ColorSpace
	if cs == "" {
		cs = DeviceRGB
	}
	page := encodedPage{width: img.Width, height: img.Height, cs: cs}

	switch {
	case len(img.JPEG) > 0:
		page.filter = "DCTDecode"
		page.data = img.JPEG
	case len(img.Samples) > 0:
		if want := img.Width * img.Height * cs.components(); len(img.Samples) != want {
			return fmt.Errorf("%w: %d samples, want %d", ErrInvalidImage, len(img.Samples), want)
		}
		data, err := w.deflate(img.Samples)
		if err != nil {
			return err
		}
		page.filter = "FlateDecode"
		page.data = data
	default:
		return fmt.Errorf("%w: no image data", ErrInvalidImage)
	}

	if img.Alpha != nil {
		if len(img.Alpha) != img.Width*img.Height {
			return fmt.Errorf("%w: %d alpha values, want %d", ErrInvalidImage, len(img.Alpha), img.Width*img.Height)
		}
		mask, err := w.deflate(img.Alpha)
		if err != nil {
			return err
		}
		page.mask = mask
	}

	w.pages = append(w.pages, page)
	return nil
}

func (w *Writer) deflate(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, w.level)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

// Bytes serializes the document.
func (w *Writer) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo serializes the document to out. It implements [io.WriterTo].
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: out}

	// Object numbering: 1 catalog, 2 page tree, then per page the page,
	// its content stream, its image and the optional soft mask.
	type pageRefs struct{ page, content, image, mask int }
	refs := make([]pageRefs, len(w.pages))
	next := 3
	for i, p := range w.pages {
		refs[i] = pageRefs{page: next, content: next + 1, image: next + 2}
		next += 3
		if p.mask != nil {
			refs[i].mask = next
			next++
		}
	}
	offsets := make([]int64, next)

	begin := func(num int) {
		offsets[num] = cw.n
		cw.printf("%d 0 obj\n", num)
	}
	stream := func(dict string, data []byte) {
		cw.printf("<< %s /Length %d >>\nstream\n", dict, len(data))
		cw.write(data)
		cw.printf("\nendstream\nendobj\n")
	}

	cw.printf("%%PDF-1.7\n%%\xe2\xe3\xcf\xd3\n")

	begin(1)
	cw.printf("<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	begin(2)
	cw.printf("<< /Type /Pages /Kids [")
	for i, r := range refs {
		if i > 0 {
			cw.printf(" ")
		}
		cw.printf("%d 0 R", r.page)
	}
	cw.printf("] /Count %d >>\nendobj\n", len(refs))

	for i, p := range w.pages {
		r := refs[i]

		begin(r.page)
		cw.printf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /XObject << /Im0 %d 0 R >> >> >>\nendobj\n",
			p.width, p.height, r.content, r.image)

		begin(r.content)
		stream("", []byte(fmt.Sprintf("q\n%d 0 0 %d 0 0 cm\n/Im0 Do\nQ\n", p.width, p.height)))

		begin(r.image)
		dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /%s /BitsPerComponent 8 /Filter /%s",
			p.width, p.height, p.cs, p.filter)
		if p.mask != nil {
			dict += fmt.Sprintf(" /SMask %d 0 R", r.mask)
		}
		stream(dict, p.data)

		if p.mask != nil {
			begin(r.mask)
			stream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode",
				p.width, p.height), p.mask)
		}
	}

	xref := cw.n
	cw.printf("xref\n0 %d\n0000000000 65535 f \n", next)
	for _, off := range offsets[1:] {
		cw.printf("%010d 00000 n \n", off)
	}
	cw.printf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", next, xref)

	return cw.n, cw.err
}

// countingWriter tracks the output offset and keeps the first write error.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) write(p []byte) {
	if c.err != nil {
		return
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) printf(format string, args ...any) {
	c.write([]byte(fmt.Sprintf(format, args...)))
}
