package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrNotPDF is returned by Load when the data has no %PDF- header.
var ErrNotPDF = errors.New("not a PDF file")

type xrefEntry struct {
	offset     int64
	inUse      bool
	compressed bool
	streamObj  int
	index      int
}

// Document is a parsed PDF file. It resolves objects lazily and caches them.
type Document struct {
	data    []byte
	xref    map[int]xrefEntry
	trailer Dict
	cache   map[int]*Object
}

// Open reads a PDF file from disk.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return Load(data)
}

// Load parses a PDF from raw bytes.
func Load(data []byte) (*Document, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	doc := &Document{
		data:  data,
		xref:  make(map[int]xrefEntry),
		cache: make(map[int]*Object),
	}
	offset, err := doc.startXRef()
	if err != nil {
		return nil, err
	}
	if err := doc.loadXRefAt(offset, 0); err != nil {
		return nil, fmt.Errorf("loading xref: %w", err)
	}
	return doc, nil
}

// Version returns the header version, e.g. "1.7".
func (doc *Document) Version() string {
	line := doc.data[5:]
	if i := bytes.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(string(line))
}

func (doc *Document) startXRef() (int64, error) {
	from := max(len(doc.data)-1024, 0)
	idx := bytes.LastIndex(doc.data[from:], []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	p := NewParser(doc.data, from+idx+len("startxref"))
	p.skipWhitespace()
	off, err := strconv.ParseInt(p.readToken(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing startxref: %w", err)
	}
	return off, nil
}

// loadXRefAt loads the section at offset and follows /Prev links. depth
// guards against cyclic /Prev chains.
func (doc *Document) loadXRefAt(offset int64, depth int) error {
	if depth > 32 {
		return fmt.Errorf("xref /Prev chain too long")
	}
	if offset < 0 || int(offset) >= len(doc.data) {
		return fmt.Errorf("xref offset out of bounds: %d", offset)
	}
	p := NewParser(doc.data, int(offset))
	p.skipWhitespace()

	var section Dict
	var err error
	if p.match("xref") {
		section, err = doc.parseXRefTable(p)
	} else {
		section, err = doc.parseXRefStream(p)
	}
	if err != nil {
		return err
	}
	if doc.trailer == nil {
		doc.trailer = section
	}
	if prev, ok := section.GetInt("Prev"); ok && prev > 0 {
		return doc.loadXRefAt(prev, depth+1)
	}
	return nil
}

// parseXRefTable reads a classic "xref" table and returns its trailer.
func (doc *Document) parseXRefTable(p *Parser) (Dict, error) {
	for {
		p.skipWhitespace()
		if p.pos >= len(doc.data) {
			return nil, fmt.Errorf("xref table not terminated")
		}
		if p.match("trailer") {
			break
		}
		first, err1 := strconv.Atoi(p.readToken())
		p.skipWhitespace()
		count, err2 := strconv.Atoi(p.readToken())
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("malformed xref subsection at %d", p.pos)
		}
		p.skipWhitespace()
		// Entries are fixed 20-byte records: "oooooooooo ggggg n\r\n".
		for i := 0; i < count && p.pos+20 <= len(doc.data); i++ {
			entry := string(doc.data[p.pos : p.pos+20])
			p.pos += 20
			id := first + i
			if _, seen := doc.xref[id]; seen {
				continue
			}
			off, _ := strconv.ParseInt(strings.TrimSpace(entry[:10]), 10, 64)
			doc.xref[id] = xrefEntry{offset: off, inUse: entry[17] == 'n'}
		}
	}
	obj, err := p.ParseObject()
	if err != nil {
		return nil, fmt.Errorf("parsing trailer: %w", err)
	}
	if obj.Type != ObjDict {
		return nil, fmt.Errorf("trailer is not a dictionary")
	}
	return obj.Dict, nil
}

// parseXRefStream reads a cross-reference stream (PDF 1.5+).
func (doc *Document) parseXRefStream(p *Parser) (Dict, error) {
	obj, err := parseIndirect(p)
	if err != nil {
		return nil, fmt.Errorf("parsing xref stream: %w", err)
	}
	if obj.Type != ObjStream {
		return nil, fmt.Errorf("xref at offset is not a stream")
	}
	data, err := DecodeStream(obj.Dict, obj.Stream)
	if err != nil {
		return nil, fmt.Errorf("decoding xref stream: %w", err)
	}

	w, _ := obj.Dict.GetArray("W")
	if len(w) < 3 {
		return nil, fmt.Errorf("xref stream missing /W")
	}
	w1, w2, w3 := int(w[0].Int), int(w[1].Int), int(w[2].Int)
	size := w1 + w2 + w3
	if size == 0 {
		return nil, fmt.Errorf("xref stream has zero entry size")
	}

	total, _ := obj.Dict.GetInt("Size")
	sections := [][2]int{{0, int(total)}}
	if idx, ok := obj.Dict.GetArray("Index"); ok && len(idx) >= 2 {
		sections = sections[:0]
		for i := 0; i+1 < len(idx); i += 2 {
			sections = append(sections, [2]int{int(idx[i].Int), int(idx[i+1].Int)})
		}
	}

	pos := 0
	for _, sec := range sections {
		for i := 0; i < sec[1] && pos+size <= len(data); i++ {
			id := sec[0] + i
			typ := readBE(data[pos:], w1, 1)
			f2 := readBE(data[pos+w1:], w2, 0)
			f3 := readBE(data[pos+w1+w2:], w3, 0)
			pos += size
			if _, seen := doc.xref[id]; seen {
				continue
			}
			switch typ {
			case 1:
				doc.xref[id] = xrefEntry{offset: int64(f2), inUse: true}
			case 2:
				doc.xref[id] = xrefEntry{compressed: true, streamObj: f2, index: f3, inUse: true}
			default:
				doc.xref[id] = xrefEntry{}
			}
		}
	}
	return obj.Dict, nil
}

// readBE reads an n-byte big-endian field; a zero-width field yields def.
func readBE(data []byte, n, def int) int {
	if n == 0 {
		return def
	}
	v := 0
	for i := 0; i < n && i < len(data); i++ {
		v = v<<8 | int(data[i])
	}
	return v
}

// parseIndirect consumes "N G obj" and returns the object that follows.
func parseIndirect(p *Parser) (*Object, error) {
	p.skipWhitespace()
	p.readToken()
	p.skipWhitespace()
	p.readToken()
	p.skipWhitespace()
	if !p.match("obj") {
		return nil, fmt.Errorf("expected 'obj' at offset %d", p.pos)
	}
	return p.ParseObject()
}

// ResolveRef follows an indirect reference. Missing or free objects resolve
// to null, as the PDF format requires.
func (doc *Document) ResolveRef(ref Reference) (*Object, error) {
	if obj, ok := doc.cache[ref.Number]; ok {
		return obj, nil
	}
	entry, ok := doc.xref[ref.Number]
	if !ok || !entry.inUse {
		return &Object{Type: ObjNull}, nil
	}

	var obj *Object
	var err error
	if entry.compressed {
		obj, err = doc.resolveCompressed(ref.Number, entry)
	} else {
		obj, err = doc.resolveAt(entry.offset)
	}
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", ref.Number, err)
	}
	doc.cache[ref.Number] = obj
	return obj, nil
}

func (doc *Document) resolveAt(offset int64) (*Object, error) {
	if offset < 0 || int(offset) >= len(doc.data) {
		return nil, fmt.Errorf("offset %d out of bounds", offset)
	}
	return parseIndirect(NewParser(doc.data, int(offset)))
}

func (doc *Document) resolveCompressed(num int, entry xrefEntry) (*Object, error) {
	container, err := doc.ResolveRef(Reference{Number: entry.streamObj})
	if err != nil {
		return nil, err
	}
	if container.Type != ObjStream {
		return nil, fmt.Errorf("object stream %d is not a stream", entry.streamObj)
	}
	data, err := DecodeStream(container.Dict, container.Stream)
	if err != nil {
		return nil, err
	}
	n, _ := container.Dict.GetInt("N")
	first, _ := container.Dict.GetInt("First")

	p := NewParser(data, 0)
	for i := 0; i < int(n); i++ {
		p.skipWhitespace()
		id, _ := strconv.Atoi(p.readToken())
		p.skipWhitespace()
		off, _ := strconv.Atoi(p.readToken())
		if id == num {
			return NewParser(data, int(first)+off).ParseObject()
		}
	}
	return nil, fmt.Errorf("object %d not found in object stream %d", num, entry.streamObj)
}

// Resolve returns obj, following it when it is an indirect reference.
func (doc *Document) Resolve(obj *Object) (*Object, error) {
	if obj == nil || obj.Type != ObjRef {
		return obj, nil
	}
	return doc.ResolveRef(obj.Ref)
}

func (doc *Document) resolveDict(obj *Object) Dict {
	r, err := doc.Resolve(obj)
	if err != nil || r == nil || (r.Type != ObjDict && r.Type != ObjStream) {
		return nil
	}
	return r.Dict
}

// Catalog returns the document catalog dictionary.
func (doc *Document) Catalog() (Dict, error) {
	root, ok := doc.trailer["Root"]
	if !ok {
		return nil, fmt.Errorf("no /Root in trailer")
	}
	cat := doc.resolveDict(root)
	if cat == nil {
		return nil, fmt.Errorf("root is not a dictionary")
	}
	return cat, nil
}

// Pages returns all page dictionaries in document order.
func (doc *Document) Pages() ([]Dict, error) {
	cat, err := doc.Catalog()
	if err != nil {
		return nil, err
	}
	tree := doc.resolveDict(cat["Pages"])
	if tree == nil {
		return nil, fmt.Errorf("no /Pages in catalog")
	}
	var pages []Dict
	doc.collectPages(tree, &pages, 0)
	return pages, nil
}

func (doc *Document) collectPages(node Dict, pages *[]Dict, depth int) {
	if depth > maxNesting {
		return
	}
	if typ, _ := node.GetName("Type"); typ == "Page" {
		*pages = append(*pages, node)
		return
	}
	kids, err := doc.Resolve(node["Kids"])
	if err != nil || kids == nil || kids.Type != ObjArray {
		return
	}
	for _, kid := range kids.Array {
		if d := doc.resolveDict(kid); d != nil {
			doc.collectPages(d, pages, depth+1)
		}
	}
}

// PageInfo holds the geometry of a single page.
type PageInfo struct {
	Width    float64
	Height   float64
	Rotation int
}

// GetPageInfo returns the MediaBox size and rotation of page.
func (doc *Document) GetPageInfo(page Dict) PageInfo {
	var info PageInfo
	if mb, err := doc.Resolve(page["MediaBox"]); err == nil && mb != nil && mb.Type == ObjArray && len(mb.Array) >= 4 {
		info.Width = floatFromObj(mb.Array[2]) - floatFromObj(mb.Array[0])
		info.Height = floatFromObj(mb.Array[3]) - floatFromObj(mb.Array[1])
	}
	if rot, err := doc.Resolve(page["Rotate"]); err == nil && rot != nil && rot.Type == ObjInt {
		info.Rotation = int(rot.Int)
	}
	return info
}

// ImageInfo describes an image XObject referenced by a page.
type ImageInfo struct {
	Name       string
	Width      int
	Height     int
	Filter     string
	ColorSpace string
	HasMask    bool
}

// PageImages lists the image XObjects in a page's resources, sorted by
// resource name.
func (doc *Document) PageImages(page Dict) []ImageInfo {
	res := doc.resolveDict(page["Resources"])
	if res == nil {
		return nil
	}
	xobjs := doc.resolveDict(res["XObject"])
	var out []ImageInfo
	for name, ref := range xobjs {
		d := doc.resolveDict(ref)
		if sub, _ := d.GetName("Subtype"); sub != "Image" {
			continue
		}
		w, _ := d.GetInt("Width")
		h, _ := d.GetInt("Height")
		filter, _ := d.GetName("Filter")
		cs, _ := d.GetName("ColorSpace")
		_, mask := d["SMask"]
		out = append(out, ImageInfo{
			Name:       name,
			Width:      int(w),
			Height:     int(h),
			Filter:     filter,
			ColorSpace: cs,
			HasMask:    mask,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
