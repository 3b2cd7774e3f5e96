package pdf

import (
	"bytes"
	"errors"
	"strconv"
)

// maxNesting bounds array and dictionary recursion.
const maxNesting = 100

var errTooDeep = errors.New("exceeded maximum nesting depth")

// Parser reads the object syntax produced by [Writer]: null, booleans,
// numbers, references, literal strings, names, arrays, dictionaries and
// streams. Hex strings are skipped and read as null; name #XX escapes are
// left undecoded.
type Parser struct {
	data  []byte
	pos   int
	depth int
}

// NewParser returns a parser over data starting at pos.
func NewParser(data []byte, pos int) *Parser {
	pos = max(0, min(pos, len(data)))
	return &Parser{data: data, pos: pos}
}

func (p *Parser) eof() bool { return p.pos >= len(p.data) }

func (p *Parser) peek() byte { return p.data[p.pos] }

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t' || b == '\f' || b == 0
}

func isDelim(b byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), b) >= 0
}

// skipWhitespace also skips % comments.
func (p *Parser) skipWhitespace() {
	for !p.eof() {
		c := p.peek()
		if c == '%' {
			for !p.eof() && p.peek() != '\n' && p.peek() != '\r' {
				p.pos++
			}
			continue
		}
		if !isWhitespace(c) {
			return
		}
		p.pos++
	}
}

// match consumes s if the input continues with it.
func (p *Parser) match(s string) bool {
	if p.eof() || !bytes.HasPrefix(p.data[p.pos:], []byte(s)) {
		return false
	}
	p.pos += len(s)
	return true
}

// readToken consumes a run of regular characters.
func (p *Parser) readToken() string {
	start := p.pos
	for !p.eof() && !isWhitespace(p.peek()) && !isDelim(p.peek()) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// ParseObject parses the object at the current position. Unrecognized
// tokens and end of input yield null.
func (p *Parser) ParseObject() (*Object, error) {
	if p.depth > maxNesting {
		return nil, errTooDeep
	}
	p.depth++
	defer func() { p.depth-- }()

	p.skipWhitespace()
	if p.eof() {
		return &Object{Type: ObjNull}, nil
	}
	switch c := p.peek(); {
	case c == '/':
		p.pos++
		return &Object{Type: ObjName, Name: p.readToken()}, nil
	case c == '[':
		return p.parseArray()
	case p.match("<<"):
		return p.parseDict()
	case c == '<':
		p.skipHexString()
		return &Object{Type: ObjNull}, nil
	case c == '(':
		return &Object{Type: ObjString, Str: p.parseString()}, nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber(), nil
	case p.match("true"):
		return &Object{Type: ObjBool, Bool: true}, nil
	case p.match("false"):
		return &Object{Type: ObjBool}, nil
	}
	if p.readToken() == "" {
		p.pos++
	}
	return &Object{Type: ObjNull}, nil
}

// parseString reads a literal string. Parentheses nest; a backslash makes
// the next byte literal.
func (p *Parser) parseString() []byte {
	p.pos++
	var out []byte
	for depth := 1; !p.eof(); p.pos++ {
		c := p.peek()
		switch c {
		case '\\':
			p.pos++
			if p.eof() {
				return out
			}
			c = p.peek()
		case '(':
			depth++
		case ')':
			if depth--; depth == 0 {
				p.pos++
				return out
			}
		}
		out = append(out, c)
	}
	return out
}

func (p *Parser) skipHexString() {
	if i := bytes.IndexByte(p.data[p.pos:], '>'); i >= 0 {
		p.pos += i + 1
		return
	}
	p.pos = len(p.data)
}

func (p *Parser) parseArray() (*Object, error) {
	p.pos++
	arr := &Object{Type: ObjArray}
	for {
		p.skipWhitespace()
		if p.eof() {
			return arr, nil
		}
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		elem, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		arr.Array = append(arr.Array, elem)
	}
}

// parseDict reads the entries after "<<" and, when the dictionary is
// followed by the stream keyword, the stream body.
func (p *Parser) parseDict() (*Object, error) {
	d := make(Dict)
	for {
		p.skipWhitespace()
		if p.eof() || p.match(">>") {
			break
		}
		if p.peek() != '/' {
			p.pos++
			continue
		}
		p.pos++
		key := p.readToken()
		val, err := p.ParseObject()
		if err != nil {
			return nil, err
		}
		d[key] = val
	}

	p.skipWhitespace()
	if !p.match("stream") {
		return &Object{Type: ObjDict, Dict: d}, nil
	}
	p.match("\r")
	p.match("\n")
	return &Object{Type: ObjStream, Dict: d, Stream: p.streamBody(d)}, nil
}

// streamBody returns /Length bytes when the length is a direct integer that
// fits, and otherwise everything up to endstream minus its leading EOL.
func (p *Parser) streamBody(d Dict) []byte {
	start := p.pos
	var body []byte
	if n, ok := d.GetInt("Length"); ok && n >= 0 && start+int(n) <= len(p.data) {
		body = p.data[start : start+int(n)]
		p.pos = start + int(n)
	} else {
		end := bytes.Index(p.data[start:], []byte("endstream"))
		if end < 0 {
			end = len(p.data) - start
		}
		p.pos = start + end
		body = bytes.TrimSuffix(p.data[start:p.pos], []byte("\n"))
		body = bytes.TrimSuffix(body, []byte("\r"))
	}
	p.skipWhitespace()
	p.match("endstream")
	return body
}

// parseNumber reads an integer, a real, or an "N G R" reference. A token
// that is neither number yields null.
func (p *Parser) parseNumber() *Object {
	tok := p.readToken()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return &Object{Type: ObjNull}
		}
		return &Object{Type: ObjFloat, Float: f}
	}

	mark := p.pos
	p.skipWhitespace()
	if g, err := strconv.Atoi(p.readToken()); err == nil {
		p.skipWhitespace()
		if p.match("R") && (p.eof() || isWhitespace(p.peek()) || isDelim(p.peek())) {
			return &Object{Type: ObjRef, Ref: Reference{Number: int(n), Gen: g}}
		}
	}
	p.pos = mark
	return &Object{Type: ObjInt, Int: n}
}
