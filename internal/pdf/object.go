// Package pdf implements the small slice of the PDF object model the
// capture pipeline needs: a writer that lays out one image per page, and a
// reader that can walk the page tree of a finished artifact to report page
// counts, MediaBox dimensions and the image drawn on each page.
package pdf

// ObjectType identifies the kind of a PDF object.
type ObjectType int

const (
	ObjNull ObjectType = iota
	ObjBool
	ObjInt
	ObjFloat
	ObjString
	ObjName
	ObjArray
	ObjDict
	ObjStream
	ObjRef
)

// Object holds any PDF object value.
type Object struct {
	Type   ObjectType
	Bool   bool
	Int    int64
	Float  float64
	Str    []byte
	Name   string
	Array  []*Object
	Dict   Dict
	Stream []byte // raw stream data
	Ref    Reference
}

// Reference is an indirect object reference (N G R).
type Reference struct {
	Number int
	Gen    int
}

// Dict is a PDF dictionary (name -> object).
type Dict map[string]*Object

// GetInt returns the integer value of a Dict entry.
func (d Dict) GetInt(key string) (int64, bool) {
	obj, ok := d[key]
	if !ok {
		return 0, false
	}
	switch obj.Type {
	case ObjInt:
		return obj.Int, true
	case ObjFloat:
		return int64(obj.Float), true
	}
	return 0, false
}

// GetName returns the name value of a Dict entry.
func (d Dict) GetName(key string) (string, bool) {
	obj, ok := d[key]
	if !ok {
		return "", false
	}
	switch obj.Type {
	case ObjName:
		return obj.Name, true
	case ObjString:
		return string(obj.Str), true
	}
	return "", false
}

// GetArray returns the array value of a Dict entry. A single object is
// treated as a one-element array.
func (d Dict) GetArray(key string) ([]*Object, bool) {
	obj, ok := d[key]
	if !ok {
		return nil, false
	}
	if obj.Type == ObjArray {
		return obj.Array, true
	}
	return []*Object{obj}, true
}

// GetDict returns the dict value of a Dict entry.
func (d Dict) GetDict(key string) (Dict, bool) {
	obj, ok := d[key]
	if !ok {
		return nil, false
	}
	if obj.Type == ObjDict || obj.Type == ObjStream {
		return obj.Dict, true
	}
	return nil, false
}

func floatFromObj(obj *Object) float64 {
	if obj == nil {
		return 0
	}
	switch obj.Type {
	case ObjFloat:
		return obj.Float
	case ObjInt:
		return float64(obj.Int)
	}
	return 0
}
