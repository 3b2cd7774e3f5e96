package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxDecompressedSize bounds a single decoded stream (256 MB).
const maxDecompressedSize = 256 * 1024 * 1024

// DecodeStream returns the decoded bytes of a stream object. Only the filters
// the reader needs are supported: FlateDecode (with PNG predictors, as used by
// cross-reference streams) and the image filters, which pass through.
func DecodeStream(dict Dict, data []byte) ([]byte, error) {
	filterObj, ok := dict["Filter"]
	if !ok {
		return data, nil
	}

	var filters []string
	var params []Dict
	switch filterObj.Type {
	case ObjName:
		filters = []string{filterObj.Name}
		parms, _ := dict.GetDict("DecodeParms")
		params = []Dict{parms}
	case ObjArray:
		for _, f := range filterObj.Array {
			if f.Type == ObjName {
				filters = append(filters, f.Name)
			}
		}
		if arr, ok := dict["DecodeParms"]; ok && arr.Type == ObjArray {
			for _, p := range arr.Array {
				if p != nil && p.Type == ObjDict {
					params = append(params, p.Dict)
				} else {
					params = append(params, nil)
				}
			}
		}
	default:
		return data, nil
	}
	for len(params) < len(filters) {
		params = append(params, nil)
	}

	current := data
	for i, filter := range filters {
		var err error
		switch filter {
		case "FlateDecode", "Fl":
			current, err = flateDecode(params[i], current)
		case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode", "CCITTFaxDecode", "CCF":
		default:
			err = fmt.Errorf("unsupported filter %s", filter)
		}
		if err != nil {
			return nil, fmt.Errorf("applying filter %s: %w", filter, err)
		}
	}
	return current, nil
}

func flateDecode(parms Dict, data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("zlib read: %w", err)
	}
	if len(out) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed size exceeds 256 MB limit")
	}
	if parms == nil {
		return out, nil
	}
	if predictor, ok := parms.GetInt("Predictor"); ok && predictor >= 10 {
		return undoPNGPredictor(parms, out), nil
	}
	return out, nil
}

// undoPNGPredictor reverses PNG row filters (predictors 10-15).
func undoPNGPredictor(parms Dict, data []byte) []byte {
	colors := intOr(parms, "Colors", 1)
	bpc := intOr(parms, "BitsPerComponent", 8)
	columns := intOr(parms, "Columns", 1)

	rowBytes := (columns*colors*bpc + 7) / 8
	bpp := (colors*bpc + 7) / 8
	stride := rowBytes + 1
	if len(data) == 0 || rowBytes == 0 {
		return data
	}

	rows := len(data) / stride
	out := make([]byte, rows*rowBytes)
	prev := make([]byte, rowBytes)
	for row := 0; row < rows; row++ {
		src := data[row*stride+1 : (row+1)*stride]
		dst := out[row*rowBytes : (row+1)*rowBytes]
		filter := data[row*stride]
		for i := range dst {
			var left, upLeft byte
			if i >= bpp {
				left = dst[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filter {
			case 1:
				dst[i] = src[i] + left
			case 2:
				dst[i] = src[i] + up
			case 3:
				dst[i] = src[i] + byte((int(left)+int(up))/2)
			case 4:
				dst[i] = src[i] + paeth(left, up, upLeft)
			default:
				dst[i] = src[i]
			}
		}
		copy(prev, dst)
	}
	return out
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := absInt(p-int(a)), absInt(p-int(b)), absInt(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func intOr(d Dict, key string, def int) int {
	if v, ok := d.GetInt(key); ok && v > 0 {
		return int(v)
	}
	return def
}
