package filters

import (
	"errors"

	"pdftext/ir/raw"
)

// applyPredictor undoes the PNG/TIFF predictors declared in /DecodeParms.
// Predictor 1 (or no params) is the identity.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := int(raw.IntFromDict(params, "Predictor", 1))
	if predictor <= 1 {
		return data, nil
	}
	colors := int(raw.IntFromDict(params, "Colors", 1))
	bpc := int(raw.IntFromDict(params, "BitsPerComponent", 8))
	columns := int(raw.IntFromDict(params, "Columns", 1))
	bpp := (colors*bpc + 7) / 8 // bytes per pixel
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		return applyTIFFPredictor(data, colors, bpc, columns)
	}
	if predictor < 10 || predictor > 15 {
		return nil, errors.New("unsupported predictor")
	}
	// PNG predictors: each row is prefixed with a per-row filter byte.
	if rowLen+1 <= 0 || len(data)%(rowLen+1) != 0 {
		return nil, errors.New("predictor row size mismatch")
	}
	rows := len(data) / (rowLen + 1)
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		ft := data[r*(rowLen+1)]
		copy(row, data[r*(rowLen+1)+1:(r+1)*(rowLen+1)])
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				row[i] += row[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				row[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(row[i-bpp])
				}
				row[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				left, upLeft := 0, 0
				if i >= bpp {
					left = int(row[i-bpp])
					upLeft = int(prev[i-bpp])
				}
				row[i] += byte(paeth(left, int(prev[i]), upLeft))
			}
		default:
			return nil, errors.New("unknown PNG filter type")
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func applyTIFFPredictor(data []byte, colors, bpc, columns int) ([]byte, error) {
	if bpc != 8 {
		return nil, errors.New("TIFF predictor supported for 8-bit components only")
	}
	rowLen := colors * columns
	if rowLen == 0 || len(data)%rowLen != 0 {
		return nil, errors.New("predictor row size mismatch")
	}
	out := append([]byte(nil), data...)
	for r := 0; r < len(out); r += rowLen {
		for i := colors; i < rowLen; i++ {
			out[r+i] += out[r+i-colors]
		}
	}
	return out, nil
}

func paeth(a, b, c int) int {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
