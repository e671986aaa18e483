// Package fonts loads font dictionaries far enough to decode strings: code
// widths for positioning and a code-to-text mapping for extraction.
package fonts

import (
	"context"

	"pdftext/ir/raw"
)

// Resolver is the slice of the document the font loader needs.
type Resolver interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	DecodeStream(ctx context.Context, stream *raw.StreamObj) ([]byte, error)
}

// Decoded is one character code pulled from a show-text string.
type Decoded struct {
	Code  int
	Text  string
	Width float64 // glyph space, thousandths of text space
}

// Font holds decode tables for one /Font resource. Immutable after Load, so
// safe to share across goroutines.
type Font struct {
	Name    string
	Subtype string

	twoByte      bool
	widths       map[int]float64
	defaultWidth float64
	encoding     *[256]rune
	toUnicode    map[int]string
}

const fallbackWidth = 500

// Default returns the substitute used when a text operator names a font the
// resources do not carry: WinAnsi text mapping over a flat width table.
func Default() *Font {
	return &Font{
		Name:         "Helvetica",
		Subtype:      "Type1",
		defaultWidth: fallbackWidth,
		encoding:     baseEncoding("WinAnsiEncoding"),
	}
}

// TwoByte reports whether codes are two bytes wide (CID fonts).
func (f *Font) TwoByte() bool { return f.twoByte }

// DecodeString splits a string argument into character codes with their
// widths and unicode text.
func (f *Font) DecodeString(b []byte) []Decoded {
	step := 1
	if f.twoByte {
		step = 2
	}
	out := make([]Decoded, 0, len(b)/step)
	for i := 0; i+step <= len(b); i += step {
		code := int(b[i])
		if f.twoByte {
			code = int(b[i])<<8 | int(b[i+1])
		}
		out = append(out, Decoded{Code: code, Text: f.textFor(code), Width: f.WidthOf(code)})
	}
	// A trailing odd byte in a two-byte font still consumes a code.
	if f.twoByte && len(b)%2 == 1 {
		code := int(b[len(b)-1])
		out = append(out, Decoded{Code: code, Text: f.textFor(code), Width: f.WidthOf(code)})
	}
	return out
}

// WidthOf returns the advance width for a code in thousandths of text space.
func (f *Font) WidthOf(code int) float64 {
	if w, ok := f.widths[code]; ok {
		return w
	}
	return f.defaultWidth
}

func (f *Font) textFor(code int) string {
	if f.toUnicode != nil {
		if s, ok := f.toUnicode[code]; ok {
			return s
		}
	}
	if f.encoding != nil && code >= 0 && code < 256 {
		if r := f.encoding[code]; r != 0 {
			return string(r)
		}
	}
	// No mapping: fall back to the code itself for the printable ASCII
	// range, which rescues fonts with broken tables.
	if !f.twoByte && code >= 0x20 && code < 0x7F {
		return string(rune(code))
	}
	return ""
}

// Load builds a Font from a /Font dictionary.
func Load(ctx context.Context, r Resolver, dict *raw.DictObj) (*Font, error) {
	subtype := raw.NameValue(raw.DictGet(dict, "Subtype"))
	f := &Font{
		Name:         raw.NameValue(raw.DictGet(dict, "BaseFont")),
		Subtype:      subtype,
		defaultWidth: fallbackWidth,
	}
	if subtype == "Type0" {
		if err := f.loadType0(ctx, r, dict); err != nil {
			return nil, err
		}
	} else {
		if err := f.loadSimple(ctx, r, dict); err != nil {
			return nil, err
		}
	}
	if tu, err := loadToUnicode(ctx, r, raw.DictGet(dict, "ToUnicode")); err == nil && tu != nil {
		f.toUnicode = tu
	}
	return f, nil
}

func (f *Font) loadSimple(ctx context.Context, r Resolver, dict *raw.DictObj) error {
	f.loadEncoding(ctx, r, raw.DictGet(dict, "Encoding"))

	first := raw.IntFromDict(dict, "FirstChar", 0)
	widthsObj, err := r.Resolve(ctx, raw.DictGet(dict, "Widths"))
	if err == nil {
		if arr, ok := widthsObj.(*raw.ArrayObj); ok {
			f.widths = make(map[int]float64, arr.Len())
			for i, it := range arr.Items {
				v, err := r.Resolve(ctx, it)
				if err != nil {
					continue
				}
				if w, ok := raw.FloatValue(v); ok && w != 0 {
					f.widths[int(first)+i] = w
				}
			}
		}
	}

	desc, _ := r.Resolve(ctx, raw.DictGet(dict, "FontDescriptor"))
	if descDict, ok := desc.(*raw.DictObj); ok {
		if mw := raw.IntFromDict(descDict, "MissingWidth", -1); mw >= 0 {
			f.defaultWidth = float64(mw)
		}
		if len(f.widths) == 0 {
			f.loadEmbeddedWidths(ctx, r, descDict)
		}
	}
	return nil
}

func (f *Font) loadEncoding(ctx context.Context, r Resolver, encObj raw.Object) {
	resolved, err := r.Resolve(ctx, encObj)
	if err != nil {
		f.encoding = standardTable()
		return
	}
	switch v := resolved.(type) {
	case raw.NameObj:
		f.encoding = baseEncoding(v.Val)
	case *raw.DictObj:
		base := baseEncoding(raw.NameValue(raw.DictGet(v, "BaseEncoding")))
		table := *base // copy before applying differences
		if diffs, ok := raw.DictGet(v, "Differences").(*raw.ArrayObj); ok {
			applyDifferences(&table, diffs)
		}
		f.encoding = &table
	default:
		f.encoding = standardTable()
	}
}

// applyDifferences walks the /Differences array: an integer resets the code
// cursor, each name assigns the next code.
func applyDifferences(table *[256]rune, diffs *raw.ArrayObj) {
	code := 0
	for _, it := range diffs.Items {
		switch v := it.(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				table[code] = glyphToRune(v.Val)
			}
			code++
		}
	}
}

func (f *Font) loadType0(ctx context.Context, r Resolver, dict *raw.DictObj) error {
	f.twoByte = true
	// Identity-H/V order bytes directly; other named CMaps still use
	// two-byte codes for the CJK registries this reader meets in practice.
	f.defaultWidth = 1000

	descArr, err := r.Resolve(ctx, raw.DictGet(dict, "DescendantFonts"))
	if err != nil {
		return err
	}
	arr, ok := descArr.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	descObj, err := r.Resolve(ctx, arr.Items[0])
	if err != nil {
		return err
	}
	cid, ok := descObj.(*raw.DictObj)
	if !ok {
		return nil
	}
	if dw := raw.IntFromDict(cid, "DW", -1); dw >= 0 {
		f.defaultWidth = float64(dw)
	}
	wObj, err := r.Resolve(ctx, raw.DictGet(cid, "W"))
	if err == nil {
		if wArr, ok := wObj.(*raw.ArrayObj); ok {
			f.widths = parseCIDWidths(ctx, r, wArr)
		}
	}
	if len(f.widths) == 0 {
		desc, _ := r.Resolve(ctx, raw.DictGet(cid, "FontDescriptor"))
		if descDict, ok := desc.(*raw.DictObj); ok {
			f.loadEmbeddedWidths(ctx, r, descDict)
		}
	}
	return nil
}

// parseCIDWidths reads the /W array: "c [w1 w2 ...]" assigns consecutive
// widths from c, "cFirst cLast w" assigns a range.
func parseCIDWidths(ctx context.Context, r Resolver, arr *raw.ArrayObj) map[int]float64 {
	out := make(map[int]float64)
	i := 0
	next := func() (raw.Object, bool) {
		if i >= arr.Len() {
			return nil, false
		}
		obj, err := r.Resolve(ctx, arr.Items[i])
		i++
		if err != nil {
			return nil, false
		}
		return obj, true
	}
	for {
		firstObj, ok := next()
		if !ok {
			return out
		}
		first, isNum := raw.FloatValue(firstObj)
		if !isNum {
			continue
		}
		secondObj, ok := next()
		if !ok {
			return out
		}
		switch v := secondObj.(type) {
		case *raw.ArrayObj:
			for j, it := range v.Items {
				res, err := r.Resolve(ctx, it)
				if err != nil {
					continue
				}
				if w, ok := raw.FloatValue(res); ok {
					out[int(first)+j] = w
				}
			}
		case raw.NumberObj:
			last := v.Float()
			wObj, ok := next()
			if !ok {
				return out
			}
			w, isNum := raw.FloatValue(wObj)
			if !isNum {
				continue
			}
			if last-first > 65535 {
				continue // refuse absurd ranges
			}
			for c := int(first); c <= int(last); c++ {
				out[c] = w
			}
		}
	}
}
