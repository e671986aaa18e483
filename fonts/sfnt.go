package fonts

import (
	"context"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"pdftext/ir/raw"
)

// loadEmbeddedWidths derives advance widths from an embedded TrueType or
// OpenType program when the dictionary carries no usable /Widths. Fonts the
// sfnt parser rejects simply keep the default width.
func (f *Font) loadEmbeddedWidths(ctx context.Context, r Resolver, desc *raw.DictObj) {
	program := f.embeddedProgram(ctx, r, desc)
	if program == nil {
		return
	}
	font, err := sfnt.Parse(program)
	if err != nil {
		return
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return
	}
	buf := &sfnt.Buffer{}
	ppem := fixed.Int26_6(unitsPerEm << 6)
	f.widths = make(map[int]float64)

	if f.twoByte {
		// Identity ordering: character code is the glyph index.
		n := int(font.NumGlyphs())
		for g := 0; g < n; g++ {
			adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(g), ppem, xfont.HintingNone)
			if err != nil {
				continue
			}
			f.widths[g] = scaleUnits(adv, unitsPerEm)
		}
		return
	}
	if f.encoding == nil {
		f.encoding = standardTable()
	}
	for code := 0; code < 256; code++ {
		r := f.encoding[code]
		if r == 0 {
			continue
		}
		g, err := font.GlyphIndex(buf, r)
		if err != nil || g == 0 {
			continue
		}
		adv, err := font.GlyphAdvance(buf, g, ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		f.widths[code] = scaleUnits(adv, unitsPerEm)
	}
}

func (f *Font) embeddedProgram(ctx context.Context, r Resolver, desc *raw.DictObj) []byte {
	for _, key := range []string{"FontFile2", "FontFile3"} {
		obj, err := r.Resolve(ctx, raw.DictGet(desc, key))
		if err != nil {
			continue
		}
		stream, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := r.DecodeStream(ctx, stream)
		if err != nil {
			continue
		}
		return data
	}
	return nil
}

func scaleUnits(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
