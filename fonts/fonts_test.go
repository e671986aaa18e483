package fonts

import (
	"context"
	"testing"

	"pdftext/ir/raw"
)

// mapResolver serves objects from a map and passes stream payloads through
// undecoded.
type mapResolver map[raw.ObjectRef]raw.Object

func (m mapResolver) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	for {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		obj = m[ref.R]
		if obj == nil {
			return raw.NullObj{}, nil
		}
	}
}

func (m mapResolver) DecodeStream(ctx context.Context, stream *raw.StreamObj) ([]byte, error) {
	return stream.Data, nil
}

func widthsArray(ws ...int64) *raw.ArrayObj {
	arr := &raw.ArrayObj{}
	for _, w := range ws {
		arr.Append(raw.NumberInt(w))
	}
	return arr
}

func TestSimpleFontWidthsAndText(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	dict.Set(raw.NameLiteral("BaseFont"), raw.NameLiteral("Helvetica"))
	dict.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("WinAnsiEncoding"))
	dict.Set(raw.NameLiteral("FirstChar"), raw.NumberInt(65))
	dict.Set(raw.NameLiteral("Widths"), widthsArray(600, 650))

	f, err := Load(context.Background(), mapResolver{}, dict)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := f.DecodeString([]byte("AB"))
	if len(got) != 2 {
		t.Fatalf("decoded %d codes", len(got))
	}
	if got[0].Text != "A" || got[0].Width != 600 {
		t.Fatalf("A: %+v", got[0])
	}
	if got[1].Text != "B" || got[1].Width != 650 {
		t.Fatalf("B: %+v", got[1])
	}
	if w := f.WidthOf(90); w != fallbackWidth {
		t.Fatalf("unlisted code width %v", w)
	}
}

func TestEncodingDifferences(t *testing.T) {
	enc := raw.Dict()
	enc.Set(raw.NameLiteral("BaseEncoding"), raw.NameLiteral("WinAnsiEncoding"))
	diffs := &raw.ArrayObj{}
	diffs.Append(raw.NumberInt(65))
	diffs.Append(raw.NameLiteral("Eacute"))
	diffs.Append(raw.NameLiteral("egrave"))
	enc.Set(raw.NameLiteral("Differences"), diffs)

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	dict.Set(raw.NameLiteral("Encoding"), enc)

	f, err := Load(context.Background(), mapResolver{}, dict)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := f.DecodeString([]byte{65, 66, 67})
	if got[0].Text != "É" {
		t.Fatalf("code 65 = %q", got[0].Text)
	}
	if got[1].Text != "è" {
		t.Fatalf("code 66 = %q, cursor should advance", got[1].Text)
	}
	if got[2].Text != "C" {
		t.Fatalf("code 67 = %q, base encoding should survive", got[2].Text)
	}
}

func TestMissingWidthFromDescriptor(t *testing.T) {
	desc := raw.Dict()
	desc.Set(raw.NameLiteral("MissingWidth"), raw.NumberInt(250))
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("TrueType"))
	dict.Set(raw.NameLiteral("FontDescriptor"), desc)

	f, err := Load(context.Background(), mapResolver{}, dict)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w := f.WidthOf(65); w != 250 {
		t.Fatalf("missing width %v", w)
	}
}

const toUnicodeSrc = `/CIDInit /ProcSet findresource begin
begincmap
2 beginbfchar
<01> <0048>
<02> <0065006C>
endbfchar
1 beginbfrange
<10> <12> <0041>
endbfrange
endcmap`

func TestToUnicodeCMap(t *testing.T) {
	got := parseCMapText([]byte(toUnicodeSrc))
	if got[1] != "H" {
		t.Fatalf("bfchar single: %q", got[1])
	}
	if got[2] != "el" {
		t.Fatalf("bfchar multi: %q", got[2])
	}
	if got[0x10] != "A" || got[0x11] != "B" || got[0x12] != "C" {
		t.Fatalf("bfrange: %q %q %q", got[0x10], got[0x11], got[0x12])
	}
}

func TestToUnicodeOverridesEncoding(t *testing.T) {
	stream := raw.NewStream(raw.Dict(), []byte("1 beginbfchar\n<41> <2764>\nendbfchar"))
	res := mapResolver{raw.ObjectRef{Num: 7}: stream}

	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type1"))
	dict.Set(raw.NameLiteral("ToUnicode"), raw.Ref(7, 0))

	f, err := Load(context.Background(), res, dict)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := f.DecodeString([]byte("A"))[0].Text; got != "❤" {
		t.Fatalf("code 0x41 = %q", got)
	}
}

func TestType0Widths(t *testing.T) {
	w := &raw.ArrayObj{}
	w.Append(raw.NumberInt(1)) // 1 [500 600]
	w.Append(widthsArray(500, 600))
	w.Append(raw.NumberInt(10)) // 10 20 750
	w.Append(raw.NumberInt(20))
	w.Append(raw.NumberInt(750))

	cid := raw.Dict()
	cid.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("CIDFontType2"))
	cid.Set(raw.NameLiteral("DW"), raw.NumberInt(900))
	cid.Set(raw.NameLiteral("W"), w)

	desc := &raw.ArrayObj{}
	desc.Append(cid)
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Type0"))
	dict.Set(raw.NameLiteral("Encoding"), raw.NameLiteral("Identity-H"))
	dict.Set(raw.NameLiteral("DescendantFonts"), desc)

	f, err := Load(context.Background(), mapResolver{}, dict)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !f.TwoByte() {
		t.Fatal("Type0 should use two-byte codes")
	}
	if got := f.WidthOf(2); got != 600 {
		t.Fatalf("consecutive form: %v", got)
	}
	if got := f.WidthOf(15); got != 750 {
		t.Fatalf("range form: %v", got)
	}
	if got := f.WidthOf(999); got != 900 {
		t.Fatalf("DW fallback: %v", got)
	}

	decoded := f.DecodeString([]byte{0x00, 0x02, 0x00, 0x0F})
	if len(decoded) != 2 || decoded[0].Code != 2 || decoded[1].Code != 15 {
		t.Fatalf("two-byte split: %+v", decoded)
	}
}

func TestDefaultFont(t *testing.T) {
	f := Default()
	got := f.DecodeString([]byte("Hi"))
	if got[0].Text != "H" || got[0].Width != fallbackWidth {
		t.Fatalf("default font: %+v", got[0])
	}
}

func TestGlyphToRune(t *testing.T) {
	cases := []struct {
		name string
		want rune
	}{
		{"A", 'A'},
		{"uni0041", 'A'},
		{"u1F600", '\U0001F600'},
		{"Eacute", 'É'},
		{"g42", 0},
	}
	for _, c := range cases {
		if got := glyphToRune(c.name); got != c.want {
			t.Errorf("glyphToRune(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}
