package filters

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/ascii85"
	"testing"

	"pdftext/ir/raw"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("compress: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateRoundTrip(t *testing.T) {
	want := []byte("BT /F1 12 Tf (Hello) Tj ET")
	got, err := NewFlateDecoder().Decode(context.Background(), deflate(t, want), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q", got)
	}
}

func TestFlateWithPNGUpPredictor(t *testing.T) {
	// Two rows of 4 bytes, filter type 2 (Up).
	raw1 := []byte{1, 2, 3, 4}
	raw2 := []byte{5, 6, 7, 8}
	encoded := []byte{2, 1, 2, 3, 4, 2, 4, 4, 4, 4} // deltas against previous row
	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(4))

	got, err := NewFlateDecoder().Decode(context.Background(), deflate(t, encoded), params)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := append(append([]byte(nil), raw1...), raw2...)
	if !bytes.Equal(got, want) {
		t.Fatalf("predictor output %v, want %v", got, want)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	got, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("48 65 6C 6C 6F>"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "Hello" {
		t.Fatalf("got %q", got)
	}
}

func TestASCIIHexOddDigitPads(t *testing.T) {
	got, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("48656C6C6F2>"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "Hello " {
		t.Fatalf("got %q", got)
	}
}

func TestASCII85Decode(t *testing.T) {
	plain := []byte("Hello world")
	enc := make([]byte, ascii85.MaxEncodedLen(len(plain)))
	n := ascii85.Encode(enc, plain)
	in := append(enc[:n], '~', '>')

	got, err := NewASCII85Decoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != string(plain) {
		t.Fatalf("got %q", got)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// 2+1 literal bytes, then 'x' repeated 257-254=3 times, then EOD.
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128}
	got, err := NewRunLengthDecoder().Decode(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "abcxxx" {
		t.Fatalf("got %q", got)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	want := []byte("layered payload")
	// Innermost first: flate, then hex armor on top.
	flated := deflate(t, want)
	hexed := []byte(bytesToHex(flated) + ">")

	p := NewDefaultPipeline(Limits{})
	got, err := p.Decode(context.Background(), hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q", got)
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	if _, err := p.Decode(context.Background(), nil, []string{"NoSuchDecode"}, nil); err == nil {
		t.Fatal("expected unknown filter error")
	}
}

func TestPipelineSizeLimit(t *testing.T) {
	big := bytes.Repeat([]byte("A"), 4096)
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 128})
	if _, err := p.Decode(context.Background(), deflate(t, big), []string{"FlateDecode"}, nil); err == nil {
		t.Fatal("expected size limit error")
	}
}

func TestForStreamReadsFilterForms(t *testing.T) {
	d := raw.Dict()
	d.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	names, params := ForStream(d)
	if len(names) != 1 || names[0] != "FlateDecode" || params != nil {
		t.Fatalf("single name form: %v %v", names, params)
	}

	d2 := raw.Dict()
	d2.Set(raw.NameLiteral("Filter"), raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	names, _ = ForStream(d2)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Fatalf("array form: %v", names)
	}
}

func bytesToHex(in []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(in)*2)
	for _, b := range in {
		out = append(out, digits[b>>4], digits[b&0xF])
	}
	return string(out)
}
