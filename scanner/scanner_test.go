package scanner

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"pdftext/recovery"
)

func newScanner(t *testing.T, data string, cfg Config) Scanner {
	t.Helper()
	return New(bytes.NewReader([]byte(data)), cfg)
}

func nextToken(t *testing.T, s Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj", Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Value name, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("expected Flag key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenBoolean || tok.Bool != true {
		t.Fatalf("expected true, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Null" {
		t.Fatalf("expected Null key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null, got %+v", tok)
	}
}

func TestScanner_NameHexEscapes(t *testing.T) {
	s := newScanner(t, "/Name#20With#23Hash", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenName || tok.Str != "Name With#Hash" {
		t.Fatalf("unexpected name decode: %+v", tok)
	}
}

func TestScanner_LiteralStringEscapes(t *testing.T) {
	s := newScanner(t, "(Hi\\n\\050\\051\\t)", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenString {
		t.Fatalf("expected string, got %+v", tok)
	}
	if !bytes.Equal(tok.Bytes, []byte("Hi\n()\t")) {
		t.Fatalf("unexpected literal string: %q", tok.Bytes)
	}
}

func TestScanner_NestedParens(t *testing.T) {
	s := newScanner(t, "(a (b) c)", Config{})
	tok := nextToken(t, s)
	if string(tok.Bytes) != "a (b) c" {
		t.Fatalf("nested parens mishandled: %q", tok.Bytes)
	}
}

func TestScanner_HexStringOddNibble(t *testing.T) {
	s := newScanner(t, "<48656C6C6F2>", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenString || !tok.Hex {
		t.Fatalf("expected hex string, got %+v", tok)
	}
	if !bytes.Equal(tok.Bytes, []byte("Hello ")) {
		t.Fatalf("odd nibble padding wrong: %q", tok.Bytes)
	}
}

func TestScanner_ReferenceVsNumbers(t *testing.T) {
	s := newScanner(t, "5 0 R 12 7.5", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenRef || tok.Num != 5 || tok.Gen != 0 {
		t.Fatalf("expected 5 0 R, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 12 {
		t.Fatalf("expected 12, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || tok.IsInt || tok.Float != 7.5 {
		t.Fatalf("expected 7.5, got %+v", tok)
	}
}

func TestScanner_BareDotReal(t *testing.T) {
	s := newScanner(t, ".5 -.25 4.", Config{})
	for _, want := range []float64{0.5, -0.25, 4.0} {
		tok := nextToken(t, s)
		if tok.Type != TokenNumber || tok.IsInt || tok.Float != want {
			t.Fatalf("expected %v, got %+v", want, tok)
		}
	}
}

func TestScanner_StreamWithLengthHint(t *testing.T) {
	s := newScanner(t, "stream\nBINARY DATA\nendstream", Config{})
	s.SetNextStreamLength(11)
	tok := nextToken(t, s)
	if tok.Type != TokenStream {
		t.Fatalf("expected stream, got %+v", tok)
	}
	if string(tok.Bytes) != "BINARY DATA" {
		t.Fatalf("payload: %q", tok.Bytes)
	}
}

func TestScanner_StreamWithoutLengthScansForMarker(t *testing.T) {
	s := newScanner(t, "stream\npayload bytes\nendstream\n42", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenStream || string(tok.Bytes) != "payload bytes" {
		t.Fatalf("unexpected stream token: %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || tok.Int != 42 {
		t.Fatalf("scan should resume after endstream, got %+v", tok)
	}
}

func TestScanner_UnterminatedStringStrictFails(t *testing.T) {
	s := newScanner(t, "(never closed", Config{Recovery: recovery.NewStrictStrategy()})
	if _, err := s.Next(); !errors.Is(err, ErrMalformedSyntax) {
		t.Fatalf("expected ErrMalformedSyntax, got %v", err)
	}
}

func TestScanner_UnterminatedStringLenientContinues(t *testing.T) {
	rec := recovery.NewLenientStrategy()
	s := newScanner(t, "(never closed", Config{Recovery: rec})
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("lenient scan should not fail: %v", err)
	}
	if tok.Type != TokenString || string(tok.Bytes) != "never closed" {
		t.Fatalf("expected salvaged string, got %+v", tok)
	}
	if len(rec.Errors()) == 0 {
		t.Fatal("recovery should have recorded the error")
	}
}

func TestScanner_CommentsSkipped(t *testing.T) {
	s := newScanner(t, "% header comment\n7 % trailing\n/N", Config{})
	if tok := nextToken(t, s); tok.Type != TokenNumber || tok.Int != 7 {
		t.Fatalf("expected 7, got %+v", tok)
	}
	if tok := nextToken(t, s); tok.Type != TokenName || tok.Str != "N" {
		t.Fatalf("expected name, got %+v", tok)
	}
}

func TestScanner_SeekAndPosition(t *testing.T) {
	s := newScanner(t, "0123456789 /X", Config{})
	if err := s.SeekTo(11); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if tok := nextToken(t, s); tok.Type != TokenName || tok.Str != "X" {
		t.Fatalf("expected name after seek, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatal("expected EOF at end")
	}
}

func TestScanner_InlineImage(t *testing.T) {
	s := newScanner(t, "ID \xde\xad\xbe\xef \nEI Q", Config{})
	tok := nextToken(t, s)
	if tok.Type != TokenInlineImage {
		t.Fatalf("expected inline image, got %+v", tok)
	}
	if !bytes.Contains(tok.Bytes, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("payload lost: %q", tok.Bytes)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "Q" {
		t.Fatalf("scan should resume after EI, got %+v", tok)
	}
}

func TestScanner_StringLimitEnforced(t *testing.T) {
	s := newScanner(t, "(abcdefghij)", Config{MaxStringLength: 4, Recovery: recovery.NewStrictStrategy()})
	if _, err := s.Next(); !errors.Is(err, ErrMalformedSyntax) {
		t.Fatalf("expected length violation, got %v", err)
	}
}
