// Package scanner tokenizes PDF syntax: file bodies, object definitions and
// content streams all share one lexical grammar.
package scanner

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"pdftext/recovery"
)

// ErrMalformedSyntax marks token-level corruption (unterminated strings,
// bad escapes, truncated constructs). The scanner resynchronizes at the next
// whitespace or delimiter boundary, so under a lenient recovery strategy a
// single corrupt token does not abort the stream.
var ErrMalformedSyntax = errors.New("malformed syntax")

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // integer or real
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // stream payload bytes
	TokenInlineImage                  // bytes between ID and EI (content streams)
	TokenKeyword                      // obj, endobj, operators, '>>', ']', ...
)

// Token is one lexical unit. Which fields are set depends on Type:
// Str for names and keywords, Bytes for strings/streams/inline images,
// Int/Float/IsInt for numbers, Bool for booleans, Num/Gen for references,
// Hex for strings written in <...> notation.
type Token struct {
	Type  TokenType
	Pos   int64
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Hex   bool
	Num   int
	Gen   int
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	SeekTo(offset int64) error
	// SetNextStreamLength tells the scanner how many payload bytes follow
	// the next 'stream' keyword; pass a negative value to clear the hint.
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	WindowSize      int64
	Recovery        recovery.Strategy
}

// pdfScanner incrementally buffers data from a ReaderAt in fixed-size windows.
type pdfScanner struct {
	reader        io.ReaderAt
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	chunkSize     int64
	eof           bool
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
}

func New(r io.ReaderAt, cfg Config) Scanner {
	chunk := cfg.WindowSize
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &pdfScanner{reader: r, cfg: cfg, nextStreamLen: -1, chunkSize: chunk}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) SeekTo(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("%w: seek to negative offset %d", ErrMalformedSyntax, offset)
	}
	if err := s.ensure(offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if offset > int64(len(s.data)) {
		return fmt.Errorf("%w: seek past end of data (%d)", ErrMalformedSyntax, offset)
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	if err := s.skipWSAndComments(); err != nil {
		return Token{}, err
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		// PostScript function delimiters; tokenized so content-stream
		// consumers can skip them.
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	}
	if isNumberStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

// skipWSAndComments advances past whitespace and % comments. Returns io.EOF
// at end of input.
func (s *pdfScanner) skipWSAndComments() error {
	for {
		if err := s.ensure(s.pos); err != nil {
			return err
		}
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				s.pos++
				if err := s.ensure(s.pos); err != nil {
					return err
				}
				if isEOL(s.data[s.pos]) {
					break
				}
			}
			continue
		}
		return nil
	}
}

func (s *pdfScanner) ensure(n int64) error {
	for int64(len(s.data)) <= n {
		if s.eof {
			return io.EOF
		}
		if err := s.loadMore(); err != nil {
			return err
		}
	}
	return nil
}

func (s *pdfScanner) loadMore() error {
	buf := make([]byte, s.chunkSize)
	off := int64(len(s.data))
	n, err := s.reader.ReadAt(buf, off)
	if n > 0 {
		s.data = append(s.data, buf[:n]...)
	}
	if err == io.EOF {
		s.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	if n == 0 {
		s.eof = true
	}
	return nil
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var out []byte
	for {
		if s.ensureOrBreak() {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' {
			s.pos++
			a, okA := s.hexNibble()
			b, okB := s.hexNibble()
			if !okA || !okB {
				if err := s.recover(fmt.Errorf("%w: invalid hex escape in name", ErrMalformedSyntax), "name"); err != nil {
					return Token{}, err
				}
				continue
			}
			out = append(out, (a<<4)|b)
			continue
		}
		out = append(out, c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: string(out), Pos: start})
}

func (s *pdfScanner) hexNibble() (byte, bool) {
	if s.ensureOrBreak() {
		return 0, false
	}
	c := s.data[s.pos]
	v, ok := fromHex(c)
	if !ok {
		return 0, false
	}
	s.pos++
	return v, true
}

// scanLiteralString implements PDF 7.3.4.2: nested parens, backslash
// escapes, octal escapes and line continuations.
func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	var buf []byte
	depth := 1
	for {
		if s.ensureOrBreak() {
			break
		}
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.ensureOrBreak() {
				break
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if !s.ensureOrBreak() && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && !s.ensureOrBreak(); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf = append(buf, byte(val))
			default:
				buf = append(buf, translateEscape(esc))
				s.pos++
			}
			continue
		}
		if c == '(' {
			depth++
			buf = append(buf, c)
			s.pos++
			continue
		}
		if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
			buf = append(buf, c)
			s.pos++
			continue
		}
		buf = append(buf, c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(buf)) > s.cfg.MaxStringLength {
			return Token{}, s.recover(fmt.Errorf("%w: literal string too long", ErrMalformedSyntax), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(fmt.Errorf("%w: unterminated literal string", ErrMalformedSyntax), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf, Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var nibbles []byte
	closed := false
	for {
		if s.ensureOrBreak() {
			break
		}
		c := s.data[s.pos]
		if c == '>' {
			s.pos++
			closed = true
			break
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if _, ok := fromHex(c); !ok {
			if err := s.recover(fmt.Errorf("%w: non-hex byte %q in hex string", ErrMalformedSyntax, c), "hex"); err != nil {
				return Token{}, err
			}
			s.pos++
			continue
		}
		nibbles = append(nibbles, c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(len(nibbles)/2) > s.cfg.MaxStringLength {
			return Token{}, s.recover(fmt.Errorf("%w: hex string too long", ErrMalformedSyntax), "hex")
		}
	}
	if !closed {
		if err := s.recover(fmt.Errorf("%w: unterminated hex string", ErrMalformedSyntax), "hex"); err != nil {
			return Token{}, err
		}
	}
	if len(nibbles)%2 == 1 {
		nibbles = append(nibbles, '0') // odd count: final digit is high nibble
	}
	out := make([]byte, 0, len(nibbles)/2)
	for i := 0; i < len(nibbles); i += 2 {
		a, _ := fromHex(nibbles[i])
		b, _ := fromHex(nibbles[i+1])
		out = append(out, (a<<4)|b)
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

// scanStream consumes payload bytes following the 'stream' keyword. With a
// length hint the payload is read directly; otherwise the scanner searches
// for a safe 'endstream' boundary.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	if s.ensureOrBreak() {
		return Token{}, s.recover(fmt.Errorf("%w: stream truncated at keyword", ErrMalformedSyntax), "stream")
	}
	// The keyword must be followed by an EOL before the data.
	switch s.data[s.pos] {
	case '\r':
		s.pos++
		if !s.ensureOrBreak() && s.data[s.pos] == '\n' {
			s.pos++
		}
	case '\n':
		s.pos++
	default:
		if err := s.recover(fmt.Errorf("%w: stream missing EOL before data", ErrMalformedSyntax), "stream"); err != nil {
			return Token{}, err
		}
	}
	dataStart := s.pos
	if s.nextStreamLen >= 0 {
		return s.scanStreamWithLength(start, dataStart)
	}
	needle := []byte("endstream")
	for i := dataStart; ; i++ {
		if err := s.ensure(i + int64(len(needle)) - 1); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Token{}, err
		}
		if s.cfg.MaxStreamScan > 0 && i-dataStart > s.cfg.MaxStreamScan {
			if err := s.recover(fmt.Errorf("%w: endstream not found within scan limit", ErrMalformedSyntax), "stream"); err != nil {
				return Token{}, err
			}
			break
		}
		if s.data[i] != 'e' || !matchAt(s.data, i, needle) {
			continue
		}
		followOK := i+int64(len(needle)) >= int64(len(s.data)) || isDelimiter(s.data[i+int64(len(needle))])
		if !streamBreakBefore(s.data, i, dataStart) || !followOK {
			continue
		}
		end := trimStreamEOL(s.data, dataStart, i)
		payload := append([]byte(nil), s.data[dataStart:end]...)
		if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
			return Token{}, s.recover(fmt.Errorf("%w: stream too long", ErrMalformedSyntax), "stream")
		}
		s.pos = i + int64(len(needle))
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	// No marker found: the rest of the file is the payload.
	payload := append([]byte(nil), s.data[dataStart:]...)
	s.pos = int64(len(s.data))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

func (s *pdfScanner) scanStreamWithLength(start, dataStart int64) (Token, error) {
	l := s.nextStreamLen
	s.nextStreamLen = -1
	if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
		return Token{}, s.recover(fmt.Errorf("%w: declared stream length %d over limit", ErrMalformedSyntax, l), "stream")
	}
	if l > 0 {
		if err := s.ensure(dataStart + l - 1); err != nil && !errors.Is(err, io.EOF) {
			return Token{}, err
		}
	}
	if dataStart+l > int64(len(s.data)) {
		if err := s.recover(fmt.Errorf("%w: stream ended before declared length", ErrMalformedSyntax), "stream"); err != nil {
			return Token{}, err
		}
		l = int64(len(s.data)) - dataStart
	}
	end := dataStart + l
	payload := append([]byte(nil), s.data[dataStart:end]...)
	s.pos = end
	// Optional EOL, then 'endstream'.
	if !s.ensureOrBreak() {
		if s.data[s.pos] == '\r' {
			s.pos++
			if !s.ensureOrBreak() && s.data[s.pos] == '\n' {
				s.pos++
			}
		} else if s.data[s.pos] == '\n' {
			s.pos++
		}
	}
	needle := []byte("endstream")
	if matchAt(s.data, s.pos, needle) {
		s.pos += int64(len(needle))
	} else if idx := indexFrom(s.data, s.pos, needle); idx >= 0 {
		s.pos = idx + int64(len(needle))
	}
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

// scanInlineImage consumes bytes after the ID keyword up to an EI delimiter
// preceded by a line break. Parameters before ID are ordinary tokens; the
// scanner only captures the binary payload.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if s.ensureOrBreak() || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(fmt.Errorf("%w: inline image missing whitespace after ID", ErrMalformedSyntax), "inline_image")
	}
	s.pos++
	dataStart := s.pos
	for {
		if err := s.ensure(s.pos + 1); err != nil {
			if errors.Is(err, io.EOF) {
				return Token{}, s.recover(fmt.Errorf("%w: unterminated inline image", ErrMalformedSyntax), "inline_image")
			}
			return Token{}, err
		}
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			prevOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			nextOK := true
			if err := s.ensure(s.pos + 2); err == nil && s.pos+2 < int64(len(s.data)) {
				nextOK = isDelimiter(s.data[s.pos+2])
			}
			if prevOK && nextOK {
				payload := append([]byte(nil), s.data[dataStart:s.pos-1]...)
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
		if s.cfg.MaxInlineImage > 0 && s.pos-dataStart > s.cfg.MaxInlineImage {
			return Token{}, s.recover(fmt.Errorf("%w: inline image too long", ErrMalformedSyntax), "inline_image")
		}
	}
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	var buf []byte
	for {
		if s.ensureOrBreak() {
			break
		}
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		buf = append(buf, c)
		s.pos++
	}
	kw := string(buf)
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID":
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanNumberOrRef distinguishes "5" from "5 0 R" with bounded lookahead.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return Token{}, s.recover(fmt.Errorf("%w: invalid number", ErrMalformedSyntax), "number")
	}
	afterFirst := s.pos
	if isIntString(num1) {
		s.skipWSAndComments()
		secondStart := s.pos
		num2 := s.scanNumberString()
		if num2 != "" && isIntString(num2) {
			s.skipWSAndComments()
			s.ensure(s.pos + 1)
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				n1, _ := strconv.Atoi(num1)
				n2, _ := strconv.Atoi(num2)
				return Token{Type: TokenRef, Num: n1, Gen: n2, Pos: start}, nil
			}
		}
		if num2 != "" {
			s.pos = secondStart // second number belongs to the caller
		} else {
			s.pos = afterFirst
		}
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start})
	}
	f, err := strconv.ParseFloat(normalizeReal(num1), 64)
	if err != nil {
		return Token{}, s.recover(fmt.Errorf("%w: unparsable number %q", ErrMalformedSyntax, num1), "number")
	}
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	var buf []byte
	seenDigit := false
	for {
		if s.ensureOrBreak() {
			break
		}
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			buf = append(buf, c)
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(buf)
}

// recover consults the strategy and, when the error is tolerated, skips
// forward to the next whitespace/delimiter boundary so scanning can resume.
func (s *pdfScanner) recover(err error, where string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	loc := s.recLoc
	loc.ByteOffset = s.pos
	if loc.Component != "" {
		loc.Component += "->"
	}
	loc.Component += "scanner:" + where
	switch s.cfg.Recovery.OnError(err, loc) {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		s.resync()
		return nil
	default:
		return err
	}
}

// resync advances to the next delimiter boundary.
func (s *pdfScanner) resync() {
	for !s.ensureOrBreak() {
		if isDelimiter(s.data[s.pos]) {
			return
		}
		s.pos++
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, s.recover(fmt.Errorf("%w: array depth exceeded", ErrMalformedSyntax), "array")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, s.recover(fmt.Errorf("%w: dict depth exceeded", ErrMalformedSyntax), "dict")
		}
	case TokenKeyword:
		if tok.Str == "]" && s.arrayDepth > 0 {
			s.arrayDepth--
		}
		if tok.Str == ">>" && s.dictDepth > 0 {
			s.dictDepth--
		}
	}
	return tok, nil
}

// ensureOrBreak reports true when no byte is available at the cursor.
func (s *pdfScanner) ensureOrBreak() bool {
	if err := s.ensure(s.pos); err != nil {
		return true
	}
	return s.pos >= int64(len(s.data))
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if err := s.ensure(s.pos + n); err != nil {
		return 0
	}
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}
