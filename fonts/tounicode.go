package fonts

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf16"

	"pdftext/ir/raw"
	"pdftext/scanner"
)

// loadToUnicode parses a /ToUnicode CMap stream into a code-to-text map.
// Only the bfchar and bfrange sections matter for extraction.
func loadToUnicode(ctx context.Context, r Resolver, obj raw.Object) (map[int]string, error) {
	resolved, err := r.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	stream, ok := resolved.(*raw.StreamObj)
	if !ok {
		return nil, nil
	}
	data, err := r.DecodeStream(ctx, stream)
	if err != nil {
		return nil, err
	}
	return parseCMapText(data), nil
}

// parseCMapText tokenizes CMap source with the shared scanner; the syntax is
// PostScript-flavored but its hex strings, numbers and names are the same.
func parseCMapText(data []byte) map[int]string {
	out := make(map[int]string)
	s := scanner.New(bytes.NewReader(data), scanner.Config{})
	for {
		tok, err := s.Next()
		if err != nil {
			return out
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		switch tok.Str {
		case "beginbfchar":
			parseBFChar(s, out)
		case "beginbfrange":
			parseBFRange(s, out)
		}
	}
}

func parseBFChar(s scanner.Scanner, out map[int]string) {
	for {
		src, err := s.Next()
		if err != nil || isEndKeyword(src, "endbfchar") {
			return
		}
		dst, err := s.Next()
		if err != nil || isEndKeyword(dst, "endbfchar") {
			return
		}
		if src.Type != scanner.TokenString || dst.Type != scanner.TokenString {
			continue
		}
		out[codeOf(src.Bytes)] = utf16Text(dst.Bytes)
	}
}

func parseBFRange(s scanner.Scanner, out map[int]string) {
	for {
		lo, err := s.Next()
		if err != nil || isEndKeyword(lo, "endbfrange") {
			return
		}
		hi, err := s.Next()
		if err != nil || isEndKeyword(hi, "endbfrange") {
			return
		}
		dst, err := s.Next()
		if err != nil || isEndKeyword(dst, "endbfrange") {
			return
		}
		if lo.Type != scanner.TokenString || hi.Type != scanner.TokenString {
			continue
		}
		loCode, hiCode := codeOf(lo.Bytes), codeOf(hi.Bytes)
		if hiCode < loCode || hiCode-loCode > 65535 {
			continue
		}
		switch dst.Type {
		case scanner.TokenString:
			// Consecutive codes increment the last UTF-16 unit.
			base := append([]byte(nil), dst.Bytes...)
			for c := loCode; c <= hiCode; c++ {
				out[c] = utf16Text(base)
				incrementBytes(base)
			}
		case scanner.TokenArray:
			for c := loCode; ; c++ {
				item, err := s.Next()
				if err != nil {
					return
				}
				if item.Type == scanner.TokenKeyword && item.Str == "]" {
					break
				}
				if item.Type == scanner.TokenString && c <= hiCode {
					out[c] = utf16Text(item.Bytes)
				}
			}
		}
	}
}

func isEndKeyword(tok scanner.Token, word string) bool {
	return tok.Type == scanner.TokenKeyword && (tok.Str == word || tok.Str == "endcmap")
}

func codeOf(b []byte) int {
	v := 0
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}

// utf16Text converts CMap destination bytes (UTF-16BE code units) to a
// string.
func utf16Text(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
	}
	var sb strings.Builder
	for _, r := range utf16.Decode(units) {
		sb.WriteRune(r)
	}
	return sb.String()
}

func incrementBytes(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}
