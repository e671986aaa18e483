package parser

import (
	"fmt"

	"pdftext/ir/raw"
	"pdftext/scanner"
)

// ReadValue assembles the next complete object value from the token stream.
// Streams are not handled here: the caller decides whether a dictionary is
// followed by stream data, because the scanner needs the /Length hint before
// it consumes the payload.
func ReadValue(s scanner.Scanner) (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, err
	}
	return BuildValue(s, tok)
}

// BuildValue turns a token (already read) into an object, consuming any
// nested tokens it needs.
func BuildValue(s scanner.Scanner, tok scanner.Token) (raw.Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		return raw.NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case scanner.TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case scanner.TokenNull:
		return raw.NullObj{}, nil
	case scanner.TokenRef:
		return raw.Ref(tok.Num, tok.Gen), nil
	case scanner.TokenArray:
		return BuildArray(s)
	case scanner.TokenDict:
		return BuildDict(s)
	}
	return nil, fmt.Errorf("%w: unexpected token %q at %d", scanner.ErrMalformedSyntax, tok.Str, tok.Pos)
}

func BuildArray(s scanner.Scanner) (raw.Object, error) {
	arr := &raw.ArrayObj{}
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		item, err := BuildValue(s, tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func BuildDict(s scanner.Scanner) (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("%w: dictionary key must be a name at %d", scanner.ErrMalformedSyntax, tok.Pos)
		}
		val, err := ReadValue(s)
		if err != nil {
			return nil, err
		}
		dict.Set(raw.NameObj{Val: tok.Str}, val)
	}
}
