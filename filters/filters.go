// Package filters decodes PDF stream encodings.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"pdftext/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with the provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline covers every filter the reader understands.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode applies each named filter in order. DCTDecode and JPXDecode streams
// are passed through untouched: their payloads are complete image codestreams
// that downstream consumers handle as-is.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if name == "DCTDecode" || name == "JPXDecode" {
			return data, nil
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, fmt.Errorf("unknown filter %q", name)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// ForStream reads /Filter and /DecodeParms from a stream dictionary.
func ForStream(d raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	switch v := raw.DictGet(d, "Filter").(type) {
	case raw.NameObj:
		names = []string{v.Val}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if n, ok := it.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	var params []raw.Dictionary
	switch v := raw.DictGet(d, "DecodeParms").(type) {
	case *raw.DictObj:
		params = append(params, v)
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if dd, ok := it.(*raw.DictObj); ok {
				params = append(params, dd)
			} else {
				params = append(params, nil)
			}
		}
	}
	return names, params
}

type flateDecoder struct{}

func NewFlateDecoder() Decoder { return flateDecoder{} }
func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	var out bytes.Buffer
	if err == nil {
		defer zr.Close()
		if _, err := io.Copy(&out, zr); err != nil && out.Len() == 0 {
			return nil, err
		}
	} else {
		// Some producers omit the zlib wrapper.
		fr := flate.NewReader(bytes.NewReader(in))
		defer fr.Close()
		if _, err := io.Copy(&out, fr); err != nil && out.Len() == 0 {
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}

type lzwDecoder struct{}

func NewLZWDecoder() Decoder { return lzwDecoder{} }
func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	early := int64(1)
	if params != nil {
		early = raw.IntFromDict(params, "EarlyChange", 1)
	}
	if early == 0 {
		// Without early change the stream matches the stdlib variant.
		r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
		defer r.Close()
		var out bytes.Buffer
		if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
			return nil, err
		}
		return applyPredictor(out.Bytes(), params)
	}
	out, err := lzwDecodeEarly(in)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

// lzwDecodeEarly decodes MSB-first LZW with EarlyChange=1: the code width
// grows one code before the table fills, per PDF 7.4.4.2.
func lzwDecodeEarly(in []byte) ([]byte, error) {
	const (
		clearCode = 256
		eodCode   = 257
	)
	var (
		out      bytes.Buffer
		table    [][]byte
		width    = 9
		bitbuf   uint32
		bits     int
		prev     []byte
		pos      int
		havePrev bool
	)
	resetTable := func() {
		table = table[:0]
		for i := 0; i < 256; i++ {
			table = append(table, []byte{byte(i)})
		}
		table = append(table, nil, nil) // clear, EOD placeholders
		width = 9
		havePrev = false
	}
	resetTable()
	readCode := func() (int, bool) {
		for bits < width {
			if pos >= len(in) {
				return 0, false
			}
			bitbuf = bitbuf<<8 | uint32(in[pos])
			pos++
			bits += 8
		}
		bits -= width
		return int(bitbuf>>uint(bits)) & ((1 << uint(width)) - 1), true
	}
	for {
		code, ok := readCode()
		if !ok {
			return out.Bytes(), nil
		}
		switch {
		case code == clearCode:
			resetTable()
			continue
		case code == eodCode:
			return out.Bytes(), nil
		}
		var entry []byte
		switch {
		case code < len(table) && table[code] != nil:
			entry = table[code]
		case havePrev && code == len(table):
			entry = append(append([]byte(nil), prev...), prev[0])
		default:
			return nil, errors.New("invalid LZW code")
		}
		out.Write(entry)
		if havePrev {
			next := append(append([]byte(nil), prev...), entry[0])
			table = append(table, next)
		}
		prev = entry
		havePrev = true
		// Early change: widen when one short of the limit.
		switch len(table) {
		case 511, 1023, 2047:
			width++
		}
		if len(table) >= 4096 {
			resetTable()
		}
	}
}

type ascii85Decoder struct{}

func NewASCII85Decoder() Decoder { return ascii85Decoder{} }
func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*2+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }
func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var compact []byte
	for _, c := range in {
		switch {
		case c == '>':
			goto done
		case c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20:
			continue
		default:
			compact = append(compact, c)
		}
	}
done:
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

type runLengthDecoder struct{}

func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }
func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	i := 0
	for i < len(in) {
		l := in[i]
		i++
		switch {
		case l == 128: // EOD
			return out.Bytes(), nil
		case l < 128:
			n := int(l) + 1
			if i+n > len(in) {
				return nil, errors.New("run length literal truncated")
			}
			out.Write(in[i : i+n])
			i += n
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat truncated")
			}
			n := 257 - int(l)
			for j := 0; j < n; j++ {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}
