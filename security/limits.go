package security

import "time"

// Limits bounds resource use while reading untrusted files. Zero values mean
// the corresponding check is skipped.
type Limits struct {
	// Maximum decompressed stream size. Default: 100 MB.
	MaxDecompressedSize int64

	// Maximum indirect reference resolution depth. Default: 32.
	MaxIndirectDepth int

	// Maximum cross-reference chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum form XObject nesting depth. Default: 20.
	MaxXObjectDepth int

	// Maximum string token length in bytes. Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length in bytes. Default: 50 MB.
	MaxStreamLength int64

	// Maximum nesting depth of arrays and dictionaries. Default: 512.
	MaxNestingDepth int

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration

	// Maximum total time to open and extract a document. Default: 5m.
	MaxParseTime time.Duration
}

// DefaultLimits returns limits safe for arbitrary input.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 100 * 1024 * 1024,
		MaxIndirectDepth:    32,
		MaxXRefDepth:        50,
		MaxXObjectDepth:     20,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     50 * 1024 * 1024,
		MaxNestingDepth:     512,
		MaxDecodeTime:       30 * time.Second,
		MaxParseTime:        5 * time.Minute,
	}
}
