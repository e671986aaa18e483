package filters

import (
	"context"
	"testing"
)

func FuzzRunLengthDecode(f *testing.F) {
	f.Add([]byte{2, 'a', 'b', 'c', 128})
	f.Add([]byte{255, 'x'})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = NewRunLengthDecoder().Decode(context.Background(), data, nil)
	})
}

func FuzzLZWDecodeEarly(f *testing.F) {
	f.Add([]byte{0x80, 0x0B, 0x60, 0x50, 0x22, 0x0C, 0x0C, 0x85, 0x01})
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<16 {
			return
		}
		_, _ = lzwDecodeEarly(data)
	})
}
