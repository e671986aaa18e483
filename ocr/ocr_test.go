package ocr

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"pdftext/ir/raw"
)

type passthroughDecoder struct{}

func (passthroughDecoder) Resolve(_ context.Context, obj raw.Object) (raw.Object, error) {
	return obj, nil
}

func (passthroughDecoder) DecodeStream(_ context.Context, s *raw.StreamObj) ([]byte, error) {
	return s.Data, nil
}

type fakeEngine struct {
	got  []byte
	text string
}

func (e *fakeEngine) Recognize(_ context.Context, image []byte) (string, error) {
	e.got = image
	return e.text, nil
}

func grayImageStream(width, height int) *raw.StreamObj {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Subtype"), raw.NameLiteral("Image"))
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(int64(width)))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(int64(height)))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(8))
	dict.Set(raw.NameLiteral("ColorSpace"), raw.NameLiteral("DeviceGray"))
	return raw.NewStream(dict, make([]byte, width*height))
}

func TestHookWrapsGraySamplesAsPNG(t *testing.T) {
	engine := &fakeEngine{text: "found"}
	hook := Hook(passthroughDecoder{}, engine, nil)

	text, err := hook(context.Background(), grayImageStream(4, 2))
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if text != "found" {
		t.Fatalf("text = %q", text)
	}
	img, err := png.Decode(bytes.NewReader(engine.got))
	if err != nil {
		t.Fatalf("engine did not receive a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Fatalf("bounds %v", b)
	}
}

func TestHookPassesJPEGThrough(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("DCTDecode"))
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	stream := raw.NewStream(dict, payload)

	engine := &fakeEngine{}
	hook := Hook(passthroughDecoder{}, engine, nil)
	if _, err := hook(context.Background(), stream); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if !bytes.Equal(engine.got, payload) {
		t.Fatalf("engine got %x", engine.got)
	}
}

func TestHookSkipsUnsupportedLayouts(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Width"), raw.NumberInt(2))
	dict.Set(raw.NameLiteral("Height"), raw.NumberInt(2))
	dict.Set(raw.NameLiteral("BitsPerComponent"), raw.NumberInt(1))
	stream := raw.NewStream(dict, []byte{0x00})

	engine := &fakeEngine{text: "never"}
	hook := Hook(passthroughDecoder{}, engine, nil)
	text, err := hook(context.Background(), stream)
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if text != "" || engine.got != nil {
		t.Fatal("unsupported image should be skipped")
	}
}

func TestRGBWrapKeepsPixelValues(t *testing.T) {
	samples := []byte{255, 0, 0, 0, 255, 0}
	data, err := wrapPNG(samples, 2, 1, 3)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, _, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 0 {
		t.Fatalf("pixel 0: r=%d g=%d", r>>8, g>>8)
	}
	r, g, _, _ = img.At(1, 0).RGBA()
	if r>>8 != 0 || g>>8 != 255 {
		t.Fatalf("pixel 1: r=%d g=%d", r>>8, g>>8)
	}
}
