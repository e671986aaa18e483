package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"pdftext/ir/raw"
	"pdftext/observability"
)

// StreamDecoder is the slice of the document parser the hook needs.
type StreamDecoder interface {
	Resolve(ctx context.Context, obj raw.Object) (raw.Object, error)
	DecodeStream(ctx context.Context, stream *raw.StreamObj) ([]byte, error)
}

// Hook adapts an Engine to the extractor's image callback. Images in formats
// the engine cannot read are skipped silently.
func Hook(dec StreamDecoder, engine Engine, log observability.Logger) func(ctx context.Context, img *raw.StreamObj) (string, error) {
	if log == nil {
		log = observability.NopLogger{}
	}
	return func(ctx context.Context, img *raw.StreamObj) (string, error) {
		data, err := encodedImage(ctx, dec, img)
		if err != nil {
			return "", err
		}
		if data == nil {
			log.Debug("image not convertible, skipping recognition")
			return "", nil
		}
		return engine.Recognize(ctx, data)
	}
}

// encodedImage turns an image XObject into bytes an OCR engine reads: JPEG
// codestreams pass through, raw gray and RGB samples are wrapped as PNG.
// Unsupported layouts return nil without an error.
func encodedImage(ctx context.Context, dec StreamDecoder, img *raw.StreamObj) ([]byte, error) {
	data, err := dec.DecodeStream(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("decode image stream: %w", err)
	}
	if hasCodestreamFilter(img.Dict) {
		return data, nil
	}

	width := int(raw.IntFromDict(img.Dict, "Width", 0))
	height := int(raw.IntFromDict(img.Dict, "Height", 0))
	bpc := raw.IntFromDict(img.Dict, "BitsPerComponent", 8)
	if width <= 0 || height <= 0 || bpc != 8 {
		return nil, nil
	}
	var components int
	switch colorSpaceName(ctx, dec, img.Dict) {
	case "DeviceGray", "CalGray":
		components = 1
	case "DeviceRGB", "CalRGB":
		components = 3
	default:
		return nil, nil
	}
	if len(data) < width*height*components {
		return nil, nil
	}
	return wrapPNG(data, width, height, components)
}

func wrapPNG(samples []byte, width, height, components int) ([]byte, error) {
	var out image.Image
	if components == 1 {
		gray := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			copy(gray.Pix[y*gray.Stride:], samples[y*width:(y+1)*width])
		}
		out = gray
	} else {
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				src := (y*width + x) * 3
				dst := y*rgba.Stride + x*4
				rgba.Pix[dst] = samples[src]
				rgba.Pix[dst+1] = samples[src+1]
				rgba.Pix[dst+2] = samples[src+2]
				rgba.Pix[dst+3] = 0xFF
			}
		}
		out = rgba
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func hasCodestreamFilter(dict *raw.DictObj) bool {
	switch v := raw.DictGet(dict, "Filter").(type) {
	case raw.NameObj:
		return v.Val == "DCTDecode" || v.Val == "JPXDecode"
	case *raw.ArrayObj:
		for _, item := range v.Items {
			if n, ok := item.(raw.NameObj); ok && (n.Val == "DCTDecode" || n.Val == "JPXDecode") {
				return true
			}
		}
	}
	return false
}

func colorSpaceName(ctx context.Context, dec StreamDecoder, dict *raw.DictObj) string {
	obj, err := dec.Resolve(ctx, raw.DictGet(dict, "ColorSpace"))
	if err != nil {
		return ""
	}
	return raw.NameValue(obj)
}
