// Package ocr recognizes text in page images. It adapts a Tesseract client
// to the extractor's image hook, so scanned pages contribute text when the
// caller opts in.
package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine turns an encoded image (PNG or JPEG bytes) into text.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Option func(*TesseractEngine)

// WithLanguages selects the recognition languages, e.g. "eng", "deu".
func WithLanguages(langs ...string) Option {
	return func(e *TesseractEngine) { e.languages = langs }
}

// WithDPI sets the assumed resolution for images without one.
func WithDPI(dpi int) Option {
	return func(e *TesseractEngine) { e.dpi = dpi }
}

// TesseractEngine implements Engine on top of gosseract. A fresh client is
// created per call; the engine itself is safe for concurrent use.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	languages     []string
	dpi           int
}

func NewTesseract(opts ...Option) *TesseractEngine {
	e := &TesseractEngine{clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if e.dpi > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(e.dpi)); err != nil {
			return "", fmt.Errorf("set dpi: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
