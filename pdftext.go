// Package pdftext reads PDF files and extracts their text content. It wires
// the parser, interpreter and extractor together behind a small facade; the
// subpackages remain usable on their own for finer control.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"pdftext/config"
	"pdftext/extractor"
	"pdftext/ir/raw"
	"pdftext/ocr"
	"pdftext/parser"
	"pdftext/recovery"
)

// ErrUnopenableDocument wraps any failure to locate or parse the document
// structure, including wrong passwords and unrepairable cross-reference data.
var ErrUnopenableDocument = errors.New("unopenable document")

// Document is an open file ready for extraction. Close releases the
// underlying file when the document came from OpenFile.
type Document struct {
	parsed   *parser.Document
	ex       *extractor.Extractor
	strategy recovery.Strategy
	closer   io.Closer
}

// Open parses a document from a random-access reader.
func Open(ctx context.Context, r io.ReaderAt, size int64, cfg config.Config) (*Document, error) {
	return open(ctx, r, size, cfg, nil)
}

// OpenFile opens and parses the file at path.
func OpenFile(ctx context.Context, path string, cfg config.Config) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnopenableDocument, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnopenableDocument, err)
	}
	doc, err := open(ctx, f, info.Size(), cfg, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return doc, nil
}

func open(ctx context.Context, r io.ReaderAt, size int64, cfg config.Config, closer io.Closer) (*Document, error) {
	log := cfg.Logger(os.Stderr)
	strategy := cfg.RecoveryStrategy()
	limits := cfg.SecurityLimits()

	parsed, err := parser.Open(ctx, r, size, parser.Config{
		Recovery: strategy,
		Limits:   limits,
		Log:      log,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnopenableDocument, err)
	}

	exCfg := extractor.Config{
		Log:      log,
		Recovery: strategy,
		Limits:   limits,
		Parallel: cfg.Parallel,
	}
	if cfg.OCR.Enabled {
		engine := ocr.NewTesseract(
			ocr.WithLanguages(cfg.OCR.Languages...),
			ocr.WithDPI(cfg.OCR.DPI),
		)
		exCfg.Image = ocr.Hook(parsed, engine, log)
	}
	return &Document{
		parsed:   parsed,
		ex:       extractor.New(parsed, exCfg),
		strategy: strategy,
		closer:   closer,
	}, nil
}

func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// Parser exposes the underlying document for object-level access.
func (d *Document) Parser() *parser.Document { return d.parsed }

func (d *Document) PageCount(ctx context.Context) (int, error) {
	return d.parsed.PageCount(ctx)
}

// ExtractAll returns the text of every page in document order.
func (d *Document) ExtractAll(ctx context.Context) ([]extractor.PageText, error) {
	return d.ex.ExtractAll(ctx)
}

// Metadata returns the document information dictionary values.
func (d *Document) Metadata(ctx context.Context) raw.DocumentMetadata {
	return d.parsed.Metadata(ctx)
}

// Warnings lists the errors a lenient strategy tolerated so far. Empty for
// strict documents, which fail instead.
func (d *Document) Warnings() []error {
	type errorLister interface{ Errors() []error }
	if l, ok := d.strategy.(errorLister); ok {
		return l.Errors()
	}
	return nil
}
