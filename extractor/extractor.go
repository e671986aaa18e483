// Package extractor walks page content and produces positioned text runs
// together with a plain-text rendition of each page.
package extractor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"pdftext/coords"
	"pdftext/fonts"
	"pdftext/ir/raw"
	"pdftext/observability"
	"pdftext/parser"
	"pdftext/recovery"
	"pdftext/security"
)

// Glyph is one decoded character cell with its device-space baseline origin.
type Glyph struct {
	Code    int
	Text    string
	Origin  coords.Point
	Advance float64
}

// TextRun is the output of a single text-showing operator. Runs appear in
// the order the content stream executed them.
type TextRun struct {
	Font   string
	Size   float64
	Origin coords.Point
	End    coords.Point
	Text   string
	Glyphs []Glyph
}

// PageText bundles the runs of one page with a plain-text rendition that
// inserts line breaks and word gaps from run geometry.
type PageText struct {
	Page int
	Runs []TextRun
	Text string
}

type Config struct {
	Log      observability.Logger
	Recovery recovery.Strategy
	Limits   security.Limits
	// Parallel > 1 extracts that many pages concurrently.
	Parallel int
	// Image receives image XObjects as they are drawn; returned text is
	// appended as a run. Nil disables image handling.
	Image func(ctx context.Context, img *raw.StreamObj) (string, error)
}

// Extractor reads text from a parsed document. Safe for concurrent use.
type Extractor struct {
	doc *parser.Document
	cfg Config

	mu        sync.Mutex
	fontCache map[raw.Object]*fonts.Font
}

func New(doc *parser.Document, cfg Config) *Extractor {
	if cfg.Log == nil {
		cfg.Log = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	return &Extractor{doc: doc, cfg: cfg, fontCache: make(map[raw.Object]*fonts.Font)}
}

// ExtractAll extracts every page in document order. Under a lenient strategy
// a page that fails yields an empty PageText instead of aborting the rest.
func (e *Extractor) ExtractAll(ctx context.Context) ([]PageText, error) {
	pages, err := e.doc.Pages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PageText, len(pages))
	extract := func(ctx context.Context, i int) error {
		pt, err := e.ExtractPage(ctx, pages[i])
		if err != nil {
			loc := recovery.Location{Component: "extractor", ObjectNum: pages[i].Ref.Num}
			if e.cfg.Recovery.OnError(err, loc) == recovery.ActionFail {
				return fmt.Errorf("page %d: %w", i, err)
			}
			e.cfg.Log.Warn("page skipped",
				observability.Int("page", i), observability.Error("cause", err))
			pt = PageText{}
		}
		pt.Page = i
		out[i] = pt
		return nil
	}

	if e.cfg.Parallel > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Parallel)
		for i := range pages {
			i := i
			g.Go(func() error { return extract(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}
	for i := range pages {
		if err := extract(ctx, i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExtractPage runs the content of a single page through the interpreter.
func (e *Extractor) ExtractPage(ctx context.Context, page parser.Page) (PageText, error) {
	content, err := e.doc.PageContent(ctx, page)
	if err != nil {
		return PageText{}, err
	}
	st := e.newPageState(page.Resources)
	ec := st.newContext(coords.Identity())
	if err := st.proc.Run(ctx, ec, content); err != nil {
		return PageText{}, err
	}
	return PageText{Runs: st.runs, Text: assembleText(st.runs)}, nil
}

// loadFont resolves and caches a font dictionary. The cache key is the
// resolved dictionary, so the same font shared by several pages loads once.
func (e *Extractor) loadFont(ctx context.Context, dict *raw.DictObj) (*fonts.Font, error) {
	e.mu.Lock()
	f, ok := e.fontCache[dict]
	e.mu.Unlock()
	if ok {
		return f, nil
	}
	f, err := fonts.Load(ctx, e.doc, dict)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.fontCache[dict] = f
	e.mu.Unlock()
	return f, nil
}
