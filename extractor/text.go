package extractor

import (
	"context"
	"math"
	"strings"

	"pdftext/contentstream"
	"pdftext/coords"
	"pdftext/fonts"
	"pdftext/ir/raw"
	"pdftext/observability"
)

// pageState holds per-page interpreter wiring: the resources stack grows as
// form XObjects nest and the run list accumulates in operator order.
type pageState struct {
	ex    *Extractor
	proc  *contentstream.Processor
	res   []*raw.DictObj
	runs  []TextRun
	depth int
}

func (e *Extractor) newPageState(resources *raw.DictObj) *pageState {
	st := &pageState{ex: e}
	st.res = append(st.res, resources)
	st.proc = contentstream.NewProcessor(contentstream.Config{
		Log:      e.cfg.Log,
		Recovery: e.cfg.Recovery,
		Limits:   e.cfg.Limits,
		Hooks: contentstream.Hooks{
			LoadFont:  st.loadFont,
			ShowText:  st.showText,
			DoXObject: st.doXObject,
		},
	})
	return st
}

func (st *pageState) newContext(base coords.Matrix) *contentstream.ExecutionContext {
	return contentstream.NewContext(base)
}

func (st *pageState) resources() *raw.DictObj {
	return st.res[len(st.res)-1]
}

func (st *pageState) loadFont(ctx context.Context, name string) (*fonts.Font, error) {
	fontsDict, err := st.ex.doc.ResolveDict(ctx, raw.DictGet(st.resources(), "Font"))
	if err != nil || fontsDict == nil {
		return nil, err
	}
	dict, err := st.ex.doc.ResolveDict(ctx, raw.DictGet(fontsDict, name))
	if err != nil || dict == nil {
		return nil, err
	}
	return st.ex.loadFont(ctx, dict)
}

// showText decodes the string with the active font and appends one run. Each
// glyph advances the text matrix by its scaled width plus character spacing,
// with word spacing added for single-byte code 32.
func (st *pageState) showText(ctx context.Context, ec *contentstream.ExecutionContext, data []byte) error {
	t := ec.GS.Text
	font := t.Font
	if font == nil {
		font = fonts.Default()
	}
	run := TextRun{Font: t.FontName, Size: t.Size}
	var b strings.Builder
	for i, g := range font.DecodeString(data) {
		origin := ec.RenderMatrix().Transform(coords.Point{})
		if i == 0 {
			run.Origin = origin
		}
		tx := g.Width/1000*t.Size + t.CharSpacing
		if g.Code == 32 && !font.TwoByte() {
			tx += t.WordSpacing
		}
		ec.Advance(tx * t.HorizScale)
		end := ec.RenderMatrix().Transform(coords.Point{})
		run.Glyphs = append(run.Glyphs, Glyph{
			Code:    g.Code,
			Text:    g.Text,
			Origin:  origin,
			Advance: math.Hypot(end.X-origin.X, end.Y-origin.Y),
		})
		b.WriteString(g.Text)
	}
	if len(run.Glyphs) == 0 {
		return nil
	}
	run.Text = b.String()
	run.End = ec.RenderMatrix().Transform(coords.Point{})
	st.runs = append(st.runs, run)
	return nil
}

func (st *pageState) appendImageText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	st.runs = append(st.runs, TextRun{Text: text})
	st.ex.cfg.Log.Debug("image text appended", observability.Int("chars", len(text)))
}

// assembleText flattens runs into plain text. A baseline jump bigger than
// about half the font size becomes a line break; a horizontal gap wider than
// a fifth of it becomes a space.
func assembleText(runs []TextRun) string {
	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			prev := runs[i-1]
			size := math.Max(math.Max(prev.Size, r.Size), 1)
			switch {
			case math.Abs(r.Origin.Y-prev.Origin.Y) > 0.5*size:
				b.WriteByte('\n')
			case r.Origin.X-prev.End.X > 0.2*size:
				b.WriteByte(' ')
			}
		}
		b.WriteString(r.Text)
	}
	return b.String()
}
