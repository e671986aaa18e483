// Package contentstream interprets page content operators. It tracks the
// graphics and text state machines and hands text and XObject events to
// caller-supplied hooks, which keeps rendering policy out of the interpreter.
package contentstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"pdftext/coords"
	"pdftext/fonts"
	"pdftext/ir/raw"
	"pdftext/observability"
	"pdftext/parser"
	"pdftext/recovery"
	"pdftext/scanner"
	"pdftext/security"
)

// Mode is the interpreter state. Text-showing and text-positioning operators
// are only meaningful between BT and ET.
type Mode int

const (
	ModeNormal Mode = iota
	ModeInTextBlock
)

// TextParams are the text state parameters that live in the graphics state
// and therefore survive across text blocks and get saved by q.
type TextParams struct {
	Font        *fonts.Font
	FontName    string
	Size        float64
	CharSpacing float64
	WordSpacing float64
	HorizScale  float64 // Tz value divided by 100
	Leading     float64
	Rise        float64
	RenderMode  int
}

// GraphicsState is the portion of state affected by q and Q. The text matrix
// is not part of it: Tm only exists inside a text block.
type GraphicsState struct {
	CTM  coords.Matrix
	Text TextParams
}

// ExecutionContext carries the interpreter state across operators. Hooks
// receive it to read the current transform and to advance the text position
// after showing glyphs.
type ExecutionContext struct {
	GS   GraphicsState
	Mode Mode
	Tm   coords.Matrix // text matrix, valid while Mode == ModeInTextBlock
	Tlm  coords.Matrix // text line matrix

	stack []GraphicsState
}

// RenderMatrix returns the transform from text space to device space for the
// current state: font size and rise composed with Tm and the CTM.
func (ec *ExecutionContext) RenderMatrix() coords.Matrix {
	t := ec.GS.Text
	m := coords.Matrix{t.Size * t.HorizScale, 0, 0, t.Size, 0, t.Rise}
	return m.Multiply(ec.Tm).Multiply(ec.GS.CTM)
}

// Advance moves the text position by tx text-space units along the baseline.
func (ec *ExecutionContext) Advance(tx float64) {
	ec.Tm = coords.Translate(tx, 0).Multiply(ec.Tm)
}

// Hooks connect the interpreter to whatever consumes the content. A nil hook
// turns the corresponding operators into no-ops.
type Hooks struct {
	// LoadFont resolves a /Resources font name when Tf executes.
	LoadFont func(ctx context.Context, name string) (*fonts.Font, error)
	// ShowText receives the undecoded string operand of Tj, ', " and TJ.
	// It is responsible for advancing ec via Advance.
	ShowText func(ctx context.Context, ec *ExecutionContext, data []byte) error
	// DoXObject runs when Do names an XObject; form recursion happens here.
	DoXObject func(ctx context.Context, ec *ExecutionContext, name string) error
}

type Config struct {
	Log      observability.Logger
	Recovery recovery.Strategy
	Limits   security.Limits
	Hooks    Hooks
}

type handlerFunc func(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error

// Processor executes content streams. One processor can run any number of
// streams; per-stream state lives in the ExecutionContext.
type Processor struct {
	cfg      Config
	handlers map[string]handlerFunc
}

func NewProcessor(cfg Config) *Processor {
	if cfg.Log == nil {
		cfg.Log = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	p := &Processor{cfg: cfg, handlers: make(map[string]handlerFunc)}
	p.registerDefaults()
	return p
}

// NewContext returns a fresh execution context with the given starting
// transform and a default font, so malformed streams that show text before
// Tf still produce output.
func NewContext(base coords.Matrix) *ExecutionContext {
	return &ExecutionContext{
		GS: GraphicsState{
			CTM: base,
			Text: TextParams{
				Font:       fonts.Default(),
				HorizScale: 1,
			},
		},
		Tm:  coords.Identity(),
		Tlm: coords.Identity(),
	}
}

// Run tokenizes content and executes every operator against ec. Unknown
// operators are skipped; malformed constructs resynchronize under a lenient
// strategy and fail under a strict one.
func (p *Processor) Run(ctx context.Context, ec *ExecutionContext, content []byte) error {
	s := scanner.New(bytes.NewReader(content), scanner.Config{
		MaxStringLength: p.cfg.Limits.MaxStringLength,
		MaxArrayDepth:   p.cfg.Limits.MaxNestingDepth,
		MaxDictDepth:    p.cfg.Limits.MaxNestingDepth,
		MaxInlineImage:  p.cfg.Limits.MaxStreamLength,
		Recovery:        p.cfg.Recovery,
	})
	s.SetRecoveryLocation(recovery.Location{Component: "contentstream"})

	var operands []raw.Object
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if p.tolerate(err) {
				operands = operands[:0]
				continue
			}
			return err
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			err := p.execute(ctx, ec, tok.Str, operands)
			operands = operands[:0]
			if err != nil {
				if p.tolerate(err) {
					continue
				}
				return err
			}
		case scanner.TokenInlineImage:
			// BI parameters accumulated as operands; drop them with the
			// payload.
			operands = operands[:0]
		default:
			obj, err := parser.BuildValue(s, tok)
			if err != nil {
				if p.tolerate(err) {
					operands = operands[:0]
					continue
				}
				return err
			}
			operands = append(operands, obj)
		}
	}
}

func (p *Processor) execute(ctx context.Context, ec *ExecutionContext, op string, operands []raw.Object) error {
	h, ok := p.handlers[op]
	if !ok {
		p.cfg.Log.Debug("skipping unknown operator", observability.String("op", op))
		return nil
	}
	return h(ctx, p, ec, operands)
}

func (p *Processor) tolerate(err error) bool {
	loc := recovery.Location{Component: "contentstream"}
	action := p.cfg.Recovery.OnError(err, loc)
	if action == recovery.ActionFail {
		return false
	}
	p.cfg.Log.Warn("content stream error skipped", observability.Error("cause", err))
	return true
}

func (p *Processor) registerDefaults() {
	reg := func(name string, h handlerFunc) { p.handlers[name] = h }

	reg("q", opSave)
	reg("Q", opRestore)
	reg("cm", opConcat)
	reg("BT", opBeginText)
	reg("ET", opEndText)
	reg("Td", opTextMove)
	reg("TD", opTextMoveLeading)
	reg("Tm", opSetTextMatrix)
	reg("T*", opNextLine)
	reg("Tf", opSetFont)
	reg("Tc", opCharSpacing)
	reg("Tw", opWordSpacing)
	reg("Tz", opHorizScale)
	reg("TL", opLeading)
	reg("Ts", opRise)
	reg("Tr", opRenderMode)
	reg("Tj", opShowText)
	reg("'", opNextLineShow)
	reg("\"", opSpacingNextLineShow)
	reg("TJ", opShowAdjusted)
	reg("Do", opDoXObject)
	reg("BX", opNop)
	reg("EX", opNop)
}

func opNop(context.Context, *Processor, *ExecutionContext, []raw.Object) error { return nil }

func opSave(_ context.Context, _ *Processor, ec *ExecutionContext, _ []raw.Object) error {
	ec.stack = append(ec.stack, ec.GS)
	return nil
}

func opRestore(_ context.Context, p *Processor, ec *ExecutionContext, _ []raw.Object) error {
	if len(ec.stack) == 0 {
		p.cfg.Log.Warn("Q with empty graphics state stack")
		return nil
	}
	ec.GS = ec.stack[len(ec.stack)-1]
	ec.stack = ec.stack[:len(ec.stack)-1]
	return nil
}

func opConcat(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	m, err := matrixOperand(operands)
	if err != nil {
		return err
	}
	ec.GS.CTM = m.Multiply(ec.GS.CTM)
	return nil
}

func opBeginText(_ context.Context, p *Processor, ec *ExecutionContext, _ []raw.Object) error {
	if ec.Mode == ModeInTextBlock {
		p.cfg.Log.Warn("BT inside text block")
	}
	ec.Mode = ModeInTextBlock
	ec.Tm = coords.Identity()
	ec.Tlm = coords.Identity()
	return nil
}

func opEndText(_ context.Context, p *Processor, ec *ExecutionContext, _ []raw.Object) error {
	if ec.Mode != ModeInTextBlock {
		p.cfg.Log.Warn("ET outside text block")
		return nil
	}
	ec.Mode = ModeNormal
	return nil
}

func opTextMove(_ context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	tx, ty, err := twoNumbers(operands)
	if err != nil {
		return err
	}
	return textMove(p, ec, tx, ty)
}

func opTextMoveLeading(_ context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	tx, ty, err := twoNumbers(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.Leading = -ty
	return textMove(p, ec, tx, ty)
}

func opSetTextMatrix(_ context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if !requireTextBlock(p, ec, "Tm") {
		return nil
	}
	m, err := matrixOperand(operands)
	if err != nil {
		return err
	}
	ec.Tm = m
	ec.Tlm = m
	return nil
}

func opNextLine(_ context.Context, p *Processor, ec *ExecutionContext, _ []raw.Object) error {
	return textMove(p, ec, 0, -ec.GS.Text.Leading)
}

func opSetFont(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if len(operands) < 2 {
		return fmt.Errorf("%w: Tf needs a name and a size", scanner.ErrMalformedSyntax)
	}
	name := raw.NameValue(operands[len(operands)-2])
	size, err := number(operands[len(operands)-1])
	if err != nil {
		return err
	}
	ec.GS.Text.FontName = name
	ec.GS.Text.Size = size

	font := fonts.Default()
	if p.cfg.Hooks.LoadFont != nil {
		loaded, err := p.cfg.Hooks.LoadFont(ctx, name)
		if err != nil || loaded == nil {
			p.cfg.Log.Warn("font unavailable, using default metrics",
				observability.String("font", name), observability.Error("cause", err))
		} else {
			font = loaded
		}
	}
	ec.GS.Text.Font = font
	return nil
}

func opCharSpacing(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.CharSpacing = v
	return nil
}

func opWordSpacing(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.WordSpacing = v
	return nil
}

func opHorizScale(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.HorizScale = v / 100
	return nil
}

func opLeading(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.Leading = v
	return nil
}

func opRise(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.Rise = v
	return nil
}

func opRenderMode(_ context.Context, _ *Processor, ec *ExecutionContext, operands []raw.Object) error {
	v, err := lastNumber(operands)
	if err != nil {
		return err
	}
	ec.GS.Text.RenderMode = int(v)
	return nil
}

func opShowText(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if len(operands) < 1 {
		return fmt.Errorf("%w: Tj needs a string", scanner.ErrMalformedSyntax)
	}
	return showString(ctx, p, ec, operands[len(operands)-1])
}

func opNextLineShow(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if err := textMove(p, ec, 0, -ec.GS.Text.Leading); err != nil {
		return err
	}
	return opShowText(ctx, p, ec, operands)
}

func opSpacingNextLineShow(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if len(operands) < 3 {
		return fmt.Errorf("%w: \" needs two numbers and a string", scanner.ErrMalformedSyntax)
	}
	aw, err := number(operands[len(operands)-3])
	if err != nil {
		return err
	}
	ac, err := number(operands[len(operands)-2])
	if err != nil {
		return err
	}
	ec.GS.Text.WordSpacing = aw
	ec.GS.Text.CharSpacing = ac
	return opNextLineShow(ctx, p, ec, operands)
}

func opShowAdjusted(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if len(operands) < 1 {
		return fmt.Errorf("%w: TJ needs an array", scanner.ErrMalformedSyntax)
	}
	arr, ok := operands[len(operands)-1].(*raw.ArrayObj)
	if !ok {
		return fmt.Errorf("%w: TJ operand is not an array", scanner.ErrMalformedSyntax)
	}
	if !requireTextBlock(p, ec, "TJ") {
		return nil
	}
	for _, item := range arr.Items {
		switch v := item.(type) {
		case raw.StringObj:
			if err := showString(ctx, p, ec, v); err != nil {
				return err
			}
		case raw.NumberObj:
			// A positive array value moves the next glyph backwards.
			t := ec.GS.Text
			ec.Advance(-v.Float() / 1000 * t.Size * t.HorizScale)
		}
	}
	return nil
}

func opDoXObject(ctx context.Context, p *Processor, ec *ExecutionContext, operands []raw.Object) error {
	if len(operands) < 1 {
		return fmt.Errorf("%w: Do needs a name", scanner.ErrMalformedSyntax)
	}
	name := raw.NameValue(operands[len(operands)-1])
	if name == "" || p.cfg.Hooks.DoXObject == nil {
		return nil
	}
	return p.cfg.Hooks.DoXObject(ctx, ec, name)
}

func showString(ctx context.Context, p *Processor, ec *ExecutionContext, operand raw.Object) error {
	if !requireTextBlock(p, ec, "text showing") {
		return nil
	}
	str, ok := operand.(raw.StringObj)
	if !ok {
		return fmt.Errorf("%w: text operand is not a string", scanner.ErrMalformedSyntax)
	}
	if p.cfg.Hooks.ShowText == nil {
		return nil
	}
	return p.cfg.Hooks.ShowText(ctx, ec, str.Bytes)
}

func textMove(p *Processor, ec *ExecutionContext, tx, ty float64) error {
	if !requireTextBlock(p, ec, "text positioning") {
		return nil
	}
	ec.Tlm = coords.Translate(tx, ty).Multiply(ec.Tlm)
	ec.Tm = ec.Tlm
	return nil
}

// requireTextBlock reports whether the interpreter is inside BT..ET; outside,
// the operator is logged and dropped rather than treated as an error.
func requireTextBlock(p *Processor, ec *ExecutionContext, what string) bool {
	if ec.Mode == ModeInTextBlock {
		return true
	}
	p.cfg.Log.Warn("operator outside text block ignored", observability.String("op", what))
	return false
}

func number(obj raw.Object) (float64, error) {
	n, ok := obj.(raw.NumberObj)
	if !ok {
		return 0, fmt.Errorf("%w: expected a number operand", scanner.ErrMalformedSyntax)
	}
	return n.Float(), nil
}

func lastNumber(operands []raw.Object) (float64, error) {
	if len(operands) < 1 {
		return 0, fmt.Errorf("%w: missing numeric operand", scanner.ErrMalformedSyntax)
	}
	return number(operands[len(operands)-1])
}

func twoNumbers(operands []raw.Object) (float64, float64, error) {
	if len(operands) < 2 {
		return 0, 0, fmt.Errorf("%w: two numeric operands required", scanner.ErrMalformedSyntax)
	}
	a, err := number(operands[len(operands)-2])
	if err != nil {
		return 0, 0, err
	}
	b, err := number(operands[len(operands)-1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func matrixOperand(operands []raw.Object) (coords.Matrix, error) {
	if len(operands) < 6 {
		return coords.Matrix{}, fmt.Errorf("%w: six numeric operands required", scanner.ErrMalformedSyntax)
	}
	var m coords.Matrix
	for i := 0; i < 6; i++ {
		v, err := number(operands[len(operands)-6+i])
		if err != nil {
			return coords.Matrix{}, err
		}
		m[i] = v
	}
	return m, nil
}
