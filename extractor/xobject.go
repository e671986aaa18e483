package extractor

import (
	"context"
	"fmt"

	"pdftext/contentstream"
	"pdftext/coords"
	"pdftext/ir/raw"
	"pdftext/observability"
)

// doXObject dispatches Do. Forms execute recursively in a child context with
// the form matrix applied; images go to the configured image hook.
func (st *pageState) doXObject(ctx context.Context, ec *contentstream.ExecutionContext, name string) error {
	xobjects, err := st.ex.doc.ResolveDict(ctx, raw.DictGet(st.resources(), "XObject"))
	if err != nil || xobjects == nil {
		return err
	}
	obj, err := st.ex.doc.Resolve(ctx, raw.DictGet(xobjects, name))
	if err != nil {
		return err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil
	}
	switch raw.NameValue(raw.DictGet(stream.Dict, "Subtype")) {
	case "Form":
		return st.runForm(ctx, ec, name, stream)
	case "Image":
		if st.ex.cfg.Image == nil {
			return nil
		}
		text, err := st.ex.cfg.Image(ctx, stream)
		if err != nil {
			st.ex.cfg.Log.Warn("image handler failed",
				observability.String("xobject", name), observability.Error("cause", err))
			return nil
		}
		st.appendImageText(text)
	}
	return nil
}

func (st *pageState) runForm(ctx context.Context, ec *contentstream.ExecutionContext, name string, form *raw.StreamObj) error {
	maxDepth := st.ex.cfg.Limits.MaxXObjectDepth
	if maxDepth > 0 && st.depth >= maxDepth {
		return fmt.Errorf("form %s: nesting exceeds depth %d", name, maxDepth)
	}
	content, err := st.ex.doc.DecodeStream(ctx, form)
	if err != nil {
		return fmt.Errorf("form %s: %w", name, err)
	}

	base := ec.GS.CTM
	if m, ok := matrixFromDict(form.Dict); ok {
		base = m.Multiply(base)
	}
	child := st.newContext(base)
	child.GS.Text = ec.GS.Text

	res := st.resources()
	if own, err := st.ex.doc.ResolveDict(ctx, raw.DictGet(form.Dict, "Resources")); err == nil && own != nil {
		res = own
	}
	st.res = append(st.res, res)
	st.depth++
	runErr := st.proc.Run(ctx, child, content)
	st.depth--
	st.res = st.res[:len(st.res)-1]
	return runErr
}

func matrixFromDict(dict *raw.DictObj) (m coords.Matrix, ok bool) {
	arr, isArr := raw.DictGet(dict, "Matrix").(*raw.ArrayObj)
	if !isArr || arr.Len() != 6 {
		return m, false
	}
	for i, item := range arr.Items {
		n, isNum := item.(raw.NumberObj)
		if !isNum {
			return m, false
		}
		m[i] = n.Float()
	}
	return m, true
}
