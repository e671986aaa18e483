package parser

import (
	"context"
	"fmt"
	"strings"

	"pdftext/ir/raw"
	"pdftext/observability"
	"pdftext/scanner"
)

// Page is one leaf of the page tree with inheritable attributes resolved.
type Page struct {
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	MediaBox  [4]float64
	CropBox   [4]float64
	Rotate    int
	Resources *raw.DictObj
}

// inherited carries the attributes a /Pages node passes down to its kids.
type inherited struct {
	mediaBox  *[4]float64
	cropBox   *[4]float64
	rotate    *int
	resources *raw.DictObj
}

// Pages walks the page tree in document order. Shared or cyclic nodes are
// visited once; a malformed kid is skipped under a lenient strategy.
func (d *Document) Pages(ctx context.Context) ([]Page, error) {
	root, err := d.ResolveDict(ctx, raw.DictGet(d.trailer, "Root"))
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: trailer has no /Root catalog", scanner.ErrMalformedSyntax)
	}
	pagesDict, err := d.ResolveDict(ctx, raw.DictGet(root, "Pages"))
	if err != nil {
		return nil, err
	}
	if pagesDict == nil {
		return nil, fmt.Errorf("%w: catalog has no /Pages tree", scanner.ErrMalformedSyntax)
	}
	var out []Page
	visited := make(map[*raw.DictObj]bool)
	err = d.walkPages(ctx, pagesDict, raw.ObjectRef{}, inherited{}, visited, &out)
	return out, err
}

// PageCount walks the tree rather than trusting /Count, which lies in
// damaged files.
func (d *Document) PageCount(ctx context.Context) (int, error) {
	pages, err := d.Pages(ctx)
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

func (d *Document) walkPages(ctx context.Context, node *raw.DictObj, ref raw.ObjectRef, inh inherited, visited map[*raw.DictObj]bool, out *[]Page) error {
	if visited[node] {
		return nil
	}
	visited[node] = true
	inh = d.absorbInheritable(ctx, node, inh)

	switch raw.NameValue(raw.DictGet(node, "Type")) {
	case "Page":
		*out = append(*out, d.buildPage(node, ref, inh))
		return nil
	case "Pages", "":
		// Some writers omit /Type on interior nodes; presence of /Kids
		// decides.
	default:
		return nil
	}
	kids, ok := raw.DictGet(node, "Kids").(*raw.ArrayObj)
	if !ok {
		if resolved, err := d.Resolve(ctx, raw.DictGet(node, "Kids")); err == nil {
			kids, _ = resolved.(*raw.ArrayObj)
		}
	}
	if kids == nil {
		// A leaf missing /Type but carrying /Contents is a page.
		if raw.DictGet(node, "Contents") != nil {
			*out = append(*out, d.buildPage(node, ref, inh))
		}
		return nil
	}
	for _, kid := range kids.Items {
		kidRef, _ := kid.(raw.RefObj)
		kidDict, err := d.ResolveDict(ctx, kid)
		if err != nil {
			if d.tolerate(err, kidRef.R, "pages") {
				d.cfg.Log.Warn("skipping unreadable page tree node",
					observability.String("ref", kidRef.R.String()),
					observability.Error("cause", err))
				continue
			}
			return err
		}
		if kidDict == nil {
			continue
		}
		if err := d.walkPages(ctx, kidDict, kidRef.R, inh, visited, out); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) absorbInheritable(ctx context.Context, node *raw.DictObj, inh inherited) inherited {
	if box, ok := d.rectValue(ctx, raw.DictGet(node, "MediaBox")); ok {
		inh.mediaBox = &box
	}
	if box, ok := d.rectValue(ctx, raw.DictGet(node, "CropBox")); ok {
		inh.cropBox = &box
	}
	if n, ok := raw.DictGet(node, "Rotate").(raw.NumberObj); ok {
		r := int(n.Int())
		inh.rotate = &r
	}
	if res, err := d.ResolveDict(ctx, raw.DictGet(node, "Resources")); err == nil && res != nil {
		inh.resources = res
	}
	return inh
}

func (d *Document) buildPage(node *raw.DictObj, ref raw.ObjectRef, inh inherited) Page {
	p := Page{
		Ref:      ref,
		Dict:     node,
		MediaBox: [4]float64{0, 0, 612, 792}, // US Letter fallback
	}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	}
	p.CropBox = p.MediaBox
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	}
	if inh.rotate != nil {
		p.Rotate = ((*inh.rotate % 360) + 360) % 360
	}
	p.Resources = inh.resources
	if p.Resources == nil {
		p.Resources = raw.Dict()
	}
	return p
}

func (d *Document) rectValue(ctx context.Context, obj raw.Object) ([4]float64, bool) {
	resolved, err := d.Resolve(ctx, obj)
	if err != nil {
		return [4]float64{}, false
	}
	arr, ok := resolved.(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return [4]float64{}, false
	}
	var out [4]float64
	for i, it := range arr.Items {
		v, err := d.Resolve(ctx, it)
		if err != nil {
			return out, false
		}
		f, ok := raw.FloatValue(v)
		if !ok {
			return out, false
		}
		out[i] = f
	}
	// Normalize so ll is below ur.
	if out[0] > out[2] {
		out[0], out[2] = out[2], out[0]
	}
	if out[1] > out[3] {
		out[1], out[3] = out[3], out[1]
	}
	return out, true
}

// PageContent concatenates and decodes the page's content streams. Multiple
// streams form one logical stream; a newline keeps operators from merging
// across boundaries.
func (d *Document) PageContent(ctx context.Context, page Page) ([]byte, error) {
	contents, err := d.Resolve(ctx, raw.DictGet(page.Dict, "Contents"))
	if err != nil {
		return nil, err
	}
	switch v := contents.(type) {
	case *raw.StreamObj:
		return d.DecodeStream(ctx, v)
	case *raw.ArrayObj:
		var parts [][]byte
		for _, it := range v.Items {
			res, err := d.Resolve(ctx, it)
			if err != nil {
				return nil, err
			}
			stream, ok := res.(*raw.StreamObj)
			if !ok {
				continue
			}
			decoded, err := d.DecodeStream(ctx, stream)
			if err != nil {
				if d.tolerate(err, raw.ObjectRef{}, "content") {
					continue
				}
				return nil, err
			}
			parts = append(parts, decoded)
		}
		return joinStreams(parts), nil
	}
	return nil, nil
}

// Metadata reads the common /Info fields, tolerating a missing dictionary.
func (d *Document) Metadata(ctx context.Context) raw.DocumentMetadata {
	var md raw.DocumentMetadata
	info, err := d.ResolveDict(ctx, raw.DictGet(d.trailer, "Info"))
	if err != nil || info == nil {
		return md
	}
	md.Title = infoString(ctx, d, info, "Title")
	md.Author = infoString(ctx, d, info, "Author")
	md.Subject = infoString(ctx, d, info, "Subject")
	md.Creator = infoString(ctx, d, info, "Creator")
	md.Producer = infoString(ctx, d, info, "Producer")
	if kw := infoString(ctx, d, info, "Keywords"); kw != "" {
		for _, part := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				md.Keywords = append(md.Keywords, trimmed)
			}
		}
	}
	return md
}

func infoString(ctx context.Context, d *Document, info *raw.DictObj, key string) string {
	obj, err := d.Resolve(ctx, raw.DictGet(info, key))
	if err != nil {
		return ""
	}
	s, ok := obj.(raw.StringObj)
	if !ok {
		return ""
	}
	return decodeTextString(s.Bytes)
}

// decodeTextString handles the two PDF text string encodings: UTF-16BE with
// BOM, else PDFDocEncoding (treated as Latin-1 for the printable range).
func decodeTextString(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		var sb strings.Builder
		for i := 2; i+1 < len(b); i += 2 {
			r := rune(b[i])<<8 | rune(b[i+1])
			if r >= 0xD800 && r <= 0xDBFF && i+3 < len(b) {
				lo := rune(b[i+2])<<8 | rune(b[i+3])
				if lo >= 0xDC00 && lo <= 0xDFFF {
					sb.WriteRune(((r - 0xD800) << 10) + (lo - 0xDC00) + 0x10000)
					i += 2
					continue
				}
			}
			sb.WriteRune(r)
		}
		return sb.String()
	}
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func joinStreams(parts [][]byte) []byte {
	if len(parts) == 1 {
		return parts[0]
	}
	var total int
	for _, p := range parts {
		total += len(p) + 1
	}
	out := make([]byte, 0, total)
	for i, p := range parts {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, p...)
	}
	return out
}
