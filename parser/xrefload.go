package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"pdftext/ir/raw"
	"pdftext/observability"
	"pdftext/recovery"
	"pdftext/scanner"
	"pdftext/xref"
)

// loadXref locates startxref and follows the /Prev chain, merging sections
// newest first. Any corruption along the way is either fatal (strict) or
// triggers a full-file repair scan (lenient).
func (d *Document) loadXref(ctx context.Context) error {
	table := xref.NewTable()
	err := d.followXrefChain(ctx, table)
	if err == nil && table.Trailer() == nil {
		err = fmt.Errorf("%w: no trailer found", xref.ErrCorruptXref)
	}
	if err != nil {
		loc := recovery.Location{Component: "parser:xref"}
		if d.cfg.Recovery.OnError(err, loc) == recovery.ActionFail {
			return err
		}
		d.cfg.Log.Warn("cross-reference data unusable, scanning file for objects",
			observability.Error("cause", err))
		return d.repairXref(ctx)
	}
	d.table = table
	d.trailer = table.Trailer()
	return nil
}

func (d *Document) followXrefChain(ctx context.Context, table *xref.Table) error {
	tail, tailOffset := d.readTail()
	start, err := findStartxref(tail, tailOffset)
	if err != nil {
		return err
	}
	maxDepth := d.cfg.Limits.MaxXRefDepth
	if maxDepth <= 0 {
		maxDepth = 50
	}
	visited := make(map[int64]bool)
	for depth := 0; start >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth >= maxDepth || visited[start] {
			return fmt.Errorf("%w: xref chain loops at offset %d", xref.ErrCorruptXref, start)
		}
		visited[start] = true
		next, err := d.loadXrefSection(ctx, start, table)
		if err != nil {
			return err
		}
		start = next
	}
	return nil
}

// loadXrefSection parses one section (classic table or xref stream) and
// returns the /Prev offset, or -1 when the chain ends.
func (d *Document) loadXrefSection(ctx context.Context, offset int64, table *xref.Table) (int64, error) {
	if offset >= d.size {
		return -1, fmt.Errorf("%w: xref offset %d beyond end of file", xref.ErrCorruptXref, offset)
	}
	head := make([]byte, 4)
	n, _ := d.reader.ReadAt(head, offset)
	if n >= 4 && string(head[:4]) == "xref" {
		return d.loadClassicSection(ctx, offset, table)
	}
	return d.loadStreamSection(ctx, offset, table)
}

func (d *Document) loadClassicSection(ctx context.Context, offset int64, table *xref.Table) (int64, error) {
	data := d.readAll()
	trailerPos, err := xref.ParseClassicSection(data, offset, table)
	if err != nil {
		return -1, err
	}
	if trailerPos < 0 {
		return -1, fmt.Errorf("%w: classic section without trailer", xref.ErrCorruptXref)
	}
	s := d.newScanner()
	if err := s.SeekTo(trailerPos); err != nil {
		return -1, err
	}
	obj, err := ReadValue(s)
	if err != nil {
		return -1, fmt.Errorf("%w: trailer dictionary: %v", xref.ErrCorruptXref, err)
	}
	trailer, ok := obj.(*raw.DictObj)
	if !ok {
		return -1, fmt.Errorf("%w: trailer is not a dictionary", xref.ErrCorruptXref)
	}
	table.SetTrailer(trailer)

	// Hybrid files carry additional entries in a parallel xref stream.
	if stm := raw.IntFromDict(trailer, "XRefStm", -1); stm >= 0 {
		if _, err := d.loadStreamSection(ctx, stm, table); err != nil {
			d.cfg.Log.Warn("hybrid xref stream unreadable", observability.Error("cause", err))
		}
	}
	if prev := raw.IntFromDict(trailer, "Prev", -1); prev >= 0 {
		return prev, nil
	}
	return -1, nil
}

func (d *Document) loadStreamSection(ctx context.Context, offset int64, table *xref.Table) (int64, error) {
	s := d.newScanner()
	if err := s.SeekTo(offset); err != nil {
		return -1, err
	}
	if _, _, err := readObjHeader(s); err != nil {
		return -1, fmt.Errorf("%w: %v", xref.ErrCorruptXref, err)
	}
	obj, err := ReadValue(s)
	if err != nil {
		return -1, fmt.Errorf("%w: xref stream dict: %v", xref.ErrCorruptXref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok || raw.NameValue(raw.DictGet(dict, "Type")) != "XRef" {
		return -1, fmt.Errorf("%w: no xref stream at offset %d", xref.ErrCorruptXref, offset)
	}
	length := raw.IntFromDict(dict, "Length", -1)
	s.SetNextStreamLength(length)
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		return -1, fmt.Errorf("%w: xref stream payload missing", xref.ErrCorruptXref)
	}
	decoded, err := d.DecodeStream(ctx, raw.NewStream(dict, tok.Bytes))
	if err != nil {
		return -1, fmt.Errorf("%w: decode xref stream: %v", xref.ErrCorruptXref, err)
	}

	w, err := intArray(dict, "W")
	if err != nil {
		return -1, fmt.Errorf("%w: %v", xref.ErrCorruptXref, err)
	}
	index, err := intArray(dict, "Index")
	if err != nil {
		return -1, fmt.Errorf("%w: %v", xref.ErrCorruptXref, err)
	}
	if index == nil {
		index = []int64{0, raw.IntFromDict(dict, "Size", 0)}
	}
	if err := xref.DecodeStreamEntries(w, index, decoded, table); err != nil {
		return -1, err
	}
	table.SetTrailer(dict)
	if prev := raw.IntFromDict(dict, "Prev", -1); prev >= 0 {
		return prev, nil
	}
	return -1, nil
}

// repairXref rebuilds the table by scanning the whole file for object
// headers. The trailer comes from the last trailer keyword that parses, or
// failing that from a /Type /Catalog object.
func (d *Document) repairXref(ctx context.Context) error {
	data := d.readAll()
	table := xref.NewTable()
	trailerPositions := xref.ScanForObjects(data, table)
	if table.Len() == 0 {
		return fmt.Errorf("%w: no objects found in file", xref.ErrCorruptXref)
	}
	d.table = table

	for i := len(trailerPositions) - 1; i >= 0; i-- {
		s := d.newScanner()
		if err := s.SeekTo(trailerPositions[i]); err != nil {
			continue
		}
		if obj, err := ReadValue(s); err == nil {
			if trailer, ok := obj.(*raw.DictObj); ok {
				table.SetTrailer(trailer)
				break
			}
		}
	}
	if table.Trailer() == nil {
		trailer, err := d.findCatalogTrailer(ctx, table)
		if err != nil {
			return err
		}
		table.SetTrailer(trailer)
	}
	d.trailer = table.Trailer()
	return nil
}

func (d *Document) findCatalogTrailer(ctx context.Context, table *xref.Table) (*raw.DictObj, error) {
	for _, num := range table.Objects() {
		entry, ok := table.Lookup(num)
		if !ok {
			continue
		}
		ref := raw.ObjectRef{Num: num, Gen: entry.Gen}
		obj, err := d.loadAt(ctx, entry.Offset, ref, 0)
		if err != nil {
			continue
		}
		if dict, ok := obj.(*raw.DictObj); ok &&
			raw.NameValue(raw.DictGet(dict, "Type")) == "Catalog" {
			trailer := raw.Dict()
			trailer.Set(raw.NameLiteral("Root"), raw.Ref(num, entry.Gen))
			trailer.Set(raw.NameLiteral("Size"), raw.NumberInt(int64(table.Len()+1)))
			return trailer, nil
		}
	}
	return nil, fmt.Errorf("%w: no document catalog found", xref.ErrCorruptXref)
}

// readTail returns up to the last 2 KB of the file, enough to hold the
// startxref pointer and %%EOF marker.
func (d *Document) readTail() ([]byte, int64) {
	const tailLen = 2048
	offset := d.size - tailLen
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, d.size-offset)
	n, _ := d.reader.ReadAt(buf, offset)
	return buf[:n], offset
}

func (d *Document) readAll() []byte {
	buf := make([]byte, d.size)
	n, _ := d.reader.ReadAt(buf, 0)
	return buf[:n]
}

func findStartxref(tail []byte, tailOffset int64) (int64, error) {
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return -1, fmt.Errorf("%w: startxref not found", xref.ErrCorruptXref)
	}
	rest := tail[idx+len("startxref"):]
	fields := bytes.Fields(rest)
	if len(fields) == 0 {
		return -1, fmt.Errorf("%w: startxref value missing", xref.ErrCorruptXref)
	}
	v, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || v < 0 {
		return -1, fmt.Errorf("%w: bad startxref value %q", xref.ErrCorruptXref, fields[0])
	}
	return v, nil
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	obj := raw.DictGet(d, key)
	if obj == nil {
		return nil, nil
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s must be an array", key)
	}
	out := make([]int64, 0, arr.Len())
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s must hold integers", key)
		}
		out = append(out, n.Int())
	}
	return out, nil
}
