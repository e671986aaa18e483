package parser

import (
	"bytes"
	"context"
	"fmt"

	"pdftext/ir/raw"
	"pdftext/scanner"
)

// loadFromObjectStream fetches one compressed object. The whole stream is
// parsed and cached on first touch, since neighbors are usually needed soon
// after.
func (d *Document) loadFromObjectStream(ctx context.Context, streamNum, idx, depth int) (raw.Object, error) {
	d.mu.Lock()
	objects, ok := d.objstm[streamNum]
	d.mu.Unlock()
	if !ok {
		var err error
		objects, err = d.parseObjectStream(ctx, streamNum, depth)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.objstm[streamNum] = objects
		d.mu.Unlock()
	}
	obj, ok := objects[idx]
	if !ok {
		return raw.NullObj{}, nil
	}
	return obj, nil
}

func (d *Document) parseObjectStream(ctx context.Context, streamNum, depth int) (map[int]raw.Object, error) {
	if depth >= d.cfg.Limits.MaxIndirectDepth {
		return nil, fmt.Errorf("%w: object stream %d", ErrCircularReference, streamNum)
	}
	container, err := d.loadRef(ctx, raw.ObjectRef{Num: streamNum}, depth+1)
	if err != nil {
		return nil, err
	}
	stream, ok := container.(*raw.StreamObj)
	if !ok || raw.NameValue(raw.DictGet(stream.Dict, "Type")) != "ObjStm" {
		return nil, fmt.Errorf("%w: object %d is not an object stream", scanner.ErrMalformedSyntax, streamNum)
	}
	decoded, err := d.DecodeStream(ctx, stream)
	if err != nil {
		return nil, err
	}
	count := int(raw.IntFromDict(stream.Dict, "N", 0))
	first := raw.IntFromDict(stream.Dict, "First", 0)

	// Header: N pairs of "objnum offset", offsets relative to /First.
	header := scanner.New(bytes.NewReader(decoded), d.scannerConfig())
	type slot struct {
		num    int
		offset int64
	}
	slots := make([]slot, 0, count)
	for i := 0; i < count; i++ {
		numTok, err := header.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: object stream header truncated", scanner.ErrMalformedSyntax)
		}
		offTok, err := header.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: object stream header truncated", scanner.ErrMalformedSyntax)
		}
		if numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("%w: object stream header not numeric", scanner.ErrMalformedSyntax)
		}
		slots = append(slots, slot{num: int(numTok.Int), offset: offTok.Int})
	}

	out := make(map[int]raw.Object, count)
	for i, sl := range slots {
		body := scanner.New(bytes.NewReader(decoded), d.scannerConfig())
		if err := body.SeekTo(first + sl.offset); err != nil {
			continue
		}
		obj, err := ReadValue(body)
		if err != nil {
			if d.tolerate(err, raw.ObjectRef{Num: sl.num}, "objstm") {
				continue
			}
			return nil, err
		}
		out[i] = obj
		// Compressed objects are also addressable by number.
		d.mu.Lock()
		ref := raw.ObjectRef{Num: sl.num}
		if _, exists := d.cache[ref]; !exists {
			d.cache[ref] = obj
		}
		d.mu.Unlock()
	}
	return out, nil
}

func (d *Document) scannerConfig() scanner.Config {
	return scanner.Config{
		MaxStringLength: d.cfg.Limits.MaxStringLength,
		MaxDictDepth:    d.cfg.Limits.MaxNestingDepth,
		MaxArrayDepth:   d.cfg.Limits.MaxNestingDepth,
		MaxStreamLength: d.cfg.Limits.MaxStreamLength,
		Recovery:        d.cfg.Recovery,
	}
}
