// Package parser turns a byte stream into a resolvable document: it locates
// cross-reference data, loads indirect objects lazily and exposes the page
// tree.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"pdftext/filters"
	"pdftext/ir/raw"
	"pdftext/observability"
	"pdftext/recovery"
	"pdftext/scanner"
	"pdftext/security"
	"pdftext/xref"
)

// ErrCircularReference is returned when resolving an object chases more than
// the allowed number of indirect links.
var ErrCircularReference = errors.New("circular object reference")

type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Log      observability.Logger
	Filters  *filters.Pipeline
	Password string
}

// Document is a parsed file. Objects are loaded on first use and cached;
// Document is safe for concurrent resolution.
type Document struct {
	reader  io.ReaderAt
	size    int64
	cfg     Config
	table   *xref.Table
	trailer *raw.DictObj
	sec     security.Handler
	version string

	mu     sync.Mutex
	cache  map[raw.ObjectRef]raw.Object
	objstm map[int]map[int]raw.Object
}

// Open reads the header, cross-reference data and encryption dictionary.
// No body objects are parsed until they are resolved.
func Open(ctx context.Context, r io.ReaderAt, size int64, cfg Config) (*Document, error) {
	if cfg.Log == nil {
		cfg.Log = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewStrictStrategy()
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.Limits.MaxIndirectDepth == 0 {
		cfg.Limits.MaxIndirectDepth = security.DefaultLimits().MaxIndirectDepth
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.NewDefaultPipeline(filters.Limits{
			MaxDecompressedSize: cfg.Limits.MaxDecompressedSize,
			MaxDecodeTime:       cfg.Limits.MaxDecodeTime,
		})
	}
	d := &Document{
		reader: r,
		size:   size,
		cfg:    cfg,
		cache:  make(map[raw.ObjectRef]raw.Object),
		objstm: make(map[int]map[int]raw.Object),
	}
	d.version = readHeaderVersion(r)

	if err := d.loadXref(ctx); err != nil {
		return nil, err
	}
	if err := d.setupSecurity(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) Version() string       { return d.version }
func (d *Document) Trailer() *raw.DictObj { return d.trailer }
func (d *Document) Encrypted() bool       { return d.sec.IsEncrypted() }

// Permissions reports what the document allows; unencrypted files allow
// everything.
func (d *Document) Permissions() security.Permissions { return d.sec.Permissions() }

func (d *Document) setupSecurity(ctx context.Context) error {
	var encDict *raw.DictObj
	switch v := raw.DictGet(d.trailer, "Encrypt").(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		// The encryption dictionary itself is stored unencrypted.
		obj, err := d.loadRef(ctx, v.R, 0)
		if err != nil {
			return fmt.Errorf("load encrypt dict: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
	}
	var err error
	if encDict == nil {
		d.sec = security.NoopHandler()
		return nil
	}
	d.sec, err = security.NewHandler(encDict, d.trailer)
	if err != nil {
		return err
	}
	if err := d.sec.Authenticate(d.cfg.Password); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// Resolve follows indirect references until a direct object remains. A broken
// reference resolves to null under a lenient strategy; reference chains
// longer than the indirect depth limit fail with ErrCircularReference.
func (d *Document) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	depth := 0
	for {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if depth >= d.cfg.Limits.MaxIndirectDepth {
			return nil, fmt.Errorf("%w: depth %d at %s", ErrCircularReference, depth, ref.R)
		}
		next, err := d.loadRef(ctx, ref.R, depth)
		if err != nil {
			return nil, err
		}
		obj = next
		depth++
	}
}

// ResolveDict resolves obj and unwraps it as a dictionary, returning nil for
// anything else.
func (d *Document) ResolveDict(ctx context.Context, obj raw.Object) (*raw.DictObj, error) {
	res, err := d.Resolve(ctx, obj)
	if err != nil {
		return nil, err
	}
	dict, _ := res.(*raw.DictObj)
	return dict, nil
}

// loadRef fetches one indirect object, consulting the cache first.
func (d *Document) loadRef(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if obj, ok := d.cache[ref]; ok {
		d.mu.Unlock()
		return obj, nil
	}
	d.mu.Unlock()

	obj, err := d.loadUncached(ctx, ref, depth)
	if err != nil {
		if d.tolerate(err, ref, "loadRef") {
			d.cfg.Log.Warn("unresolvable reference treated as null",
				observability.String("ref", ref.String()),
				observability.Error("cause", err))
			obj = raw.NullObj{}
		} else {
			return nil, err
		}
	}

	d.mu.Lock()
	d.cache[ref] = obj
	d.mu.Unlock()
	return obj, nil
}

func (d *Document) loadUncached(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	entry, found := d.table.Lookup(ref.Num)
	if !found {
		return raw.NullObj{}, nil
	}
	switch entry.Type {
	case xref.StreamEntry:
		return d.loadFromObjectStream(ctx, entry.StreamNum, entry.StreamIdx, depth)
	default:
		return d.loadAt(ctx, entry.Offset, ref, depth)
	}
}

// loadAt parses "N G obj ... endobj" at a byte offset.
func (d *Document) loadAt(ctx context.Context, offset int64, want raw.ObjectRef, depth int) (raw.Object, error) {
	s := d.newScanner()
	s.SetRecoveryLocation(recovery.Location{ByteOffset: offset, ObjectNum: want.Num, ObjectGen: want.Gen})
	if err := s.SeekTo(offset); err != nil {
		return nil, err
	}
	num, gen, err := readObjHeader(s)
	if err != nil {
		return nil, err
	}
	if num != want.Num {
		return nil, fmt.Errorf("%w: found object %d at offset for %d", scanner.ErrMalformedSyntax, num, want.Num)
	}
	obj, err := ReadValue(s)
	if err != nil {
		return nil, err
	}
	dict, isDict := obj.(*raw.DictObj)
	if !isDict {
		return d.decryptObject(obj, want.Num, gen), nil
	}
	// A dictionary may be a stream header. Feed the declared length to the
	// scanner before it sees the stream keyword; an indirect /Length is
	// resolved out of band.
	length, err := d.streamLength(ctx, dict, depth)
	if err != nil {
		return nil, err
	}
	s.SetNextStreamLength(length)
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		s.SetNextStreamLength(-1)
		return d.decryptObject(dict, want.Num, gen), nil
	}
	stream := raw.NewStream(dict, tok.Bytes)
	return d.decryptObject(stream, want.Num, gen), nil
}

func (d *Document) streamLength(ctx context.Context, dict *raw.DictObj, depth int) (int64, error) {
	switch v := raw.DictGet(dict, "Length").(type) {
	case raw.NumberObj:
		return v.Int(), nil
	case raw.RefObj:
		if depth >= d.cfg.Limits.MaxIndirectDepth {
			return -1, fmt.Errorf("%w: resolving /Length", ErrCircularReference)
		}
		obj, err := d.loadRef(ctx, v.R, depth+1)
		if err != nil {
			return -1, err
		}
		if n, ok := obj.(raw.NumberObj); ok {
			return n.Int(), nil
		}
	}
	return -1, nil
}

// DecodeStream returns the stream payload with its filter chain applied.
func (d *Document) DecodeStream(ctx context.Context, stream *raw.StreamObj) ([]byte, error) {
	names, params := filters.ForStream(stream.Dict)
	resolved := make([]raw.Dictionary, len(params))
	for i, p := range params {
		dict, err := d.ResolveDict(ctx, p)
		if err != nil {
			return nil, err
		}
		if dict != nil {
			resolved[i] = dict
		}
	}
	return d.cfg.Filters.Decode(ctx, stream.Data, names, resolved)
}

// decryptObject walks strings and stream payloads, decrypting in place when
// the document is encrypted.
func (d *Document) decryptObject(obj raw.Object, num, gen int) raw.Object {
	if d.sec == nil || !d.sec.IsEncrypted() {
		return obj
	}
	switch v := obj.(type) {
	case raw.StringObj:
		if out, err := d.sec.Decrypt(num, gen, v.Bytes, security.DataClassString); err == nil {
			return raw.StringObj{Bytes: out, Hex: v.Hex}
		}
	case *raw.ArrayObj:
		for i, it := range v.Items {
			v.Items[i] = d.decryptObject(it, num, gen)
		}
	case *raw.DictObj:
		for k, it := range v.KV {
			v.KV[k] = d.decryptObject(it, num, gen)
		}
	case *raw.StreamObj:
		class := security.DataClassStream
		if raw.NameValue(raw.DictGet(v.Dict, "Type")) == "Metadata" {
			class = security.DataClassMetadataStream
		}
		if raw.NameValue(raw.DictGet(v.Dict, "Type")) == "XRef" {
			return v // xref streams are never encrypted
		}
		d.decryptObject(v.Dict, num, gen)
		if out, err := d.sec.Decrypt(num, gen, v.Data, class); err == nil {
			v.Data = out
		}
	}
	return obj
}

// tolerate consults the recovery strategy for a non-fatal error.
func (d *Document) tolerate(err error, ref raw.ObjectRef, component string) bool {
	loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: "parser:" + component}
	switch d.cfg.Recovery.OnError(err, loc) {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		return true
	}
	return false
}

func (d *Document) newScanner() scanner.Scanner {
	return scanner.New(d.reader, scanner.Config{
		MaxStringLength: d.cfg.Limits.MaxStringLength,
		MaxDictDepth:    d.cfg.Limits.MaxNestingDepth,
		MaxArrayDepth:   d.cfg.Limits.MaxNestingDepth,
		MaxStreamLength: d.cfg.Limits.MaxStreamLength,
		Recovery:        d.cfg.Recovery,
	})
}

// readObjHeader consumes "N G obj".
func readObjHeader(s scanner.Scanner) (int, int, error) {
	numTok, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if numTok.Type != scanner.TokenNumber || !numTok.IsInt {
		return 0, 0, fmt.Errorf("%w: expected object number at %d", scanner.ErrMalformedSyntax, numTok.Pos)
	}
	genTok, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if genTok.Type != scanner.TokenNumber || !genTok.IsInt {
		return 0, 0, fmt.Errorf("%w: expected generation at %d", scanner.ErrMalformedSyntax, genTok.Pos)
	}
	kw, err := s.Next()
	if err != nil {
		return 0, 0, err
	}
	if kw.Type != scanner.TokenKeyword || kw.Str != "obj" {
		return 0, 0, fmt.Errorf("%w: expected obj keyword at %d", scanner.ErrMalformedSyntax, kw.Pos)
	}
	return int(numTok.Int), int(genTok.Int), nil
}

func readHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 16)
	n, _ := r.ReadAt(buf, 0)
	head := string(buf[:n])
	const prefix = "%PDF-"
	if len(head) < len(prefix)+3 || head[:len(prefix)] != prefix {
		return ""
	}
	return head[len(prefix) : len(prefix)+3]
}
