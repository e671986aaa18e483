// Package xref models cross-reference data: classic tables, xref stream
// entries and the merged view across incremental updates.
package xref

import (
	"errors"
	"fmt"
	"sort"

	"pdftext/ir/raw"
)

// ErrCorruptXref marks unusable cross-reference data. Callers may fall back
// to a full-file object scan when they see it.
var ErrCorruptXref = errors.New("corrupt cross-reference data")

type EntryType int

const (
	FreeEntry   EntryType = iota
	FileEntry             // object stored at a byte offset
	StreamEntry           // object stored inside an object stream
)

// Entry locates one indirect object. FileEntry uses Offset and Gen;
// StreamEntry uses StreamNum and StreamIdx.
type Entry struct {
	Type      EntryType
	Offset    int64
	Gen       int
	StreamNum int
	StreamIdx int
}

// Table is the merged cross-reference view. Sections are added newest first,
// so the first definition of an object number wins; later (older) sections
// cannot override it.
type Table struct {
	entries map[int]Entry
	trailer *raw.DictObj
}

func NewTable() *Table {
	return &Table{entries: make(map[int]Entry)}
}

// Add records an entry unless a newer section already defined the object.
func (t *Table) Add(num int, e Entry) {
	if _, exists := t.entries[num]; exists {
		return
	}
	t.entries[num] = e
}

// Overwrite records an entry unconditionally. The repair scan uses it with
// later file positions winning.
func (t *Table) Overwrite(num int, e Entry) { t.entries[num] = e }

// Lookup returns the entry for an object number. Free entries report found
// as false so deleted objects stay deleted across updates.
func (t *Table) Lookup(num int) (Entry, bool) {
	e, ok := t.entries[num]
	if !ok || e.Type == FreeEntry {
		return Entry{}, false
	}
	return e, true
}

// Objects lists in-use object numbers in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for num, e := range t.entries {
		if e.Type != FreeEntry {
			out = append(out, num)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Table) Len() int { return len(t.entries) }

// SetTrailer keeps the first (newest) trailer; /Prev trailers only fill in
// keys the newer one lacks.
func (t *Table) SetTrailer(d *raw.DictObj) {
	if d == nil {
		return
	}
	if t.trailer == nil {
		t.trailer = d
		return
	}
	for k, v := range d.KV {
		if _, ok := t.trailer.KV[k]; !ok {
			t.trailer.Set(raw.NameLiteral(k), v)
		}
	}
}

func (t *Table) Trailer() *raw.DictObj { return t.trailer }

// ParseClassicSection parses one "xref" table section starting at offset.
// Entries are added to the table. It returns the absolute offset just past
// the "trailer" keyword, or -1 when the section ended without one.
func ParseClassicSection(data []byte, offset int64, into *Table) (int64, error) {
	c := cursor{data: data, pos: offset}
	if kw := c.word(); kw != "xref" {
		return -1, fmt.Errorf("%w: expected xref keyword at %d, found %q", ErrCorruptXref, offset, kw)
	}
	for {
		save := c.pos
		w := c.word()
		switch {
		case w == "trailer":
			return c.pos, nil
		case w == "":
			return -1, nil
		}
		start, ok := parseInt(w)
		if !ok {
			return -1, fmt.Errorf("%w: bad subsection start %q", ErrCorruptXref, w)
		}
		count, ok := parseInt(c.word())
		if !ok {
			c.pos = save
			return -1, fmt.Errorf("%w: bad subsection count at %d", ErrCorruptXref, save)
		}
		for i := int64(0); i < count; i++ {
			off, okO := parseInt(c.word())
			gen, okG := parseInt(c.word())
			kind := c.word()
			if !okO || !okG || (kind != "n" && kind != "f") {
				return -1, fmt.Errorf("%w: bad entry for object %d", ErrCorruptXref, start+i)
			}
			num := int(start + i)
			if kind == "f" {
				into.Add(num, Entry{Type: FreeEntry, Gen: int(gen)})
				continue
			}
			into.Add(num, Entry{Type: FileEntry, Offset: off, Gen: int(gen)})
		}
	}
}

// DecodeStreamEntries applies the decoded payload of an xref stream. w holds
// the /W field widths and index the /Index start/count pairs.
func DecodeStreamEntries(w []int64, index []int64, decoded []byte, into *Table) error {
	if len(w) < 3 {
		return fmt.Errorf("%w: /W needs three widths", ErrCorruptXref)
	}
	rowLen := int(w[0] + w[1] + w[2])
	if rowLen <= 0 {
		return fmt.Errorf("%w: zero-width xref stream rows", ErrCorruptXref)
	}
	if len(index)%2 != 0 {
		return fmt.Errorf("%w: /Index must hold start,count pairs", ErrCorruptXref)
	}
	row := 0
	for i := 0; i < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := int64(0); j < count; j++ {
			base := row * rowLen
			if base+rowLen > len(decoded) {
				return fmt.Errorf("%w: xref stream shorter than /Index claims", ErrCorruptXref)
			}
			f1 := readField(decoded[base:], int(w[0]))
			f2 := readField(decoded[base+int(w[0]):], int(w[1]))
			f3 := readField(decoded[base+int(w[0])+int(w[1]):], int(w[2]))
			if w[0] == 0 {
				f1 = 1 // default type per 7.5.8.3
			}
			num := int(start + j)
			switch f1 {
			case 0:
				into.Add(num, Entry{Type: FreeEntry, Gen: int(f3)})
			case 1:
				into.Add(num, Entry{Type: FileEntry, Offset: f2, Gen: int(f3)})
			case 2:
				into.Add(num, Entry{Type: StreamEntry, StreamNum: int(f2), StreamIdx: int(f3)})
			}
			row++
		}
	}
	return nil
}

func readField(b []byte, width int) int64 {
	var v int64
	for i := 0; i < width; i++ {
		v = v<<8 | int64(b[i])
	}
	return v
}

type cursor struct {
	data []byte
	pos  int64
}

func (c *cursor) word() string {
	for c.pos < int64(len(c.data)) && isWS(c.data[c.pos]) {
		c.pos++
	}
	start := c.pos
	for c.pos < int64(len(c.data)) && !isWS(c.data[c.pos]) {
		c.pos++
	}
	return string(c.data[start:c.pos])
}

func isWS(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var v int64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		v = v*10 + int64(s[i]-'0')
	}
	return v, true
}
