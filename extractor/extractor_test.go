package extractor

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"pdftext/ir/raw"
	"pdftext/parser"
	"pdftext/security"
)

// pdfFile assembles a classic-xref file for extraction tests.
type pdfFile struct {
	buf     bytes.Buffer
	offsets map[int]int64
	maxNum  int
}

func newPDFFile() *pdfFile {
	f := &pdfFile{offsets: make(map[int]int64)}
	f.buf.WriteString("%PDF-1.7\n")
	return f
}

func (f *pdfFile) add(num int, body string) {
	f.offsets[num] = int64(f.buf.Len())
	if num > f.maxNum {
		f.maxNum = num
	}
	fmt.Fprintf(&f.buf, "%d 0 obj\n%s\nendobj\n", num, body)
}

func (f *pdfFile) addStream(num int, dict string, payload string) {
	f.add(num, fmt.Sprintf("%s\nstream\n%s\nendstream", dict, payload))
}

func (f *pdfFile) finish(trailer string) []byte {
	xrefOff := f.buf.Len()
	fmt.Fprintf(&f.buf, "xref\n0 %d\n", f.maxNum+1)
	f.buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= f.maxNum; i++ {
		if off, ok := f.offsets[i]; ok {
			fmt.Fprintf(&f.buf, "%010d 00000 n \n", off)
		} else {
			f.buf.WriteString("0000000000 65535 f \n")
		}
	}
	fmt.Fprintf(&f.buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xrefOff)
	return f.buf.Bytes()
}

// docWithPages builds one page per content string. Every page shares font
// /F1 (Helvetica) and any extra resources given in resEntries.
func docWithPages(resEntries string, contents ...string) []byte {
	f := newPDFFile()
	fontNum := 3 + 2*len(contents)
	kids := make([]string, 0, len(contents))
	for i := range contents {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}
	f.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	f.add(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>",
		strings.Join(kids, " "), len(contents)))
	for i, content := range contents {
		pageNum := 3 + 2*i
		streamNum := pageNum + 1
		f.add(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> %s >> >>",
			streamNum, fontNum, resEntries))
		f.addStream(streamNum, fmt.Sprintf("<< /Length %d >>", len(content)), content)
	}
	f.add(fontNum, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	return f.finish(fmt.Sprintf("<< /Size %d /Root 1 0 R >>", fontNum+1))
}

func openExtractor(t *testing.T, data []byte, cfg Config) *Extractor {
	t.Helper()
	doc, err := parser.Open(context.Background(), bytes.NewReader(data), int64(len(data)), parser.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return New(doc, cfg)
}

func TestExtractSimplePage(t *testing.T) {
	data := docWithPages("", "BT /F1 12 Tf 100 700 Td (Hello World) Tj ET")
	e := openExtractor(t, data, Config{})
	pages, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("extracted %d pages", len(pages))
	}
	if pages[0].Text != "Hello World" {
		t.Fatalf("text = %q", pages[0].Text)
	}
	if len(pages[0].Runs) != 1 {
		t.Fatalf("runs = %d", len(pages[0].Runs))
	}
	r := pages[0].Runs[0]
	if r.Origin.X != 100 || r.Origin.Y != 700 {
		t.Fatalf("run origin %+v", r.Origin)
	}
	if r.Font != "F1" || r.Size != 12 {
		t.Fatalf("run font %q size %v", r.Font, r.Size)
	}
	if len(r.Glyphs) != len("Hello World") {
		t.Fatalf("glyph count %d", len(r.Glyphs))
	}
}

func TestRunsKeepOperatorOrder(t *testing.T) {
	content := "BT /F1 12 Tf 14 TL 72 720 Td (first) Tj (second) ' ET"
	e := openExtractor(t, docWithPages("", content), Config{})
	pt, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	runs := pt[0].Runs
	if len(runs) != 2 || runs[0].Text != "first" || runs[1].Text != "second" {
		t.Fatalf("runs = %+v", runs)
	}
	if pt[0].Text != "first\nsecond" {
		t.Fatalf("text = %q", pt[0].Text)
	}
}

func TestHorizontalGapBecomesSpace(t *testing.T) {
	content := "BT /F1 10 Tf (A) Tj 100 0 Td (B) Tj ET"
	e := openExtractor(t, docWithPages("", content), Config{})
	pt, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pt[0].Text != "A B" {
		t.Fatalf("text = %q", pt[0].Text)
	}
}

func TestFormXObjectExecutes(t *testing.T) {
	formContent := "BT /F1 12 Tf (inside) Tj ET"
	f := newPDFFile()
	f.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	f.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	f.add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /Font << /F1 6 0 R >> /XObject << /Fm1 5 0 R >> >> >>")
	f.addStream(4, "<< /Length 8 >>", "/Fm1 Do\n")
	f.addStream(5, fmt.Sprintf(
		"<< /Type /XObject /Subtype /Form /Matrix [1 0 0 1 50 60] /Length %d >>", len(formContent)),
		formContent)
	f.add(6, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	data := f.finish("<< /Size 7 /Root 1 0 R >>")

	e := openExtractor(t, data, Config{})
	pt, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pt[0].Text != "inside" {
		t.Fatalf("text = %q", pt[0].Text)
	}
	if o := pt[0].Runs[0].Origin; o.X != 50 || o.Y != 60 {
		t.Fatalf("form matrix not applied: %+v", o)
	}
}

func TestRecursiveFormStopsAtDepthLimit(t *testing.T) {
	f := newPDFFile()
	f.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	f.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	f.add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /XObject << /Fm1 5 0 R >> >> >>")
	f.addStream(4, "<< /Length 8 >>", "/Fm1 Do\n")
	f.addStream(5, "<< /Type /XObject /Subtype /Form /Length 8 >>", "/Fm1 Do\n")
	data := f.finish("<< /Size 6 /Root 1 0 R >>")

	limits := security.DefaultLimits()
	limits.MaxXObjectDepth = 4
	e := openExtractor(t, data, Config{Limits: limits})
	if _, err := e.ExtractAll(context.Background()); err != nil {
		t.Fatalf("extraction should survive the depth limit, got %v", err)
	}
}

func TestParallelExtractionPreservesOrder(t *testing.T) {
	contents := make([]string, 8)
	for i := range contents {
		contents[i] = fmt.Sprintf("BT /F1 12 Tf (page %d) Tj ET", i)
	}
	e := openExtractor(t, docWithPages("", contents...), Config{Parallel: 4})
	pages, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(pages) != 8 {
		t.Fatalf("extracted %d pages", len(pages))
	}
	for i, pt := range pages {
		if pt.Page != i {
			t.Fatalf("page %d has index %d", i, pt.Page)
		}
		if want := fmt.Sprintf("page %d", i); pt.Text != want {
			t.Fatalf("page %d text = %q", i, pt.Text)
		}
	}
}

func TestImageHookFeedsText(t *testing.T) {
	f := newPDFFile()
	f.add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	f.add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	f.add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /XObject << /Im1 5 0 R >> >> >>")
	f.addStream(4, "<< /Length 8 >>", "/Im1 Do\n")
	f.addStream(5, "<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /Length 1 >>", "x")
	data := f.finish("<< /Size 6 /Root 1 0 R >>")

	var gotImage *raw.StreamObj
	cfg := Config{
		Image: func(_ context.Context, img *raw.StreamObj) (string, error) {
			gotImage = img
			return "scanned words\n", nil
		},
	}
	e := openExtractor(t, data, cfg)
	pt, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if gotImage == nil {
		t.Fatal("image hook never ran")
	}
	if pt[0].Text != "scanned words" {
		t.Fatalf("text = %q", pt[0].Text)
	}
}

func TestRepeatedExtractionIsIdentical(t *testing.T) {
	data := docWithPages("",
		"BT /F1 12 Tf 72 720 Td (first page) Tj ET",
		"BT /F1 12 Tf 72 720 Td (second page) Tj ET")
	e := openExtractor(t, data, Config{})

	ctx := context.Background()
	first, err := e.ExtractAll(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := e.ExtractAll(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("passes differ:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestMissingFontStillExtracts(t *testing.T) {
	content := "BT /NoSuchFont 12 Tf (still here) Tj ET"
	e := openExtractor(t, docWithPages("", content), Config{})
	pt, err := e.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pt[0].Text != "still here" {
		t.Fatalf("text = %q", pt[0].Text)
	}
}
