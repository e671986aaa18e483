package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pdftext/config"
)

func onePageDoc(content string) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 7)
	add := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	buf.WriteString("%PDF-1.7\n")
	add(1, "<< /Type /Catalog /Pages 2 0 R >>")
	add(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>")
	add(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	add(4, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	add(5, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	xref := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return buf.Bytes()
}

func TestOpenFileAndExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.pdf")
	data := onePageDoc("BT /F1 12 Tf 72 720 Td (Hi there) Tj ET")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := OpenFile(context.Background(), path, config.Default())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer doc.Close()

	n, err := doc.PageCount(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("page count %d, err %v", n, err)
	}
	pages, err := doc.ExtractAll(context.Background())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if pages[0].Text != "Hi there" {
		t.Fatalf("text = %q", pages[0].Text)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	data := []byte("this is not a document")
	_, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), config.Default())
	if !errors.Is(err, ErrUnopenableDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), config.Default())
	if !errors.Is(err, ErrUnopenableDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestRepairedDocumentReportsWarnings(t *testing.T) {
	data := onePageDoc("BT /F1 12 Tf (x) Tj ET")
	idx := bytes.LastIndex(data, []byte("startxref"))
	data = append(data[:idx:idx], []byte("startxref\n9999999\n%%EOF\n")...)

	doc, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), config.Default())
	if err != nil {
		t.Fatalf("open should repair: %v", err)
	}
	if len(doc.Warnings()) == 0 {
		t.Fatal("repair should leave a warning")
	}
	pages, err := doc.ExtractAll(context.Background())
	if err != nil || len(pages) != 1 || pages[0].Text != "x" {
		t.Fatalf("pages %+v err %v", pages, err)
	}
}

func TestStrictModeFailsOnCorruption(t *testing.T) {
	data := onePageDoc("BT (x) Tj ET")
	idx := bytes.LastIndex(data, []byte("startxref"))
	data = append(data[:idx:idx], []byte("startxref\n9999999\n%%EOF\n")...)

	cfg := config.Default()
	cfg.Strict = true
	_, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), cfg)
	if !errors.Is(err, ErrUnopenableDocument) {
		t.Fatalf("err = %v", err)
	}
}
