package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func samplePDF(t *testing.T, content string) string {
	t.Helper()
	var buf bytes.Buffer
	offsets := make([]int, 6)
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

	path := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMissingPathPrintsUsage(t *testing.T) {
	var errOut strings.Builder
	_, err := parseFlags(nil, &errOut)
	if err == nil {
		t.Fatal("no argument should be an error")
	}
	if !strings.Contains(errOut.String(), "Usage:") {
		t.Fatalf("usage not printed: %q", errOut.String())
	}
}

func TestRunPrintsCountThenText(t *testing.T) {
	path := samplePDF(t, "BT /F1 12 Tf 72 720 Td (Hello) Tj ET")
	opts, err := parseFlags([]string{path}, os.Stderr)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	var out strings.Builder
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "Total pages: 1\nHello" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunReportsUnreadableFile(t *testing.T) {
	opts := options{path: filepath.Join(t.TempDir(), "nope.pdf")}
	if err := run(context.Background(), opts, &strings.Builder{}); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestConfigFileApplies(t *testing.T) {
	confPath := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(confPath, []byte("parallel: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := samplePDF(t, "BT /F1 12 Tf (x) Tj ET")
	opts, err := parseFlags([]string{"-config", confPath, path}, os.Stderr)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	var out strings.Builder
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Total pages: 1\n") {
		t.Fatalf("output = %q", out.String())
	}
}
