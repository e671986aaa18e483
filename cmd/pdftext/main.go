// Command pdftext prints the page count and text content of a PDF file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"pdftext"
	"pdftext/config"
)

type options struct {
	path     string
	password string
	confPath string
	parallel int
	ocr      bool
	strict   bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(1)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pdftext: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, errOut io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("pdftext", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: pdftext [flags] <file.pdf>\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.password, "password", "", "Password for encrypted files")
	fs.StringVar(&opts.confPath, "config", "", "Path to a YAML configuration file")
	fs.IntVar(&opts.parallel, "parallel", 0, "Extract this many pages concurrently")
	fs.BoolVar(&opts.ocr, "ocr", false, "Recognize text in page images")
	fs.BoolVar(&opts.strict, "strict", false, "Fail on the first structural error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.path = fs.Arg(0)
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg := config.Default()
	if opts.confPath != "" {
		loaded, err := config.Load(opts.confPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	// Flags win over the configuration file.
	if opts.password != "" {
		cfg.Password = opts.password
	}
	if opts.parallel > 0 {
		cfg.Parallel = opts.parallel
	}
	if opts.ocr {
		cfg.OCR.Enabled = true
	}
	if opts.strict {
		cfg.Strict = true
	}

	if t := cfg.SecurityLimits().MaxParseTime; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	doc, err := pdftext.OpenFile(ctx, opts.path, cfg)
	if err != nil {
		return err
	}
	defer doc.Close()

	pages, err := doc.ExtractAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Total pages: %d\n", len(pages))
	for _, page := range pages {
		fmt.Fprint(out, page.Text)
	}
	return nil
}
