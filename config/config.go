// Package config loads extraction settings from YAML. The zero configuration
// is usable; a file only overrides what it mentions.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pdftext/observability"
	"pdftext/recovery"
	"pdftext/security"
)

type Config struct {
	// Password opens encrypted files; tried as both user and owner password.
	Password string `yaml:"password"`

	// Parallel is the number of pages extracted concurrently. Zero or one
	// means sequential.
	Parallel int `yaml:"parallel"`

	// Strict aborts on the first structural error instead of repairing.
	Strict bool `yaml:"strict"`

	OCR    OCR    `yaml:"ocr"`
	Limits Limits `yaml:"limits"`
	Log    Log    `yaml:"log"`
}

type OCR struct {
	Enabled   bool     `yaml:"enabled"`
	Languages []string `yaml:"languages"`
	DPI       int      `yaml:"dpi"`
}

// Limits mirrors security.Limits with yaml tags; zero fields keep defaults.
type Limits struct {
	MaxDecompressedSize int64    `yaml:"max_decompressed_size"`
	MaxIndirectDepth    int      `yaml:"max_indirect_depth"`
	MaxXRefDepth        int      `yaml:"max_xref_depth"`
	MaxXObjectDepth     int      `yaml:"max_xobject_depth"`
	MaxStringLength     int64    `yaml:"max_string_length"`
	MaxStreamLength     int64    `yaml:"max_stream_length"`
	MaxNestingDepth     int      `yaml:"max_nesting_depth"`
	DecodeTimeout       Duration `yaml:"decode_timeout"`
	ParseTimeout        Duration `yaml:"parse_timeout"`
}

// Duration accepts Go duration strings like "30s" in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

type Log struct {
	// Level is one of debug, info, warn, error. Empty means warn.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{Parallel: 1}
}

// Load reads path and overlays it on the defaults. Unknown keys are
// rejected so typos surface instead of silently doing nothing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// SecurityLimits merges the configured overrides into the default limits.
func (c Config) SecurityLimits() security.Limits {
	l := security.DefaultLimits()
	if v := c.Limits.MaxDecompressedSize; v > 0 {
		l.MaxDecompressedSize = v
	}
	if v := c.Limits.MaxIndirectDepth; v > 0 {
		l.MaxIndirectDepth = v
	}
	if v := c.Limits.MaxXRefDepth; v > 0 {
		l.MaxXRefDepth = v
	}
	if v := c.Limits.MaxXObjectDepth; v > 0 {
		l.MaxXObjectDepth = v
	}
	if v := c.Limits.MaxStringLength; v > 0 {
		l.MaxStringLength = v
	}
	if v := c.Limits.MaxStreamLength; v > 0 {
		l.MaxStreamLength = v
	}
	if v := c.Limits.MaxNestingDepth; v > 0 {
		l.MaxNestingDepth = v
	}
	if v := time.Duration(c.Limits.DecodeTimeout); v > 0 {
		l.MaxDecodeTime = v
	}
	if v := time.Duration(c.Limits.ParseTimeout); v > 0 {
		l.MaxParseTime = v
	}
	return l
}

// RecoveryStrategy returns a fresh strategy per call; strategies accumulate
// the errors they tolerate and must not be shared across documents.
func (c Config) RecoveryStrategy() recovery.Strategy {
	if c.Strict {
		return recovery.NewStrictStrategy()
	}
	return recovery.NewLenientStrategy()
}

// Logger builds a slog-backed logger writing to w.
func (c Config) Logger(w io.Writer) observability.Logger {
	level := slog.LevelWarn
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return observability.NewSlog(slog.New(handler))
}
