package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseOverlaysDefaults(t *testing.T) {
	src := `
parallel: 4
strict: true
ocr:
  enabled: true
  languages: [eng, deu]
limits:
  max_indirect_depth: 8
  decode_timeout: 10s
log:
  level: debug
  format: json
`
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Parallel != 4 || !cfg.Strict {
		t.Fatalf("top level: %+v", cfg)
	}
	if !cfg.OCR.Enabled || len(cfg.OCR.Languages) != 2 {
		t.Fatalf("ocr: %+v", cfg.OCR)
	}
	limits := cfg.SecurityLimits()
	if limits.MaxIndirectDepth != 8 {
		t.Fatalf("override lost: %d", limits.MaxIndirectDepth)
	}
	if limits.MaxDecodeTime != 10*time.Second {
		t.Fatalf("timeout: %v", limits.MaxDecodeTime)
	}
	if limits.MaxXObjectDepth == 0 {
		t.Fatal("unset field should keep its default")
	}
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Parallel != 1 || cfg.Strict {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("paralell: 4\n")); err == nil {
		t.Fatal("typo should be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []string{
		"parallel: -1",
		"log:\n  level: loud",
		"log:\n  format: xml",
	}
	for _, src := range cases {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("accepted %q", src)
		}
	}
}

func TestStrategySelection(t *testing.T) {
	var cfg Config
	if s := cfg.RecoveryStrategy(); s == nil {
		t.Fatal("nil strategy")
	}
	cfg.Strict = true
	strict := cfg.RecoveryStrategy()
	if strict == nil {
		t.Fatal("nil strict strategy")
	}
}

func TestLoggerFormats(t *testing.T) {
	var sb strings.Builder
	cfg := Config{Log: Log{Level: "info", Format: "json"}}
	log := cfg.Logger(&sb)
	log.Info("hello")
	if !strings.Contains(sb.String(), `"msg":"hello"`) {
		t.Fatalf("json output: %q", sb.String())
	}
	log.Debug("hidden")
	if strings.Contains(sb.String(), "hidden") {
		t.Fatal("debug should be filtered at info level")
	}
}
