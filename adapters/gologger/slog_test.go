package gologger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogLoggerWritesLevelsAndNames(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))
	logger := NewSlogLogger(base)

	logger.GetLogger("mods").WithContext(context.Background()).Warn("pool saturated", "size", 3)
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "logger=mods") || !strings.Contains(out, "size=3") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	logger.Trace("deep detail")
	if !strings.Contains(buf.String(), "deep detail") {
		t.Fatalf("expected trace output, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   LevelTrace,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}
