package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		Level:  LevelDebug,
		Output: &buf,
		JSON:   true,
	}

	logger := New(cfg)
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug msg")
		if !strings.Contains(buf.String(), "debug msg") {
			t.Error("debug logging failed")
		}

		buf.Reset()
		logger.Warn("warn msg")
		if !strings.Contains(buf.String(), "warn msg") {
			t.Error("warn logging failed")
		}
	})

	t.Run("DynamicLevel", func(t *testing.T) {
		logger.SetLevel(LevelError)
		if logger.GetLevel() != LevelError {
			t.Error("SetLevel failed")
		}

		buf.Reset()
		logger.Info("should not appear")
		if buf.Len() > 0 {
			t.Error("Logged info message when level was Error")
		}

		logger.SetLevel(LevelDebug)
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("luci").Info("msg")
		if !strings.Contains(buf.String(), "luci") {
			t.Error("WithComponent missing component field")
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf.Reset()
		logger.WithFields(map[string]any{"host": "192.168.0.1"}).Info("msg")
		if !strings.Contains(buf.String(), "192.168.0.1") {
			t.Error("WithFields missing fields")
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("login", "192.168.0.1", map[string]any{"evicted": true})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") {
			t.Error("Audit log missing AUDIT message")
		}
		if !strings.Contains(logStr, "192.168.0.1") {
			t.Error("Audit log missing resource")
		}
	})
}

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf}).WithComponent("LUCI")

	l.Info("handshake done", "state", "authenticated", "note", "two words")
	line := buf.String()

	if !strings.Contains(line, "archer[") {
		t.Errorf("missing process prefix: %q", line)
	}
	if !strings.Contains(line, "[info] luci: handshake done") {
		t.Errorf("missing level/component tag: %q", line)
	}
	if !strings.Contains(line, "state=authenticated") {
		t.Errorf("missing attribute: %q", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Errorf("spaced value not quoted: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be promoted, not repeated: %q", line)
	}
}

func TestConsoleHandler_WithAttrsDoesNotAlias(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: LevelInfo, Output: &buf}).WithFields(map[string]any{"a": 1})
	one := base.WithFields(map[string]any{"b": 2})
	two := base.WithFields(map[string]any{"c": 3})

	one.Info("x")
	two.Info("y")
	if strings.Contains(buf.String(), "b=2 c=3") || strings.Count(buf.String(), "b=2") != 1 {
		t.Errorf("attributes leaked between children: %q", buf.String())
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default logger is nil")
	}

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	prev := Default()
	SetDefault(New(cfg))
	defer SetDefault(prev)

	if Default() == prev {
		t.Fatal("SetDefault did not replace the logger")
	}

	Debug("hidden")
	WithComponent("comp").Info("comp msg")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "comp: comp msg") {
		t.Errorf("Default logger captured no output: %q", buf.String())
	}
}

func TestSetPrefix(t *testing.T) {
	prev := GetPrefix()
	defer SetPrefix(prev)

	SetPrefix("RouterCLI")
	if GetPrefix() != "RouterCLI" {
		t.Fatalf("GetPrefix = %q", GetPrefix())
	}

	var buf bytes.Buffer
	New(Config{Output: &buf}).Info("hello")
	if !strings.Contains(buf.String(), " routercli[") {
		t.Errorf("prefix not used: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("94640fd8887fb5750d6a426345581b87"); got != "9464…(32)" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("abc"); got != "***" {
		t.Errorf("Redact short = %q", got)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if l.Enabled(context.Background(), LevelError) {
		t.Error("Discard logger should be disabled")
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" {
		t.Error("JSON msg field incorrect")
	}
	if data["key"] != "value" {
		t.Error("JSON extra field incorrect")
	}
	if data["level"] != "INFO" {
		t.Error("JSON level incorrect")
	}
}
