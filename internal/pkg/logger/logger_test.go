package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "render-worker-test",
	}), &buf
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")

	log.Info("polling", "delay_ms", 10)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v", err)
	}

	if entry["msg"] != "polling" {
		t.Errorf("expected msg='polling', got %v", entry["msg"])
	}
	if entry["delay_ms"] != float64(10) {
		t.Errorf("expected delay_ms=10, got %v", entry["delay_ms"])
	}
	if entry["service"] != "render-worker-test" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "text", Output: &buf})
	log.Info("slot started")
	if !strings.Contains(buf.String(), "msg=\"slot started\"") {
		t.Errorf("expected text handler output, got: %s", buf.String())
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFn     func(*Logger)
		shouldLog bool
	}{
		{"info logs info", "info", func(l *Logger) { l.Info("test") }, true},
		{"info drops debug", "info", func(l *Logger) { l.Debug("test") }, false},
		{"debug logs debug", "debug", func(l *Logger) { l.Debug("test") }, true},
		{"error drops warn", "error", func(l *Logger) { l.Warn("test") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger(tt.level)
			tt.logFn(log)
			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("expected shouldLog=%v, got hasOutput=%v", tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestAttributeHelpers(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.WithComponent("worker").WithSlot(2).WithWorker("desktop-amd").WithJobID("17").Info("job done")

	out := buf.String()
	for _, want := range []string{`"component":"worker"`, `"slot":2`, `"worker":"desktop-amd"`, `"job_id":"17"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestWithError(t *testing.T) {
	log, buf := newBufferLogger("info")

	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return same logger")
	}

	log.WithError(context.DeadlineExceeded).Info("test message")
	if !strings.Contains(buf.String(), "deadline exceeded") {
		t.Errorf("expected output to contain error, got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-abc")
	ctx = ContextWithSlot(ctx, 0)
	ctx = ContextWithJobID(ctx, "job-xyz")

	log.FromContext(ctx).Info("test message")

	out := buf.String()
	for _, want := range []string{"req-abc", "job-xyz", `"slot":0`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestLogError(t *testing.T) {
	log, buf := newBufferLogger("info")

	log.LogError(context.Background(), "ignored", nil)
	if buf.Len() != 0 {
		t.Fatal("nil error should not be logged")
	}

	log.LogError(context.Background(), "report failed", context.Canceled)
	out := buf.String()
	if !strings.Contains(out, "report failed") || !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected message and call site, got: %s", out)
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing to see")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if level := parseLevel(tt.input); level.String() != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, level.String(), tt.expected)
			}
		})
	}
}
