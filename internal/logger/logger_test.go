// Package logger tests verify the [Handler] output format, level filtering,
// attribute grouping, secret redaction and the [New] constructor.
package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func line(buf *bytes.Buffer) string {
	return strings.TrimRight(buf.String(), "\r\n")
}

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("test message", "key", "value")

	got := line(&buf)
	if !strings.Contains(got, "[INFO] test message | key=value") {
		t.Errorf("unexpected line %q", got)
	}
	if !strings.HasSuffix(strings.Split(got, " [")[0], "Z") {
		t.Errorf("expected UTC timestamp ending with Z, got %q", got)
	}
}

func TestHandler_NoAttrs(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("no attrs")

	if strings.Contains(line(&buf), "|") {
		t.Errorf("expected no pipe separator without attrs, got %q", line(&buf))
	}
}

func TestHandler_Values(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"multiple", []any{"a", "1", "b", 2}, "| a=1, b=2"},
		{"quoted spaces", []any{"app", "Counter-Strike 2"}, `app="Counter-Strike 2"`},
		{"quoted empty", []any{"name", ""}, `name=""`},
		{"error value", []any{"error", errors.New("boom")}, "error=boom"},
		{"inline group", []any{slog.Group("req", "id", 7)}, "req.id=7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(NewHandler(&buf, LevelInfo)).Info("m", tt.args...)
			if !strings.Contains(line(&buf), tt.want) {
				t.Errorf("line %q missing %q", line(&buf), tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Redaction
// ///////////////////////////////////////////////

func TestHandler_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelInfo)).With("token", "123:abc")
	logger.Info("login", "password", "hunter2", "guard_code", "ABCDE", "user", "gabe", "code", 5)

	got := line(&buf)
	for _, secret := range []string{"123:abc", "hunter2", "ABCDE"} {
		if strings.Contains(got, secret) {
			t.Errorf("line leaks %q: %s", secret, got)
		}
	}
	for _, want := range []string{"token=[redacted]", "password=[redacted]", "user=gabe", "code=5"} {
		if !strings.Contains(got, want) {
			t.Errorf("line %q missing %q", got, want)
		}
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelWarn))

	logger.Info("should be filtered")
	logger.Warn("should appear")

	if strings.Contains(buf.String(), "should be filtered") {
		t.Error("info message should have been filtered at warn level")
	}
	if !strings.Contains(buf.String(), "should appear") {
		t.Error("warn message should appear at warn level")
	}
}

func TestHandler_LevelVar(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(LevelWarn)
	logger := slog.New(NewHandler(&buf, &lv))

	logger.Debug("hidden")
	lv.Set(LevelDebug)
	logger.Debug("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("level change not honored: %q", buf.String())
	}
}

func TestHandler_CustomLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelTrace))

	Trace(logger, "trace msg")
	Fail(logger, "fail msg")

	if !strings.Contains(buf.String(), "[TRACE]") {
		t.Errorf("expected [TRACE] in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[FAIL]") {
		t.Errorf("expected [FAIL] in output, got %q", buf.String())
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFail, "FAIL"},
	}
	for _, tt := range tests {
		if got := levelName(tt.level); got != tt.want {
			t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"fail", LevelFail},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// WithAttrs / WithGroup
// ///////////////////////////////////////////////

func TestHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelInfo)).With("chat_id", 42)
	logger.Info("hello", "step", "idle")

	if !strings.Contains(line(&buf), "chat_id=42, step=idle") {
		t.Errorf("unexpected line %q", line(&buf))
	}
}

func TestHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, LevelInfo).WithGroup("server").WithGroup("request"))
	logger.Info("nested", "method", "POST")

	if !strings.Contains(line(&buf), "server.request.method=POST") {
		t.Errorf("expected nested group prefix, got %q", line(&buf))
	}
}

func TestHandler_WithGroupEmpty(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, LevelInfo)
	if h.WithGroup("") != h {
		t.Error("WithGroup with empty string should return same handler")
	}
}

func TestHandler_WithAttrsSharedMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)

	if h.mu != h2.mu {
		t.Error("WithAttrs should share the same mutex pointer")
	}

	logger1 := slog.New(h)
	logger2 := slog.New(h2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			logger1.Info("from handler 1")
		}()
		go func() {
			defer wg.Done()
			logger2.Info("from handler 2")
		}()
	}
	wg.Wait()

	lines := strings.Split(line(&buf), "\n")
	if len(lines) != 100 {
		t.Errorf("got %d lines, want 100", len(lines))
	}
}

// ///////////////////////////////////////////////
// New
// ///////////////////////////////////////////////

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "steamidle.log")
	var console bytes.Buffer

	logger, closer, err := New(Options{Path: path, Level: LevelInfo, MaxSizeMB: 1, Console: &console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("constructor test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "constructor test") {
		t.Errorf("expected log output in file, got %q", data)
	}
	if !strings.Contains(console.String(), "constructor test") {
		t.Errorf("expected log output on console, got %q", console.String())
	}
}

func TestNewEmptyPath(t *testing.T) {
	if _, _, err := New(Options{}); err == nil {
		t.Error("expected error for empty path")
	}
}
