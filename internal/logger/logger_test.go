package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{"production uses json", "production", true},
		{"development uses pretty", "development", false},
		{"empty uses pretty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Environment: tt.environment, Level: slog.LevelInfo})
			log.Info("import started", "import_id", "imp-1")

			out := buf.String()
			if tt.wantJSON {
				assert.True(t, strings.HasPrefix(out, "{"), "expected JSON output, got %q", out)
				assert.Contains(t, out, `"import_id":"imp-1"`)
			} else {
				assert.Contains(t, out, "INF")
				assert.Contains(t, out, "import_id=imp-1")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestPrettyHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: formatPretty, Level: slog.LevelWarn})

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "shown")
}

func TestPrettyHandler_GroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	log := slog.New(h).WithGroup("post").With("id", 42)
	log.Info("imported", "path", "posts/hello")

	out := buf.String()
	assert.Contains(t, out, "post.id=42")
	assert.Contains(t, out, "post.path=posts/hello")
}

func TestPrettyHandler_WithAttrsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewPrettyHandler(&buf, nil))
	_ = base.With("import_id", "imp-1")

	base.Info("plain")
	assert.NotContains(t, buf.String(), "import_id")
}

func TestPrettyHandler_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	r := slog.NewRecord(time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), slog.LevelDebug, "debugging", 0)
	r.AddAttrs(slog.Duration("took", 2*time.Second))
	require.NoError(t, h.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "15:04:05")
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "took=2s")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: formatJSON, Level: slog.LevelInfo})

	log.WithError(errors.New("boom")).Error("shutdown error")

	out := buf.String()
	assert.Contains(t, out, `"msg":"shutdown error"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
