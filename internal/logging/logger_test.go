package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format string) (*SlogLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(&LoggerConfig{Level: level, Format: format, Output: buf}), buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, "text")
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	assert.Empty(t, buf.String())

	logger.Warn(ctx, errors.New("disk busy"), "warn message")
	assert.Contains(t, buf.String(), "warn message")
	assert.Contains(t, buf.String(), "disk busy")
}

func TestLoggerJSONFields(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")
	ctx := context.Background()

	logger.WithComponent("catalog").With("root", "/srv").Info(ctx, "catalog built", "entries", 3)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "catalog built", record["msg"])
	assert.Equal(t, "catalog", record["component"])
	assert.Equal(t, "/srv", record["root"])
	assert.EqualValues(t, 3, record["entries"])
}

func TestLoggerWithDoesNotLeak(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	ctx := context.Background()

	_ = logger.With("request_id", "abc")
	logger.Info(ctx, "plain")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestStartOperation(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	ctx := context.Background()

	op := StartOperation(logger, "publish")
	op.End(ctx, "artifacts", 4)
	out := buf.String()
	assert.Contains(t, out, "operation=publish")
	assert.Contains(t, out, "artifacts=4")
	assert.Contains(t, out, "duration_ms=")

	buf.Reset()
	op = StartOperation(logger, "rebuild")
	op.EndWithError(ctx, errors.New("bad pattern"))
	assert.True(t, strings.Contains(buf.String(), "bad pattern"))
}

func TestNop(t *testing.T) {
	logger := Nop()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "ignored")
		logger.With("a", 1).WithComponent("c").Info(context.Background(), "ignored")
	})
}
