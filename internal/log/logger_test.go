package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(level slog.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Component: "test", Output: &buf}), &buf
}

func TestLoggerTagsComponent(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)

	logger.Info("hello", "k", "v")
	logger.WithComponent(ComponentWorker).Warn("careful")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=test") || !strings.Contains(out, "k=v") {
		t.Errorf("missing fields in %q", out)
	}
	if !strings.Contains(out, "component=worker") {
		t.Errorf("missing component override in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record emitted at info level: %q", out)
	}
	if strings.Count(out, "component=") != 2 {
		t.Errorf("component must appear once per record: %q", out)
	}
}

func TestFieldsToSliceSorted(t *testing.T) {
	got := NewFields().
		WithOperation(OpExport).
		WithError(errors.New("boom")).
		WithError(nil).
		WithAnalysis(3, "r", 10.5, 1).
		ToSlice()

	want := []any{
		FieldAnalysisID, int64(3),
		FieldAnomalies, 1,
		FieldError, "boom",
		FieldOperation, OpExport,
		FieldAnalysisRef, "r",
		FieldTotal, 10.5,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMiddlewareCarriesLogger(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)

	var inner *Logger
	h := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner = FromContext(r.Context())
			inner.InfoContext(r.Context(), "inside")
		}))))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if inner == nil || inner.Component() != ComponentHTTP {
		t.Fatalf("expected http component logger, got %+v", inner)
	}
	if out := buf.String(); !strings.Contains(out, "request_id=req-1") {
		t.Errorf("request id missing in %q", out)
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected default logger %+v", l)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	logger, buf := newBufferLogger(slog.LevelInfo)
	sl := NewStructuredLogger(logger)
	r := httptest.NewRequest(http.MethodPost, "/upload", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusUnprocessableEntity, 12, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, http.StatusInternalServerError, 5, "10.0.0.1")
	sl.LogAnalysisSaved(context.Background(), 1, "ref-1", 350, 0)

	out := buf.String()
	for _, want := range []string{"level=WARN", "level=ERROR", "status_code=422", "ref=ref-1", "component=analysis"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
