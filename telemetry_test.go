package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/phobologic/codegraph/internal/config"
)

func TestSetupTracingNone(t *testing.T) {
	shutdown, err := setupTracing(&config.Config{TraceExporter: config.TraceExporterNone}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("setupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := setupTracing(&config.Config{TraceExporter: config.TraceExporterStdout}, &buf)
	if err != nil {
		t.Fatalf("setupTracing: %v", err)
	}

	_, span := otel.Tracer("codegraph-test").Start(context.Background(), "analyze.archive")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "analyze.archive") {
		t.Errorf("span not exported:\n%s", buf.String())
	}
}
