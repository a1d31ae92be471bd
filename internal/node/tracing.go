// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/internal/version"
)

// setupTracing returns the tracer provider for the configured exporter and
// a function flushing it on shutdown. The OTLP exporter also honors the
// OTEL_EXPORTER_OTLP_* environment variables.
func setupTracing(
	ctx context.Context,
	cfg *config.Config,
) (trace.TracerProvider, func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.TracingExporter {
	case config.TracingNone:
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	case config.TracingStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case config.TracingOtlp:
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpoint(cfg.TracingEndpoint),
		)
	default:
		return nil, nil, fmt.Errorf("unknown tracing exporter %q", cfg.TracingExporter)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(
			resource.NewSchemaless(
				attribute.String("service.name", "daogov"),
				attribute.String("service.version", version.GetVersionString()),
				attribute.Int64("chain.id", int64(cfg.ChainID)), // #nosec G115
			),
		),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}
