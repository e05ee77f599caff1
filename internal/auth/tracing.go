// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Collabdoc Contributors

package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/Dhruvraj1821/Realtime-collaborative-document-editor/internal/auth")

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "auth."+name)
}

// endSpan records err on span, tagged with its kind, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("auth.error_kind", kind.String()))
		if kind == KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal error")
		}
	}
	span.End()
}
