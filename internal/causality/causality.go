// Package causality carries the trace/span envelope propagated on every
// message the Broker Adapter forwards, generalizing the trace-ID-in-context
// propagation the logging package already implements for HTTP requests
// to the full span/parent-span/chain-depth envelope required by the
// wire format.
package causality

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const envelopeContextKey = contextKey("vsm-causality-envelope")

// Envelope is attached to every event and inter-component message so a
// distributed trace can be reconstructed end to end.
type Envelope struct {
	TraceID string
	SpanID string
	ParentSpanID string
	ChainDepth int
	OriginNode string
}

// New starts a fresh trace, used when a message enters the system with no
// existing causal parent (e.g. an externally injected event).
func New(originNode string) Envelope {
	return Envelope{
		TraceID: uuid.NewString(),
		SpanID: uuid.NewString(),
		OriginNode: originNode,
	}
}

// Next derives the envelope for a message caused by the receiver of e,
// incrementing chain depth and rotating the span.
func (e Envelope) Next(originNode string) Envelope {
	traceID := e.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return Envelope{
		TraceID: traceID,
		SpanID: uuid.NewString(),
		ParentSpanID: e.SpanID,
		ChainDepth: e.ChainDepth + 1,
		OriginNode: originNode,
	}
}

// WithContext stores the envelope in ctx.
func WithContext(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeContextKey, env)
}

// FromContext restores the envelope from ctx, or a fresh root envelope
// (new trace and span ids, chain depth 0, no origin node) if none is
// present.
func FromContext(ctx context.Context) Envelope {
	if ctx != nil {
		if env, ok := ctx.Value(envelopeContextKey).(Envelope); ok {
			return env
		}
	}
	return New("")
}
