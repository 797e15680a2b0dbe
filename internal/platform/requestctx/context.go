// Package requestctx carries per-request values (logger, trace) through context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
)

// TraceInfo is the Cloud Trace context of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Resource is the logging.googleapis.com/trace value. Empty without a project or trace ID.
func (t TraceInfo) Resource() string {
	if t.ProjectID == "" || t.TraceID == "" {
		return ""
	}
	return "projects/" + t.ProjectID + "/traces/" + t.TraceID
}

// LogFields returns the fields Cloud Logging uses to join entries to the trace.
func (t TraceInfo) LogFields() []zap.Field {
	if t.TraceID == "" {
		return nil
	}
	fields := []zap.Field{zap.String("trace_id", t.TraceID)}
	if resource := t.Resource(); resource != "" {
		fields = append(fields,
			zap.String("logging.googleapis.com/trace", resource),
			zap.Bool("logging.googleapis.com/trace_sampled", t.Sampled),
		)
		if t.SpanID != "" {
			fields = append(fields, zap.String("logging.googleapis.com/spanId", t.SpanID))
		}
	}
	return fields
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return context.WithValue(orBackground(ctx), loggerKey{}, logger)
}

// Logger returns the request logger, or a no-op logger outside a request.
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, _ := ctx.Value(loggerKey{}).(*zap.Logger); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID is shorthand for Trace(ctx).TraceID.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
