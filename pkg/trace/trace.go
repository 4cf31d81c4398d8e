package trace

import (
	"context"

	"github.com/google/uuid"
)

type traceKeyType struct{}

var traceKey = traceKeyType{}

// MetadataKey 跨进程传递 traceID 时使用的 header / metadata 名
const MetadataKey = "x-trace-id"

func GenerateTraceID() string {
	return uuid.New().String()
}

func WithNewTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, GenerateTraceID())
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceKey).(string); ok {
		return id
	}
	return ""
}
