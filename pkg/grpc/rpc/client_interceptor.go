package rpc

import (
	"context"
	"strings"

	"github.com/code-sigs/go-naming/pkg/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RPCClientInterceptor 把 traceID 和 proxyHeader 中列出的 ctx 值写入 gRPC metadata
func RPCClientInterceptor(proxyHeader []string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if trace.GetTraceID(ctx) == "" {
			ctx = trace.WithNewTraceID(ctx)
		}
		kv := []string{trace.MetadataKey, trace.GetTraceID(ctx)}
		for _, key := range proxyHeader {
			key = strings.ToLower(key)
			if value, ok := ctx.Value(key).(string); ok && value != "" {
				kv = append(kv, key, value)
			}
		}
		ctx = metadata.AppendToOutgoingContext(ctx, kv...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
