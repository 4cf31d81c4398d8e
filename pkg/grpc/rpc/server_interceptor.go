package rpc

import (
	"context"
	"strings"

	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/rpcerror"
	"github.com/code-sigs/go-naming/pkg/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RPCServerInterceptor 将 metadata 的所有键值对放入 context，traceID 单独恢复
func RPCServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if ok {
			for key, values := range md {
				if len(values) > 0 {
					// 以小写 key 存入 context，值为第一个
					ctx = context.WithValue(ctx, strings.ToLower(key), values[0])
				}
			}
			if ids := md.Get(trace.MetadataKey); len(ids) > 0 && ids[0] != "" {
				ctx = trace.WithTraceID(ctx, ids[0])
			}
		}
		if trace.GetTraceID(ctx) == "" {
			ctx = trace.WithNewTraceID(ctx)
		}
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warnw(ctx, "rpc failed", "method", info.FullMethod, "error", err)
			return resp, rpcerror.Wrap(err)
		}
		return resp, nil
	}
}
