package rpc

import (
	"context"
	"testing"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/rpcerror"
	"github.com/code-sigs/go-naming/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestClientInterceptor_PropagatesTrace(t *testing.T) {
	ctx := trace.WithTraceID(context.Background(), "trace-1")
	ctx = context.WithValue(ctx, "user-id", "42")

	var got metadata.MD
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		got, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	err := RPCClientInterceptor([]string{"User-ID", "platform-id"})(ctx, "/svc/Method", nil, nil, nil, invoker)
	require.NoError(t, err)
	assert.Equal(t, []string{"trace-1"}, got.Get(trace.MetadataKey))
	assert.Equal(t, []string{"42"}, got.Get("user-id"))
	assert.Empty(t, got.Get("platform-id"))
}

func TestClientInterceptor_GeneratesTrace(t *testing.T) {
	var got metadata.MD
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		got, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	require.NoError(t, RPCClientInterceptor(nil)(context.Background(), "/svc/Method", nil, nil, nil, invoker))
	ids := got.Get(trace.MetadataKey)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestServerInterceptor_RestoresTrace(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(trace.MetadataKey, "trace-2", "user-id", "7"))

	var traceID, userID string
	handler := func(ctx context.Context, req any) (any, error) {
		traceID = trace.GetTraceID(ctx)
		userID, _ = ctx.Value("user-id").(string)
		return "ok", nil
	}
	resp, err := RPCServerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "trace-2", traceID)
	assert.Equal(t, "7", userID)
}

func TestServerInterceptor_WrapsBusinessError(t *testing.T) {
	handler := func(ctx context.Context, req any) (any, error) {
		return nil, errs.WithCode(errs.New("interface name is empty"), errs.ErrorArgs)
	}
	_, err := RPCServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, handler)
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	e := rpcerror.UnWrap(err)
	require.NotNil(t, e)
	assert.Equal(t, int32(errs.ErrorArgs), e.Code)
}
