package rpc

import (
	"context"

	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/naming"
	"github.com/code-sigs/go-naming/pkg/resolver"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const maxMsgSize = 1024 * 1024 * 100 // 100MB

// NewGRPCServer 创建带有拦截器的 gRPC 服务端
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.UnaryInterceptor(RPCServerInterceptor()),
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.InitialWindowSize(1024 * 1024 * 10),     // 初始窗口 10MB
		grpc.InitialConnWindowSize(1024 * 1024 * 10), // 初始连接窗口 10MB
	}
	return grpc.NewServer(append(base, opts...)...)
}

func dialOptions(proxyHeader []string) []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()), // 注意：生产环境中请使用安全连接
		grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(maxMsgSize), grpc.MaxCallRecvMsgSize(maxMsgSize)),
		grpc.WithUnaryInterceptor(RPCClientInterceptor(proxyHeader)),
	}
}

// NewGRPCConn 通过命名服务解析 serviceName，实例间 round_robin
func NewGRPCConn(ctx context.Context, ns *naming.NamingService, serviceName string, proxyHeader ...string) (*grpc.ClientConn, error) {
	builder := resolver.NewBuilder(ns)
	opts := append(dialOptions(proxyHeader),
		grpc.WithResolvers(builder),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"round_robin"}`),
	)
	return grpc.NewClient(builder.Scheme()+":///"+serviceName, opts...)
}

// NewGRPCConnsForAllInstances 为当前每个实例各建一条直连
func NewGRPCConnsForAllInstances(ctx context.Context, ns *naming.NamingService, serviceName string, proxyHeader ...string) ([]*grpc.ClientConn, error) {
	instances, err := ns.Lookup(ctx, naming.SubscribeInfo{InterfaceName: serviceName})
	if err != nil {
		return nil, err
	}
	conns := make([]*grpc.ClientConn, 0, len(instances))
	for _, inst := range instances {
		conn, err := grpc.NewClient(inst.Address(), dialOptions(proxyHeader)...)
		if err != nil {
			logger.Warnw(ctx, "dial instance failed", "service", serviceName, "address", inst.Address(), "error", err)
			continue
		}
		conns = append(conns, conn)
	}
	return conns, nil
}
