package grpc

import (
	"context"
	"net"
	"strconv"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/grpc/rpc"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/code-sigs/go-naming/pkg/naming"
	"google.golang.org/grpc"
)

type GRPC struct {
	naming *naming.NamingService
}

// New 创建一个新的 GRPC 实例，服务发现走 ns
func New(ns *naming.NamingService) *GRPC {
	return &GRPC{naming: ns}
}

// ServeOption 服务注册时附带的元数据
type ServeOption func(*naming.RegisterInfo)

func WithTags(tags ...string) ServeOption {
	return func(r *naming.RegisterInfo) { r.Tags = append(r.Tags, tags...) }
}

func WithMetadata(md map[string]string) ServeOption {
	return func(r *naming.RegisterInfo) {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(md))
		}
		for k, v := range md {
			r.Metadata[k] = v
		}
	}
}

// Listen 启动 gRPC 服务，ctx 结束时优雅关闭
func (g *GRPC) Listen(ctx context.Context, address string, register func(*grpc.Server)) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return errs.Wrap(err, "listen "+address)
	}
	server := rpc.NewGRPCServer()
	if register != nil {
		register(server)
	}
	return serve(ctx, server, lis, nil)
}

// ListenAndRegister 监听 port（0 表示随机端口），把 host:实际端口 注册为 serviceName 的实例，
// ctx 结束时先注销再优雅关闭。
func (g *GRPC) ListenAndRegister(ctx context.Context, serviceName, host string, port int, register func(*grpc.Server, string), opts ...ServeOption) error {
	lis, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return errs.Wrap(err, "listen")
	}
	port = lis.Addr().(*net.TCPAddr).Port
	address := net.JoinHostPort(host, strconv.Itoa(port))

	server := rpc.NewGRPCServer()
	if register != nil {
		register(server, address)
	}

	info := &naming.RegisterInfo{InterfaceName: serviceName, Host: host, Port: port}
	for _, opt := range opts {
		opt(info)
	}
	if err := g.naming.Register(ctx, info); err != nil {
		_ = lis.Close()
		return err
	}
	logger.Infow(ctx, "grpc service registered", "service", serviceName, "address", address)

	return serve(ctx, server, lis, func() {
		if err := g.naming.Unregister(context.Background(), info); err != nil {
			logger.Warnw(context.Background(), "grpc service unregister failed", "service", serviceName, "error", err)
		}
	})
}

func serve(ctx context.Context, server *grpc.Server, lis net.Listener, beforeStop func()) error {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopped:
			return
		}
		if beforeStop != nil {
			beforeStop()
		}
		server.GracefulStop()
	}()
	err := server.Serve(lis)
	close(stopped)
	if ctx.Err() != nil {
		return nil
	}
	if beforeStop != nil {
		beforeStop()
	}
	return err
}

// GetRPConnection 获取 GRPC 连接
func (g *GRPC) GetRPConnection(serviceName string, proxyHeader ...string) (*grpc.ClientConn, error) {
	return rpc.NewGRPCConn(context.Background(), g.naming, serviceName, proxyHeader...)
}
