package router

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/code-sigs/go-naming/internal/handler"
	"github.com/code-sigs/go-naming/pkg/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type routeEntry struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

type Router struct {
	routes      []routeEntry
	proxyHeader []string
	middlewares []gin.HandlerFunc // 用户自定义中间件
	group       []*RouterGroup
}

type RouterGroup struct {
	name     string
	handlers []gin.HandlerFunc
	routes   []routeEntry
	injector handler.ContextInjector
}

func New() *Router {
	return &Router{
		routes: []routeEntry{},
	}
}

// WithHeader 设置需要随 ctx 继续向下游 gRPC 透传的 header
func (r *Router) WithHeader(header ...string) *Router {
	r.proxyHeader = append(r.proxyHeader, header...)
	return r
}

// Use 添加用户自定义 gin 中间件
func (r *Router) Use(mw ...gin.HandlerFunc) *Router {
	r.middlewares = append(r.middlewares, mw...)
	return r
}

// injector traceID 之外，把 clientip 和 proxyHeader 以小写 key 放进 ctx，
// rpc 客户端拦截器按同样的 key 取出写入 metadata
func (r *Router) injector(c *gin.Context, ctx context.Context) context.Context {
	ctx = handler.DefaultContextInjector(c, ctx)
	ctx = context.WithValue(ctx, "clientip", c.ClientIP())
	for _, key := range r.proxyHeader {
		if val := c.GetHeader(key); val != "" {
			ctx = context.WithValue(ctx, strings.ToLower(key), val)
		}
	}
	return ctx
}

func (r *Router) Group(name string, handlers ...gin.HandlerFunc) *RouterGroup {
	group := &RouterGroup{
		name:     name,
		handlers: handlers,
		routes:   []routeEntry{},
		injector: r.injector,
	}
	r.group = append(r.group, group)
	return group
}

// GET 绑定 func(context.Context, *Req) (Resp, error)，请求参数取自 query
func (r *Router) GET(path string, fn any) {
	r.routes = append(r.routes, routeEntry{method: http.MethodGet, path: path, handler: handler.GenericHandler(fn, r.injector)})
}

// POST 绑定 func(context.Context, *Req) (Resp, error)，请求参数取自 JSON body
func (r *Router) POST(path string, fn any) {
	r.routes = append(r.routes, routeEntry{method: http.MethodPost, path: path, handler: handler.GenericHandler(fn, r.injector)})
}

func (g *RouterGroup) GET(path string, fn any) {
	g.routes = append(g.routes, routeEntry{method: http.MethodGet, path: path, handler: handler.GenericHandler(fn, g.injector)})
}

func (g *RouterGroup) POST(path string, fn any) {
	g.routes = append(g.routes, routeEntry{method: http.MethodPost, path: path, handler: handler.GenericHandler(fn, g.injector)})
}

// accessLog 用 zap 记录访问日志
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow(c.Request.Context(), "http access",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"clientip", c.ClientIP())
	}
}

// Engine 组装 gin.Engine，beforeRun 可追加原生路由
func (r *Router) Engine(beforeRun func(g *gin.Engine), isDebug bool) *gin.Engine {
	if !isDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // 如果 AllowCredentials: true，请指定域名
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"*"},
		AllowCredentials: false, // 为 true 时，不允许 * 出现在 AllowOrigins、AllowHeaders 中
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery(), accessLog())
	for _, mw := range r.middlewares {
		engine.Use(mw)
	}
	for _, route := range r.routes {
		engine.Handle(route.method, route.path, route.handler)
	}
	for _, group := range r.group {
		groupEngine := engine.Group(group.name, group.handlers...)
		for _, route := range group.routes {
			groupEngine.Handle(route.method, route.path, route.handler)
		}
	}
	if beforeRun != nil {
		beforeRun(engine)
	}
	return engine
}

// Run 启动 HTTP 服务，ctx 结束时优雅关闭（最多等待 5s）
func (r *Router) Run(ctx context.Context, addr string, beforeRun func(g *gin.Engine), isDebug bool) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: r.Engine(beforeRun, isDebug),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infow(ctx, "http server started", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
