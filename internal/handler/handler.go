package handler

import (
	"context"
	"net/http"
	"reflect"

	"github.com/code-sigs/go-naming/pkg/errs"
	"github.com/code-sigs/go-naming/pkg/rpcerror"
	"github.com/code-sigs/go-naming/pkg/trace"
	"github.com/gin-gonic/gin"
)

type StandardResponse[T any] struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Data    T      `json:"data,omitempty"`
}

// ContextInjector 定义上下文注入函数类型
type ContextInjector func(c *gin.Context, ctx context.Context) context.Context

// DefaultContextInjector 沿用请求头里的 traceID，没有则新建，并回写到响应头
func DefaultContextInjector(c *gin.Context, ctx context.Context) context.Context {
	traceID := c.GetHeader(trace.MetadataKey)
	if traceID == "" {
		traceID = trace.GenerateTraceID()
	}
	c.Header(trace.MetadataKey, traceID)
	return trace.WithTraceID(ctx, traceID)
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// GenericHandler 适配 func(context.Context, *Req) (Resp, error) 形式的方法。
// GET 从 query 绑定，其余按 Content-Type 绑定。
func GenericHandler(fn any, ctxInjector ContextInjector) gin.HandlerFunc {
	fnVal := reflect.ValueOf(fn)
	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 2 || fnType.NumOut() != 2 ||
		!fnType.In(0).Implements(ctxType) || !fnType.Out(1).Implements(errType) {
		panic("handler: fn must be func(context.Context, *Req) (Resp, error), got " + fnType.String())
	}
	if ctxInjector == nil {
		ctxInjector = DefaultContextInjector
	}
	reqType := fnType.In(1)

	return func(c *gin.Context) {
		var reqPtr reflect.Value
		if reqType.Kind() == reflect.Ptr {
			reqPtr = reflect.New(reqType.Elem())
		} else {
			reqPtr = reflect.New(reqType)
		}

		if err := c.ShouldBind(reqPtr.Interface()); err != nil {
			c.JSON(http.StatusBadRequest, StandardResponse[any]{Code: http.StatusBadRequest, Message: "Invalid request: " + err.Error()})
			return
		}

		reqVal := reqPtr
		if reqType.Kind() != reflect.Ptr {
			reqVal = reqPtr.Elem()
		}

		ctx := ctxInjector(c, c.Request.Context())
		out := fnVal.Call([]reflect.Value{reflect.ValueOf(ctx), reqVal})
		if !out[1].IsNil() {
			WriteError(c, out[1].Interface().(error))
			return
		}
		c.JSON(http.StatusOK, StandardResponse[any]{Code: 0, Message: "ok", Data: out[0].Interface()})
	}
}

// WriteError 业务错误返回 200 + 业务码，参数错误返回 400，其余 500
func WriteError(c *gin.Context, err error) {
	rpcErr := rpcerror.UnWrap(err)
	if rpcErr == nil {
		c.JSON(http.StatusInternalServerError, StandardResponse[any]{Code: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	status := http.StatusOK
	if errs.HasCode(err, errs.ErrorArgs) || rpcErr.Code == errs.ErrorArgs {
		status = http.StatusBadRequest
	}
	c.JSON(status, StandardResponse[any]{
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
		Details: rpcErr.Details,
	})
}
