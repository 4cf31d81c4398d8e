package rpcerror

import (
	"errors"
	"strconv"

	"github.com/code-sigs/go-naming/pkg/errs"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain 业务码挂在 ErrorInfo 上时使用的 domain
const Domain = "go-naming"

// RPCError 跨 gRPC 边界传递的业务错误
type RPCError struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *RPCError) Error() string {
	return "[" + strconv.Itoa(int(e.Code)) + "] " + e.Message
}

// grpcCode 业务码到 gRPC code 的映射
func grpcCode(code int) codes.Code {
	switch code {
	case 0:
		return codes.Unknown
	case errs.ErrorArgs:
		return codes.InvalidArgument
	case errs.ErrorRegistry, errs.ErrorLookup:
		return codes.Unavailable
	case errs.ErrorClosed:
		return codes.FailedPrecondition
	case errs.ErrorRegistration:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// Wrap 把带业务码的错误转换为 gRPC status，业务码放在 ErrorInfo.Metadata["code"]。
// 已经是 status 的错误原样返回。
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := errs.CodeOf(err)
	st := status.New(grpcCode(code), err.Error())
	if code == 0 {
		return st.Err()
	}
	withDetail, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   strconv.Itoa(code),
		Domain:   Domain,
		Metadata: map[string]string{"code": strconv.Itoa(code)},
	})
	if derr != nil {
		return st.Err()
	}
	return withDetail.Err()
}

// WrapCode 直接构造带业务码的 gRPC 错误
func WrapCode(code int32, msg string) error {
	return Wrap(errs.WithCode(errs.New(msg), int(code)))
}

// UnWrap 尝试从 error 中提取业务 RPCError，本地错误直接取 errs 的 code
func UnWrap(err error) *RPCError {
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		for _, d := range st.Details() {
			info, ok := d.(*errdetails.ErrorInfo)
			if !ok || info.GetDomain() != Domain {
				continue
			}
			code, perr := strconv.Atoi(info.GetMetadata()["code"])
			if perr != nil {
				continue
			}
			return &RPCError{Code: int32(code), Message: st.Message(), Details: st.Code().String()}
		}
		return nil
	}
	var w *errs.WrapError
	if errors.As(err, &w) {
		if code := errs.CodeOf(err); code != 0 {
			return &RPCError{Code: int32(code), Message: err.Error()}
		}
	}
	return nil
}

// IsRPCError 判断 error 是否携带业务码
func IsRPCError(err error) bool {
	return UnWrap(err) != nil
}
