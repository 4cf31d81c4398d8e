package naming

import (
	"github.com/code-sigs/go-naming/pkg/errs"
)

// IsRegistrationError 注册/注销在重试预算耗尽后仍失败
func IsRegistrationError(err error) bool {
	return errs.CodeOf(err) == errs.ErrorRegistration
}

// IsLookupError 一次性查询失败
func IsLookupError(err error) bool {
	return errs.CodeOf(err) == errs.ErrorLookup
}

// IsTransientRegistryError 注册中心瞬时故障（网络/超时/响应异常）
func IsTransientRegistryError(err error) bool {
	return errs.HasCode(err, errs.ErrorRegistry)
}

func IsClosedError(err error) bool {
	return errs.CodeOf(err) == errs.ErrorClosed
}

func newArgsError(msg string) error {
	return errs.WithCode(errs.New(msg), errs.ErrorArgs)
}

func registrationError(err error, msg string) error {
	return errs.WithCode(errs.Wrap(err, msg), errs.ErrorRegistration)
}

func lookupError(err error, msg string) error {
	return errs.WithCode(errs.Wrap(err, msg), errs.ErrorLookup)
}

var errClosed = errs.WithCode(errs.New("naming service destroyed"), errs.ErrorClosed)
