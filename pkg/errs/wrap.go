package errs

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// WrapError 带调用位置与错误码的错误
type WrapError struct {
	msg   string
	code  int
	file  string
	line  int
	cause error
}

func caller(skip int) (string, int) {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown", 0
	}
	return shortPath(file, 3), line
}

// New 创建新错误，不包含 cause 和 code
func New(msg string) error {
	file, line := caller(1)
	return &WrapError{msg: msg, file: file, line: line}
}

// Newf 同 New，支持格式化
func Newf(format string, args ...any) error {
	file, line := caller(1)
	return &WrapError{msg: fmt.Sprintf(format, args...), file: file, line: line}
}

// Wrap 包装错误，msg 可为空，不为空则表示本层错误描述
func Wrap(err error, msgs ...string) error {
	if err == nil {
		return nil
	}
	file, line := caller(1)
	return &WrapError{
		msg:   strings.Join(msgs, ", "),
		file:  file,
		line:  line,
		cause: err,
	}
}

// WithCode 为错误设置 code；非 WrapError 会被重新包装
func WithCode(err error, code int) error {
	if err == nil {
		return nil
	}
	var w *WrapError
	if !errors.As(err, &w) {
		file, line := caller(1)
		return &WrapError{code: code, file: file, line: line, cause: err}
	}
	w.code = code
	return err
}

// CodeOf 返回错误链上第一个非 0 的 code，没有则返回 0
func CodeOf(err error) int {
	for err != nil {
		if w, ok := err.(*WrapError); ok && w.code != 0 {
			return w.code
		}
		err = errors.Unwrap(err)
	}
	return 0
}

// HasCode 判断错误链上是否带有指定 code
func HasCode(err error, code int) bool {
	for err != nil {
		if w, ok := err.(*WrapError); ok && w.code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func (e *WrapError) Error() string {
	var b strings.Builder
	if e.code != 0 {
		fmt.Fprintf(&b, "[%d] ", e.code)
	}
	b.WriteString(e.msg)
	if e.cause != nil {
		if e.msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *WrapError) Unwrap() error {
	return e.cause
}

func (e *WrapError) Code() int {
	return e.code
}

// Format 实现 %+v 打印完整错误链（含文件行号）
func (e *WrapError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			var err error = e
			for err != nil {
				we, ok := err.(*WrapError)
				if !ok {
					fmt.Fprint(s, err.Error())
					return
				}
				if we.code == 0 {
					fmt.Fprintf(s, "%s:%d: %s", we.file, we.line, we.msg)
				} else {
					fmt.Fprintf(s, "%s:%d: [%d] %s", we.file, we.line, we.code, we.msg)
				}
				err = we.cause
				if err != nil {
					fmt.Fprint(s, " -> ")
				}
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// shortPath 取文件路径最后 n 级目录
func shortPath(path string, n int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= n {
		return strings.Join(parts, "/")
	}
	return strings.Join(parts[len(parts)-n:], "/")
}

func Stack(err error) string {
	return fmt.Sprintf("%+v", err)
}
