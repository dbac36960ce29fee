package errors

import "errors"

// Error 业务错误
type Error struct {
	Code     int    `json:"code"`    // 错误码
	Message  string `json:"message"` // 错误信息
	HttpCode int    `json:"-"`       // http状态码
	Err      error  `json:"-"`       // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建新的错误
// code 错误码
// httpCode http状态码，<= 0 时默认 200
// message 错误信息
// err 原始错误，可为 nil
func New(code, httpCode int, message string, err error) *Error {
	if httpCode <= 0 {
		httpCode = 200
	}
	return &Error{
		Code:     code,
		HttpCode: httpCode,
		Message:  message,
		Err:      err,
	}
}

// Clone 克隆错误（避免修改共享的预定义错误）
func (e *Error) Clone() *Error {
	return &Error{
		Code:     e.Code,
		HttpCode: e.HttpCode,
		Message:  e.Message,
		Err:      e.Err,
	}
}

// WithError 添加原始错误（返回新实例，不修改原错误）
func (e *Error) WithError(err error) *Error {
	c := e.Clone()
	c.Err = err
	return c
}

// WithMessage 替换错误信息（返回新实例，不修改原错误）
func (e *Error) WithMessage(message string) *Error {
	c := e.Clone()
	c.Message = message
	return c
}

// Is 检查错误是否为指定类型
// 当 target 也是 *Error 时，比较 Code 是否相同
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// As 转换为指定类型的错误
// target 必须是指针类型
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 检查错误链中是否包含 target
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// Join 合并多个错误
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// CodeOf 获取错误码，非 *Error 返回 ErrServer 的错误码
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrServer.Code
}
