package pipeline

import (
	"errors"
	"fmt"
)

// ErrorCode 处理失败的类别，同时作为命令行退出码
type ErrorCode int

const (
	CodeSuccess       ErrorCode = 0
	CodeInputNotFound ErrorCode = 1
	CodeInputRead     ErrorCode = 2
	CodeTranslation   ErrorCode = 3
	CodeConfig        ErrorCode = 4 // 认证或配置错误
	CodeOutputWrite   ErrorCode = 5
	CodeUnknown       ErrorCode = 99
)

func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInputNotFound:
		return "input_not_found"
	case CodeInputRead:
		return "input_read_error"
	case CodeTranslation:
		return "translation_error"
	case CodeConfig:
		return "config_error"
	case CodeOutputWrite:
		return "output_write_error"
	default:
		return "unknown_error"
	}
}

// ProcessingError 带类别的处理错误
type ProcessingError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error, format string, args ...interface{}) *ProcessingError {
	return &ProcessingError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf 取错误类别，nil 为成功，未分类的错误为 CodeUnknown
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}
