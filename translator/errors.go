package translator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrAuthentication 密钥缺失或被拒绝，不重试
	ErrAuthentication = errors.New("API 认证失败")
	// ErrConnection 网络或服务端错误，可重试
	ErrConnection = errors.New("API 连接失败")
	// ErrRateLimit 请求频率超限，可重试
	ErrRateLimit = errors.New("API 请求频率超限")
	// ErrInvalidResponse 响应无法解析为翻译结果
	ErrInvalidResponse = errors.New("无效的翻译响应")
)

// classify 把 go-openai 与网络错误归类为上面的哨兵错误
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	case status >= 500:
		return fmt.Errorf("%w: %v", ErrConnection, err)
	case status != 0:
		return fmt.Errorf("API 返回错误 (状态码 %d): %w", status, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return err
}

// Retryable 是否值得重试
func Retryable(err error) bool {
	return errors.Is(err, ErrConnection) || errors.Is(err, ErrRateLimit)
}
