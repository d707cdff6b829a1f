package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/text/unicode/norm"

	"pdf-replacer/layout"
	"pdf-replacer/logger"
)

// Client 带缓存与重试的翻译客户端
type Client struct {
	Provider   Provider
	MaxRetries int           // 总尝试次数
	RetryDelay time.Duration // 首次重试前的等待，之后每次翻倍

	cache *Cache
	log   *logger.Logger
}

// NewClient 创建翻译客户端，cache 可以为 nil
func NewClient(provider Provider, cache *Cache, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		Provider:   provider,
		MaxRetries: 3,
		RetryDelay: time.Second,
		cache:      cache,
		log:        log,
	}
}

// WithRetry 设置重试参数
func (c *Client) WithRetry(times int, delay time.Duration) *Client {
	c.MaxRetries = times
	c.RetryDelay = delay
	return c
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.RetryDelay << 10
	b.MaxElapsedTime = 0
	retries := c.MaxRetries - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// TranslatePage 翻译一页（一次请求覆盖整页的片段）
//
// 连接错误与频率超限按指数退避重试；认证错误立即返回。
// 返回的译文统一做 NFC 规范化。
func (c *Client) TranslatePage(ctx context.Context, req PageRequest) (PageTranslation, error) {
	if len(req.Fragments) == 0 {
		return PageTranslation{}, nil
	}

	key := CacheKey(c.Provider.GetName(), req.Direction, req.Texts())
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.log.Debug("命中翻译缓存", logger.Fields{"页码": req.Page})
			return cached, nil
		}
	}

	start := time.Now()
	attempt := 0
	result, err := backoff.RetryWithData(func() (PageTranslation, error) {
		attempt++
		out, err := c.Provider.TranslatePage(ctx, req)
		if err == nil {
			return out, nil
		}
		if !Retryable(err) {
			return PageTranslation{}, backoff.Permanent(err)
		}
		c.log.Warn("翻译请求失败，准备重试", logger.Fields{
			"页码": req.Page,
			"次数": attempt,
			"错误": err.Error(),
		})
		return PageTranslation{}, err
	}, c.backOff(ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return PageTranslation{}, fmt.Errorf("第 %d 页翻译失败（尝试 %d 次）: %w", req.Page, attempt, err)
	}

	result = normalize(result)
	c.log.Timing("页面翻译", time.Since(start), logger.Fields{
		"页码":  req.Page,
		"片段数": len(req.Fragments),
		"分组数": len(result.Groups),
		"提供商": c.Provider.GetName(),
	})
	if c.cache != nil && !result.Empty() {
		if err := c.cache.Set(key, result); err != nil {
			c.log.Warn("写入翻译缓存失败", logger.Fields{"错误": err.Error()})
		}
	}
	return result, nil
}

func normalize(t PageTranslation) PageTranslation {
	out := PageTranslation{}
	if len(t.Groups) > 0 {
		out.Groups = make([]layout.GroupRange, len(t.Groups))
		for i, g := range t.Groups {
			g.Text = norm.NFC.String(g.Text)
			out.Groups[i] = g
		}
	}
	if len(t.Singles) > 0 {
		out.Singles = make(map[int]string, len(t.Singles))
		for k, v := range t.Singles {
			out.Singles[k] = norm.NFC.String(v)
		}
	}
	return out
}
