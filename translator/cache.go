package translator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache 以整页为单位的翻译缓存，每条结果存为一个 JSON 文件
type Cache struct {
	dir      string
	mutex    sync.RWMutex
	disabled bool // 是否禁用缓存
}

// NewCache 创建缓存
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// DisableCache 禁用缓存（用于强制重新翻译）
func (c *Cache) DisableCache() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disabled = true
}

// Get 获取缓存，文件缺失或内容损坏时视为未命中
func (c *Cache) Get(key string) (PageTranslation, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.disabled {
		return PageTranslation{}, false
	}

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return PageTranslation{}, false
	}
	var out PageTranslation
	if err := json.Unmarshal(data, &out); err != nil {
		return PageTranslation{}, false
	}
	return out, true
}

// Set 设置缓存
func (c *Cache) Set(key string, value PageTranslation) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化缓存失败: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.disabled {
		return nil
	}
	return os.WriteFile(c.path(key), data, 0644)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, hashKey(key)+".json")
}

// hashKey 计算缓存键的哈希
func hashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CacheKey 生成缓存键
func CacheKey(provider string, direction Direction, texts []string) string {
	data := map[string]interface{}{
		"provider":  provider,
		"direction": direction,
		"texts":     texts,
	}
	jsonData, _ := json.Marshal(data)
	return string(jsonData)
}
