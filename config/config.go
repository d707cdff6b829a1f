package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pdf-replacer/logger"
	"pdf-replacer/replacer"
	"pdf-replacer/translator"
)

// Config 运行配置，启动时解析一次后显式传给各组件
type Config struct {
	Provider       translator.ProviderConfig
	MaxRetries     int
	RetryBaseDelay time.Duration

	FontDir           string
	CJKFont           string // TrueType 文件路径，"auto" 表示在系统字体目录中查找
	CJKFontName       string
	CJKBoldFontName   string
	LatinFontName     string
	LatinBoldFontName string

	ForceCoverErase bool
	FitMode         replacer.FitMode
	PageWorkers     int
	MaxPages        int

	CacheDir   string
	OutputDir  string
	LogLevel   string
	LogFile    string
	DebugDir   string
	ListenAddr string
}

// Override 在校验之前修改配置，命令行参数通过它覆盖环境变量
type Override func(*Config)

// Load 读取 .env（文件不存在不算错误）后从环境变量加载配置
func Load(files ...string) (*Config, error) {
	return LoadWith(nil, files...)
}

// LoadWith 同 Load，校验前依次应用 overrides
func LoadWith(overrides []Override, files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}
	return FromEnv(overrides...)
}

// FromEnv 只从环境变量加载配置
func FromEnv(overrides ...Override) (*Config, error) {
	fitMode, err := replacer.ParseFitMode(getEnvOrDefault("FIT_MODE", string(replacer.FitWrap)))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Provider: translator.ProviderConfig{
			Type:        translator.ProviderType(getEnvOrDefault("TRANSLATOR_PROVIDER", string(translator.ProviderOpenAI))),
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: float32(getEnvAsFloatOrDefault("OPENAI_TEMPERATURE", 0.3)),
			MaxTokens:   getEnvAsIntOrDefault("OPENAI_MAX_TOKENS", 4000),
			StaticFile:  os.Getenv("TRANSLATIONS_FILE"),
		},
		MaxRetries:     getEnvAsIntOrDefault("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvAsDurationOrDefault("RETRY_BASE_DELAY", time.Second),

		FontDir:           os.Getenv("FONT_DIR"),
		CJKFont:           os.Getenv("CJK_FONT"),
		CJKFontName:       getEnvOrDefault("CJK_FONT_NAME", "HeiseiKakuGo-W5"),
		CJKBoldFontName:   os.Getenv("CJK_BOLD_FONT_NAME"),
		LatinFontName:     getEnvOrDefault("LATIN_FONT_NAME", "Helvetica"),
		LatinBoldFontName: getEnvOrDefault("LATIN_BOLD_FONT_NAME", "Helvetica-Bold"),

		ForceCoverErase: getEnvAsBoolOrDefault("FORCE_COVER_ERASE", false),
		FitMode:         fitMode,
		PageWorkers:     getEnvAsIntOrDefault("PAGE_WORKERS", 4),
		MaxPages:        getEnvAsIntOrDefault("MAX_PAGES", 0),

		CacheDir:   getEnvOrDefault("CACHE_DIR", "cache"),
		OutputDir:  getEnvOrDefault("OUTPUT_DIR", "output"),
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFile:    os.Getenv("LOG_FILE"),
		DebugDir:   os.Getenv("DEBUG_DIR"),
		ListenAddr: getEnvOrDefault("LISTEN_ADDR", ":8080"),
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// Validate 检查配置取值
//
// 非 static、非 ollama 的提供商缺少密钥时返回包装 translator.ErrAuthentication 的错误。
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case translator.ProviderStatic:
		if c.Provider.StaticFile == "" {
			return fmt.Errorf("static 提供商需要设置 TRANSLATIONS_FILE")
		}
	case translator.ProviderOllama:
	case translator.ProviderOpenAI, translator.ProviderDeepSeek:
		if c.Provider.APIKey == "" {
			return fmt.Errorf("%w: 未设置 OPENAI_API_KEY", translator.ErrAuthentication)
		}
	default:
		return fmt.Errorf("不支持的提供商类型: %s", c.Provider.Type)
	}
	if c.MaxRetries < 1 || c.MaxRetries > 10 {
		return fmt.Errorf("MAX_RETRIES 必须在 1 到 10 之间，当前为 %d", c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY 不能为负数")
	}
	if c.PageWorkers < 1 || c.PageWorkers > 64 {
		return fmt.Errorf("PAGE_WORKERS 必须在 1 到 64 之间，当前为 %d", c.PageWorkers)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("MAX_PAGES 不能为负数")
	}
	return c.Fonts().Validate()
}

// Fonts 字体选择配置
func (c *Config) Fonts() replacer.FontConfig {
	return replacer.FontConfig{
		Latin:     c.LatinFontName,
		LatinBold: c.LatinBoldFontName,
		CJK:       c.CJKFontName,
		CJKBold:   c.CJKBoldFontName,
	}
}

// LoggerOptions 日志配置
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:    logger.ParseLevel(c.LogLevel),
		File:     c.LogFile,
		Console:  true,
		DebugDir: c.DebugDir,
	}
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnvOrDefault(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnvOrDefault(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationOrDefault 支持 "1s" 形式，纯数字按秒计
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
