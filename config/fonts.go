package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pdf-replacer/logger"
)

// AutoFont CJK_FONT 取该值时在字体目录中查找
const AutoFont = "auto"

// cjkCandidates 各平台常见的 CJK TrueType 字体，路径相对于字体目录
var cjkCandidates = map[string]map[string][]string{
	"windows": {
		"ja": {"msgothic.ttc", "msmincho.ttc", "YuGothM.ttc", "meiryo.ttc"},
		"zh": {"msyh.ttc", "simsun.ttc", "simhei.ttf"},
		"ko": {"malgun.ttf", "gulim.ttc", "batang.ttc"},
	},
	"darwin": {
		"ja": {"ヒラギノ角ゴシック W3.ttc", "ヒラギノ明朝 ProN.ttc", "YuGothic.ttc"},
		"zh": {"PingFang.ttc", "STHeiti Medium.ttc", "Songti.ttc"},
		"ko": {"AppleSDGothicNeo.ttc", "AppleMyungjo.ttc"},
	},
	"linux": {
		"ja": {
			"opentype/noto/NotoSansCJK-Regular.ttc",
			"truetype/takao-gothic/TakaoPGothic.ttf",
			"truetype/vlgothic/VL-Gothic-Regular.ttf",
			"truetype/ipa/ipag.ttf",
			"truetype/ipa/ipam.ttf",
		},
		"zh": {
			"truetype/wqy/wqy-microhei.ttc",
			"truetype/wqy/wqy-zenhei.ttc",
			"truetype/droid/DroidSansFallback.ttf",
			"opentype/noto/NotoSansCJK-Regular.ttc",
		},
		"ko": {
			"opentype/noto/NotoSansCJK-Regular.ttc",
			"truetype/nanum/NanumGothic.ttf",
		},
	},
}

// platform 候选表中的平台名，其他类 Unix 系统按 linux 处理
func platform() string {
	if _, ok := cjkCandidates[runtime.GOOS]; ok {
		return runtime.GOOS
	}
	return "linux"
}

// systemFontDirs 当前平台的系统字体目录
func systemFontDirs(goos string) []string {
	switch goos {
	case "windows":
		return []string{filepath.Join(os.Getenv("WINDIR"), "Fonts")}
	case "darwin":
		return []string{"/System/Library/Fonts", "/Library/Fonts", filepath.Join(os.Getenv("HOME"), "Library", "Fonts")}
	default:
		return []string{"/usr/share/fonts", "/usr/local/share/fonts", filepath.Join(os.Getenv("HOME"), ".fonts")}
	}
}

// FindCJKFont 依次在 dirs 与系统字体目录中查找 language（ja/zh/ko）对应的字体
//
// dirs 中的目录同时按候选相对路径和文件名查找。找不到时返回空字符串。
func FindCJKFont(language string, dirs ...string) string {
	goos := platform()
	candidates := cjkCandidates[goos][strings.ToLower(language)]
	if len(candidates) == 0 {
		candidates = cjkCandidates[goos]["ja"]
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if path := findFirstExistingFont(dir, candidates); path != "" {
			return path
		}
		for _, c := range candidates {
			if path := filepath.Join(dir, filepath.Base(c)); fileExists(path) {
				return path
			}
		}
	}
	for _, dir := range systemFontDirs(goos) {
		if path := findFirstExistingFont(dir, candidates); path != "" {
			return path
		}
	}
	return ""
}

// findFirstExistingFont 查找第一个存在的字体文件
func findFirstExistingFont(baseDir string, candidates []string) string {
	for _, candidate := range candidates {
		fullPath := filepath.Join(baseDir, candidate)
		if fileExists(fullPath) {
			return fullPath
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveCJKFont 解析用于字形覆盖检查的 TrueType 文件
//
// 未配置时返回空字符串；配置为 auto 时查找系统字体，找不到也返回空字符串；
// 显式路径不存在时报错。
func (c *Config) ResolveCJKFont(log *logger.Logger) (string, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch c.CJKFont {
	case "":
		return "", nil
	case AutoFont:
		path := FindCJKFont("ja", c.FontDir)
		if path == "" {
			log.Warn("未找到系统 CJK 字体，跳过字形检查", nil)
			return "", nil
		}
		log.Info("找到系统字体", logger.Fields{"路径": path})
		return path, nil
	}

	path := c.CJKFont
	if !filepath.IsAbs(path) && c.FontDir != "" && !fileExists(path) {
		path = filepath.Join(c.FontDir, path)
	}
	if !fileExists(path) {
		return "", fmt.Errorf("CJK 字体文件不存在: %s", c.CJKFont)
	}
	return path, nil
}
