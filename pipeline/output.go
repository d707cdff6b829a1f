package pipeline

import (
	"path/filepath"
	"strings"
)

// OutputPath 生成输出文件路径 <stem>_<lang>.pdf
//
// outputDir 为空时与输入文件放在同一目录。
func OutputPath(input, outputDir, lang string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if outputDir == "" {
		outputDir = filepath.Dir(input)
	}
	return filepath.Join(outputDir, stem+"_"+lang+".pdf")
}

// LayoutPath 版面 JSON 的默认路径，与输出 PDF 同名
func LayoutPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + "_layout.json"
}
