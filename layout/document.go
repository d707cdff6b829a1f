package layout

import (
	"encoding/json"
	"fmt"
	"os"
)

// PageLayout 单页的提取结果与翻译单元
type PageLayout struct {
	Number    int        `json:"page_number"` // 从 1 开始
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Rotation  int        `json:"rotation"`
	Fragments []Fragment `json:"fragments"`
	Units     []Unit     `json:"units,omitempty"`
}

// Bounds 页面矩形
func (p PageLayout) Bounds() Rect {
	return Rect{X0: 0, Y0: 0, X1: p.Width, Y1: p.Height}
}

// Text 按阅读顺序拼接的整页文本
func (p PageLayout) Text() string {
	out := make([]byte, 0, 256)
	for i, f := range p.Fragments {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, f.Text...)
	}
	return string(out)
}

// Document 整个文档的版面数据
type Document struct {
	Source string       `json:"source"`
	Pages  []PageLayout `json:"pages"`
}

// Page 按页码取页面
func (d *Document) Page(number int) (*PageLayout, bool) {
	for i := range d.Pages {
		if d.Pages[i].Number == number {
			return &d.Pages[i], true
		}
	}
	return nil, false
}

// Text 全文
func (d *Document) Text() string {
	out := ""
	for i, p := range d.Pages {
		if i > 0 {
			out += " "
		}
		out += p.Text()
	}
	return out
}

// Save 保存为 JSON
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化版面数据失败: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入版面文件失败: %w", err)
	}
	return nil
}

// LoadDocument 从 JSON 文件读取版面数据并校验片段
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取版面文件失败: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析版面文件失败: %w", err)
	}
	for _, p := range doc.Pages {
		for _, f := range p.Fragments {
			if err := f.Validate(); err != nil {
				return nil, fmt.Errorf("第 %d 页: %w", p.Number, err)
			}
		}
	}
	return &doc, nil
}
