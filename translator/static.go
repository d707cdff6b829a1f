package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// StaticData 预先准备的译文
//
//	{
//	  "pages": {"1": {"groups": [{"start": 0, "end": 1, "text": "..."}], "singles": {"2": "..."}}},
//	  "texts": {"原文": "译文"}
//	}
//
// pages 按页码给出分组或逐片段译文；texts 按原文整句匹配，用于没有页码信息的词表。
type StaticData struct {
	Pages map[string]PageTranslation `json:"pages,omitempty"`
	Texts map[string]string          `json:"texts,omitempty"`
}

// StaticProvider 从 JSON 数据返回译文，用于离线运行和测试
type StaticProvider struct {
	data StaticData
}

// NewStaticProvider 创建静态提供商
func NewStaticProvider(data StaticData) *StaticProvider {
	return &StaticProvider{data: data}
}

// ParseStaticProvider 从 JSON 内容创建静态提供商
func ParseStaticProvider(content []byte) (*StaticProvider, error) {
	var data StaticData
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("解析译文文件失败: %w", err)
	}
	for key := range data.Pages {
		if _, err := strconv.Atoi(key); err != nil {
			return nil, fmt.Errorf("译文文件中的页码无效: %q", key)
		}
	}
	return NewStaticProvider(data), nil
}

// LoadStaticProvider 从 JSON 文件创建静态提供商
func LoadStaticProvider(path string) (*StaticProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("未指定译文文件")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取译文文件失败: %w", err)
	}
	return ParseStaticProvider(content)
}

func (p *StaticProvider) GetName() string {
	return string(ProviderStatic)
}

// TranslatePage 页码条目优先；没有条目时按原文匹配 texts
func (p *StaticProvider) TranslatePage(ctx context.Context, req PageRequest) (PageTranslation, error) {
	if err := ctx.Err(); err != nil {
		return PageTranslation{}, err
	}
	if page, ok := p.data.Pages[strconv.Itoa(req.Page)]; ok {
		return page, nil
	}
	if len(p.data.Texts) == 0 {
		return PageTranslation{}, nil
	}
	singles := make(map[int]string)
	for _, f := range req.Fragments {
		if text, ok := p.data.Texts[f.Text]; ok {
			singles[f.Index] = text
		}
	}
	if len(singles) == 0 {
		return PageTranslation{}, nil
	}
	return PageTranslation{Singles: singles}, nil
}
