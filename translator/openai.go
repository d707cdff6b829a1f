package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"pdf-replacer/layout"
)

const defaultModel = "gpt-4o-mini"

const groupInstruction = `You will receive a JSON array of text fragments from one document page, in reading order.
Each item has an "index" and a "text". Consecutive fragments may belong to the same sentence or paragraph.
Merge consecutive fragments that belong together, translate each merged group, and answer with a JSON object:
{"groups":[{"start":<first index>,"end":<last index>,"text":"<translation>"}]}
Every index must appear in exactly one group, groups must not overlap, and start must not exceed end.`

const singleInstruction = `You will receive a JSON array of text fragments from one document page.
Translate every fragment on its own and answer with a JSON object mapping each index to its translation:
{"translations":{"<index>":"<translation>"}}`

// OpenAIProvider OpenAI 兼容的提供商（包括 OpenAI、DeepSeek、Ollama 等）
//
// 先请求分组译文；响应无法解析时改为逐片段翻译。
type OpenAIProvider struct {
	config ProviderConfig
	client *openai.Client
}

// NewOpenAIProvider 创建 OpenAI 提供商
func NewOpenAIProvider(config ProviderConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%w: 未设置 API 密钥", ErrAuthentication)
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4000
	}
	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	return &OpenAIProvider{config: config, client: openai.NewClientWithConfig(cfg)}, nil
}

func (p *OpenAIProvider) GetName() string {
	if p.config.Type == "" {
		return string(ProviderOpenAI)
	}
	return string(p.config.Type)
}

type promptItem struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

func (p *OpenAIProvider) TranslatePage(ctx context.Context, req PageRequest) (PageTranslation, error) {
	items := make([]promptItem, len(req.Fragments))
	for i, f := range req.Fragments {
		items[i] = promptItem{Index: f.Index, Text: f.Text}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return PageTranslation{}, fmt.Errorf("序列化片段失败: %w", err)
	}

	content, err := p.complete(ctx, req.Direction, groupInstruction, string(payload))
	if err != nil {
		return PageTranslation{}, err
	}
	groups, perr := parseGroups(content)
	if perr == nil {
		return PageTranslation{Groups: groups}, nil
	}

	content, err = p.complete(ctx, req.Direction, singleInstruction, string(payload))
	if err != nil {
		return PageTranslation{}, err
	}
	singles, serr := parseSingles(content)
	if serr != nil {
		return PageTranslation{}, fmt.Errorf("%w: 分组(%v), 逐条(%v)", ErrInvalidResponse, perr, serr)
	}
	return PageTranslation{Singles: singles}, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, dir Direction, instruction, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: dir.SystemPrompt() + "\n\n" + instruction},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: API 未返回翻译结果", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFence 去掉模型偶尔包裹的 ``` 代码块
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func parseGroups(content string) ([]layout.GroupRange, error) {
	var resp struct {
		Groups []layout.GroupRange `json:"groups"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &resp); err != nil {
		return nil, fmt.Errorf("解析分组响应失败: %w", err)
	}
	if len(resp.Groups) == 0 {
		return nil, fmt.Errorf("分组响应为空")
	}
	return resp.Groups, nil
}

func parseSingles(content string) (map[int]string, error) {
	var resp struct {
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(stripFence(content)), &resp); err != nil {
		return nil, fmt.Errorf("解析逐条响应失败: %w", err)
	}
	if len(resp.Translations) == 0 {
		return nil, fmt.Errorf("逐条响应为空")
	}
	out := make(map[int]string, len(resp.Translations))
	for k, v := range resp.Translations {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("无效的片段序号 %q", k)
		}
		out[idx] = v
	}
	return out, nil
}
