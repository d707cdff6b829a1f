package translator

import (
	"fmt"
	"strings"

	"pdf-replacer/layout"
)

// Direction 翻译方向
type Direction string

const (
	JaToEn Direction = "ja-to-en"
	EnToJa Direction = "en-to-ja"
)

// ParseDirection 解析方向字符串
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case JaToEn:
		return JaToEn, nil
	case EnToJa:
		return EnToJa, nil
	}
	return "", fmt.Errorf("不支持的翻译方向: %q", s)
}

// DetectDirection 根据原文语言决定方向：日文译为英文，其余译为日文
func DetectDirection(text string) Direction {
	if layout.DetectLanguage(text) == "ja" {
		return JaToEn
	}
	return EnToJa
}

// TargetLanguage 目标语言代码
func (d Direction) TargetLanguage() string {
	if d == JaToEn {
		return "en"
	}
	return "ja"
}

// SourceLanguage 源语言代码
func (d Direction) SourceLanguage() string {
	if d == JaToEn {
		return "ja"
	}
	return "en"
}

const promptJaToEn = `You are a professional translator specializing in Japanese to English translation.

Rules:
1. Translate the given Japanese text into natural, fluent English
2. Preserve the original meaning and nuance as much as possible
3. Maintain the tone and style of the original text
4. Keep proper nouns, technical terms, and brand names unchanged unless there is a commonly used English equivalent
5. Output ONLY the translation without any explanations or notes
6. Preserve paragraph structure and line breaks`

const promptEnToJa = `You are a professional translator specializing in English to Japanese translation.

Rules:
1. Translate the given English text into natural, fluent Japanese
2. Preserve the original meaning and nuance as much as possible
3. Maintain the tone and style of the original text
4. Keep proper nouns, technical terms, and brand names unchanged unless there is a commonly used Japanese equivalent
5. Output ONLY the translation without any explanations or notes
6. Preserve paragraph structure and line breaks
7. Use appropriate Japanese writing style based on the context`

// SystemPrompt 该方向的系统提示词
func (d Direction) SystemPrompt() string {
	if d == JaToEn {
		return promptJaToEn
	}
	return promptEnToJa
}
