package pdf

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TokenKind 内容流标记类型
type TokenKind int

const (
	TokenNumber TokenKind = iota
	TokenName
	TokenString
	TokenHexString
	TokenArrayOpen
	TokenArrayClose
	TokenDictOpen
	TokenDictClose
	TokenKeyword
)

// Token 内容流中的一个标记，Raw 保留原始字节以便原样写回
type Token struct {
	Kind TokenKind
	Raw  string
}

// Operation 一个操作符及其操作数
//
// 内联图像 (BI ... ID ... EI) 整体保存在 Raw 中，Operator 为 "BI"。
type Operation struct {
	Operator string
	Operands []Token
	Raw      string
}

// IsTextShow 是否为文字绘制操作
func (op Operation) IsTextShow() bool {
	switch op.Operator {
	case "Tj", "TJ", "'", "\"":
		return true
	}
	return false
}

// Float 第 i 个操作数的数值
func (op Operation) Float(i int) (float64, bool) {
	if i < 0 || i >= len(op.Operands) || op.Operands[i].Kind != TokenNumber {
		return 0, false
	}
	v, err := strconv.ParseFloat(op.Operands[i].Raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Floats 全部操作数均为数值时返回
func (op Operation) Floats() ([]float64, bool) {
	out := make([]float64, len(op.Operands))
	for i := range op.Operands {
		v, ok := op.Float(i)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Name 第 i 个操作数的名字（去掉前导斜杠）
func (op Operation) Name(i int) (string, bool) {
	if i < 0 || i >= len(op.Operands) || op.Operands[i].Kind != TokenName {
		return "", false
	}
	return op.Operands[i].Raw[1:], true
}

func isWhite(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

type scanner struct {
	src []byte
	pos int
}

// ParseContent 把内容流解析为操作序列
//
// 任何语法错误都会返回错误，调用方应改用覆盖擦除而不是冒险改写内容流。
func ParseContent(src []byte) ([]Operation, error) {
	s := &scanner{src: src}
	var ops []Operation
	var operands []Token
	for {
		tok, ok, err := s.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if tok.Kind != TokenKeyword {
			operands = append(operands, tok)
			continue
		}
		switch tok.Raw {
		case "true", "false", "null":
			operands = append(operands, tok)
			continue
		case "BI":
			if len(operands) > 0 {
				return nil, fmt.Errorf("内联图像前存在多余操作数 (偏移 %d)", s.pos)
			}
			start := s.pos - len("BI")
			if err := s.skipInlineImage(); err != nil {
				return nil, err
			}
			ops = append(ops, Operation{Operator: "BI", Raw: string(src[start:s.pos])})
			continue
		}
		ops = append(ops, Operation{Operator: tok.Raw, Operands: operands})
		operands = nil
	}
	if len(operands) > 0 {
		return nil, fmt.Errorf("内容流末尾存在 %d 个无操作符的操作数", len(operands))
	}
	return ops, nil
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isWhite(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *scanner) next() (Token, bool, error) {
	s.skipSpace()
	if s.pos >= len(s.src) {
		return Token{}, false, nil
	}
	start := s.pos
	c := s.src[s.pos]
	switch {
	case c == '(':
		if err := s.skipLiteral(); err != nil {
			return Token{}, false, err
		}
		return Token{Kind: TokenString, Raw: string(s.src[start:s.pos])}, true, nil
	case c == '<':
		if s.pos+1 < len(s.src) && s.src[s.pos+1] == '<' {
			s.pos += 2
			return Token{Kind: TokenDictOpen, Raw: "<<"}, true, nil
		}
		end := bytes.IndexByte(s.src[s.pos:], '>')
		if end < 0 {
			return Token{}, false, fmt.Errorf("十六进制字符串未闭合 (偏移 %d)", start)
		}
		s.pos += end + 1
		return Token{Kind: TokenHexString, Raw: string(s.src[start:s.pos])}, true, nil
	case c == '>':
		if s.pos+1 < len(s.src) && s.src[s.pos+1] == '>' {
			s.pos += 2
			return Token{Kind: TokenDictClose, Raw: ">>"}, true, nil
		}
		return Token{}, false, fmt.Errorf("意外的 '>' (偏移 %d)", start)
	case c == '[':
		s.pos++
		return Token{Kind: TokenArrayOpen, Raw: "["}, true, nil
	case c == ']':
		s.pos++
		return Token{Kind: TokenArrayClose, Raw: "]"}, true, nil
	case c == ')' || c == '{' || c == '}':
		return Token{}, false, fmt.Errorf("意外的 %q (偏移 %d)", c, start)
	case c == '/':
		s.pos++
		s.skipRegular()
		return Token{Kind: TokenName, Raw: string(s.src[start:s.pos])}, true, nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		s.skipRegular()
		raw := string(s.src[start:s.pos])
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return Token{}, false, fmt.Errorf("无效数值 %q (偏移 %d)", raw, start)
		}
		return Token{Kind: TokenNumber, Raw: raw}, true, nil
	default:
		s.skipRegular()
		return Token{Kind: TokenKeyword, Raw: string(s.src[start:s.pos])}, true, nil
	}
}

func (s *scanner) skipRegular() {
	for s.pos < len(s.src) && !isWhite(s.src[s.pos]) && !isDelim(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) skipLiteral() error {
	start := s.pos
	depth := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		s.pos++
		switch c {
		case '\\':
			s.pos++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
	return fmt.Errorf("字符串未闭合 (偏移 %d)", start)
}

// skipInlineImage 跳过 BI 之后的参数、ID 以及二进制数据，停在 EI 之后
func (s *scanner) skipInlineImage() error {
	for {
		tok, ok, err := s.next()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("内联图像缺少 ID")
		}
		if tok.Kind == TokenKeyword && tok.Raw == "ID" {
			break
		}
	}
	// ID 之后恰好一个空白字节
	s.pos++
	for i := s.pos; i+1 < len(s.src); i++ {
		if s.src[i] != 'E' || s.src[i+1] != 'I' {
			continue
		}
		if i > 0 && !isWhite(s.src[i-1]) {
			continue
		}
		if i+2 < len(s.src) && !isWhite(s.src[i+2]) && !isDelim(s.src[i+2]) {
			continue
		}
		s.pos = i + 2
		return nil
	}
	return fmt.Errorf("内联图像缺少 EI")
}

// SerializeOps 把操作序列写回内容流
func SerializeOps(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		writeOp(&buf, op)
	}
	return buf.Bytes()
}

func writeOp(buf *bytes.Buffer, op Operation) {
	if op.Raw != "" {
		buf.WriteString(op.Raw)
		buf.WriteByte('\n')
		return
	}
	for _, t := range op.Operands {
		buf.WriteString(t.Raw)
		buf.WriteByte(' ')
	}
	buf.WriteString(op.Operator)
	buf.WriteByte('\n')
}

// DecodeString 解码字面量或十六进制字符串标记为原始字节
func DecodeString(t Token) ([]byte, error) {
	switch t.Kind {
	case TokenHexString:
		return decodeHex(t.Raw)
	case TokenString:
		return decodeLiteral(t.Raw), nil
	default:
		return nil, fmt.Errorf("不是字符串标记: %s", t.Raw)
	}
}

func decodeHex(raw string) ([]byte, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	clean := make([]byte, 0, len(body)+1)
	for i := 0; i < len(body); i++ {
		if !isWhite(body[i]) {
			clean = append(clean, body[i])
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, len(clean)/2)
	if _, err := hex.Decode(out, clean); err != nil {
		return nil, fmt.Errorf("十六进制字符串无效: %w", err)
	}
	return out, nil
}

func decodeLiteral(raw string) []byte {
	body := raw[1 : len(raw)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(body) {
			break
		}
		switch e := body[i]; e {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\r':
			if i+1 < len(body) && body[i+1] == '\n' {
				i++
			}
		case '\n':
		default:
			if e >= '0' && e <= '7' {
				v := 0
				n := 0
				for n < 3 && i < len(body) && body[i] >= '0' && body[i] <= '7' {
					v = v*8 + int(body[i]-'0')
					i++
					n++
				}
				i--
				out = append(out, byte(v))
				continue
			}
			out = append(out, e)
		}
	}
	return out
}

// hexString 把字节编码为 <...> 形式
func hexString(b []byte) string {
	return "<" + strings.ToUpper(hex.EncodeToString(b)) + ">"
}

// formatNumber 去掉多余的小数位
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
