package document

import (
	"strconv"
	"strings"
)

// kerningSpace TJ数组中小于该值的位移视为单词间隔
const kerningSpace = -200

// TextFromContentStream 从PDF页面内容流中还原文本
// 只识别文本绘制指令（Tj、TJ、'、"）以及换行相关的定位指令
func TextFromContentStream(data []byte) string {
	s := &streamScanner{data: data}
	var (
		out     strings.Builder
		strs    []string
		nums    []float64
		inArray bool
		array   strings.Builder
	)

	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}
	reset := func() {
		strs = strs[:0]
		nums = nums[:0]
	}

	for {
		tok, kind := s.next()
		if kind == tokEOF {
			break
		}

		switch kind {
		case tokString:
			if inArray {
				array.WriteString(tok)
			} else {
				strs = append(strs, tok)
			}
		case tokArrayStart:
			inArray = true
			array.Reset()
		case tokArrayEnd:
			inArray = false
			strs = append(strs, array.String())
		case tokNumber:
			v, _ := strconv.ParseFloat(tok, 64)
			if inArray {
				if v < kerningSpace {
					array.WriteByte(' ')
				}
				continue
			}
			nums = append(nums, v)
		case tokOperator:
			switch tok {
			case "Tj", "TJ":
				out.WriteString(strings.Join(strs, ""))
			case "'", `"`:
				newline()
				out.WriteString(strings.Join(strs, ""))
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if len(nums) >= 2 && nums[1] != 0 {
					newline()
				} else if len(nums) >= 1 && nums[0] > 0 {
					out.WriteByte(' ')
				}
			case "Tm":
				newline()
			case "ID":
				s.skipInlineImage()
			}
			reset()
		}
	}

	lines := strings.Split(out.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokArrayStart
	tokArrayEnd
	tokOther
)

type streamScanner struct {
	data []byte
	pos  int
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *streamScanner) next() (string, tokenKind) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isPDFSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			return s.literal(), tokString
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return "<<", tokOther
			}
			return s.hex(), tokString
		case c == '>':
			s.pos++
			return ">", tokOther
		case c == '[':
			s.pos++
			return "[", tokArrayStart
		case c == ']':
			s.pos++
			return "]", tokArrayEnd
		case c == '/':
			s.pos++
			return "/" + s.regular(), tokOther
		case c == '{' || c == '}' || c == ')':
			s.pos++
		default:
			tok := s.regular()
			if tok == "" {
				s.pos++
				continue
			}
			if _, err := strconv.ParseFloat(tok, 64); err == nil {
				return tok, tokNumber
			}
			return tok, tokOperator
		}
	}
	return "", tokEOF
}

func (s *streamScanner) regular() string {
	start := s.pos
	for s.pos < len(s.data) && !isPDFSpace(s.data[s.pos]) && !isPDFDelimiter(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

// literal 读取 (...) 字符串，处理嵌套括号与转义
func (s *streamScanner) literal() string {
	s.pos++
	var buf []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return latin1(buf)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; k++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return latin1(buf)
			}
			buf = append(buf, c)
		default:
			buf = append(buf, c)
		}
	}
	return latin1(buf)
}

// hex 读取 <...> 十六进制字符串
func (s *streamScanner) hex() string {
	s.pos++
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		if c := s.data[s.pos]; !isPDFSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	buf := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		buf = append(buf, byte(v))
	}
	return latin1(buf)
}

// skipInlineImage 跳过 ID ... EI 之间的二进制数据
func (s *streamScanner) skipInlineImage() {
	for s.pos+2 < len(s.data) {
		if isPDFSpace(s.data[s.pos]) && s.data[s.pos+1] == 'E' && s.data[s.pos+2] == 'I' &&
			(s.pos+3 == len(s.data) || isPDFSpace(s.data[s.pos+3])) {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
