package document

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// 空白包括不换行空格等Unicode分隔符
	whitespaceRe     = regexp.MustCompile(`[\s\p{Z}]+`)
	paragraphBreakRe = regexp.MustCompile(`\n[\s\p{Z}]*\n+`)
	sentenceEndRe    = regexp.MustCompile(`[.!?][\s\p{Z}]+`)
)

// runeLen 按字符（而非字节）计算长度
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncateRunes 截断到最多n个字符
func truncateRunes(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// NormalizeWhitespace 将连续空白压缩为单个空格并去除首尾空白
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// splitParagraphs 按空行切分段落，保留长度大于minLen的段落
func splitParagraphs(text string, minLen int) []string {
	parts := paragraphBreakRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if runeLen(p) > minLen {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences 在句末标点后的空白处切分句子，标点保留在句子末尾
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		// loc[0]是标点位置，标点为单字节
		if s := strings.TrimSpace(text[last : loc[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// packSentences 贪心地把连续句子装入不超过maxLen的块
// 当前块不足minLen时继续累积，不足minLen的尾块被丢弃
// 没有句子边界时直接截断到maxLen
func packSentences(text string, minLen, maxLen int) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		if t := strings.TrimSpace(text); t != "" {
			return []string{truncateRunes(t, maxLen)}
		}
		return nil
	}

	chunks, tail := packWindow(sentences, minLen, maxLen)
	if tail != "" && runeLen(tail) >= minLen {
		chunks = append(chunks, tail)
	}
	if len(chunks) == 0 {
		return []string{truncateRunes(strings.TrimSpace(text), maxLen)}
	}
	return wrapAll(chunks, maxLen)
}

// splitOversized 拆分超长的记录、列表项或段落，不丢弃任何内容
// 有句子边界时按句子窗口装箱，短尾块并入前一块；否则按单词折行
func splitOversized(text string, minLen, maxLen int) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return wrapWords(NormalizeWhitespace(text), maxLen)
	}

	chunks, tail := packWindow(sentences, minLen, maxLen)
	if tail != "" {
		n := len(chunks)
		if n > 0 && runeLen(tail) < minLen && runeLen(chunks[n-1])+1+runeLen(tail) <= maxLen {
			chunks[n-1] += " " + tail
		} else {
			chunks = append(chunks, tail)
		}
	}
	return wrapAll(chunks, maxLen)
}

// packWindow 句子窗口装箱，返回已完成的块和最后未刷出的部分
func packWindow(sentences []string, minLen, maxLen int) ([]string, string) {
	var (
		chunks  []string
		current string
	)
	for _, s := range sentences {
		switch {
		case current == "":
			current = s
		case runeLen(current)+runeLen(s)+1 <= maxLen:
			current = current + " " + s
		case runeLen(current) >= minLen:
			chunks = append(chunks, current)
			current = s
		default:
			current = current + " " + s
		}
	}
	return chunks, current
}

func wrapAll(chunks []string, maxLen int) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, wrapWords(c, maxLen)...)
	}
	return out
}

// wrapWords 将超过maxLen的文本在单词边界处拆开
func wrapWords(text string, maxLen int) []string {
	if runeLen(text) <= maxLen {
		return []string{text}
	}

	var (
		out     []string
		current strings.Builder
	)
	for _, word := range strings.Fields(text) {
		for runeLen(word) > maxLen {
			if current.Len() > 0 {
				out = append(out, current.String())
				current.Reset()
			}
			out = append(out, truncateRunes(word, maxLen))
			word = string([]rune(word)[maxLen:])
		}
		if current.Len() > 0 && runeLen(current.String())+1+runeLen(word) > maxLen {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
