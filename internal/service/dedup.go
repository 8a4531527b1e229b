package service

import (
	"strings"
	"unicode"

	"chat-insight/internal/model"
)

// 同一事件在不同群各播一遍时用词常有出入，先折叠同义词再比对
var highlightSynonyms = [][2]string{
	{"喜讯", "喜报"},
	{"捷报", "喜报"},
	{"开单", "出单"},
	{"成交", "出单"},
}

const defaultDedupThreshold = 0.8

// DedupHighlights 折叠描述同一真实事件的喜报/KOC 条目。
// 判同：日期相同，且作者归一键相同或内容字符重合率达到阈值。
// 合并：保留更长的原文（默认信息更全），群标签去重后用 / 连接。
// 对累计簇做一趟线性扫描，O(n²) 只作用在单个聚合窗口的有限条目上。
func DedupHighlights(items []model.Highlight, threshold float64) []model.Highlight {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultDedupThreshold
	}

	var clusters []model.Highlight
	for _, item := range items {
		merged := false
		for i := range clusters {
			if !sameEvent(clusters[i], item, threshold) {
				continue
			}
			clusters[i] = mergeHighlight(clusters[i], item)
			merged = true
			break
		}
		if !merged {
			clusters = append(clusters, item)
		}
	}
	return clusters
}

func sameEvent(a, b model.Highlight, threshold float64) bool {
	if a.Date != b.Date {
		return false
	}
	ak, bk := NormalizeAuthorKey(a.Author), NormalizeAuthorKey(b.Author)
	if ak != "" && ak == bk {
		return true
	}
	return charOverlapRatio(normalizeHighlightKey(a.Content), normalizeHighlightKey(b.Content)) >= threshold
}

func mergeHighlight(dst, src model.Highlight) model.Highlight {
	if len([]rune(src.Content)) > len([]rune(dst.Content)) {
		dst.Content = src.Content
		dst.Author = src.Author
	}
	dst.Group = unionGroups(dst.Group, src.Group)
	return dst
}

func unionGroups(a, b string) string {
	seen := map[string]bool{}
	var out []string
	for _, g := range append(strings.Split(a, "/"), strings.Split(b, "/")...) {
		g = strings.TrimSpace(g)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return strings.Join(out, "/")
}

// normalizeHighlightKey 同义词折叠 + 去空白和标点 + 转小写
func normalizeHighlightKey(s string) string {
	for _, pair := range highlightSynonyms {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeAuthorKey 昵称归一：截掉“-广州”一类地区/装饰后缀，再走同一套清洗。
// 摄入、去重和身份归并都用这一个键，保证口径一致。
func NormalizeAuthorKey(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"-", "－", "—", "|", "｜", "(", "（", "·"} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return normalizeHighlightKey(s)
}

// charOverlapRatio |字符集交| / min(|A|,|B|)
func charOverlapRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	setA := map[rune]bool{}
	for _, r := range a {
		setA[r] = true
	}
	setB := map[rune]bool{}
	for _, r := range b {
		setB[r] = true
	}
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	minLen := len(setA)
	if len(setB) < minLen {
		minLen = len(setB)
	}
	if minLen == 0 {
		return 0
	}
	return float64(inter) / float64(minLen)
}
