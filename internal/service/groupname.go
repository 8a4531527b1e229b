package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"chat-insight/internal/model"
)

// GroupResolver 把导出文件名解析成 (产品线, 期数, 群号, 日期)。
// 注册表是有序的：靠前的条目更具体，第一个全部关键词命中的条目生效。
type GroupResolver struct {
	rules []model.GroupRule
	now   func() time.Time
}

func NewGroupResolver(rules []model.GroupRule) *GroupResolver {
	if len(rules) == 0 {
		rules = DefaultGroupRules()
	}
	return &GroupResolver{rules: rules, now: time.Now}
}

// DefaultGroupRules 内置注册表。顺序有意义：具体的别名必须排在宽泛的前面。
func DefaultGroupRules() []model.GroupRule {
	return []model.GroupRule{
		{Canonical: "AI产品出海2期2群", ProductLine: "AI产品出海", Period: "2", GroupNumber: 2, Keywords: []string{"ai产品出海", "2期", "2群"}},
		{Canonical: "AI产品出海2期1群", ProductLine: "AI产品出海", Period: "2", GroupNumber: 1, Keywords: []string{"ai产品出海", "2期", "1群"}},
		{Canonical: "AI产品出海1期2群", ProductLine: "AI产品出海", Period: "1", GroupNumber: 2, Keywords: []string{"ai产品出海", "1期", "2群"}},
		{Canonical: "AI产品出海1期1群", ProductLine: "AI产品出海", Period: "1", GroupNumber: 1, Keywords: []string{"ai产品出海", "1期", "1群"}},
		{Canonical: "AI编程实战1期1群", ProductLine: "AI编程实战", Period: "1", GroupNumber: 1, Keywords: []string{"ai编程", "1期", "1群"}},
		{Canonical: "AI编程实战1期2群", ProductLine: "AI编程实战", Period: "1", GroupNumber: 2, Keywords: []string{"ai编程", "1期", "2群"}},
		{Canonical: "出海陪跑营1期1群", ProductLine: "出海陪跑营", Period: "1", GroupNumber: 1, Keywords: []string{"陪跑", "1期", "1群"}},
		// 宽泛兜底：只认产品线，期/群留给正则提取
		{Canonical: "AI产品出海", ProductLine: "AI产品出海", Keywords: []string{"ai产品出海"}},
		{Canonical: "AI编程实战", ProductLine: "AI编程实战", Keywords: []string{"ai编程"}},
	}
}

var (
	fullDateRe   = regexp.MustCompile(`(\d{4})[-/年.](\d{1,2})[-/月.](\d{1,2})`)
	shortDateRe  = regexp.MustCompile(`(\d{1,2})[-/](\d{1,2})`)
	periodGrpRe  = regexp.MustCompile(`(\d{1,2})期(\d{1,2})群`)
	bracketRe    = regexp.MustCompile(`【[^】]*】|\[[^\]]*\]|（[^）]*）|\([^)]*\)`)
)

const UnknownProductLine = "Unknown"

// Resolve 永不失败：认不出的文件名降级为 Unknown 产品线，留给人工处理。
func (r *GroupResolver) Resolve(filename string) model.GroupInfo {
	info := model.GroupInfo{DateStr: r.extractDate(filename)}

	norm := normalizeGroupKey(filename)
	for _, rule := range r.rules {
		if matchAllKeywords(norm, rule.Keywords) {
			info.ProductLine = rule.ProductLine
			info.Period = rule.Period
			info.GroupNumber = rule.GroupNumber
			// 宽泛条目没有期/群，标准名等补齐后再拼
			if rule.Period != "" {
				info.Canonical = rule.Canonical
			}
			break
		}
	}

	// 期/群缺失时从文件名正则补齐
	if m := periodGrpRe.FindStringSubmatch(filename); m != nil {
		if info.Period == "" {
			info.Period = m[1]
		}
		if info.GroupNumber == 0 {
			info.GroupNumber, _ = strconv.Atoi(m[2])
		}
	}

	if info.ProductLine == "" {
		r.guessFromTokens(filename, &info)
	}
	if info.ProductLine == "" {
		info.ProductLine = UnknownProductLine
	}
	if info.Canonical == "" {
		info.Canonical = canonicalName(info)
	}
	return info
}

// guessFromTokens 注册表没命中时的兜底：按 丨 / _ 切出主体段再找 期/群。
func (r *GroupResolver) guessFromTokens(filename string, info *model.GroupInfo) {
	body := filename
	if i := strings.LastIndex(body, "丨"); i >= 0 {
		body = body[i+len("丨"):]
	}
	if i := strings.Index(body, "_"); i >= 0 {
		body = body[:i]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), ".txt")
	if m := periodGrpRe.FindStringSubmatchIndex(body); m != nil {
		line := strings.TrimSpace(body[:m[2]])
		if line != "" {
			info.ProductLine = line
		}
	}
}

func (r *GroupResolver) extractDate(filename string) string {
	if m := fullDateRe.FindStringSubmatch(filename); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return fmt.Sprintf("%04d-%02d-%02d", y, mo, d)
	}
	// 短格式只认 月-日，年份按当前年补
	if m := shortDateRe.FindStringSubmatch(filename); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			return fmt.Sprintf("%04d-%02d-%02d", r.now().Year(), mo, d)
		}
	}
	return ""
}

func canonicalName(info model.GroupInfo) string {
	name := info.ProductLine
	if info.Period != "" {
		name += info.Period + "期"
	}
	if info.GroupNumber > 0 {
		name += strconv.Itoa(info.GroupNumber) + "群"
	}
	return name
}

// normalizeGroupKey 去括注、去分隔符和标点、转小写，只留字母数字和汉字。
func normalizeGroupKey(s string) string {
	s = bracketRe.ReplaceAllString(s, "")
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func matchAllKeywords(norm string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	for _, kw := range keywords {
		if !strings.Contains(norm, normalizeGroupKey(kw)) {
			return false
		}
	}
	return true
}
