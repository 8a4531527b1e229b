package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"chat-insight/internal/model"
)

var (
	// 显式日期横幅：————— 2025-12-10 —————
	bannerDateRe = regexp.MustCompile(`^[—\-=～\s]*(\d{4})-(\d{1,2})-(\d{1,2})[—\-=～\s]*$`)
	// 行内时间戳：12-10 09:23:45（可选带年份）
	inlineFullRe  = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})\s+\d{1,2}:\d{2}:\d{2}`)
	inlineShortRe = regexp.MustCompile(`(\d{1,2})-(\d{1,2})\s+\d{1,2}:\d{2}:\d{2}`)
)

// SplitDays 把多天的导出文本按天切块。
// 横幅日期无条件开新块；行内时间戳只在日期严格大于当前块日期时开新块，
// 这样引用/转发里的旧日期不会把当前块切碎。首个日期之前的行丢弃。
// 前提是导出大体按时间顺序；乱序的导出会欠切而不是过切。
func SplitDays(raw string, defaultYear int) []model.DayChunk {
	var chunks []model.DayChunk
	var cur *model.DayChunk
	var buf []string

	flush := func() {
		if cur != nil {
			cur.Content = strings.Join(buf, "\n")
			chunks = append(chunks, *cur)
		}
		buf = nil
	}
	open := func(date string) {
		flush()
		cur = &model.DayChunk{Date: date}
	}

	for _, line := range strings.Split(raw, "\n") {
		if m := bannerDateRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			open(fmtDate(m[1], m[2], m[3]))
			continue
		}
		if d := inlineDate(line, defaultYear); d != "" {
			if cur == nil {
				open(d)
			} else if d > cur.Date {
				open(d)
			}
		}
		if cur != nil {
			buf = append(buf, line)
		}
	}
	flush()
	return chunks
}

func inlineDate(line string, defaultYear int) string {
	if m := inlineFullRe.FindStringSubmatch(line); m != nil {
		return fmtDate(m[1], m[2], m[3])
	}
	if m := inlineShortRe.FindStringSubmatch(line); m != nil {
		return fmtDate(strconv.Itoa(defaultYear), m[1], m[2])
	}
	return ""
}

func fmtDate(y, m, d string) string {
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	return fmt.Sprintf("%04d-%02d-%02d", yi, mi, di)
}
