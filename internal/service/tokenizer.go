package service

import (
	"regexp"
	"strings"

	"chat-insight/internal/model"
)

var (
	headerTimeRe   = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})`)
	authorDateRe   = regexp.MustCompile(`\s*(\d{4}-)?\d{1,2}-\d{1,2}\s*$`)
	decorSuffixRes = []string{"|", "｜"}
)

// TokenizeMessages 把一天的原文切成有序消息。
// 含 HH:MM:SS 的行是消息头，时间戳之前的部分（去掉装饰后缀和日期）是昵称；
// 之后的非头部行并入当前消息正文。首个头部之前的内容丢弃。
func TokenizeMessages(dayText string) []model.ParsedMessage {
	var msgs []model.ParsedMessage
	var cur *model.ParsedMessage
	var body []string

	flush := func() {
		if cur != nil {
			cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
			msgs = append(msgs, *cur)
		}
		body = nil
	}

	for _, line := range strings.Split(dayText, "\n") {
		loc := headerTimeRe.FindStringIndex(line)
		if loc == nil {
			if cur != nil {
				body = append(body, line)
			}
			continue
		}
		flush()
		cur = &model.ParsedMessage{
			Author:    cleanAuthor(line[:loc[0]]),
			TimeOfDay: normalizeClock(line[loc[0]:loc[1]]),
		}
		if rest := strings.TrimSpace(line[loc[1]:]); rest != "" {
			body = append(body, rest)
		}
	}
	flush()
	return msgs
}

// cleanAuthor 去掉“| 24小时内回复”一类装饰后缀和残留的日期片段。
func cleanAuthor(s string) string {
	for _, sep := range decorSuffixRes {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	s = authorDateRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// normalizeClock 补齐到 HH:MM:SS
func normalizeClock(s string) string {
	if len(s) == 7 { // H:MM:SS
		return "0" + s
	}
	return s
}
