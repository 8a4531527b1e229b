package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chat-insight/internal/config"
	"chat-insight/internal/logger"
	"chat-insight/internal/model"
)

// Extractor 外部抽取服务：prompt 进、文本出。AIService 实现它，测试给假实现。
type Extractor interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// ExtractEngine 把一天的消息按固定行数开窗、逐窗调外部模型、再把各窗的
// 局部结果折叠成一份完整结果。单个窗口坏掉只降级，不会拖垮整个文件。
type ExtractEngine struct {
	llm        Extractor
	windowSize int
	workers    int
	callDelay  time.Duration
}

func NewExtractEngine(llm Extractor, cfg config.PipelineConfig) *ExtractEngine {
	e := &ExtractEngine{
		llm:        llm,
		windowSize: cfg.WindowSize,
		workers:    cfg.Workers,
		callDelay:  time.Duration(cfg.CallDelayMS) * time.Millisecond,
	}
	if e.windowSize <= 0 {
		e.windowSize = 500
	}
	if e.workers <= 0 {
		e.workers = 1
	}
	return e
}

const extractSystemPrompt = `你是社群运营分析助手。从群聊记录里提取结构化数据。
只输出一个 JSON 对象，不要任何解释文字。字段：
productLine(string), period(string), groupNumber(int), date(string),
messageCount(int), questionCount(int), avgResponseTime(number,分钟),
resolutionRate(number,0-100), goodNewsCount(int),
starStudents([{name,reason}]), kocs([{name,contribution}]),
goodNews([{author,content}]), questions([{question,asker,answerer,answer,resolved}]),
actionItems([string]), fullText(string,一句话日报摘要)。
喜报指出单/成交/变现等成果播报；KOC 指主动分享教程、复盘、干货的同学。`

// ExtractDay 跑完一天的所有窗口并合并。汇合是 join 屏障：所有窗口完成后才折叠。
func (e *ExtractEngine) ExtractDay(ctx context.Context, info model.GroupInfo, lines []string) model.ExtractionResult {
	windows := splitWindows(lines, e.windowSize)
	parts := make([]model.ExtractionResult, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for idx, win := range windows {
		idx, win := idx, win
		g.Go(func() error {
			parts[idx] = e.extractWindow(gctx, info, idx, win)
			if e.callDelay > 0 {
				time.Sleep(e.callDelay)
			}
			return nil
		})
	}
	g.Wait()

	merged := MergeResults(parts)
	fillMissingAnswerers(&merged)
	return merged
}

// extractWindow 单窗口：调用失败重试一次；解析失败返回空结果，绝不向上抛。
func (e *ExtractEngine) extractWindow(ctx context.Context, info model.GroupInfo, idx int, lines []string) model.ExtractionResult {
	user := fmt.Sprintf("群：%s（产品线 %s / %s期 / %d群），日期：%s，第 %d 段记录：\n%s",
		info.Canonical, info.ProductLine, info.Period, info.GroupNumber, info.DateStr, idx+1,
		strings.Join(lines, "\n"))

	raw, err := e.llm.Chat(ctx, extractSystemPrompt, user)
	if err != nil {
		logger.Warn("extract: llm call failed, retrying once", "group", info.Canonical, "date", info.DateStr, "window", idx, "err", err)
		raw, err = e.llm.Chat(ctx, extractSystemPrompt, user)
	}
	if err != nil {
		logger.Error("extract: window degraded to empty result", "group", info.Canonical, "date", info.DateStr, "window", idx, "err", err)
		return model.ExtractionResult{}
	}

	res, perr := ParseExtraction(raw)
	if perr != nil {
		logger.Warn("extract: unparsable window response", "group", info.Canonical, "date", info.DateStr, "window", idx, "err", perr)
		return model.ExtractionResult{}
	}
	return res
}

func splitWindows(lines []string, size int) [][]string {
	if len(lines) == 0 {
		return nil
	}
	var out [][]string
	for i := 0; i < len(lines); i += size {
		end := i + size
		if end > len(lines) {
			end = len(lines)
		}
		out = append(out, lines[i:end])
	}
	return out
}

var (
	fencedJSONRe    = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ParseExtraction 依次尝试：围栏代码块 → 裸 JSON → 去尾逗号修复。
func ParseExtraction(raw string) (model.ExtractionResult, error) {
	candidate := strings.TrimSpace(raw)
	if m := fencedJSONRe.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if i := strings.Index(candidate, "{"); i >= 0 {
		if j := strings.LastIndex(candidate, "}"); j > i {
			candidate = candidate[i : j+1]
		}
	}

	var res model.ExtractionResult
	if err := json.Unmarshal([]byte(candidate), &res); err == nil {
		return res, nil
	}

	repaired := trailingCommaRe.ReplaceAllString(candidate, "$1")
	if err := json.Unmarshal([]byte(repaired), &res); err != nil {
		return model.ExtractionResult{}, fmt.Errorf("parse extraction: %w (raw: %.200s)", err, raw)
	}
	return res, nil
}

// MergeResults 跨窗口折叠：标量取首个非空，计数求和，率值只对报了值的窗口取均值，
// 列表拼接，摘要用分隔符连接。计数和列表上这个折叠满足结合律。
func MergeResults(parts []model.ExtractionResult) model.ExtractionResult {
	var out model.ExtractionResult
	var rateSum, rateCnt float64
	var respSum, respCnt float64
	var summaries []string

	for _, p := range parts {
		if out.ProductLine == "" {
			out.ProductLine = p.ProductLine
		}
		if out.Period == "" {
			out.Period = p.Period
		}
		if out.GroupNumber == 0 {
			out.GroupNumber = p.GroupNumber
		}
		if out.Date == "" {
			out.Date = p.Date
		}
		out.MessageCount += p.MessageCount
		out.QuestionCount += p.QuestionCount
		out.GoodNewsCount += p.GoodNewsCount
		if p.ResolutionRate != nil {
			rateSum += *p.ResolutionRate
			rateCnt++
		}
		if p.AvgResponseTime != nil {
			respSum += *p.AvgResponseTime
			respCnt++
		}
		out.StarStudents = append(out.StarStudents, p.StarStudents...)
		out.Kocs = append(out.Kocs, p.Kocs...)
		out.GoodNews = append(out.GoodNews, p.GoodNews...)
		out.Questions = append(out.Questions, p.Questions...)
		out.ActionItems = append(out.ActionItems, p.ActionItems...)
		if s := strings.TrimSpace(p.FullText); s != "" {
			summaries = append(summaries, s)
		}
	}

	if rateCnt > 0 {
		v := rateSum / rateCnt
		out.ResolutionRate = &v
	}
	if respCnt > 0 {
		v := respSum / respCnt
		out.AvgResponseTime = &v
	}
	out.FullText = strings.Join(summaries, " / ")
	return out
}

const unknownResponder = "未知回复者"

// fillMissingAnswerers 已解决但没署名回复人的问题，用回复文本首个词兜底，
// 再兜不住就落到“未知回复者”，保证下游归因逻辑拿到的永远不是空值。
func fillMissingAnswerers(res *model.ExtractionResult) {
	for i := range res.Questions {
		q := &res.Questions[i]
		if !q.Resolved || strings.TrimSpace(q.Answerer) != "" {
			continue
		}
		if tok := firstToken(q.Answer); tok != "" {
			q.Answerer = tok
		} else {
			q.Answerer = unknownResponder
		}
	}
}

func firstToken(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "@"))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '，' || r == ',' || r == '：' || r == ':'
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
