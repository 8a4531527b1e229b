package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-insight/internal/config"
	"chat-insight/internal/model"
)

type fakeExtractor struct {
	calls   atomic.Int32
	respond func(call int32, user string) (string, error)
}

func (f *fakeExtractor) Chat(ctx context.Context, system, user string) (string, error) {
	return f.respond(f.calls.Add(1), user)
}

func fptr(v float64) *float64 { return &v }

func TestParseExtractionFencedJSON(t *testing.T) {
	raw := "分析结果如下：\n```json\n{\"messageCount\": 12, \"questionCount\": 3}\n```"
	res, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Equal(t, 12, res.MessageCount)
	require.Equal(t, 3, res.QuestionCount)
}

func TestParseExtractionBareJSON(t *testing.T) {
	raw := `前面有废话 {"goodNewsCount": 2, "fullText": "今日小结"} 后面也有`
	res, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Equal(t, 2, res.GoodNewsCount)
	require.Equal(t, "今日小结", res.FullText)
}

func TestParseExtractionTrailingCommaRepair(t *testing.T) {
	raw := `{"messageCount": 5, "actionItems": ["跟进A", "跟进B",],}`
	res, err := ParseExtraction(raw)
	require.NoError(t, err)
	require.Equal(t, 5, res.MessageCount)
	require.Equal(t, []string{"跟进A", "跟进B"}, res.ActionItems)
}

func TestParseExtractionGarbageFails(t *testing.T) {
	_, err := ParseExtraction("完全不是 JSON 的回复")
	require.Error(t, err)
}

func TestMergeResultsFold(t *testing.T) {
	parts := []model.ExtractionResult{
		{ProductLine: "AI产品出海", MessageCount: 100, QuestionCount: 4, ResolutionRate: fptr(50), GoodNews: []model.GoodNewsEntry{{Author: "小明", Content: "出单了"}}},
		{MessageCount: 80, QuestionCount: 2, ResolutionRate: fptr(100), AvgResponseTime: fptr(12)},
		{ProductLine: "不会覆盖", MessageCount: 20},
	}

	m := MergeResults(parts)
	require.Equal(t, "AI产品出海", m.ProductLine) // 标量取首个非空
	require.Equal(t, 200, m.MessageCount)
	require.Equal(t, 6, m.QuestionCount)
	require.Len(t, m.GoodNews, 1)
	// 率值只对报了值的窗口取均值：第三个窗口没报，不当 0 算
	require.NotNil(t, m.ResolutionRate)
	require.InDelta(t, 75.0, *m.ResolutionRate, 0.001)
	require.NotNil(t, m.AvgResponseTime)
	require.InDelta(t, 12.0, *m.AvgResponseTime, 0.001)
}

func TestMergeResultsAssociativeOnCounts(t *testing.T) {
	a := model.ExtractionResult{MessageCount: 10, QuestionCount: 1, ActionItems: []string{"a"}}
	b := model.ExtractionResult{MessageCount: 20, QuestionCount: 2, ActionItems: []string{"b"}}
	c := model.ExtractionResult{MessageCount: 30, QuestionCount: 3, ActionItems: []string{"c"}}

	all := MergeResults([]model.ExtractionResult{a, b, c})
	staged := MergeResults([]model.ExtractionResult{MergeResults([]model.ExtractionResult{a, b}), c})

	require.Equal(t, all.MessageCount, staged.MessageCount)
	require.Equal(t, all.QuestionCount, staged.QuestionCount)
	require.Equal(t, all.ActionItems, staged.ActionItems)
}

func TestExtractDayRetriesOnceThenDegrades(t *testing.T) {
	fake := &fakeExtractor{respond: func(call int32, user string) (string, error) {
		return "", fmt.Errorf("connection reset")
	}}
	e := NewExtractEngine(fake, config.PipelineConfig{WindowSize: 100, Workers: 1})

	res := e.ExtractDay(context.Background(), model.GroupInfo{Canonical: "测试群"}, []string{"一行"})
	// 调一次 + 重试一次，然后降级成空结果，不向上抛
	require.Equal(t, int32(2), fake.calls.Load())
	require.Zero(t, res.MessageCount)
}

func TestExtractDayOneBadWindowDegradesNotAborts(t *testing.T) {
	fake := &fakeExtractor{respond: func(call int32, user string) (string, error) {
		if call == 1 {
			return "不是 JSON", nil
		}
		return `{"messageCount": 7, "questionCount": 1}`, nil
	}}
	e := NewExtractEngine(fake, config.PipelineConfig{WindowSize: 2, Workers: 1})

	lines := []string{"l1", "l2", "l3", "l4"}
	res := e.ExtractDay(context.Background(), model.GroupInfo{}, lines)
	require.Equal(t, 7, res.MessageCount)
	require.Equal(t, 1, res.QuestionCount)
}

func TestExtractDayFillsMissingAnswerer(t *testing.T) {
	fake := &fakeExtractor{respond: func(call int32, user string) (string, error) {
		return `{"questions": [
			{"question": "怎么配置？", "asker": "甲", "resolved": true, "answer": "乙老师 说改环境变量"},
			{"question": "为什么失败？", "asker": "丙", "resolved": true, "answer": ""},
			{"question": "还没人回", "asker": "丁", "resolved": false}
		]}`, nil
	}}
	e := NewExtractEngine(fake, config.PipelineConfig{WindowSize: 100, Workers: 1})

	res := e.ExtractDay(context.Background(), model.GroupInfo{}, []string{"一行"})
	require.Len(t, res.Questions, 3)
	require.Equal(t, "乙老师", res.Questions[0].Answerer)
	require.Equal(t, "未知回复者", res.Questions[1].Answerer)
	require.Empty(t, res.Questions[2].Answerer) // 没解决的不用兜底
}

func TestSplitWindows(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	wins := splitWindows(lines, 2)
	require.Len(t, wins, 3)
	require.Equal(t, []string{"e"}, wins[2])
	require.Empty(t, splitWindows(nil, 2))
}
