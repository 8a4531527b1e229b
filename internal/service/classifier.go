package service

import (
	"math"
	"strconv"
	"strings"

	"chat-insight/internal/model"
)

// 规则分类的关键词表。命中即候选，语义判断交给抽取引擎复核。
var (
	questionKeywords = []string{
		"请问", "怎么", "如何", "为什么", "为啥", "有没有", "能不能",
		"可以吗", "求助", "请教", "咨询", "哪位", "什么原因", "报错",
	}
	resolutionKeywords = []string{
		"解决", "搞定", "可以了", "好了", "试一下", "试试", "这样改",
		"参考", "方法是", "设置一下", "你可以", "应该是", "看下这个",
	}
	thanksKeywords = []string{
		"谢谢", "感谢", "多谢", "thx", "thanks", "3q", "辛苦了",
		"明白了", "懂了", "原来如此", "学到了", "搞定了", "解决了",
	}
	goodNewsKeywords = []string{
		"喜报", "喜讯", "捷报", "出单", "首单", "开单", "成交", "变现",
		"收入", "破万", "付费", "订阅", "转化", "过审", "上线了", "盈利",
	}
	shareKeywords = []string{
		"分享", "教程", "复盘", "攻略", "经验", "整理了", "总结了",
		"心得", "干货", "文档", "笔记",
	}
)

const defaultResolutionWindow = 10

// Classifier 纯规则分类器：不碰外部服务，产出完全由消息序列决定。
type Classifier struct {
	// ResolutionWindow 判定“已解决”时向后扫描的消息条数
	ResolutionWindow int
}

func NewClassifier(window int) *Classifier {
	if window <= 0 {
		window = defaultResolutionWindow
	}
	return &Classifier{ResolutionWindow: window}
}

func (c *Classifier) Classify(msgs []model.ParsedMessage) model.ClassifyResult {
	res := model.ClassifyResult{}
	resolved := 0
	var respSum, respCnt int

	for i, m := range msgs {
		if IsGoodNews(m.Body) {
			res.GoodNewsIdx = append(res.GoodNewsIdx, i)
		}
		if IsShare(m.Body) {
			res.ShareIdx = append(res.ShareIdx, i)
		}
		if !IsQuestion(m.Body) {
			continue
		}

		q := model.QuestionCandidate{Index: i, AskerName: m.Author, Content: m.Body}
		c.fillResponse(msgs, i, &q)
		c.fillResolution(msgs, i, &q)
		if q.IsResolved {
			resolved++
		}
		if q.ResponseMinutes != nil {
			respSum += *q.ResponseMinutes
			respCnt++
		}
		res.Questions = append(res.Questions, q)
	}

	// 无提问时解决率按 0 计，这是约定不是漏判
	if n := len(res.Questions); n > 0 {
		res.ResolutionRate = int(math.Round(float64(resolved) / float64(n) * 100))
	}
	if respCnt > 0 {
		res.AvgResponseMins = float64(respSum) / float64(respCnt)
	}
	return res
}

// fillResponse 响应时长 = 到第一条他人消息的分钟差；没有他人回复则留空，不是 0。
func (c *Classifier) fillResponse(msgs []model.ParsedMessage, i int, q *model.QuestionCandidate) {
	for j := i + 1; j < len(msgs); j++ {
		if msgs[j].Author == msgs[i].Author {
			continue
		}
		mins := minutesBetween(msgs[i].TimeOfDay, msgs[j].TimeOfDay)
		q.ResponseMinutes = &mins
		q.AnswererName = msgs[j].Author
		q.AnswerContent = msgs[j].Body
		return
	}
}

// fillResolution 向后扫 N 条：他人消息命中解决词，或提问者自己命中致谢词，先到先得。
func (c *Classifier) fillResolution(msgs []model.ParsedMessage, i int, q *model.QuestionCandidate) {
	end := i + c.ResolutionWindow
	if end > len(msgs)-1 {
		end = len(msgs) - 1
	}
	for j := i + 1; j <= end; j++ {
		if msgs[j].Author != msgs[i].Author && hasAny(msgs[j].Body, resolutionKeywords) {
			q.IsResolved = true
			q.AnswererName = msgs[j].Author
			q.AnswerContent = msgs[j].Body
			return
		}
		if msgs[j].Author == msgs[i].Author && hasAny(msgs[j].Body, thanksKeywords) {
			q.IsResolved = true
			return
		}
	}
}

func IsQuestion(body string) bool {
	if strings.Contains(body, "？") || strings.Contains(body, "?") {
		return true
	}
	return hasAny(body, questionKeywords)
}

func IsGoodNews(body string) bool { return hasAny(body, goodNewsKeywords) }
func IsShare(body string) bool    { return hasAny(body, shareKeywords) }

func hasAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// minutesBetween 同一天内 HH:MM:SS 的分钟差，跨零点回绕按 +24h 处理。
func minutesBetween(a, b string) int {
	delta := clockMinutes(b) - clockMinutes(a)
	if delta < 0 {
		delta += 24 * 60
	}
	return delta
}

func clockMinutes(s string) int {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}
