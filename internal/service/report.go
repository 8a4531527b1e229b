package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
)

// ReportService 维护 群/天 汇总投影和学员统计。
// 两者都是从源记录整体重算出来的，不做增量修补。
type ReportService struct {
	db             *gorm.DB
	dedupThreshold float64
	batchSize      int
}

func NewReportService(db *gorm.DB, dedupThreshold float64, batchSize int) *ReportService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ReportService{db: db, dedupThreshold: dedupThreshold, batchSize: batchSize}
}

// Rebuild 从一份转录的落库记录确定性重建它的日报行。
func (s *ReportService) Rebuild(ctx context.Context, t model.RawTranscript, summary string) error {
	db := s.db.WithContext(ctx)

	var msgCnt int64
	if err := db.Model(&model.Message{}).Where("transcript_id = ?", t.ID).Count(&msgCnt).Error; err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	var questions []model.QuestionRecord
	if err := db.Where("transcript_id = ?", t.ID).Find(&questions).Error; err != nil {
		return fmt.Errorf("load questions: %w", err)
	}
	resolved := 0
	var respSum, respCnt int
	for _, q := range questions {
		if q.IsResolved {
			resolved++
		}
		if q.ResponseMinutes != nil {
			respSum += *q.ResponseMinutes
			respCnt++
		}
	}
	rate := 0
	if len(questions) > 0 {
		rate = int(float64(resolved)/float64(len(questions))*100 + 0.5)
	}
	avgResp := 0.0
	if respCnt > 0 {
		avgResp = float64(respSum) / float64(respCnt)
	}

	goodNewsJSON, goodNewsCnt, err := s.highlightJSON(ctx, t, "good_news")
	if err != nil {
		return err
	}
	kocsJSON, _, err := s.highlightJSON(ctx, t, "koc")
	if err != nil {
		return err
	}

	var stars []model.StarStudent
	if err := db.Where("transcript_id = ?", t.ID).Find(&stars).Error; err != nil {
		return fmt.Errorf("load stars: %w", err)
	}
	starsRaw, _ := json.Marshal(stars)

	report := model.Report{
		ProductLine:     t.ProductLine,
		Period:          t.Period,
		GroupNumber:     t.GroupNumber,
		ChatDate:        t.ChatDate,
		MessageCount:    int(msgCnt),
		QuestionCount:   len(questions),
		ResolvedCount:   resolved,
		ResolutionRate:  rate,
		AvgResponseMins: avgResp,
		GoodNewsCount:   goodNewsCnt,
		Summary:         summary,
		GoodNewsJSON:    goodNewsJSON,
		KocsJSON:        kocsJSON,
		StarsJSON:       string(starsRaw),
		UpdatedAt:       time.Now(),
	}

	var existing model.Report
	ferr := db.Where("product_line = ? AND period = ? AND group_number = ? AND chat_date = ?",
		t.ProductLine, t.Period, t.GroupNumber, t.ChatDate).First(&existing).Error
	if ferr == gorm.ErrRecordNotFound {
		return db.Create(&report).Error
	}
	if ferr != nil {
		return fmt.Errorf("query report: %w", ferr)
	}
	report.ID = existing.ID
	return db.Save(&report).Error
}

// highlightJSON 取亮点、过去重、序列化。喜报和 KOC 走同一条路。
func (s *ReportService) highlightJSON(ctx context.Context, t model.RawTranscript, kind string) (string, int, error) {
	db := s.db.WithContext(ctx)
	var items []model.Highlight

	switch kind {
	case "good_news":
		var rows []model.GoodNewsItem
		if err := db.Where("transcript_id = ?", t.ID).Find(&rows).Error; err != nil {
			return "", 0, fmt.Errorf("load good news: %w", err)
		}
		for _, r := range rows {
			items = append(items, model.Highlight{Content: r.Content, Author: r.AuthorName, Date: r.ChatDate, Group: r.GroupName})
		}
	case "koc":
		var rows []model.KocContribution
		if err := db.Where("transcript_id = ?", t.ID).Find(&rows).Error; err != nil {
			return "", 0, fmt.Errorf("load koc: %w", err)
		}
		for _, r := range rows {
			items = append(items, model.Highlight{Content: r.Contribution, Author: r.AuthorName, Date: r.ChatDate, Group: r.GroupName})
		}
	}

	deduped := DedupHighlights(items, s.dedupThreshold)
	raw, _ := json.Marshal(deduped)
	return string(raw), len(deduped), nil
}

// CrossGroupHighlights 跨群聚合视图：一个日期范围内所有群的亮点合并去重。
// 同一件事在多个群各播一遍时，这里收敛成一条、群标签并起来。
func (s *ReportService) CrossGroupHighlights(ctx context.Context, startDate, endDate string) ([]model.Highlight, error) {
	db := s.db.WithContext(ctx)
	var items []model.Highlight

	var news []model.GoodNewsItem
	if err := db.Where("chat_date >= ? AND chat_date <= ?", startDate, endDate).Find(&news).Error; err != nil {
		return nil, fmt.Errorf("load good news: %w", err)
	}
	for _, r := range news {
		items = append(items, model.Highlight{Content: r.Content, Author: r.AuthorName, Date: r.ChatDate, Group: r.GroupName})
	}
	var kocs []model.KocContribution
	if err := db.Where("chat_date >= ? AND chat_date <= ?", startDate, endDate).Find(&kocs).Error; err != nil {
		return nil, fmt.Errorf("load koc: %w", err)
	}
	for _, r := range kocs {
		items = append(items, model.Highlight{Content: r.Contribution, Author: r.AuthorName, Date: r.ChatDate, Group: r.GroupName})
	}
	return DedupHighlights(items, s.dedupThreshold), nil
}

type statsAgg struct {
	MemberID string
	Cnt      int
	MinDate  string
	MaxDate  string
	AvgResp  float64
}

// RecomputeMemberStats 全量重算学员统计：清表重建，不做增量。
func (s *ReportService) RecomputeMemberStats(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	stats := map[string]*model.MemberStats{}
	get := func(id string) *model.MemberStats {
		if st, ok := stats[id]; ok {
			return st
		}
		st := &model.MemberStats{MemberID: id}
		stats[id] = st
		return st
	}

	var msgAgg []statsAgg
	err := db.Table("messages m").
		Select("m.member_id as member_id, count(*) as cnt, min(t.chat_date) as min_date, max(t.chat_date) as max_date").
		Joins("join raw_transcripts t on t.id = m.transcript_id").
		Where("m.member_id <> ''").
		Group("m.member_id").Scan(&msgAgg).Error
	if err != nil {
		return fmt.Errorf("aggregate messages: %w", err)
	}
	for _, a := range msgAgg {
		st := get(a.MemberID)
		st.MessageCount = a.Cnt
		st.FirstActiveDate = a.MinDate
		st.LastActiveDate = a.MaxDate
	}

	var qAgg []statsAgg
	err = db.Table("question_records").
		Select("asker_member_id as member_id, count(*) as cnt, coalesce(avg(response_minutes), 0) as avg_resp").
		Where("asker_member_id <> ''").
		Group("asker_member_id").Scan(&qAgg).Error
	if err != nil {
		return fmt.Errorf("aggregate questions: %w", err)
	}
	for _, a := range qAgg {
		st := get(a.MemberID)
		st.QuestionCount = a.Cnt
		st.AvgResponseMins = a.AvgResp
	}

	var ansAgg []statsAgg
	err = db.Table("question_records").
		Select("answerer_member_id as member_id, count(*) as cnt").
		Where("answerer_member_id <> ''").
		Group("answerer_member_id").Scan(&ansAgg).Error
	if err != nil {
		return fmt.Errorf("aggregate answers: %w", err)
	}
	for _, a := range ansAgg {
		get(a.MemberID).AnswerCount = a.Cnt
	}

	var gnAgg []statsAgg
	err = db.Table("good_news_items").
		Select("member_id, count(*) as cnt").
		Where("member_id <> ''").
		Group("member_id").Scan(&gnAgg).Error
	if err != nil {
		return fmt.Errorf("aggregate good news: %w", err)
	}
	for _, a := range gnAgg {
		get(a.MemberID).GoodNewsCount = a.Cnt
	}

	var kocAgg []statsAgg
	err = db.Table("koc_contributions").
		Select("member_id, count(*) as cnt").
		Where("member_id <> ''").
		Group("member_id").Scan(&kocAgg).Error
	if err != nil {
		return fmt.Errorf("aggregate koc: %w", err)
	}
	for _, a := range kocAgg {
		get(a.MemberID).KocCount = a.Cnt
	}

	rows := make([]model.MemberStats, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, *st)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.MemberStats{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, s.batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("replace member stats: %w", err)
	}
	logger.Info("member stats recomputed", "members", len(rows))
	return nil
}
