package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
)

// IngestService 摄入编排：文件名解析 → 按天切块 → 分词 → 规则分类 →
// 窗口抽取合并 → 落库 → 日报重建。单个文件失败只记一条导入日志，批次继续。
type IngestService struct {
	db         *gorm.DB
	resolver   *GroupResolver
	classifier *Classifier
	engine     *ExtractEngine
	reports    *ReportService
	batchSize  int
}

func NewIngestService(db *gorm.DB, resolver *GroupResolver, classifier *Classifier,
	engine *ExtractEngine, reports *ReportService, batchSize int) *IngestService {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &IngestService{
		db: db, resolver: resolver, classifier: classifier,
		engine: engine, reports: reports, batchSize: batchSize,
	}
}

// IngestFile 处理一个导出文件。返回的导入日志已落库，可供后续查看和重新入队。
func (s *IngestService) IngestFile(ctx context.Context, filename string, content []byte) *model.ImportLog {
	log := &model.ImportLog{FileName: filename, CreatedAt: time.Now()}
	defer func() {
		if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
			logger.Error("ingest: write import log failed", "file", filename, "err", err)
		}
	}()

	if !utf8.Valid(content) {
		log.Status = "FAILED"
		log.Reason = "unreadable encoding: not valid utf-8"
		logger.Error("ingest: bad encoding", "file", filename)
		return log
	}

	info := s.resolver.Resolve(filename)
	if info.ProductLine == UnknownProductLine {
		logger.Warn("ingest: unresolved group name, flagged for triage", "file", filename)
	}

	year := time.Now().Year()
	if len(info.DateStr) >= 4 {
		if y, err := strconv.Atoi(info.DateStr[:4]); err == nil {
			year = y
		}
	}

	chunks := SplitDays(string(content), year)
	if len(chunks) == 0 && info.DateStr != "" {
		chunks = []model.DayChunk{{Date: info.DateStr, Content: string(content)}}
	}
	if len(chunks) == 0 {
		log.Status = "FAILED"
		log.Reason = "no dated content found"
		return log
	}

	var reasons []string
	processed, skipped := 0, 0
	for _, chunk := range chunks {
		tid, wasSkipped, err := s.ingestDay(ctx, info, chunk)
		if log.TranscriptID == 0 {
			log.TranscriptID = tid
		}
		switch {
		case err != nil:
			reasons = append(reasons, fmt.Sprintf("%s: %v", chunk.Date, err))
		case wasSkipped:
			skipped++
		default:
			processed++
		}
	}

	switch {
	case len(reasons) > 0:
		log.Status = "FAILED"
		log.Reason = strings.Join(reasons, "; ")
	case processed == 0 && skipped > 0:
		log.Status = "SKIPPED"
		log.Reason = "content unchanged"
	default:
		log.Status = "SUCCESS"
	}
	logger.Info("ingest: file done", "file", filename, "days", len(chunks),
		"processed", processed, "skipped", skipped, "status", log.Status)
	return log
}

func (s *IngestService) ingestDay(ctx context.Context, info model.GroupInfo, chunk model.DayChunk) (int, bool, error) {
	db := s.db.WithContext(ctx)
	sum := sha256.Sum256([]byte(chunk.Content))
	hash := hex.EncodeToString(sum[:])

	var t model.RawTranscript
	ferr := db.Where("product_line = ? AND period = ? AND group_number = ? AND chat_date = ?",
		info.ProductLine, info.Period, info.GroupNumber, chunk.Date).First(&t).Error
	switch {
	case ferr == gorm.ErrRecordNotFound:
		t = model.RawTranscript{
			ProductLine: info.ProductLine, Period: info.Period,
			GroupNumber: info.GroupNumber, GroupName: info.Canonical,
			ChatDate: chunk.Date,
		}
	case ferr != nil:
		return 0, false, fmt.Errorf("query transcript: %w", ferr)
	case t.ContentHash == hash && t.Status == "success":
		// 内容没变且上次已成功，重复摄入是幂等的
		return t.ID, true, nil
	}

	t.RawText = chunk.Content
	t.ContentHash = hash
	t.Status = "processing"
	if err := db.Save(&t).Error; err != nil {
		return 0, false, fmt.Errorf("save transcript: %w", err)
	}

	if err := s.processTranscript(ctx, info, &t); err != nil {
		db.Model(&t).Update("status", "failed")
		return t.ID, false, err
	}
	if err := db.Model(&t).Update("status", "success").Error; err != nil {
		return t.ID, false, fmt.Errorf("mark success: %w", err)
	}
	return t.ID, false, nil
}

func (s *IngestService) processTranscript(ctx context.Context, info model.GroupInfo, t *model.RawTranscript) error {
	msgs := TokenizeMessages(t.RawText)
	cls := s.classifier.Classify(msgs)

	dayInfo := info
	dayInfo.DateStr = t.ChatDate
	ext := s.engine.ExtractDay(ctx, dayInfo, renderLines(msgs))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 建档走同一个事务：落库失败回滚时不留半截学员
		members := newMemberLinker(tx)
		if err := s.persistMessages(tx, t, msgs, members); err != nil {
			return err
		}
		if err := s.persistQuestions(tx, t, cls, ext, members); err != nil {
			return err
		}
		if err := s.persistHighlights(tx, t, msgs, cls, ext, members); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.reports.Rebuild(ctx, *t, ext.FullText)
}

// renderLines 抽取窗口的输入行：规整成 “昵称 时间 正文” 一行一条
func renderLines(msgs []model.ParsedMessage) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		body := strings.ReplaceAll(m.Body, "\n", " ")
		lines = append(lines, fmt.Sprintf("%s %s %s", m.Author, m.TimeOfDay, body))
	}
	return lines
}

// 消息整批重建：转录重跑时旧消息全部作废
func (s *IngestService) persistMessages(tx *gorm.DB, t *model.RawTranscript, msgs []model.ParsedMessage, members *memberLinker) error {
	if err := tx.Where("transcript_id = ?", t.ID).Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, model.Message{
			TranscriptID: t.ID,
			MemberID:     members.ensure(m.Author),
			Author:       m.Author,
			TimeOfDay:    m.TimeOfDay,
			Body:         m.Body,
		})
	}
	if err := tx.CreateInBatches(&rows, s.batchSize).Error; err != nil {
		return fmt.Errorf("insert messages: %w", err)
	}
	return nil
}

// 问题对账：规则分类器带响应时长和解决判定，以它为准；
// 规则一条没出而模型抽到了，才用抽取结果兜底。
func (s *IngestService) persistQuestions(tx *gorm.DB, t *model.RawTranscript,
	cls model.ClassifyResult, ext model.ExtractionResult, members *memberLinker) error {
	if err := tx.Where("transcript_id = ?", t.ID).Delete(&model.QuestionRecord{}).Error; err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	var rows []model.QuestionRecord
	if len(cls.Questions) > 0 {
		for _, q := range cls.Questions {
			rows = append(rows, model.QuestionRecord{
				TranscriptID:     t.ID,
				AskerName:        q.AskerName,
				AskerMemberID:    members.ensure(q.AskerName),
				AnswererName:     q.AnswererName,
				AnswererMemberID: members.ensure(q.AnswererName),
				Content:          q.Content,
				AnswerContent:    q.AnswerContent,
				IsResolved:       q.IsResolved,
				ResponseMinutes:  q.ResponseMinutes,
			})
		}
	} else {
		for _, q := range ext.Questions {
			rows = append(rows, model.QuestionRecord{
				TranscriptID:     t.ID,
				AskerName:        q.Asker,
				AskerMemberID:    members.ensure(q.Asker),
				AnswererName:     q.Answerer,
				AnswererMemberID: members.ensure(q.Answerer),
				Content:          q.Question,
				AnswerContent:    q.Answer,
				IsResolved:       q.Resolved,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(&rows, s.batchSize).Error; err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	return nil
}

// 亮点落库。已核验（人工确认过）的行受保护：不删、不被同事件的新抽取覆盖。
func (s *IngestService) persistHighlights(tx *gorm.DB, t *model.RawTranscript,
	msgs []model.ParsedMessage, cls model.ClassifyResult, ext model.ExtractionResult, members *memberLinker) error {

	// --- 喜报：模型抽取 + 规则候选，先去重再落库 ---
	var newsItems []model.Highlight
	for _, g := range ext.GoodNews {
		newsItems = append(newsItems, model.Highlight{Content: g.Content, Author: g.Author, Date: t.ChatDate, Group: t.GroupName})
	}
	for _, idx := range cls.GoodNewsIdx {
		newsItems = append(newsItems, model.Highlight{Content: msgs[idx].Body, Author: msgs[idx].Author, Date: t.ChatDate, Group: t.GroupName})
	}
	newsItems = DedupHighlights(newsItems, s.reports.dedupThreshold)

	var verifiedNews []model.GoodNewsItem
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, true).Find(&verifiedNews).Error; err != nil {
		return fmt.Errorf("load verified good news: %w", err)
	}
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, false).Delete(&model.GoodNewsItem{}).Error; err != nil {
		return fmt.Errorf("clear good news: %w", err)
	}
	var newsRows []model.GoodNewsItem
	for _, h := range newsItems {
		if matchesVerifiedNews(h, verifiedNews) {
			continue
		}
		newsRows = append(newsRows, model.GoodNewsItem{
			TranscriptID: t.ID,
			MemberID:     members.ensure(h.Author),
			AuthorName:   h.Author,
			Content:      h.Content,
			ChatDate:     t.ChatDate,
			GroupName:    h.Group,
			Confidence:   0.8,
		})
	}
	if len(newsRows) > 0 {
		if err := tx.CreateInBatches(&newsRows, s.batchSize).Error; err != nil {
			return fmt.Errorf("insert good news: %w", err)
		}
	}

	// --- KOC：模型抽取 + 规则分享候选 ---
	var kocItems []model.Highlight
	for _, k := range ext.Kocs {
		kocItems = append(kocItems, model.Highlight{Content: k.Contribution, Author: k.Name, Date: t.ChatDate, Group: t.GroupName})
	}
	for _, idx := range cls.ShareIdx {
		kocItems = append(kocItems, model.Highlight{Content: msgs[idx].Body, Author: msgs[idx].Author, Date: t.ChatDate, Group: t.GroupName})
	}
	kocItems = DedupHighlights(kocItems, s.reports.dedupThreshold)

	var verifiedKocs []model.KocContribution
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, true).Find(&verifiedKocs).Error; err != nil {
		return fmt.Errorf("load verified koc: %w", err)
	}
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, false).Delete(&model.KocContribution{}).Error; err != nil {
		return fmt.Errorf("clear koc: %w", err)
	}
	var kocRows []model.KocContribution
	for _, h := range kocItems {
		if matchesVerifiedKoc(h, verifiedKocs) {
			continue
		}
		kocRows = append(kocRows, model.KocContribution{
			TranscriptID: t.ID,
			MemberID:     members.ensure(h.Author),
			AuthorName:   h.Author,
			Contribution: h.Content,
			ChatDate:     t.ChatDate,
			GroupName:    h.Group,
			Confidence:   0.8,
		})
	}
	if len(kocRows) > 0 {
		if err := tx.CreateInBatches(&kocRows, s.batchSize).Error; err != nil {
			return fmt.Errorf("insert koc: %w", err)
		}
	}

	// --- 明星学员 ---
	var verifiedStars []model.StarStudent
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, true).Find(&verifiedStars).Error; err != nil {
		return fmt.Errorf("load verified stars: %w", err)
	}
	if err := tx.Where("transcript_id = ? AND is_verified = ?", t.ID, false).Delete(&model.StarStudent{}).Error; err != nil {
		return fmt.Errorf("clear stars: %w", err)
	}
	var starRows []model.StarStudent
	for _, st := range ext.StarStudents {
		if strings.TrimSpace(st.Name) == "" || matchesVerifiedStar(st.Name, verifiedStars) {
			continue
		}
		starRows = append(starRows, model.StarStudent{
			TranscriptID: t.ID,
			MemberID:     members.ensure(st.Name),
			Name:         st.Name,
			Reason:       st.Reason,
			ChatDate:     t.ChatDate,
		})
	}
	if len(starRows) > 0 {
		if err := tx.CreateInBatches(&starRows, s.batchSize).Error; err != nil {
			return fmt.Errorf("insert stars: %w", err)
		}
	}
	return nil
}

func matchesVerifiedNews(h model.Highlight, verified []model.GoodNewsItem) bool {
	for _, v := range verified {
		if NormalizeAuthorKey(v.AuthorName) == NormalizeAuthorKey(h.Author) {
			return true
		}
	}
	return false
}

func matchesVerifiedKoc(h model.Highlight, verified []model.KocContribution) bool {
	for _, v := range verified {
		if NormalizeAuthorKey(v.AuthorName) == NormalizeAuthorKey(h.Author) {
			return true
		}
	}
	return false
}

func matchesVerifiedStar(name string, verified []model.StarStudent) bool {
	for _, v := range verified {
		if NormalizeAuthorKey(v.Name) == NormalizeAuthorKey(name) {
			return true
		}
	}
	return false
}

// memberLinker 昵称 → 学员 ID。先查别名精确命中，再按归一昵称找在册主档，
// 都没有就建一条临时学员，等花名册导入后由身份归并收编。
type memberLinker struct {
	db    *gorm.DB
	cache map[string]string
}

func newMemberLinker(db *gorm.DB) *memberLinker {
	return &memberLinker{db: db, cache: map[string]string{}}
}

func (l *memberLinker) ensure(nickname string) string {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || nickname == unknownResponder {
		return ""
	}
	if id, ok := l.cache[nickname]; ok {
		return id
	}

	var alias model.MemberAlias
	if err := l.db.Where("alias = ?", nickname).First(&alias).Error; err == nil {
		l.cache[nickname] = alias.MemberID
		return alias.MemberID
	}

	norm := NormalizeAuthorKey(nickname)
	if norm != "" {
		var candidates []model.Member
		if err := l.db.Where("normalized_nick = ? AND status = ?", norm, "active").
			Order("id").Find(&candidates).Error; err == nil {
			// 在册（非临时）的优先
			for _, c := range candidates {
				if !IsSyntheticID(c.ID) {
					l.cache[nickname] = c.ID
					return c.ID
				}
			}
			if len(candidates) > 0 {
				l.cache[nickname] = candidates[0].ID
				return candidates[0].ID
			}
		}
	}

	member := model.Member{
		ID:             SyntheticIDPrefix + uuid.NewString()[:8],
		Nickname:       nickname,
		NormalizedNick: norm,
		Status:         "active",
	}
	if err := l.db.Create(&member).Error; err != nil {
		logger.Warn("member link: create failed", "nickname", nickname, "err", err)
		return ""
	}
	l.cache[nickname] = member.ID
	return member.ID
}
