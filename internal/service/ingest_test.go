package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chat-insight/internal/config"
	"chat-insight/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库跟着连接走，多开连接会各自看到一个空库
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.RawTranscript{}, &model.Message{}, &model.QuestionRecord{},
		&model.GoodNewsItem{}, &model.KocContribution{}, &model.StarStudent{},
		&model.Member{}, &model.MemberAlias{}, &model.MemberStats{},
		&model.Report{}, &model.ImportLog{},
	))
	return db
}

func newTestIngest(db *gorm.DB, llm Extractor) *IngestService {
	cfg := config.PipelineConfig{WindowSize: 100, Workers: 1, DedupThreshold: 0.8, WriteBatchSize: 50}
	reports := NewReportService(db, cfg.DedupThreshold, cfg.WriteBatchSize)
	return NewIngestService(db, NewGroupResolver(nil), NewClassifier(0),
		NewExtractEngine(llm, cfg), reports, cfg.WriteBatchSize)
}

const sampleTranscript = "小明 12-10 09:00:00\n请问部署怎么配置？\n小红 12-10 09:30:00\n参考置顶文档就行\n"

func starExtractor() *fakeExtractor {
	return &fakeExtractor{respond: func(call int32, user string) (string, error) {
		return `{"messageCount": 2, "starStudents": [{"name": "小明", "reason": "积极提问"}], "fullText": "平稳的一天"}`, nil
	}}
}

func TestIngestFilePersistsAndSkipsUnchanged(t *testing.T) {
	db := openTestDB(t)
	svc := newTestIngest(db, starExtractor())

	log := svc.IngestFile(context.Background(), "深海圈丨AI产品出海2期2群_2025-12-10.txt", []byte(sampleTranscript))
	require.Equal(t, "SUCCESS", log.Status)

	var tr model.RawTranscript
	require.NoError(t, db.First(&tr).Error)
	require.Equal(t, "AI产品出海", tr.ProductLine)
	require.Equal(t, "2025-12-10", tr.ChatDate)
	require.Equal(t, "success", tr.Status)

	var msgCnt int64
	db.Model(&model.Message{}).Count(&msgCnt)
	require.EqualValues(t, 2, msgCnt)

	var q model.QuestionRecord
	require.NoError(t, db.First(&q).Error)
	require.Equal(t, "小明", q.AskerName)
	require.Equal(t, "小红", q.AnswererName)
	require.True(t, q.IsResolved)

	var report model.Report
	require.NoError(t, db.First(&report).Error)
	require.Equal(t, 2, report.MessageCount)
	require.Equal(t, 1, report.QuestionCount)
	require.Equal(t, 100, report.ResolutionRate)

	// 聊天里出现的人在摄入事务里建了临时档
	var members []model.Member
	require.NoError(t, db.Find(&members).Error)
	require.Len(t, members, 2)
	for _, m := range members {
		require.True(t, IsSyntheticID(m.ID))
	}

	// 内容没变，重复摄入幂等跳过
	again := svc.IngestFile(context.Background(), "深海圈丨AI产品出海2期2群_2025-12-10.txt", []byte(sampleTranscript))
	require.Equal(t, "SKIPPED", again.Status)
	db.Model(&model.Message{}).Count(&msgCnt)
	require.EqualValues(t, 2, msgCnt)
}

func TestIngestVerifiedStarSurvivesReextraction(t *testing.T) {
	db := openTestDB(t)
	svc := newTestIngest(db, starExtractor())
	filename := "深海圈丨AI产品出海2期2群_2025-12-10.txt"

	log := svc.IngestFile(context.Background(), filename, []byte(sampleTranscript))
	require.Equal(t, "SUCCESS", log.Status)
	require.NoError(t, db.Model(&model.StarStudent{}).
		Where("name = ?", "小明").Update("is_verified", true).Error)

	// 内容变化触发重跑；人工核验过的行不删、同名抽取也不再插一条
	changed := sampleTranscript + "小刚 12-10 10:00:00\n大家好\n"
	log2 := svc.IngestFile(context.Background(), filename, []byte(changed))
	require.Equal(t, "SUCCESS", log2.Status)

	var stars []model.StarStudent
	require.NoError(t, db.Where("name = ?", "小明").Find(&stars).Error)
	require.Len(t, stars, 1)
	require.True(t, stars[0].IsVerified)
}
