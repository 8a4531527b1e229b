package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-insight/internal/model"
)

func TestFoldStats(t *testing.T) {
	rows := []model.MemberStats{
		{MessageCount: 10, QuestionCount: 2, AnswerCount: 1, AvgResponseMins: 30, FirstActiveDate: "2025-12-01", LastActiveDate: "2025-12-05"},
		{MessageCount: 5, QuestionCount: 1, GoodNewsCount: 1, AvgResponseMins: 12, FirstActiveDate: "2025-11-20", LastActiveDate: "2025-12-10"},
	}

	out := FoldStats(rows)
	require.Equal(t, 15, out.MessageCount)
	require.Equal(t, 3, out.QuestionCount)
	require.Equal(t, 1, out.AnswerCount)
	require.Equal(t, 1, out.GoodNewsCount)
	// 均值没法精确合并，保守取最大
	require.Equal(t, 30.0, out.AvgResponseMins)
	require.Equal(t, "2025-11-20", out.FirstActiveDate)
	require.Equal(t, "2025-12-10", out.LastActiveDate)
}

func TestFoldStatsIgnoresEmptyDates(t *testing.T) {
	rows := []model.MemberStats{
		{FirstActiveDate: "", LastActiveDate: ""},
		{FirstActiveDate: "2025-12-03", LastActiveDate: "2025-12-03"},
	}
	out := FoldStats(rows)
	require.Equal(t, "2025-12-03", out.FirstActiveDate)
	require.Equal(t, "2025-12-03", out.LastActiveDate)
}

func TestNormalizePeriod(t *testing.T) {
	require.Equal(t, "2", NormalizePeriod("2期"))
	require.Equal(t, "2", NormalizePeriod("第2期"))
	require.Equal(t, "2", NormalizePeriod(" 2 "))
	require.Equal(t, "2", NormalizePeriod("2"))
	require.Equal(t, "", NormalizePeriod(""))
}

func TestIsSyntheticID(t *testing.T) {
	require.True(t, IsSyntheticID("tmp-a1b2c3d4"))
	require.False(t, IsSyntheticID("S2025001"))
	require.False(t, IsSyntheticID(""))
}

func TestUnifyExecuteFoldsIntoExistingCanonicalStats(t *testing.T) {
	// 主档自己已经有统计行是常态：归并时旧行折叠进去，不是冲突
	db := openTestDB(t)
	u := NewUnifier(db)

	require.NoError(t, db.Create(&model.Member{ID: "S001", Nickname: "小明", NormalizedNick: "小明", Status: "active"}).Error)
	require.NoError(t, db.Create(&model.Member{ID: "tmp-abc12345", Nickname: "小明-广州", NormalizedNick: "小明", Status: "active"}).Error)
	require.NoError(t, db.Create(&model.MemberStats{MemberID: "S001", MessageCount: 10, FirstActiveDate: "2025-12-01", LastActiveDate: "2025-12-05"}).Error)
	require.NoError(t, db.Create(&model.MemberStats{MemberID: "tmp-abc12345", MessageCount: 5, FirstActiveDate: "2025-11-20", LastActiveDate: "2025-12-10"}).Error)
	require.NoError(t, db.Create(&model.Message{TranscriptID: 1, MemberID: "tmp-abc12345", Author: "小明-广州"}).Error)

	plan, err := u.BuildPlan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.UnifyMapping{{LegacyID: "tmp-abc12345", CanonicalID: "S001"}}, plan)

	report, err := u.Run(context.Background(), plan, true)
	require.NoError(t, err)
	require.True(t, report.Executed)

	var stats []model.MemberStats
	require.NoError(t, db.Find(&stats).Error)
	require.Len(t, stats, 1)
	require.Equal(t, "S001", stats[0].MemberID)
	require.Equal(t, 15, stats[0].MessageCount)
	require.Equal(t, "2025-11-20", stats[0].FirstActiveDate)
	require.Equal(t, "2025-12-10", stats[0].LastActiveDate)

	var msg model.Message
	require.NoError(t, db.First(&msg).Error)
	require.Equal(t, "S001", msg.MemberID)

	var legacy model.Member
	require.NoError(t, db.First(&legacy, "id = ?", "tmp-abc12345").Error)
	require.Equal(t, "expired", legacy.Status)

	var alias model.MemberAlias
	require.NoError(t, db.First(&alias, "alias = ?", "小明-广州").Error)
	require.Equal(t, "S001", alias.MemberID)
}

func TestUnifyDryRunCountsWithoutWriting(t *testing.T) {
	db := openTestDB(t)
	u := NewUnifier(db)

	require.NoError(t, db.Create(&model.Member{ID: "S001", Nickname: "小明", NormalizedNick: "小明", Status: "active"}).Error)
	require.NoError(t, db.Create(&model.Member{ID: "tmp-abc12345", Nickname: "小明", NormalizedNick: "小明", Status: "active"}).Error)
	require.NoError(t, db.Create(&model.MemberStats{MemberID: "tmp-abc12345", MessageCount: 5}).Error)
	require.NoError(t, db.Create(&model.Message{TranscriptID: 1, MemberID: "tmp-abc12345", Author: "小明"}).Error)

	mappings := []model.UnifyMapping{{LegacyID: "tmp-abc12345", CanonicalID: "S001"}}
	report, err := u.Run(context.Background(), mappings, false)
	require.NoError(t, err)
	require.False(t, report.Executed)
	require.EqualValues(t, 2, report.RewrittenRows) // 1 条消息 + 1 条待折叠统计

	var msg model.Message
	require.NoError(t, db.First(&msg).Error)
	require.Equal(t, "tmp-abc12345", msg.MemberID)
	var legacy model.Member
	require.NoError(t, db.First(&legacy, "id = ?", "tmp-abc12345").Error)
	require.Equal(t, "active", legacy.Status)
}

func TestUnifyPreflightRejectsTwoLegacyStatsRows(t *testing.T) {
	db := openTestDB(t)
	u := NewUnifier(db)

	require.NoError(t, db.Create(&model.Member{ID: "S001", Nickname: "小明", NormalizedNick: "小明", Status: "active"}).Error)
	for _, id := range []string{"tmp-aaaa1111", "tmp-bbbb2222"} {
		require.NoError(t, db.Create(&model.Member{ID: id, Nickname: "小明", NormalizedNick: "小明", Status: "active"}).Error)
		require.NoError(t, db.Create(&model.MemberStats{MemberID: id, MessageCount: 1}).Error)
	}

	mappings := []model.UnifyMapping{
		{LegacyID: "tmp-aaaa1111", CanonicalID: "S001"},
		{LegacyID: "tmp-bbbb2222", CanonicalID: "S001"},
	}
	report, err := u.Run(context.Background(), mappings, true)
	require.Error(t, err)
	require.False(t, report.Executed)
	require.Len(t, report.Conflicts, 1)

	// 整批中止，库没动
	var cnt int64
	db.Model(&model.MemberStats{}).Count(&cnt)
	require.EqualValues(t, 2, cnt)
}
