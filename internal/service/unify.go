package service

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
)

// SyntheticIDPrefix 标记没有花名册编号、从聊天记录里临时建出来的学员。
const SyntheticIDPrefix = "tmp-"

func IsSyntheticID(id string) bool { return strings.HasPrefix(id, SyntheticIDPrefix) }

// Unifier 学员身份归并：把重复学员的所有外键引用改写到唯一主档上。
// 设计为离线维护操作，不和在线摄入并发跑；默认只做预演，写库要显式 execute。
type Unifier struct {
	db *gorm.DB
}

func NewUnifier(db *gorm.DB) *Unifier { return &Unifier{db: db} }

// BuildPlan 扫描学员表生成归并指令：同一个归一昵称下，
// 有花名册编号的那条是主档，临时编号的并过去。
func (u *Unifier) BuildPlan(ctx context.Context) ([]model.UnifyMapping, error) {
	var members []model.Member
	if err := u.db.WithContext(ctx).Where("status = ?", "active").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	byNick := map[string][]model.Member{}
	for _, m := range members {
		key := m.NormalizedNick
		if key == "" {
			key = NormalizeAuthorKey(m.Nickname)
		}
		if key == "" {
			continue
		}
		byNick[key] = append(byNick[key], m)
	}

	var plan []model.UnifyMapping
	for _, group := range byNick {
		var canonical string
		for _, m := range group {
			if !IsSyntheticID(m.ID) {
				if canonical != "" {
					// 同名下有两个花名册身份，留给人工，不自动并
					canonical = ""
					break
				}
				canonical = m.ID
			}
		}
		if canonical == "" {
			continue
		}
		for _, m := range group {
			if IsSyntheticID(m.ID) {
				plan = append(plan, model.UnifyMapping{LegacyID: m.ID, CanonicalID: canonical})
			}
		}
	}
	return plan, nil
}

// Run 执行（或预演）一批归并。任何前置校验失败都整批中止，绝不留下半截合并。
func (u *Unifier) Run(ctx context.Context, mappings []model.UnifyMapping, execute bool) (model.UnifyReport, error) {
	report := model.UnifyReport{Mappings: mappings, Executed: execute}
	if len(mappings) == 0 {
		report.Executed = false
		return report, nil
	}

	conflicts, err := u.preflight(ctx, mappings)
	if err != nil {
		return report, err
	}
	if len(conflicts) > 0 {
		report.Conflicts = conflicts
		report.Executed = false
		return report, fmt.Errorf("unify preflight: %d conflicting canonical keys, manual resolution required", len(conflicts))
	}

	if !execute {
		report.RewrittenRows = u.countReferences(ctx, legacyIDs(mappings))
		return report, nil
	}

	err = u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return u.applyAll(tx, mappings, &report)
	})
	if err != nil {
		report.Executed = false
		return report, fmt.Errorf("unify transaction: %w", err)
	}
	logger.Info("unify: done", "mappings", len(mappings), "rewritten", report.RewrittenRows,
		"expired", report.ExpiredMembers, "aliases", report.AliasesRecorded)
	return report, nil
}

// preflight 硬冲突：同一个主档键下有两条以上旧记录、且各自都有统计行。
// 这种情况自动合并会吞掉数据口径差异，必须人工定夺。
func (u *Unifier) preflight(ctx context.Context, mappings []model.UnifyMapping) ([]model.UnifyConflict, error) {
	byCanonical := map[string][]string{}
	for _, m := range mappings {
		byCanonical[m.CanonicalID] = append(byCanonical[m.CanonicalID], m.LegacyID)
	}

	var conflicts []model.UnifyConflict
	for canonical, legacies := range byCanonical {
		var cnt int64
		if err := u.db.WithContext(ctx).Model(&model.Member{}).Where("id = ?", canonical).Count(&cnt).Error; err != nil {
			return nil, fmt.Errorf("check canonical %s: %w", canonical, err)
		}
		if cnt == 0 {
			conflicts = append(conflicts, model.UnifyConflict{
				CanonicalID: canonical, LegacyIDs: legacies, Reason: "canonical member not found",
			})
			continue
		}
		if len(legacies) < 2 {
			continue
		}
		var withStats []string
		if err := u.db.WithContext(ctx).Model(&model.MemberStats{}).
			Where("member_id IN ?", legacies).Pluck("member_id", &withStats).Error; err != nil {
			return nil, fmt.Errorf("check stats for %s: %w", canonical, err)
		}
		if len(withStats) >= 2 {
			conflicts = append(conflicts, model.UnifyConflict{
				CanonicalID: canonical, LegacyIDs: withStats,
				Reason: "multiple legacy members with statistics map to one canonical key",
			})
		}
	}
	return conflicts, nil
}

// 含学员外键的业务表和列；归并时逐条改写。
// 统计表不在这里：member_id 上有唯一索引，主档往往已有自己的统计行，
// 直接改写会撞唯一键，旧行由 refoldStats 折叠进主档。
var memberRefColumns = []struct {
	table  string
	column string
}{
	{"messages", "member_id"},
	{"question_records", "asker_member_id"},
	{"question_records", "answerer_member_id"},
	{"good_news_items", "member_id"},
	{"koc_contributions", "member_id"},
	{"star_students", "member_id"},
}

func (u *Unifier) applyAll(tx *gorm.DB, mappings []model.UnifyMapping, report *model.UnifyReport) error {
	byCanonical := map[string][]string{}
	for _, m := range mappings {
		byCanonical[m.CanonicalID] = append(byCanonical[m.CanonicalID], m.LegacyID)
	}

	// (a) 改写所有依赖表的外键
	for _, m := range mappings {
		for _, ref := range memberRefColumns {
			res := tx.Table(ref.table).
				Where(ref.column+" = ?", m.LegacyID).
				Update(ref.column, m.CanonicalID)
			if res.Error != nil {
				return fmt.Errorf("rewrite %s.%s %s -> %s: %w", ref.table, ref.column, m.LegacyID, m.CanonicalID, res.Error)
			}
			report.RewrittenRows += res.RowsAffected
		}
	}

	for canonical, legacies := range byCanonical {
		// (b) 主档展示字段按摄入同一套规则重新归一
		var member model.Member
		if err := tx.First(&member, "id = ?", canonical).Error; err != nil {
			return fmt.Errorf("load canonical %s: %w", canonical, err)
		}
		if err := tx.Model(&member).Updates(map[string]interface{}{
			"normalized_nick": NormalizeAuthorKey(member.Nickname),
			"period":          NormalizePeriod(member.Period),
		}).Error; err != nil {
			return fmt.Errorf("renormalize %s: %w", canonical, err)
		}

		// (e) 旧统计行连同主档已有的一起折叠成一条：
		// 计数求和、首活跃取最早、末活跃取最晚、均值保守取最大
		if err := u.refoldStats(tx, canonical, legacies); err != nil {
			return err
		}
	}

	// (c)+(d) 旧记录标过期并登记别名；历史数据可能还引用它们，永不物理删除
	for _, m := range mappings {
		var legacy model.Member
		if err := tx.First(&legacy, "id = ?", m.LegacyID).Error; err != nil {
			return fmt.Errorf("load legacy %s: %w", m.LegacyID, err)
		}
		if err := tx.Model(&legacy).Update("status", "expired").Error; err != nil {
			return fmt.Errorf("expire %s: %w", m.LegacyID, err)
		}
		report.ExpiredMembers++

		if u.recordAlias(tx, legacy.Nickname, m.CanonicalID) {
			report.AliasesRecorded++
		} else {
			report.AliasesDropped++
		}
	}
	return nil
}

// recordAlias 旧昵称归一后在主档里必须唯一才登记；含糊的宁可丢掉也不错连。
func (u *Unifier) recordAlias(tx *gorm.DB, nickname, canonicalID string) bool {
	norm := NormalizeAuthorKey(nickname)
	if norm == "" {
		return false
	}
	var owners []string
	if err := tx.Model(&model.Member{}).
		Where("normalized_nick = ? AND status = ? AND id NOT LIKE ?", norm, "active", SyntheticIDPrefix+"%").
		Pluck("id", &owners).Error; err != nil {
		return false
	}
	for _, id := range owners {
		if id != canonicalID {
			return false
		}
	}
	alias := model.MemberAlias{Alias: nickname, MemberID: canonicalID}
	return tx.Where("alias = ?", nickname).FirstOrCreate(&alias).Error == nil
}

func (u *Unifier) refoldStats(tx *gorm.DB, canonicalID string, legacyIDs []string) error {
	ids := append([]string{canonicalID}, legacyIDs...)
	var rows []model.MemberStats
	if err := tx.Where("member_id IN ?", ids).Find(&rows).Error; err != nil {
		return fmt.Errorf("load stats %s: %w", canonicalID, err)
	}
	if len(rows) == 0 || (len(rows) == 1 && rows[0].MemberID == canonicalID) {
		return nil
	}
	folded := FoldStats(rows)
	folded.MemberID = canonicalID
	if err := tx.Where("member_id IN ?", ids).Delete(&model.MemberStats{}).Error; err != nil {
		return fmt.Errorf("clear stats %s: %w", canonicalID, err)
	}
	if err := tx.Create(&folded).Error; err != nil {
		return fmt.Errorf("insert folded stats %s: %w", canonicalID, err)
	}
	return nil
}

// FoldStats 多条统计折叠成一条：计数求和，first/last 取 min/max，均值取最大。
func FoldStats(rows []model.MemberStats) model.MemberStats {
	var out model.MemberStats
	for _, r := range rows {
		out.MessageCount += r.MessageCount
		out.QuestionCount += r.QuestionCount
		out.AnswerCount += r.AnswerCount
		out.GoodNewsCount += r.GoodNewsCount
		out.KocCount += r.KocCount
		if r.AvgResponseMins > out.AvgResponseMins {
			out.AvgResponseMins = r.AvgResponseMins
		}
		if r.FirstActiveDate != "" && (out.FirstActiveDate == "" || r.FirstActiveDate < out.FirstActiveDate) {
			out.FirstActiveDate = r.FirstActiveDate
		}
		if r.LastActiveDate > out.LastActiveDate {
			out.LastActiveDate = r.LastActiveDate
		}
	}
	return out
}

// NormalizePeriod "2期" / "第2期" / " 2 " 都归一成 "2"
func NormalizePeriod(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "第")
	s = strings.TrimSuffix(s, "期")
	return strings.TrimSpace(s)
}

func (u *Unifier) countReferences(ctx context.Context, ids []string) int64 {
	var total int64
	for _, ref := range memberRefColumns {
		var cnt int64
		if err := u.db.WithContext(ctx).Table(ref.table).
			Where(ref.column+" IN ?", ids).Count(&cnt).Error; err != nil {
			logger.Warn("unify dry-run: count failed", "table", ref.table, "err", err)
			continue
		}
		total += cnt
	}
	// 旧统计行也算进待处理引用：执行时会被折叠进主档
	var statsCnt int64
	if err := u.db.WithContext(ctx).Model(&model.MemberStats{}).
		Where("member_id IN ?", ids).Count(&statsCnt).Error; err != nil {
		logger.Warn("unify dry-run: count failed", "table", "member_stats", "err", err)
	} else {
		total += statsCnt
	}
	return total
}

func legacyIDs(mappings []model.UnifyMapping) []string {
	out := make([]string, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, m.LegacyID)
	}
	return out
}
