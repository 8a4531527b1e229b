package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
)

// RosterService 导入花名册，给学员主档灌入稳定的外部编号。
// 列约定：外部编号, 昵称, 期数。带引号、内嵌分隔符的字段交给 csv 包处理。
type RosterService struct {
	db *gorm.DB
}

func NewRosterService(db *gorm.DB) *RosterService { return &RosterService{db: db} }

func (s *RosterService) Import(ctx context.Context, r io.Reader) (added, updated int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rowNum := 0
	for {
		record, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return added, updated, fmt.Errorf("roster row %d: %w", rowNum+1, rerr)
		}
		rowNum++
		if len(record) < 2 {
			continue
		}
		if rowNum == 1 && looksLikeHeader(record) {
			continue
		}

		id := strings.TrimSpace(record[0])
		nick := strings.TrimSpace(record[1])
		if id == "" || nick == "" {
			continue
		}
		period := ""
		if len(record) > 2 {
			period = NormalizePeriod(record[2])
		}

		member := model.Member{
			ID:             id,
			Nickname:       nick,
			NormalizedNick: NormalizeAuthorKey(nick),
			Period:         period,
			Status:         "active",
		}

		var existing model.Member
		ferr := s.db.WithContext(ctx).First(&existing, "id = ?", id).Error
		switch {
		case ferr == gorm.ErrRecordNotFound:
			if cerr := s.db.WithContext(ctx).Create(&member).Error; cerr != nil {
				return added, updated, fmt.Errorf("insert member %s: %w", id, cerr)
			}
			added++
		case ferr != nil:
			return added, updated, fmt.Errorf("query member %s: %w", id, ferr)
		default:
			if uerr := s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
				"nickname":        nick,
				"normalized_nick": member.NormalizedNick,
				"period":          period,
				"status":          "active",
			}).Error; uerr != nil {
				return added, updated, fmt.Errorf("update member %s: %w", id, uerr)
			}
			updated++
		}
	}

	logger.Info("roster import: done", "added", added, "updated", updated)
	return added, updated, nil
}

func looksLikeHeader(record []string) bool {
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "id" || strings.Contains(first, "编号") || strings.Contains(first, "学号")
}
