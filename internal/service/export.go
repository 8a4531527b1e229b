package service

import (
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"chat-insight/internal/model"
)

// BuildReportWorkbook 把一批日报导出成 xlsx：总览一张表，亮点各一张。
func BuildReportWorkbook(reports []model.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	const overview = "总览"
	f.SetSheetName("Sheet1", overview)
	header := []interface{}{"产品线", "期数", "群号", "日期", "消息数", "提问数", "已解决", "解决率%", "平均响应(分)", "喜报数", "摘要"}
	if err := f.SetSheetRow(overview, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, r := range reports {
		row := []interface{}{
			r.ProductLine, r.Period, r.GroupNumber, r.ChatDate,
			r.MessageCount, r.QuestionCount, r.ResolvedCount, r.ResolutionRate,
			r.AvgResponseMins, r.GoodNewsCount, r.Summary,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(overview, cell, &row); err != nil {
			return nil, fmt.Errorf("write report row %d: %w", i, err)
		}
	}

	if err := writeHighlightSheet(f, "喜报", reports, func(r model.Report) string { return r.GoodNewsJSON }); err != nil {
		return nil, err
	}
	if err := writeHighlightSheet(f, "KOC", reports, func(r model.Report) string { return r.KocsJSON }); err != nil {
		return nil, err
	}
	return f, nil
}

func writeHighlightSheet(f *excelize.File, name string, reports []model.Report, pick func(model.Report) string) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet %s: %w", name, err)
	}
	header := []interface{}{"日期", "群", "作者", "内容"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}

	rowNum := 2
	for _, r := range reports {
		raw := pick(r)
		if raw == "" {
			continue
		}
		var items []model.Highlight
		if json.Unmarshal([]byte(raw), &items) != nil {
			continue
		}
		for _, h := range items {
			row := []interface{}{h.Date, h.Group, h.Author, h.Content}
			cell, _ := excelize.CoordinatesToCellName(1, rowNum)
			if err := f.SetSheetRow(name, cell, &row); err != nil {
				return fmt.Errorf("write %s row: %w", name, err)
			}
			rowNum++
		}
	}
	return nil
}
