package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
	"chat-insight/internal/service"
)

type ReportHandler struct {
	db      *gorm.DB
	reports *service.ReportService
}

func NewReportHandler(db *gorm.DB, reports *service.ReportService) *ReportHandler {
	return &ReportHandler{db: db, reports: reports}
}

// List handles GET /api/reports — 按 产品线/期/群/日期 过滤
func (h *ReportHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Order("chat_date desc")
	if v := c.Query("product_line"); v != "" {
		q = q.Where("product_line = ?", v)
	}
	if v := c.Query("period"); v != "" {
		q = q.Where("period = ?", v)
	}
	if v := c.Query("group_number"); v != "" {
		q = q.Where("group_number = ?", v)
	}
	if v := c.Query("date"); v != "" {
		q = q.Where("chat_date = ?", v)
	}

	var reports []model.Report
	if err := q.Limit(500).Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Highlights handles GET /api/highlights — 跨群聚合去重后的亮点
func (h *ReportHandler) Highlights(c *gin.Context) {
	start := c.DefaultQuery("start", time.Now().AddDate(0, 0, -7).Format("2006-01-02"))
	end := c.DefaultQuery("end", time.Now().Format("2006-01-02"))

	items, err := h.reports.CrossGroupHighlights(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": items, "start": start, "end": end})
}

// Export handles GET /api/reports/export — 生成 xlsx 后走文件下载
func (h *ReportHandler) Export(c *gin.Context) {
	var reports []model.Report
	if err := h.db.WithContext(c.Request.Context()).Order("chat_date").Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f, err := service.BuildReportWorkbook(reports)
	if err != nil {
		logger.Error("report export failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导出失败"})
		return
	}

	filename := fmt.Sprintf("群聊日报_%s.xlsx", time.Now().Format("20060102"))
	dir := filepath.Join(".", "exports")
	os.MkdirAll(dir, 0755)
	fpath := filepath.Join(dir, filename)
	if err := f.SaveAs(fpath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导出失败"})
		return
	}
	// 5 分钟后自动清理未下载的文件
	time.AfterFunc(5*time.Minute, func() { os.Remove(fpath) })

	c.JSON(http.StatusOK, gin.H{
		"downloadUrl":   "/api/files/" + filename,
		"downloadTitle": filename,
	})
}

// DownloadFile handles GET /api/files/:name
func (h *ReportHandler) DownloadFile(c *gin.Context) {
	name := c.Param("name")
	path := filepath.Join(".", "exports", filepath.Base(name))
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
	defer os.Remove(path)
}

// RecomputeStats handles POST /api/stats/recompute — 学员统计全量重算
func (h *ReportHandler) RecomputeStats(c *gin.Context) {
	if err := h.reports.RecomputeMemberStats(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
