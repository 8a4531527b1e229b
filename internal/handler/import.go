package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chat-insight/internal/logger"
	"chat-insight/internal/model"
	"chat-insight/internal/service"
)

type ImportHandler struct {
	db     *gorm.DB
	ingest *service.IngestService
	roster *service.RosterService
}

func NewImportHandler(db *gorm.DB, ingest *service.IngestService, roster *service.RosterService) *ImportHandler {
	return &ImportHandler{db: db, ingest: ingest, roster: roster}
}

// Upload handles POST /api/import — 上传一个导出的聊天记录文件并同步摄入
func (h *ImportHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传文件"})
		return
	}
	logger.Info("import: start", "file", file.Filename, "size", file.Size)

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败"})
		return
	}

	log := h.ingest.IngestFile(c.Request.Context(), file.Filename, content)
	c.JSON(http.StatusOK, log)
}

// List handles GET /api/imports — 导入日志，失败的文件可以在这里看到原因
func (h *ImportHandler) List(c *gin.Context) {
	var logs []model.ImportLog
	q := h.db.WithContext(c.Request.Context()).Order("id desc").Limit(200)
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// Retry handles POST /api/imports/:id/retry — 对失败的文件重新入队。
// 原始文本还在转录行里，直接从库里取出来重跑。
func (h *ImportHandler) Retry(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	ctx := c.Request.Context()
	var entry model.ImportLog
	if err := h.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "import log not found"})
		return
	}

	var t model.RawTranscript
	if err := h.db.WithContext(ctx).First(&t, entry.TranscriptID).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "原始转录不存在，请重新上传文件"})
		return
	}
	// 清掉 hash 强制重跑
	if err := h.db.WithContext(ctx).Model(&t).Updates(map[string]interface{}{
		"content_hash": "", "status": "pending",
	}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log := h.ingest.IngestFile(ctx, entry.FileName, []byte(t.RawText))
	c.JSON(http.StatusOK, log)
}

// RosterUpload handles POST /api/roster — 花名册 CSV 导入
func (h *ImportHandler) RosterUpload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请上传文件"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败"})
		return
	}
	defer f.Close()

	added, updated, err := h.roster.Import(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "added": added, "updated": updated})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "updated": updated})
}
