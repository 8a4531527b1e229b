package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chat-insight/internal/config"
	"chat-insight/internal/logger"
	"chat-insight/internal/service"
)

// 批量回灌：把一个目录下的聊天记录导出文件挨个摄入。
// 文件之间互不共享可变状态，顺序跑即可；窗口级并发由 pipeline.workers 控制。
func main() {
	configFile := flag.String("config", "", "config file path")
	dir := flag.String("dir", "", "directory of exported .txt transcripts")
	workers := flag.Int("workers", 0, "override pipeline workers (1-4)")
	delayMS := flag.Int("delay-ms", -1, "override per-call delay in milliseconds")
	flag.Parse()

	if *dir == "" {
		slog.Error("missing -dir")
		os.Exit(1)
	}

	cfg := config.Load(*configFile)
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
		if cfg.Pipeline.Workers > 4 {
			cfg.Pipeline.Workers = 4
		}
	}
	if *delayMS >= 0 {
		cfg.Pipeline.CallDelayMS = *delayMS
	}
	logger.Init(cfg.Log)

	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	ai := service.NewAIService(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	engine := service.NewExtractEngine(ai, cfg.Pipeline)
	reports := service.NewReportService(db, cfg.Pipeline.DedupThreshold, cfg.Pipeline.WriteBatchSize)
	ingest := service.NewIngestService(db,
		service.NewGroupResolver(nil),
		service.NewClassifier(cfg.Pipeline.ResolutionWindow),
		engine, reports, cfg.Pipeline.WriteBatchSize)

	entries, err := os.ReadDir(*dir)
	if err != nil {
		slog.Error("read dir failed", "dir", *dir, "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	ok, failed := 0, 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(*dir, e.Name()))
		if err != nil {
			slog.Error("read file failed", "file", e.Name(), "err", err)
			failed++
			continue
		}
		log := ingest.IngestFile(ctx, e.Name(), content)
		if log.Status == "FAILED" {
			failed++
		} else {
			ok++
		}
	}

	if err := reports.RecomputeMemberStats(ctx); err != nil {
		slog.Error("stats recompute failed", "err", err)
	}
	slog.Info("backfill done", "ok", ok, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
