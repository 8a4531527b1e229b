package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"chat-insight/internal/config"
	"chat-insight/internal/logger"
	"chat-insight/internal/service"
)

// 学员身份归并的维护入口。默认干跑只出报告；确认无冲突后加 -execute 写库。
// 设计为离线操作：执行期间不要跑在线摄入。
func main() {
	configFile := flag.String("config", "", "config file path")
	execute := flag.Bool("execute", false, "apply the merge; default is dry-run")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log)

	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	unifier := service.NewUnifier(db)

	plan, err := unifier.BuildPlan(ctx)
	if err != nil {
		slog.Error("build plan failed", "err", err)
		os.Exit(1)
	}
	if len(plan) == 0 {
		fmt.Println("nothing to unify")
		return
	}

	report, err := unifier.Run(ctx, plan, *execute)
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		slog.Error("unify aborted", "err", err)
		os.Exit(1)
	}

	if *execute {
		reports := service.NewReportService(db, cfg.Pipeline.DedupThreshold, cfg.Pipeline.WriteBatchSize)
		if err := reports.RecomputeMemberStats(ctx); err != nil {
			slog.Error("stats recompute failed", "err", err)
			os.Exit(1)
		}
		slog.Info("unify executed", "mappings", len(plan))
	} else {
		fmt.Println("dry-run only; pass -execute to apply")
	}
}
