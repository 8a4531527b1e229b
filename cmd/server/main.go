package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chat-insight/internal/config"
	"chat-insight/internal/handler"
	"chat-insight/internal/logger"
	"chat-insight/internal/middleware"
	"chat-insight/internal/model"
	"chat-insight/internal/service"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	migrate := flag.Bool("migrate", false, "run gorm auto-migration before serving")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log)
	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	if *migrate {
		if err := db.AutoMigrate(
			&model.RawTranscript{}, &model.Message{}, &model.QuestionRecord{},
			&model.GoodNewsItem{}, &model.KocContribution{}, &model.StarStudent{},
			&model.Member{}, &model.MemberAlias{}, &model.MemberStats{},
			&model.Report{}, &model.ImportLog{}, &model.AdminUser{},
		); err != nil {
			slog.Error("migration failed", "err", err)
			os.Exit(1)
		}
		slog.Info("migration done")
	}

	ai := service.NewAIService(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	engine := service.NewExtractEngine(ai, cfg.Pipeline)
	resolver := service.NewGroupResolver(nil)
	classifier := service.NewClassifier(cfg.Pipeline.ResolutionWindow)
	reports := service.NewReportService(db, cfg.Pipeline.DedupThreshold, cfg.Pipeline.WriteBatchSize)
	ingest := service.NewIngestService(db, resolver, classifier, engine, reports, cfg.Pipeline.WriteBatchSize)
	roster := service.NewRosterService(db)
	unifier := service.NewUnifier(db)
	authSvc := service.NewAuthService(db)

	authH := handler.NewAuthHandler(authSvc)
	importH := handler.NewImportHandler(db, ingest, roster)
	reportH := handler.NewReportHandler(db, reports)
	unifyH := handler.NewUnifyHandler(unifier, reports)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.POST("/api/login", authH.Login)
	api := r.Group("/api", middleware.JWTAuth())
	api.POST("/import", importH.Upload)
	api.GET("/imports", importH.List)
	api.POST("/imports/:id/retry", importH.Retry)
	api.POST("/roster", importH.RosterUpload)
	api.GET("/reports", reportH.List)
	api.GET("/reports/export", reportH.Export)
	api.GET("/highlights", reportH.Highlights)
	api.GET("/files/:name", reportH.DownloadFile)
	api.POST("/stats/recompute", reportH.RecomputeStats)
	api.POST("/unify/preview", unifyH.Preview)
	api.POST("/unify/execute", unifyH.Execute)

	slog.Info("server starting", "addr", cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		slog.Error("server failed", "err", err)
	}
}
