package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casekit/evidence-extractor/internal/async"
	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/export"
	"github.com/casekit/evidence-extractor/internal/llm"
	"github.com/casekit/evidence-extractor/internal/llm/openai"
	"github.com/casekit/evidence-extractor/internal/pipeline"
	"github.com/casekit/evidence-extractor/internal/rasterize"
	"github.com/casekit/evidence-extractor/internal/recognize"
	"github.com/casekit/evidence-extractor/internal/recognize/baidu"
	"github.com/casekit/evidence-extractor/internal/recognize/tesseract"
	"github.com/casekit/evidence-extractor/internal/repository"
	"github.com/casekit/evidence-extractor/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, db, 5*time.Second); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}

	cases := repository.NewCaseRepository(db, cfg.Database.DSN, logger)
	templates := repository.NewTemplateRepository(db, cfg.Database.DSN, logger)

	raster := rasterize.NewRasterizer(rasterize.Config{
		Pdftoppm: cfg.Raster.Pdftoppm,
		Pdfinfo:  cfg.Raster.Pdfinfo,
		DPI:      cfg.Raster.DPI,
	}, nil, logger)

	ocrProvider := baidu.NewClient(baidu.Config{
		APIKey:    cfg.OCR.APIKey,
		SecretKey: cfg.OCR.SecretKey,
		BaseURL:   cfg.OCR.BaseURL,
		Timeout:   cfg.OCR.Timeout,
	}, logger)
	if !ocrProvider.Configured() {
		logger.Warn("primary OCR credentials missing, every page will use the fallback engine")
	}
	fallback := tesseract.NewEngine(tesseract.Config{
		Binary:    cfg.OCR.Tesseract,
		Languages: cfg.OCR.Languages,
	}, rasterize.NewExecRunner(), logger)
	limiter := recognize.NewIntervalLimiter(cfg.OCR.MinInterval)
	ocrStage := recognize.NewOCRStage(ocrProvider, fallback, limiter, logger)

	llmClient := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.VLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	vlmStage := recognize.NewVLMStage(llmClient, cfg.VLM.MaxPages, logger)

	var completer llm.Completer
	if llmClient.Configured() {
		completer = llmClient
	} else {
		logger.Warn("no extraction model configured, serving mock extraction records")
	}
	engine := llm.NewEngine(completer, logger)

	processor := pipeline.NewProcessor(cases, raster, ocrStage, vlmStage, engine, cfg.Raster.MaxPages, logger)
	queue := async.NewQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.ProcessTimeout),
	)

	exporter := export.NewService(logger)
	api := server.NewServer(cases, templates, queue, raster, exporter, cfg.Server.UploadDir, logger)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		queue.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("evidenced listening", "addr", cfg.Server.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http serve error", "error", err)
		os.Exit(1)
	}
	logger.Info("evidenced stopped")
}
