package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/llm"
	"github.com/casekit/evidence-extractor/internal/llm/openai"
	"github.com/casekit/evidence-extractor/internal/rasterize"
	"github.com/casekit/evidence-extractor/internal/recognize"
	"github.com/casekit/evidence-extractor/internal/recognize/baidu"
	"github.com/casekit/evidence-extractor/internal/recognize/tesseract"
)

// extract runs the whole pipeline against one local PDF without touching the
// database and prints the extracted record to stdout.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "extract <file.pdf>")
		os.Exit(2)
	}
	path := os.Args[1]
	if _, err := os.Stat(path); err != nil {
		logger.Error("cannot read input file", "path", path, "error", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	raster := rasterize.NewRasterizer(rasterize.Config{
		Pdftoppm: cfg.Raster.Pdftoppm,
		Pdfinfo:  cfg.Raster.Pdfinfo,
		DPI:      cfg.Raster.DPI,
	}, nil, logger)

	images, err := raster.Render(ctx, path, cfg.Raster.MaxPages)
	if err != nil {
		logger.Error("render failed", "path", path, "error", err)
		os.Exit(1)
	}

	ocrProvider := baidu.NewClient(baidu.Config{
		APIKey:    cfg.OCR.APIKey,
		SecretKey: cfg.OCR.SecretKey,
		BaseURL:   cfg.OCR.BaseURL,
		Timeout:   cfg.OCR.Timeout,
	}, logger)
	fallback := tesseract.NewEngine(tesseract.Config{
		Binary:    cfg.OCR.Tesseract,
		Languages: cfg.OCR.Languages,
	}, rasterize.NewExecRunner(), logger)
	ocrStage := recognize.NewOCRStage(ocrProvider, fallback, recognize.NewIntervalLimiter(cfg.OCR.MinInterval), logger)

	llmClient := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		VisionModel: cfg.VLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	vlmStage := recognize.NewVLMStage(llmClient, cfg.VLM.MaxPages, logger)

	ocrResult := ocrStage.Run(ctx, images)
	vlmResult := vlmStage.Run(ctx, images)

	var completer llm.Completer
	if llmClient.Configured() {
		completer = llmClient
	}
	engine := llm.NewEngine(completer, logger)

	record := engine.Extract(ctx, llm.ExtractRequest{
		CombinedText: recognize.CombineSummaries(ocrResult, vlmResult),
		Fields:       llm.DefaultExtractionFields(),
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
