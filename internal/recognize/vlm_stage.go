package recognize

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/casekit/evidence-extractor/internal/rasterize"
)

// DefaultVLMPages bounds the vision-model fan-out when no limit is configured.
const DefaultVLMPages = 3

// VLMStage analyzes a bounded prefix of the page sequence concurrently.
// Failure domains are per page: one page's error becomes a failed PageResult
// without cancelling the rest.
type VLMStage struct {
	Analyzer PageAnalyzer
	MaxPages int
	Logger   *slog.Logger
}

func NewVLMStage(analyzer PageAnalyzer, maxPages int, logger *slog.Logger) *VLMStage {
	if maxPages <= 0 {
		maxPages = DefaultVLMPages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VLMStage{Analyzer: analyzer, MaxPages: maxPages, Logger: logger}
}

// Run dispatches min(MaxPages, len(images)) analyses concurrently and joins
// them all before assembling results by ascending page number. Completion
// order never affects the output.
func (s *VLMStage) Run(ctx context.Context, images []rasterize.PageImage) StageResult {
	k := s.MaxPages
	if len(images) < k {
		k = len(images)
	}

	pages := make([]PageResult, k)
	var g errgroup.Group
	for i := 0; i < k; i++ {
		img := images[i]
		idx := i
		g.Go(func() error {
			pages[idx] = s.analyzePage(ctx, img)
			return nil
		})
	}
	// Tasks absorb their own failures, so Wait is purely a join.
	_ = g.Wait()

	res := BuildVLMResult(pages)
	s.Logger.Info("vlm.stage.done",
		"total_pages", res.TotalPages,
		"successful_pages", res.SuccessfulPages,
		"summary_bytes", res.TotalTextLength,
	)
	return res
}

func (s *VLMStage) analyzePage(ctx context.Context, img rasterize.PageImage) PageResult {
	text, err := s.Analyzer.AnalyzePage(ctx, img.PNG)
	if err != nil {
		s.Logger.Warn("vlm.page.failed", "page", img.PageNum, "error", err)
		return PageResult{
			PageNum: img.PageNum,
			Method:  MethodVLM,
			Text:    "",
			Error:   err.Error(),
		}
	}

	s.Logger.Debug("vlm.page.ok", "page", img.PageNum, "text_len", len(text))
	return PageResult{
		PageNum:    img.PageNum,
		Method:     MethodVLM,
		Success:    true,
		Text:       text,
		TextLength: len(text),
	}
}
