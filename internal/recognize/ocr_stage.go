package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/rasterize"
)

// tokenCache holds the provider bearer token across pages and pipeline runs.
// Mutex-guarded: concurrent case runs share one stage instance.
type tokenCache struct {
	provider OCRProvider

	mu    sync.Mutex
	token string
}

func (c *tokenCache) get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	tok, err := c.provider.Authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	return tok, nil
}

func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// OCRStage recognizes text page by page through the rate-limited primary
// provider, falling back to the local engine per page. Pages are processed
// strictly sequentially; token caching and QPS pacing depend on that.
type OCRStage struct {
	Provider OCRProvider
	Fallback FallbackEngine
	Limiter  *IntervalLimiter
	Logger   *slog.Logger

	tokens *tokenCache
}

func NewOCRStage(provider OCRProvider, fallback FallbackEngine, limiter *IntervalLimiter, logger *slog.Logger) *OCRStage {
	if limiter == nil {
		limiter = NewIntervalLimiter(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{
		Provider: provider,
		Fallback: fallback,
		Limiter:  limiter,
		Logger:   logger,
		tokens:   &tokenCache{provider: provider},
	}
}

// Run processes every page in order. A page's failure never aborts the stage;
// each page yields exactly one PageResult.
func (s *OCRStage) Run(ctx context.Context, images []rasterize.PageImage) StageResult {
	pages := make([]PageResult, 0, len(images))
	for _, img := range images {
		pages = append(pages, s.recognizePage(ctx, img))
	}

	res := BuildOCRResult(pages)
	s.Logger.Info("ocr.stage.done",
		"total_pages", res.TotalPages,
		"successful_pages", res.SuccessfulPages,
		"summary_bytes", res.TotalTextLength,
	)
	return res
}

func (s *OCRStage) recognizePage(ctx context.Context, img rasterize.PageImage) PageResult {
	if err := s.Limiter.Acquire(ctx); err != nil {
		return failedPage(img.PageNum, fmt.Errorf("rate limiter: %w", err))
	}

	text, err := s.callPrimary(ctx, img)
	if err == nil {
		s.Logger.Debug("ocr.page.ok", "page", img.PageNum, "method", MethodPrimary, "text_len", len(text))
		return PageResult{
			PageNum:    img.PageNum,
			Method:     MethodPrimary,
			Success:    true,
			Text:       text,
			TextLength: len(text),
		}
	}
	s.Logger.Warn("ocr.page.primary_failed", "page", img.PageNum, "error", err)

	fbText, fbErr := s.Fallback.Recognize(ctx, img.PNG)
	if fbErr != nil {
		s.Logger.Error("ocr.page.failed", "page", img.PageNum, "primary_error", err, "fallback_error", fbErr)
		return failedPage(img.PageNum, fmt.Errorf("primary: %v; fallback: %v", err, fbErr))
	}

	s.Logger.Debug("ocr.page.ok", "page", img.PageNum, "method", MethodFallback, "text_len", len(fbText))
	return PageResult{
		PageNum:    img.PageNum,
		Method:     MethodFallback,
		Success:    true,
		Text:       fbText,
		TextLength: len(fbText),
		Error:      fmt.Sprintf("primary OCR failed, used fallback: %v", err),
	}
}

// callPrimary obtains the cached token, calls the provider, and retries once
// with a fresh token when the provider reports an auth failure.
func (s *OCRStage) callPrimary(ctx context.Context, img rasterize.PageImage) (string, error) {
	token, err := s.tokens.get(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}

	text, err := s.Provider.Recognize(ctx, img.PNG, token)
	if err == nil {
		return text, nil
	}
	if !errors.Is(err, common.ErrAuth) {
		return "", err
	}

	s.Logger.Info("ocr.token.refresh", "page", img.PageNum)
	s.tokens.invalidate()
	token, terr := s.tokens.get(ctx)
	if terr != nil {
		return "", fmt.Errorf("refresh token: %w", terr)
	}
	return s.Provider.Recognize(ctx, img.PNG, token)
}

func failedPage(pageNum int, err error) PageResult {
	return PageResult{
		PageNum: pageNum,
		Method:  MethodFailed,
		Text:    "",
		Error:   err.Error(),
	}
}
