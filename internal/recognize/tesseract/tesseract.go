// Package tesseract wraps the locally-installed tesseract binary as the
// fallback recognition engine. No authentication, no quota.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/casekit/evidence-extractor/internal/rasterize"
)

type Config struct {
	Binary    string // default "tesseract"
	Languages string // default "chi_sim+eng"
}

type Engine struct {
	cfg    Config
	runner rasterize.Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, runner rasterize.Runner, logger *slog.Logger) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "chi_sim+eng"
	}
	if runner == nil {
		runner = rasterize.NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, runner: runner, logger: logger}
}

// Recognize runs tesseract over one page image and returns the raw text.
func (e *Engine) Recognize(ctx context.Context, png []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ev-tess-*")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("tesseract.tmpdir.remove_failed", "dir", tmpDir, "error", err)
		}
	}()

	imgPath := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(imgPath, png, 0o600); err != nil {
		return "", fmt.Errorf("write page image: %w", err)
	}

	// tesseract <img> stdout -l <langs>
	out, errb, err := e.runner.Run(ctx, e.cfg.Binary, imgPath, "stdout", "-l", e.cfg.Languages)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}
