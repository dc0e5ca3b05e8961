package rasterize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/casekit/evidence-extractor/internal/common"
)

// PageImage is one rendered page held in memory. Page numbers are 1-based and
// sequential; the slice order always matches the document order.
type PageImage struct {
	PageNum int
	PNG     []byte
}

// Info is the document-level metadata probed before rendering.
type Info struct {
	PageCount int
	FileSize  int64
	FileName  string
}

// Config for the rasterizer. DPI 144 renders at 2x the 72dpi PDF baseline,
// which measurably helps both recognition modalities.
type Config struct {
	Pdftoppm string
	Pdfinfo  string
	DPI      int
}

type Rasterizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, runner Runner, logger *slog.Logger) *Rasterizer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdfinfo == "" {
		cfg.Pdfinfo = "pdfinfo"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 144
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{cfg: cfg, runner: runner, logger: logger}
}

// Render converts the whole document into an ordered page-image sequence.
// maxPages > 0 caps the number of rendered pages. Rendering is all-or-nothing:
// any failure aborts with an error wrapping common.ErrRender.
func (r *Rasterizer) Render(ctx context.Context, path string, maxPages int) ([]PageImage, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", common.ErrRender, path, err)
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", common.ErrRender, path)
	}

	tmpDir, err := os.MkdirTemp("", "ev-raster-*")
	if err != nil {
		return nil, fmt.Errorf("%w: temp dir: %v", common.ErrRender, err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("raster.tmpdir.remove_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, prefix)

	// pdftoppm -r <dpi> -png [-l <n>] <in.pdf> <tmp/page>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", common.ErrRender, err, truncate(string(errb), 1<<10))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if maxPages > 0 && len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images for %s", common.ErrRender, path)
	}

	images := make([]PageImage, 0, len(matches))
	for i, m := range matches {
		png, err := os.ReadFile(m)
		if err != nil {
			return nil, fmt.Errorf("%w: read rendered page %d: %v", common.ErrRender, i+1, err)
		}
		images = append(images, PageImage{PageNum: i + 1, PNG: png})
	}

	r.logger.Info("raster.ok", "path", path, "pages", len(images), "dpi", r.cfg.DPI)
	return images, nil
}

// Probe reads document metadata without rendering. Failures here are not
// fatal to a case; callers may fall back to zero values.
func (r *Rasterizer) Probe(ctx context.Context, path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}

	out, errb, err := r.runner.Run(ctx, r.cfg.Pdfinfo, path)
	if err != nil {
		return Info{}, fmt.Errorf("pdfinfo: %w: %s", err, truncate(string(errb), 1<<10))
	}

	info := Info{FileSize: st.Size(), FileName: filepath.Base(path)}
	for _, line := range strings.Split(string(out), "\n") {
		if name, val, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(name) == "Pages" {
			if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
				info.PageCount = n
			}
		}
	}
	return info, nil
}
