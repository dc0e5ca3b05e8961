package rasterize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casekit/evidence-extractor/internal/common"
)

// stubRunner fakes pdftoppm by writing page files next to the output prefix,
// and pdfinfo by returning canned metadata.
type stubRunner struct {
	pages      int
	honorLimit bool
	failWith   error
	pdfinfoOut string
	calls      [][]string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	if s.failWith != nil {
		return nil, []byte("stub failure"), s.failWith
	}
	if s.pdfinfoOut != "" && len(args) == 1 {
		return []byte(s.pdfinfoOut), nil, nil
	}

	prefix := args[len(args)-1]
	n := s.pages
	if s.honorLimit {
		for i, a := range args {
			if a == "-l" && i+1 < len(args) {
				if lim, err := strconv.Atoi(args[i+1]); err == nil && lim < n {
					n = lim
				}
			}
		}
	}
	for i := 1; i <= n; i++ {
		content := []byte(fmt.Sprintf("png-%d", i))
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), content, 0o644); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))
	return path
}

func TestRender_OrderedPages(t *testing.T) {
	runner := &stubRunner{pages: 4}
	r := NewRasterizer(Config{DPI: 144}, runner, nil)

	images, err := r.Render(context.Background(), writeTestPDF(t), 0)
	require.NoError(t, err)
	require.Len(t, images, 4)
	for i, img := range images {
		assert.Equal(t, i+1, img.PageNum)
		assert.Equal(t, []byte(fmt.Sprintf("png-%d", i+1)), img.PNG)
	}
}

func TestRender_MaxPagesCapsOutput(t *testing.T) {
	// Stub ignores -l to mimic a renderer that emits every page anyway.
	runner := &stubRunner{pages: 5}
	r := NewRasterizer(Config{}, runner, nil)

	images, err := r.Render(context.Background(), writeTestPDF(t), 2)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, 1, images[0].PageNum)
	assert.Equal(t, 2, images[1].PageNum)

	// -l must still be passed through to pdftoppm.
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], "-l")
}

func TestRender_CommandFailure(t *testing.T) {
	runner := &stubRunner{failWith: errors.New("exit status 1")}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Render(context.Background(), writeTestPDF(t), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRender)
}

func TestRender_NoImagesProduced(t *testing.T) {
	runner := &stubRunner{pages: 0}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Render(context.Background(), writeTestPDF(t), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRender)
}

func TestRender_MissingFile(t *testing.T) {
	r := NewRasterizer(Config{}, &stubRunner{pages: 1}, nil)

	_, err := r.Render(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRender)
}

func TestRender_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	r := NewRasterizer(Config{}, &stubRunner{pages: 1}, nil)
	_, err := r.Render(context.Background(), path, 0)
	assert.ErrorIs(t, err, common.ErrRender)
}

func TestProbe_ParsesPageCount(t *testing.T) {
	runner := &stubRunner{pdfinfoOut: "Title:          contract\nPages:          7\nEncrypted:      no\n"}
	r := NewRasterizer(Config{}, runner, nil)

	path := writeTestPDF(t)
	info, err := r.Probe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, info.PageCount)
	assert.Equal(t, "doc.pdf", info.FileName)
	assert.Greater(t, info.FileSize, int64(0))
}

func TestProbe_CommandFailure(t *testing.T) {
	runner := &stubRunner{failWith: errors.New("exit status 99")}
	r := NewRasterizer(Config{}, runner, nil)

	_, err := r.Probe(context.Background(), writeTestPDF(t))
	require.Error(t, err)
}
