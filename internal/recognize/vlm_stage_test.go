package recognize

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	analyze func(png []byte) (string, error)
}

func (f *fakeAnalyzer) AnalyzePage(_ context.Context, png []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.analyze(png)
}

func TestVLMStage_BoundedFanOut(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyze: func(png []byte) (string, error) {
			return "analysis of " + string(png), nil
		},
	}
	stage := NewVLMStage(analyzer, 3, nil)

	res := stage.Run(context.Background(), testImages(5))

	// Only the first MaxPages pages are analyzed.
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 3, res.SuccessfulPages)
	assert.Equal(t, 3, analyzer.calls)
	for i, p := range res.Pages {
		assert.Equal(t, i+1, p.PageNum)
		assert.Equal(t, MethodVLM, p.Method)
	}
}

func TestVLMStage_FewerPagesThanLimit(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyze: func([]byte) (string, error) { return "ok", nil },
	}
	stage := NewVLMStage(analyzer, 3, nil)

	res := stage.Run(context.Background(), testImages(1))

	assert.Equal(t, 1, res.TotalPages)
	assert.Equal(t, 1, res.SuccessfulPages)
	assert.Equal(t, 1, analyzer.calls)
}

func TestVLMStage_OrderIndependentOfCompletion(t *testing.T) {
	// Page 1 finishes last; results must still come back in page order.
	analyzer := &fakeAnalyzer{
		analyze: func(png []byte) (string, error) {
			if string(png) == "page-1" {
				time.Sleep(30 * time.Millisecond)
			}
			return "analysis " + string(png), nil
		},
	}
	stage := NewVLMStage(analyzer, 3, nil)

	res := stage.Run(context.Background(), testImages(3))

	require.Len(t, res.Pages, 3)
	for i, p := range res.Pages {
		assert.Equal(t, i+1, p.PageNum)
		assert.Equal(t, fmt.Sprintf("analysis page-%d", i+1), p.Text)
	}
}

func TestVLMStage_PageFailureIsIsolated(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyze: func(png []byte) (string, error) {
			if string(png) == "page-2" {
				return "", fmt.Errorf("vision model refused")
			}
			return "fine", nil
		},
	}
	stage := NewVLMStage(analyzer, 3, nil)

	res := stage.Run(context.Background(), testImages(3))

	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.SuccessfulPages)
	assert.False(t, res.Pages[1].Success)
	assert.Empty(t, res.Pages[1].Text)
	assert.Contains(t, res.Pages[1].Error, "refused")
	assert.True(t, res.Pages[0].Success)
	assert.True(t, res.Pages[2].Success)
}

func TestVLMStage_DefaultLimit(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyze: func([]byte) (string, error) { return "x", nil },
	}
	stage := NewVLMStage(analyzer, 0, nil)

	res := stage.Run(context.Background(), testImages(10))
	assert.Equal(t, DefaultVLMPages, res.TotalPages)
}

func TestVLMStage_NoImages(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyze: func([]byte) (string, error) { return "x", nil },
	}
	stage := NewVLMStage(analyzer, 3, nil)

	res := stage.Run(context.Background(), nil)
	assert.Zero(t, res.TotalPages)
	assert.Zero(t, analyzer.calls)
	assert.Empty(t, res.Summary)
}
