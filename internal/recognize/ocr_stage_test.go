package recognize

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/rasterize"
)

type fakeProvider struct {
	authCalls int
	authErr   error
	recognize func(png []byte, token string) (string, error)
}

func (f *fakeProvider) Authenticate(context.Context) (string, error) {
	f.authCalls++
	if f.authErr != nil {
		return "", f.authErr
	}
	return fmt.Sprintf("token-%d", f.authCalls), nil
}

func (f *fakeProvider) Recognize(_ context.Context, png []byte, token string) (string, error) {
	return f.recognize(png, token)
}

type fakeFallback struct {
	calls int
	err   error
	text  string
}

func (f *fakeFallback) Recognize(context.Context, []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func testImages(n int) []rasterize.PageImage {
	images := make([]rasterize.PageImage, n)
	for i := range images {
		images[i] = rasterize.PageImage{PageNum: i + 1, PNG: []byte(fmt.Sprintf("page-%d", i+1))}
	}
	return images
}

func fastStage(p OCRProvider, fb FallbackEngine) *OCRStage {
	return NewOCRStage(p, fb, NewIntervalLimiter(time.Millisecond), nil)
}

func TestOCRStage_AllPrimarySuccess(t *testing.T) {
	provider := &fakeProvider{
		recognize: func(png []byte, _ string) (string, error) {
			return "text for " + string(png), nil
		},
	}
	fallback := &fakeFallback{text: "unused"}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(3))

	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 3, res.SuccessfulPages)
	assert.Zero(t, fallback.calls)
	for i, p := range res.Pages {
		assert.Equal(t, i+1, p.PageNum)
		assert.Equal(t, MethodPrimary, p.Method)
		assert.True(t, p.Success)
		assert.Empty(t, p.Error)
	}
	// token fetched once and cached across pages
	assert.Equal(t, 1, provider.authCalls)
}

func TestOCRStage_EveryPageUsesFallback(t *testing.T) {
	provider := &fakeProvider{
		recognize: func([]byte, string) (string, error) {
			return "", fmt.Errorf("%w: quota exhausted", common.ErrRecognition)
		},
	}
	fallback := &fakeFallback{text: "fallback text"}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(4))

	assert.Equal(t, 4, res.SuccessfulPages)
	assert.Equal(t, 4, fallback.calls)
	for _, p := range res.Pages {
		assert.Equal(t, MethodFallback, p.Method)
		assert.True(t, p.Success)
		assert.Equal(t, "fallback text", p.Text)
		assert.Contains(t, p.Error, "primary OCR failed, used fallback")
	}
}

func TestOCRStage_TokenRefreshOnAuthFailure(t *testing.T) {
	provider := &fakeProvider{}
	provider.recognize = func(_ []byte, token string) (string, error) {
		if token == "token-1" {
			return "", fmt.Errorf("%w: token expired", common.ErrAuth)
		}
		return "recovered", nil
	}
	fallback := &fakeFallback{err: errors.New("should not be reached")}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(1))

	require.Equal(t, 1, res.SuccessfulPages)
	assert.Equal(t, MethodPrimary, res.Pages[0].Method)
	assert.Equal(t, "recovered", res.Pages[0].Text)
	assert.Equal(t, 2, provider.authCalls)
	assert.Zero(t, fallback.calls)
}

func TestOCRStage_PageFailureIsIsolated(t *testing.T) {
	provider := &fakeProvider{
		recognize: func(png []byte, _ string) (string, error) {
			if string(png) == "page-2" {
				return "", fmt.Errorf("%w: unreadable page", common.ErrRecognition)
			}
			return "ok", nil
		},
	}
	fallback := &fakeFallback{err: errors.New("fallback broken too")}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(3))

	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, 2, res.SuccessfulPages)

	failed := res.Pages[1]
	assert.Equal(t, 2, failed.PageNum)
	assert.Equal(t, MethodFailed, failed.Method)
	assert.False(t, failed.Success)
	assert.Empty(t, failed.Text)
	assert.NotEmpty(t, failed.Error)

	assert.True(t, res.Pages[0].Success)
	assert.True(t, res.Pages[2].Success)
}

func TestOCRStage_AuthFailureFallsBack(t *testing.T) {
	provider := &fakeProvider{
		authErr: fmt.Errorf("%w: bad credentials", common.ErrAuth),
		recognize: func([]byte, string) (string, error) {
			return "", errors.New("never reached")
		},
	}
	fallback := &fakeFallback{text: "local result"}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(2))

	assert.Equal(t, 2, res.SuccessfulPages)
	for _, p := range res.Pages {
		assert.Equal(t, MethodFallback, p.Method)
		assert.Equal(t, "local result", p.Text)
	}
}

func TestOCRStage_SummaryContainsOnlySuccessfulPages(t *testing.T) {
	provider := &fakeProvider{
		recognize: func(png []byte, _ string) (string, error) {
			if string(png) == "page-1" {
				return "first page content", nil
			}
			return "", fmt.Errorf("%w: noise", common.ErrRecognition)
		},
	}
	fallback := &fakeFallback{err: errors.New("no fallback")}

	res := fastStage(provider, fallback).Run(context.Background(), testImages(2))

	assert.Contains(t, res.Summary, "=== Page 1 ===")
	assert.Contains(t, res.Summary, "first page content")
	assert.NotContains(t, res.Summary, "=== Page 2 ===")
	assert.Equal(t, len(res.Summary), res.TotalTextLength)
}
