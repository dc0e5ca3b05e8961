package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casekit/evidence-extractor/constants"
	"github.com/casekit/evidence-extractor/internal/entity"
	"github.com/casekit/evidence-extractor/internal/llm"
	"github.com/casekit/evidence-extractor/internal/rasterize"
	"github.com/casekit/evidence-extractor/internal/recognize"
)

// fakeStore records every mutation in order so tests can assert on the exact
// state-machine walk.
type fakeStore struct {
	c *entity.Case

	events       []string
	statuses     []constants.CaseStatus
	stageDetails json.RawMessage
	extracted    json.RawMessage
	failedMsg    string
	getErr       error
}

func (f *fakeStore) GetCase(_ context.Context, id uuid.UUID) (*entity.Case, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.events = append(f.events, "get")
	return f.c, nil
}

func (f *fakeStore) SetStatus(_ context.Context, _ uuid.UUID, status constants.CaseStatus) error {
	f.events = append(f.events, "status:"+string(status))
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) SaveStageResults(_ context.Context, _ uuid.UUID, _, _ string, details json.RawMessage) error {
	f.events = append(f.events, "stage_results")
	f.stageDetails = details
	return nil
}

func (f *fakeStore) SaveExtraction(_ context.Context, _ uuid.UUID, extracted json.RawMessage, _ time.Time) error {
	f.events = append(f.events, "extraction")
	f.extracted = extracted
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, _ uuid.UUID, message string) error {
	f.events = append(f.events, "failed")
	f.failedMsg = message
	return nil
}

// pageRunner fakes pdftoppm by materializing page files at the output prefix.
type pageRunner struct {
	pages int
	err   error
}

func (r *pageRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	if r.err != nil {
		return nil, []byte("render broke"), r.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= r.pages; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte(fmt.Sprintf("png-%d", i)), 0o644); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

type okProvider struct{}

func (okProvider) Authenticate(context.Context) (string, error) { return "tok", nil }
func (okProvider) Recognize(_ context.Context, png []byte, _ string) (string, error) {
	return "ocr of " + string(png), nil
}

type okFallback struct{}

func (okFallback) Recognize(context.Context, []byte) (string, error) { return "fb", nil }

type okAnalyzer struct{}

func (okAnalyzer) AnalyzePage(_ context.Context, png []byte) (string, error) {
	return "vision of " + string(png), nil
}

func newTestProcessor(store CaseStore, runner rasterize.Runner) *Processor {
	raster := rasterize.NewRasterizer(rasterize.Config{}, runner, nil)
	ocr := recognize.NewOCRStage(okProvider{}, okFallback{}, recognize.NewIntervalLimiter(time.Millisecond), nil)
	vlm := recognize.NewVLMStage(okAnalyzer{}, 3, nil)
	engine := llm.NewEngine(nil, nil) // mock mode, deterministic
	return NewProcessor(store, raster, ocr, vlm, engine, 0, nil)
}

func storedCase(t *testing.T) *entity.Case {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))
	return &entity.Case{
		ID:       uuid.New(),
		FilePath: path,
		Status:   constants.CaseStatusUploaded,
	}
}

func TestProcessCase_HappyPath(t *testing.T) {
	c := storedCase(t)
	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{pages: 2})

	require.NoError(t, p.ProcessCase(context.Background(), c.ID))

	assert.Equal(t, []constants.CaseStatus{
		constants.CaseStatusProcessing,
		constants.CaseStatusLLMProcessing,
		constants.CaseStatusCompleted,
	}, store.statuses)

	// stage output lands before the llm_processing transition
	assert.Equal(t, []string{
		"get",
		"status:processing",
		"stage_results",
		"status:llm_processing",
		"extraction",
		"status:completed",
	}, store.events)

	var details entity.ProcessingDetails
	require.NoError(t, json.Unmarshal(store.stageDetails, &details))
	assert.Equal(t, 2, details.PageCount)
	assert.Len(t, details.OCRPages, 2)
	assert.Len(t, details.VLMPages, 2)
	assert.Equal(t, 2, details.OCRStats.SuccessfulPages)

	var record map[string]any
	require.NoError(t, json.Unmarshal(store.extracted, &record))
	assert.Equal(t, "张三", record["name"])
	_, hasErr := record["error"]
	assert.False(t, hasErr)
}

func TestProcessCase_RenderFailure(t *testing.T) {
	c := storedCase(t)
	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{err: errors.New("exit status 1")})

	err := p.ProcessCase(context.Background(), c.ID)
	require.Error(t, err)

	assert.Equal(t, []constants.CaseStatus{constants.CaseStatusProcessing}, store.statuses)
	assert.Contains(t, store.failedMsg, "rasterize document")
	assert.Empty(t, store.extracted)
}

func TestProcessCase_LoadFailureDoesNotMarkFailed(t *testing.T) {
	store := &fakeStore{getErr: errors.New("connection reset")}
	p := newTestProcessor(store, &pageRunner{pages: 1})

	err := p.ProcessCase(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Empty(t, store.failedMsg)
	assert.Empty(t, store.statuses)
}

func TestProcessCase_RejectsConcurrentRun(t *testing.T) {
	c := storedCase(t)
	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{pages: 1})

	require.True(t, p.acquire(c.ID))
	defer p.release(c.ID)

	err := p.ProcessCase(context.Background(), c.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already being processed")
	assert.Empty(t, store.events)
}

func TestProcessCase_ReleasesGuardAfterRun(t *testing.T) {
	c := storedCase(t)
	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{pages: 1})

	require.NoError(t, p.ProcessCase(context.Background(), c.ID))
	require.NoError(t, p.ProcessCase(context.Background(), c.ID))
}

func TestProcessCase_CaseFieldConfigFlowsToEngine(t *testing.T) {
	c := storedCase(t)
	fields := []llm.FieldSpec{
		{Key: "name", Label: "姓名", Type: constants.FieldText, Required: true},
	}
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	c.ExtractionFields = raw

	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{pages: 1})

	require.NoError(t, p.ProcessCase(context.Background(), c.ID))

	var record map[string]any
	require.NoError(t, json.Unmarshal(store.extracted, &record))
	assert.Len(t, record, 1)
	assert.Equal(t, "张三", record["name"])
}

func TestProcessCase_MalformedFieldConfigFails(t *testing.T) {
	c := storedCase(t)
	c.ExtractionFields = json.RawMessage(`{"not":"a list"}`)
	store := &fakeStore{c: c}
	p := newTestProcessor(store, &pageRunner{pages: 1})

	err := p.ProcessCase(context.Background(), c.ID)
	require.Error(t, err)
	assert.Contains(t, store.failedMsg, "decode extraction fields")
}
