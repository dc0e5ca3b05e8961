package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casekit/evidence-extractor/constants"
	"github.com/casekit/evidence-extractor/internal/entity"
	"github.com/casekit/evidence-extractor/internal/llm"
	"github.com/casekit/evidence-extractor/internal/rasterize"
	"github.com/casekit/evidence-extractor/internal/recognize"
)

// CaseStore is the persistence surface the processor drives. Implemented by
// the repository; faked in tests.
type CaseStore interface {
	GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.CaseStatus) error
	SaveStageResults(ctx context.Context, id uuid.UUID, ocrSummary, vlmSummary string, details json.RawMessage) error
	SaveExtraction(ctx context.Context, id uuid.UUID, extracted json.RawMessage, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
}

// Processor sequences the extraction pipeline for a single case:
// uploaded -> processing -> llm_processing -> completed, with failed reachable
// from the two working states. Per-page errors are absorbed by the stages;
// only document-level failures land here.
type Processor struct {
	Store    CaseStore
	Raster   *rasterize.Rasterizer
	OCR      *recognize.OCRStage
	VLM      *recognize.VLMStage
	Engine   *llm.Engine
	MaxPages int // raster page cap, 0 = all
	Logger   *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

func NewProcessor(store CaseStore, raster *rasterize.Rasterizer, ocr *recognize.OCRStage, vlm *recognize.VLMStage, engine *llm.Engine, maxPages int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Store:    store,
		Raster:   raster,
		OCR:      ocr,
		VLM:      vlm,
		Engine:   engine,
		MaxPages: maxPages,
		Logger:   logger,
		active:   make(map[uuid.UUID]struct{}),
	}
}

// ProcessCase runs the full pipeline for caseID. A second run against a case
// that is still in flight is rejected rather than interleaved.
func (p *Processor) ProcessCase(ctx context.Context, caseID uuid.UUID) error {
	if !p.acquire(caseID) {
		p.Logger.Warn("pipeline.case_busy", "case_id", caseID)
		return fmt.Errorf("case %s is already being processed", caseID)
	}
	defer p.release(caseID)

	c, err := p.Store.GetCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}

	p.Logger.Info("pipeline.start", "case_id", caseID, "file", c.FilePath)
	if err := p.Store.SetStatus(ctx, caseID, constants.CaseStatusProcessing); err != nil {
		return fmt.Errorf("set status processing: %w", err)
	}

	images, err := p.Raster.Render(ctx, c.FilePath, p.MaxPages)
	if err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("rasterize document: %w", err))
	}

	ocrRes := p.OCR.Run(ctx, images)
	vlmRes := p.VLM.Run(ctx, images)

	details, err := json.Marshal(entity.ProcessingDetails{
		PageCount: len(images),
		OCRPages:  ocrRes.Pages,
		VLMPages:  vlmRes.Pages,
		OCRStats:  entity.StageStats{TotalPages: ocrRes.TotalPages, SuccessfulPages: ocrRes.SuccessfulPages},
		VLMStats:  entity.StageStats{TotalPages: vlmRes.TotalPages, SuccessfulPages: vlmRes.SuccessfulPages},
	})
	if err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("encode processing details: %w", err))
	}

	// Stage output is persisted before extraction starts, so a later abort
	// never loses recognition work.
	if err := p.Store.SaveStageResults(ctx, caseID, ocrRes.Summary, vlmRes.Summary, details); err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("persist stage results: %w", err))
	}
	if err := p.Store.SetStatus(ctx, caseID, constants.CaseStatusLLMProcessing); err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("set status llm_processing: %w", err))
	}

	fields, err := decodeFields(c.ExtractionFields)
	if err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("decode extraction fields: %w", err))
	}
	customPrompt := ""
	if c.CustomPrompt != nil {
		customPrompt = *c.CustomPrompt
	}

	record := p.Engine.Extract(ctx, llm.ExtractRequest{
		CombinedText: recognize.CombineSummaries(ocrRes, vlmRes),
		Fields:       fields,
		CustomPrompt: customPrompt,
	})

	extracted, err := json.Marshal(record)
	if err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("encode extracted record: %w", err))
	}
	if err := p.Store.SaveExtraction(ctx, caseID, extracted, time.Now().UTC()); err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("persist extraction: %w", err))
	}
	if err := p.Store.SetStatus(ctx, caseID, constants.CaseStatusCompleted); err != nil {
		return p.fail(ctx, caseID, fmt.Errorf("set status completed: %w", err))
	}

	p.Logger.Info("pipeline.completed",
		"case_id", caseID,
		"pages", len(images),
		"ocr_ok", ocrRes.SuccessfulPages,
		"vlm_ok", vlmRes.SuccessfulPages,
	)
	return nil
}

func (p *Processor) fail(ctx context.Context, caseID uuid.UUID, cause error) error {
	p.Logger.Error("pipeline.failed", "case_id", caseID, "error", cause)
	if err := p.Store.MarkFailed(ctx, caseID, cause.Error()); err != nil {
		p.Logger.Error("pipeline.mark_failed_error", "case_id", caseID, "error", err)
	}
	return cause
}

func (p *Processor) acquire(caseID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.active[caseID]; busy {
		return false
	}
	p.active[caseID] = struct{}{}
	return true
}

func (p *Processor) release(caseID uuid.UUID) {
	p.mu.Lock()
	delete(p.active, caseID)
	p.mu.Unlock()
}

func decodeFields(raw json.RawMessage) ([]llm.FieldSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields []llm.FieldSpec
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
