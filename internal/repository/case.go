package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/casekit/evidence-extractor/constants"
	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/entity"
)

// CaseRepository is the persistence surface for evidence cases. It is a
// superset of pipeline.CaseStore.
type CaseRepository interface {
	CreateCase(ctx context.Context, c *entity.Case) error
	GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error)
	ListCases(ctx context.Context) ([]*entity.Case, error)
	UpdateConfig(ctx context.Context, id uuid.UUID, fields json.RawMessage, customPrompt *string) error
	SetStatus(ctx context.Context, id uuid.UUID, status constants.CaseStatus) error
	SaveStageResults(ctx context.Context, id uuid.UUID, ocrSummary, vlmSummary string, details json.RawMessage) error
	SaveExtraction(ctx context.Context, id uuid.UUID, extracted json.RawMessage, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	DeleteCase(ctx context.Context, id uuid.UUID) error
}

type caseRepo struct {
	db     *sql.DB
	pg     bool
	logger *slog.Logger
}

func NewCaseRepository(db *sql.DB, dsn string, logger *slog.Logger) CaseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &caseRepo{db: db, pg: isPostgres(dsn), logger: logger}
}

const caseColumns = `id, original_filename, file_path, status, page_count, file_size,
	ocr_text, vlm_text, extracted_info, processing_details,
	extraction_fields, custom_prompt, error_message,
	created_at, updated_at, processed_at`

func (r *caseRepo) CreateCase(ctx context.Context, c *entity.Case) error {
	q := rebind(r.pg, `INSERT INTO evidence_case (`+caseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		c.ID.String(), c.OriginalFilename, c.FilePath, string(c.Status), c.PageCount, c.FileSize,
		c.OCRText, c.VLMText, rawToNull(c.ExtractedInfo), rawToNull(c.ProcessingDetails),
		rawToNull(c.ExtractionFields), c.CustomPrompt, c.ErrorMessage,
		c.CreatedAt, c.UpdatedAt, c.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *caseRepo) GetCase(ctx context.Context, id uuid.UUID) (*entity.Case, error) {
	q := rebind(r.pg, `SELECT `+caseColumns+` FROM evidence_case WHERE id = ?`)
	row := r.db.QueryRowContext(ctx, q, id.String())
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (r *caseRepo) ListCases(ctx context.Context) ([]*entity.Case, error) {
	q := `SELECT ` + caseColumns + ` FROM evidence_case ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("case rows close error", "error", err)
		}
	}()

	var out []*entity.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *caseRepo) UpdateConfig(ctx context.Context, id uuid.UUID, fields json.RawMessage, customPrompt *string) error {
	q := rebind(r.pg, `UPDATE evidence_case
		SET extraction_fields = COALESCE(?, extraction_fields),
		    custom_prompt = COALESCE(?, custom_prompt),
		    updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, rawToNull(fields), customPrompt, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("update case config: %w", err)
	}
	return requireRow(res, id)
}

func (r *caseRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.CaseStatus) error {
	q := rebind(r.pg, `UPDATE evidence_case SET status = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, string(status), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return requireRow(res, id)
}

func (r *caseRepo) SaveStageResults(ctx context.Context, id uuid.UUID, ocrSummary, vlmSummary string, details json.RawMessage) error {
	q := rebind(r.pg, `UPDATE evidence_case
		SET ocr_text = ?, vlm_text = ?, processing_details = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, ocrSummary, vlmSummary, rawToNull(details), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("save stage results: %w", err)
	}
	return requireRow(res, id)
}

func (r *caseRepo) SaveExtraction(ctx context.Context, id uuid.UUID, extracted json.RawMessage, processedAt time.Time) error {
	q := rebind(r.pg, `UPDATE evidence_case
		SET extracted_info = ?, processed_at = ?, error_message = NULL, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, rawToNull(extracted), processedAt, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("save extraction: %w", err)
	}
	return requireRow(res, id)
}

func (r *caseRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	q := rebind(r.pg, `UPDATE evidence_case
		SET status = ?, error_message = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, string(constants.CaseStatusFailed), message, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res, id)
}

func (r *caseRepo) DeleteCase(ctx context.Context, id uuid.UUID) error {
	q := rebind(r.pg, `DELETE FROM evidence_case WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, id.String())
	if err != nil {
		return fmt.Errorf("delete case: %w", err)
	}
	return requireRow(res, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*entity.Case, error) {
	var (
		c         entity.Case
		idStr     string
		status    string
		extracted sql.NullString
		details   sql.NullString
		fields    sql.NullString
	)
	err := row.Scan(
		&idStr, &c.OriginalFilename, &c.FilePath, &status, &c.PageCount, &c.FileSize,
		&c.OCRText, &c.VLMText, &extracted, &details,
		&fields, &c.CustomPrompt, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt, &c.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse case id %q: %w", idStr, err)
	}
	c.ID = id
	c.Status = constants.CaseStatus(status)
	c.ExtractedInfo = nullToRaw(extracted)
	c.ProcessingDetails = nullToRaw(details)
	c.ExtractionFields = nullToRaw(fields)
	return &c, nil
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("case %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func rawToNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullToRaw(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
