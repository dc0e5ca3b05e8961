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

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/entity"
)

// TemplateRepository manages reusable extraction configurations.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, t *entity.Template) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*entity.Template, error)
	ListTemplates(ctx context.Context) ([]*entity.Template, error)
	UpdateTemplate(ctx context.Context, t *entity.Template) error
	DeleteTemplate(ctx context.Context, id uuid.UUID) error
}

type templateRepo struct {
	db     *sql.DB
	pg     bool
	logger *slog.Logger
}

func NewTemplateRepository(db *sql.DB, dsn string, logger *slog.Logger) TemplateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &templateRepo{db: db, pg: isPostgres(dsn), logger: logger}
}

const templateColumns = `id, name, description, extraction_fields, custom_prompt, is_default, created_at, updated_at`

func (r *templateRepo) CreateTemplate(ctx context.Context, t *entity.Template) error {
	q := rebind(r.pg, `INSERT INTO extraction_template (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		t.ID.String(), t.Name, t.Description, string(t.ExtractionFields), t.CustomPrompt,
		boolToInt(t.IsDefault), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *templateRepo) GetTemplate(ctx context.Context, id uuid.UUID) (*entity.Template, error) {
	q := rebind(r.pg, `SELECT `+templateColumns+` FROM extraction_template WHERE id = ?`)
	row := r.db.QueryRowContext(ctx, q, id.String())
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *templateRepo) ListTemplates(ctx context.Context) ([]*entity.Template, error) {
	q := `SELECT ` + templateColumns + ` FROM extraction_template ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("template rows close error", "error", err)
		}
	}()

	var out []*entity.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *templateRepo) UpdateTemplate(ctx context.Context, t *entity.Template) error {
	now := time.Now().UTC()
	q := rebind(r.pg, `UPDATE extraction_template
		SET name = ?, description = ?, extraction_fields = ?, custom_prompt = ?, is_default = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q,
		t.Name, t.Description, string(t.ExtractionFields), t.CustomPrompt,
		boolToInt(t.IsDefault), now, t.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template %s: %w", t.ID, common.ErrNotFound)
	}
	t.UpdatedAt = &now
	return nil
}

func (r *templateRepo) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	q := rebind(r.pg, `DELETE FROM extraction_template WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, id.String())
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func scanTemplate(row rowScanner) (*entity.Template, error) {
	var (
		t         entity.Template
		idStr     string
		fields    string
		isDefault int
	)
	err := row.Scan(&idStr, &t.Name, &t.Description, &fields, &t.CustomPrompt, &isDefault, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse template id %q: %w", idStr, err)
	}
	t.ID = id
	t.ExtractionFields = json.RawMessage(fields)
	t.IsDefault = isDefault != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
