package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casekit/evidence-extractor/internal/common"
	"github.com/casekit/evidence-extractor/internal/entity"
)

func newStoredTemplate() *entity.Template {
	desc := "bank transfer evidence"
	return &entity.Template{
		ID:               uuid.New(),
		Name:             "transfers",
		Description:      &desc,
		ExtractionFields: json.RawMessage(`[{"key":"name","label":"姓名","type":"text","required":true}]`),
		IsDefault:        true,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestTemplateRepository_CreateAndGet(t *testing.T) {
	db, dsn := openTestDB(t)
	repo := NewTemplateRepository(db, dsn, nil)
	ctx := context.Background()

	tpl := newStoredTemplate()
	require.NoError(t, repo.CreateTemplate(ctx, tpl))

	got, err := repo.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, got.ID)
	assert.Equal(t, "transfers", got.Name)
	require.NotNil(t, got.Description)
	assert.Equal(t, "bank transfer evidence", *got.Description)
	assert.True(t, got.IsDefault)
	assert.JSONEq(t, string(tpl.ExtractionFields), string(got.ExtractionFields))
}

func TestTemplateRepository_GetMissing(t *testing.T) {
	db, dsn := openTestDB(t)
	repo := NewTemplateRepository(db, dsn, nil)

	_, err := repo.GetTemplate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTemplateRepository_Update(t *testing.T) {
	db, dsn := openTestDB(t)
	repo := NewTemplateRepository(db, dsn, nil)
	ctx := context.Background()

	tpl := newStoredTemplate()
	require.NoError(t, repo.CreateTemplate(ctx, tpl))

	tpl.Name = "renamed"
	tpl.IsDefault = false
	prompt := "custom {text}"
	tpl.CustomPrompt = &prompt
	require.NoError(t, repo.UpdateTemplate(ctx, tpl))
	assert.NotNil(t, tpl.UpdatedAt)

	got, err := repo.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.False(t, got.IsDefault)
	require.NotNil(t, got.CustomPrompt)
	assert.Equal(t, prompt, *got.CustomPrompt)
}

func TestTemplateRepository_UpdateMissing(t *testing.T) {
	db, dsn := openTestDB(t)
	repo := NewTemplateRepository(db, dsn, nil)

	tpl := newStoredTemplate()
	err := repo.UpdateTemplate(context.Background(), tpl)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTemplateRepository_ListAndDelete(t *testing.T) {
	db, dsn := openTestDB(t)
	repo := NewTemplateRepository(db, dsn, nil)
	ctx := context.Background()

	a := newStoredTemplate()
	a.CreatedAt = time.Now().UTC().Add(-time.Hour)
	b := newStoredTemplate()
	require.NoError(t, repo.CreateTemplate(ctx, a))
	require.NoError(t, repo.CreateTemplate(ctx, b))

	list, err := repo.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	require.NoError(t, repo.DeleteTemplate(ctx, a.ID))
	list, err = repo.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, repo.DeleteTemplate(ctx, a.ID), common.ErrNotFound)
}
