package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, common.DatabaseConfig{
		Driver: common.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "migrations are idempotent")
	require.NoError(t, HealthCheck(ctx, db, 0))
	return db
}

func TestMigrateCreatesTablesAndIndexes(t *testing.T) {
	db := openTestDB(t)

	var names []string
	err := db.query(context.Background(),
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'index') AND name NOT LIKE 'sqlite_%' ORDER BY name", nil,
		func(rows *entsql.Rows) error {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
			return nil
		})
	require.NoError(t, err)
	assert.Subset(t, names, []string{
		"templates", "saved_documents", "extract_job",
		"saved_documents_created_at", "extract_job_status_started_at",
	})
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	assert.Equal(t, "file:a.db?_pragma=foreign_keys(1)", sqliteDSN("file:a.db"))
	assert.Equal(t, "file:a.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", sqliteDSN("file:a.db?_pragma=busy_timeout(5000)"))
	assert.Equal(t, "file:a.db?_pragma=foreign_keys(0)", sqliteDSN("file:a.db?_pragma=foreign_keys(0)"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), common.DatabaseConfig{Driver: "oracle"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestTemplateRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTemplateRepository(openTestDB(t), nil)

	body := entity.TemplateJSON{Attributes: []entity.TemplateAttribute{
		{Name: "Sample size", Query: "How many patients were enrolled?"},
		{Name: "Approach", Query: "Which surgical approach was used?"},
	}}
	created, err := repo.Create(ctx, "Neurosurgery", body)
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Neurosurgery", got.Name)
	assert.Equal(t, body, got.TemplateJSON)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)

	body.Attributes = body.Attributes[:1]
	updated, err := repo.Update(ctx, created.ID, "Renamed", body)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Len(t, updated.TemplateJSON.Attributes, 1)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.Get(ctx, created.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, created.ID), common.ErrNotFound)

	_, err = repo.Update(ctx, uuid.New(), "x", body)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t), nil)

	src := "pdfs/a.pdf"
	first, err := repo.Create(ctx, CreateDocumentRequest{
		Filename:        "a.pdf",
		SourceReference: &src,
		JSONKey:         "json/a.json",
		ExtractedJSON:   []byte(`{"b":"2","a":"1"}`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)

	id := uuid.New()
	_, err = repo.Create(ctx, CreateDocumentRequest{ID: id, Filename: "b.pdf", JSONKey: "json/b.json", ExtractedJSON: []byte(`{}`)})
	require.NoError(t, err)

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SourceReference)
	assert.Equal(t, src, *got.SourceReference)
	assert.Equal(t, `{"b":"2","a":"1"}`, string(got.ExtractedJSON), "stored text keeps key order")

	second, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, second.SourceReference)

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	_, err = repo.Create(ctx, CreateDocumentRequest{Filename: "c.pdf", JSONKey: "k", ExtractedJSON: []byte(`{`)})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExtractJobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)

	tmpl := uuid.New()
	job, err := repo.Create(ctx, "study.pdf", "pdfs/x.pdf", &tmpl)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusQueued, job.Status)

	require.NoError(t, repo.Start(ctx, job.ID))
	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusRunning, got.Status)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, tmpl, *got.TemplateID)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, repo.FinishMarkdown(ctx, job.ID, 3, "TABLE 1. x"))
	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusMDOK, got.Status)
	assert.Equal(t, 3, got.Pages)
	require.NotNil(t, got.Markdown)
	assert.Equal(t, "TABLE 1. x", *got.Markdown)

	require.NoError(t, repo.FinishExtract(ctx, job.ID, []byte(`{"a":"1"}`), "gpt-4o-mini"))
	got, err = repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusLLMOK, got.Status)
	assert.True(t, got.Status.Terminal())
	assert.JSONEq(t, `{"a":"1"}`, string(got.ExtractedJSON))
	require.NotNil(t, got.ModelName)
	assert.Equal(t, "gpt-4o-mini", *got.ModelName)
	require.NotNil(t, got.FinishedAt)
}

func TestExtractJobFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewExtractJobRepository(openTestDB(t), nil)

	job, err := repo.Create(ctx, "bad.pdf", "pdfs/bad.pdf", nil)
	require.NoError(t, err)
	require.NoError(t, repo.FinishFailure(ctx, job.ID, "not a PDF file"))

	got, err := repo.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, got.Status)
	assert.Nil(t, got.TemplateID)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "not a PDF file", *got.ErrorMessage)

	assert.ErrorIs(t, repo.Start(ctx, uuid.New()), common.ErrNotFound)
}

func TestDBTimeScan(t *testing.T) {
	var ts dbTime
	require.NoError(t, ts.Scan("2024-05-01 10:11:12.5+00:00"))
	assert.True(t, ts.Valid)
	assert.Equal(t, 2024, ts.Time.Year())

	require.NoError(t, ts.Scan([]byte("2024-05-01T10:11:12Z")))
	assert.Equal(t, 12, ts.Time.Second())

	require.NoError(t, ts.Scan(nil))
	assert.Nil(t, ts.ptr())

	assert.Error(t, ts.Scan("yesterday"))
}
