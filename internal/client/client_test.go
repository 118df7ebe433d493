package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/async"
	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/editor"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/export"
	"github.com/joseph-ayodele/parsemed/internal/llm"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
	"github.com/joseph-ayodele/parsemed/internal/repository"
	"github.com/joseph-ayodele/parsemed/internal/server"
	"github.com/joseph-ayodele/parsemed/internal/storage"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

type fixedConverter struct{}

func (fixedConverter) ConvertFile(context.Context, string) (markdown.Result, error) {
	return markdown.Result{Markdown: "TABLE 1. Age\n| group | mean |\n| SOA | 58 |", Pages: 1, Engine: "tabula"}, nil
}

type fixedExtractor struct{}

func (fixedExtractor) ExtractAttributes(context.Context, llm.ExtractRequest) (llm.Extraction, error) {
	raw := []byte(`{"table_1": [{"group": "SOA", "mean": "58"}], "age": "58"}`)
	doc, err := attributes.ParseDocument(raw)
	return llm.Extraction{Document: doc, Raw: raw, Model: "fixed"}, err
}

func newTestClient(t *testing.T) (*Client, repository.TemplateRepository) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := server.ConnectDB(ctx, common.DatabaseConfig{
		Driver: common.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "client.db") + "?_pragma=busy_timeout(5000)",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { server.CloseDB(db, logger) })

	blobs := storage.NewMemStore(logger)
	jobs := repository.NewExtractJobRepository(db, logger)
	docs := repository.NewDocumentRepository(db, logger)
	tmplRepo := repository.NewTemplateRepository(db, logger)
	tmpl := templates.NewService(tmplRepo, logger)
	proc := pipeline.NewProcessor(logger, blobs, jobs, tmpl,
		pipeline.NewConvertStage(blobs, jobs, fixedConverter{}, false, logger),
		pipeline.NewExtractStage(logger, jobs, fixedExtractor{}),
	)
	queue := async.NewProcessorQueue(proc, logger, async.WithWorkers(1))
	t.Cleanup(func() { queue.Shutdown(context.Background()) })

	api := server.NewAPI(server.Deps{
		Processor: proc,
		Jobs:      jobs,
		Queue:     queue,
		Sessions:  editor.NewStore(logger),
		Documents: documents.NewService(docs, blobs, logger),
		Templates: tmpl,
		Exporter:  export.NewService(docs, logger),
		Logger:    logger,
	})
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)

	c, err := New(ts.URL+"/", WithLogger(logger))
	require.NoError(t, err)
	return c, tmplRepo
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("localhost:8080")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUploadEditAndSave(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	up, err := c.UploadPDF(ctx, "trial.pdf", strings.NewReader("%PDF-1.7"), UploadOptions{})
	require.NoError(t, err)
	assert.False(t, up.Queued)
	require.NotNil(t, up.Session)
	assert.Equal(t, []string{"table_1", "age"}, up.Session.Document.Keys())

	saved, err := c.SaveSession(ctx, up.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, up.PDFKey, saved.PDFKey)

	list, err := c.ListSaved(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)

	xlsx, err := c.ExportXLSX(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(xlsx[:2]))
}

func TestUploadAsyncAndWait(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	up, err := c.UploadPDF(ctx, "trial.pdf", strings.NewReader("%PDF-1.7"), UploadOptions{Async: true})
	require.NoError(t, err)
	assert.True(t, up.Queued)
	assert.Nil(t, up.Session)

	job, err := c.WaitJob(ctx, up.JobID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusLLMOK, job.Status)

	sess, err := c.OpenSession(ctx, up.JobID)
	require.NoError(t, err)
	assert.Equal(t, "trial.pdf", sess.Filename)
}

func TestConvertAndMarkdownToJSON(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	md, err := c.ConvertPDF(ctx, "trial.pdf", strings.NewReader("%PDF-1.7"), true)
	require.NoError(t, err)
	assert.True(t, md.TablesOnly)

	raw, err := c.MarkdownToJSON(ctx, md.Markdown, "")
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))
	assert.Less(t, strings.Index(string(raw), "table_1"), strings.Index(string(raw), "age"))

	_, err = c.MarkdownToJSON(ctx, "", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "No markdown provided.", apiErr.Message)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFinalizeTemplatesAndErrors(t *testing.T) {
	c, tmplRepo := newTestClient(t)
	ctx := context.Background()

	_, err := tmplRepo.Create(ctx, "Baseline", entity.TemplateJSON{Attributes: []entity.TemplateAttribute{{Name: "Age", Query: "Mean age?"}}})
	require.NoError(t, err)
	list, err := c.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Baseline", list[0].Name)

	res, err := c.Finalize(ctx, documents.FinalizeRequest{Filename: "x.pdf", ExtractedJSON: json.RawMessage(`{"a": "b"}`)})
	require.NoError(t, err)
	assert.Equal(t, storage.JSONKey(res.ID), res.JSONKey)

	_, err = c.Job(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = c.UploadPDF(ctx, "x.pdf", strings.NewReader("%PDF"), UploadOptions{TemplateID: uuid.NewString()})
	assert.ErrorIs(t, err, common.ErrNotFound)
}
