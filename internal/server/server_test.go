package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

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
	"github.com/joseph-ayodele/parsemed/internal/storage"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

const (
	convertedMarkdown = "Background text\n\nTABLE 1. Demographics\n| group | n |\n| SOA | 57 |\n* p < 0.05"
	extractedJSON     = `{"table_1": [{"group": "SOA", "n": "57"}, {"group": "EEA", "n": "21"}], "study": {"title": "SOA vs EEA"}}`
)

type stubConverter struct{ err error }

func (s stubConverter) ConvertFile(context.Context, string) (markdown.Result, error) {
	if s.err != nil {
		return markdown.Result{}, s.err
	}
	return markdown.Result{Markdown: convertedMarkdown, Pages: 3, Engine: "tabula"}, nil
}

type stubExtractor struct {
	mu   sync.Mutex
	reqs []llm.ExtractRequest
	err  error
}

func (s *stubExtractor) ExtractAttributes(_ context.Context, req llm.ExtractRequest) (llm.Extraction, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return llm.Extraction{}, s.err
	}
	doc, err := attributes.ParseDocument([]byte(extractedJSON))
	if err != nil {
		return llm.Extraction{}, err
	}
	return llm.Extraction{Document: doc, Raw: []byte(extractedJSON), Model: "stub-model"}, nil
}

type testEnv struct {
	handler   http.Handler
	processor *pipeline.Processor
	jobs      repository.ExtractJobRepository
	sessions  *editor.Store
	extractor *stubExtractor
	queue     *async.ProcessorQueue
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, withQueue bool, tweak func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := discardLogger()

	db, err := ConnectDB(ctx, common.DatabaseConfig{
		Driver: common.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "server.db") + "?_pragma=busy_timeout(5000)",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db, logger) })

	blobs := storage.NewMemStore(logger)
	jobs := repository.NewExtractJobRepository(db, logger)
	docRepo := repository.NewDocumentRepository(db, logger)
	tmpl := templates.NewService(repository.NewTemplateRepository(db, logger), logger)
	ex := &stubExtractor{}

	proc := pipeline.NewProcessor(logger, blobs, jobs, tmpl,
		pipeline.NewConvertStage(blobs, jobs, stubConverter{}, true, logger),
		pipeline.NewExtractStage(logger, jobs, ex),
	)
	env := &testEnv{processor: proc, jobs: jobs, sessions: editor.NewStore(logger), extractor: ex}

	deps := Deps{
		Processor: proc,
		Jobs:      jobs,
		Sessions:  env.sessions,
		Documents: documents.NewService(docRepo, blobs, logger),
		Templates: tmpl,
		Exporter:  export.NewService(docRepo, logger),
		Ping:      func(ctx context.Context) error { return PingDB(ctx, db, logger, 0) },
		Logger:    logger,
	}
	if withQueue {
		env.queue = async.NewProcessorQueue(proc, logger, async.WithWorkers(1))
		t.Cleanup(func() { env.queue.Shutdown(context.Background()) })
		deps.Queue = env.queue
	}
	if tweak != nil {
		tweak(&deps)
	}
	env.handler = NewAPI(deps).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, path, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, _ = fw.Write([]byte(content))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	down := newTestEnv(t, false, func(d *Deps) {
		d.Ping = func(context.Context) error { return errors.New("db down") }
	})
	rec = down.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	queued := newTestEnv(t, true, nil)
	rec = queued.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string      `json:"status"`
		Queue  async.Stats `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Queue.Workers)
}

func TestRequestIDAndCORS(t *testing.T) {
	env := newTestEnv(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))

	rec = env.do(t, http.MethodOptions, "/markdown-to-json", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPDFToMarkdown(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.upload(t, "/pdf-to-markdown", "study.pdf", "%PDF-1.4", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	full := decode[markdownResponse](t, rec)
	assert.Equal(t, convertedMarkdown, full.Markdown)
	assert.Equal(t, 3, full.Pages)
	assert.False(t, full.TablesOnly)

	rec = env.upload(t, "/pdf-to-markdown", "study.pdf", "%PDF-1.4", map[string]string{"tables_only": "true"})
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decode[markdownResponse](t, rec)
	assert.True(t, tables.TablesOnly)
	assert.Equal(t, "TABLE 1. Demographics\n| group | n |\n| SOA | 57 |", tables.Markdown)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t, false, func(d *Deps) { d.MaxUploadBytes = 512 })

	rec := env.upload(t, "/extract-pdf", "notes.txt", "hello", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "only PDF files")

	rec = env.upload(t, "/extract-pdf", "big.pdf", strings.Repeat("x", 4096), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/extract-pdf", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractEditSaveExport(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.upload(t, "/extract-pdf", "study.pdf", "%PDF-1.4 body", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[extractResponse](t, rec)
	assert.True(t, out.TablesOnly)
	assert.Equal(t, "stub-model", out.Model)
	assert.True(t, strings.HasPrefix(out.PDFKey, "pdfs/"))
	require.Len(t, out.Session.Attributes, 2)
	assert.Equal(t, "table_1", out.Session.Attributes[0].Key)
	assert.Equal(t, []string{"group", "n"}, out.Session.Attributes[0].Table.Columns)

	job := decode[entity.ExtractJob](t, env.do(t, http.MethodGet, "/jobs/"+out.JobID.String(), nil))
	assert.Equal(t, constants.JobStatusLLMOK, job.Status)

	sid := out.Session.ID.String()
	rec = env.do(t, http.MethodPost, "/sessions/"+sid+"/ops", opsRequest{Ops: []editor.Op{
		{Kind: editor.OpSetCell, Attribute: "table_1", Row: 1, Col: 1, Value: "22"},
		{Kind: editor.OpAddAttribute, Name: "notes"},
		{Kind: editor.OpReorder, From: "notes", To: "table_1"},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[opsResponse](t, rec)
	require.Len(t, edited.Results, 3)
	assert.True(t, edited.Results[0].Applied)
	assert.Equal(t, []string{"notes", "table_1", "study"}, edited.Session.Document.Keys())

	rec = env.do(t, http.MethodPost, "/sessions/"+sid+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[finalizeResponse](t, rec)
	assert.True(t, saved.Success)
	assert.Equal(t, out.PDFKey, saved.PDFKey)

	rec = env.do(t, http.MethodGet, "/saved-tables/"+saved.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[savedResponse](t, rec)
	assert.Equal(t, "study.pdf", one.Table.Filename)
	assert.Contains(t, string(one.Table.ExtractedJSON), `"n":"22"`)

	list := decode[savedListResponse](t, env.do(t, http.MethodGet, "/get-saved-tables", nil))
	assert.True(t, list.Success)
	assert.Len(t, list.Tables, 1)

	rec = env.do(t, http.MethodGet, "/saved-tables/"+saved.ID.String()+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="study.xlsx"`)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestExtractPDFAsync(t *testing.T) {
	env := newTestEnv(t, true, nil)

	rec := env.upload(t, "/extract-pdf", "study.pdf", "%PDF-1.4", map[string]string{"async": "true"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	queued := decode[queuedResponse](t, rec)
	assert.Equal(t, constants.JobStatusQueued, queued.Status)

	env.queue.Shutdown(context.Background())

	job := decode[entity.ExtractJob](t, env.do(t, http.MethodGet, "/jobs/"+queued.JobID.String(), nil))
	require.Equal(t, constants.JobStatusLLMOK, job.Status)

	rec = env.do(t, http.MethodPost, "/sessions", createSessionRequest{JobID: queued.JobID.String()})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[editor.Session](t, rec)
	assert.Equal(t, "study.pdf", sess.Filename)
	assert.Equal(t, queued.PDFKey, sess.SourceReference)
	assert.Equal(t, []string{"table_1", "study"}, sess.Document.Keys())
}

func TestExtractPDFFailureIsRecorded(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.extractor.err = common.ErrUpstream

	rec := env.upload(t, "/extract-pdf", "study.pdf", "%PDF-1.4", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, env.sessions.Len())
}

func TestSessionFromUnfinishedJob(t *testing.T) {
	env := newTestEnv(t, false, nil)
	job, err := env.jobs.Create(context.Background(), "a.pdf", "pdfs/a.pdf", nil)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/sessions", createSessionRequest{JobID: job.ID.String()})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.do(t, http.MethodPost, "/sessions", createSessionRequest{
		Filename:      "manual.pdf",
		ExtractedJSON: json.RawMessage(`{"keywords": "a; b"}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decode[editor.Session](t, rec)
	path := "/sessions/" + sess.ID.String()

	rec = env.do(t, http.MethodPost, path+"/ops", opsRequest{Ops: []editor.Op{
		{Kind: editor.OpAddRow, Attribute: "keywords"},
		{Kind: "explode"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rejected := decode[opsErrorResponse](t, rec)
	assert.Equal(t, 1, rejected.Applied)
	assert.Contains(t, rejected.Error, "unknown op")

	rec = env.do(t, http.MethodPost, path+"/ops", opsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual.pdf", decode[editor.Session](t, rec).Filename)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/sessions/not-a-uuid", nil).Code)

	rec = env.do(t, http.MethodPost, "/sessions", createSessionRequest{ExtractedJSON: json.RawMessage(`[1, 2]`)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkdownToJSON(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.do(t, http.MethodPost, "/markdown-to-json", markdownToJSONRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "No markdown provided."}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/markdown-to-json", markdownToJSONRequest{Markdown: convertedMarkdown})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Less(t, strings.Index(body, `"table_1"`), strings.Index(body, `"study"`), "attribute order is kept")

	rec = env.do(t, http.MethodPost, "/markdown-to-json", markdownToJSONRequest{Markdown: "x", TemplateID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/markdown-to-json", strings.NewReader(`{"markdown": "x"} {}`))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinalizeExtractedDetails(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.do(t, http.MethodPost, "/finalize-extracted-details", documents.FinalizeRequest{
		Filename:        "paper.pdf",
		SourceReference: "upload-7",
		ExtractedJSON:   json.RawMessage(extractedJSON),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[finalizeResponse](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, storage.JSONKey(res.ID), res.JSONKey)

	rec = env.do(t, http.MethodPost, "/finalize-extracted-details", documents.FinalizeRequest{Filename: "paper.pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/saved-tables/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/get-saved-tables?limit=-1", nil).Code)
}

func TestConfigurations(t *testing.T) {
	env := newTestEnv(t, false, nil)

	rec := env.do(t, http.MethodGet, "/get-configurations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true, "configurations": []}`, rec.Body.String())

	body := templates.SaveRequest{Name: " Demographics ", TemplateJSON: entity.TemplateJSON{Attributes: []entity.TemplateAttribute{
		{Name: "Sample size", Query: "How many patients?"},
		{Name: "", Query: "dropped"},
	}}}
	rec = env.do(t, http.MethodPost, "/save-configuration", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[configurationResponse](t, rec).Configuration
	assert.Equal(t, "Demographics", created.Name)
	assert.Len(t, created.TemplateJSON.Attributes, 1)
	path := "/configurations/" + created.ID.String()

	body.Name = "Outcomes"
	rec = env.do(t, http.MethodPut, "/update-configuration/"+created.ID.String(), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Outcomes", decode[configurationResponse](t, env.do(t, http.MethodGet, path, nil)).Configuration.Name)

	rec = env.upload(t, "/extract-pdf", "study.pdf", "%PDF-1.4", map[string]string{"template_id": created.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, env.extractor.reqs)
	assert.Equal(t, "Sample size", env.extractor.reqs[len(env.extractor.reqs)-1].Template[0].Name)

	rec = env.do(t, http.MethodPost, "/save-configuration", templates.SaveRequest{Name: "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil).Code)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpStatus(codes.InvalidArgument))
	assert.Equal(t, http.StatusNotFound, httpStatus(codes.NotFound))
	assert.Equal(t, http.StatusConflict, httpStatus(codes.AlreadyExists))
	assert.Equal(t, http.StatusTooManyRequests, httpStatus(codes.ResourceExhausted))
	assert.Equal(t, http.StatusBadGateway, httpStatus(codes.Unavailable))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(codes.DataLoss))
}
