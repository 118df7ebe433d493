// Package client talks to the parsemed HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/editor"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

// APIError is a non-2xx response. It matches the common sentinel errors
// through errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("parsemed: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case common.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case common.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusRequestEntityTooLarge
	case common.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case common.ErrQueueFull:
		return e.StatusCode == http.StatusTooManyRequests
	case common.ErrUpstream:
		return e.StatusCode >= 500
	}
	return false
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("invalid server URL %q", baseURL), common.ErrInvalidInput)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// UploadOptions tune an upload. Async asks the server to queue the job.
type UploadOptions struct {
	TemplateID string
	Async      bool
}

// UploadResult is the answer to an upload. Session is set when the job ran
// inline; Queued is set when it was handed to a worker.
type UploadResult struct {
	JobID      uuid.UUID       `json:"job_id"`
	PDFKey     string          `json:"pdf_key"`
	Pages      int             `json:"pages"`
	Engine     string          `json:"engine"`
	TablesOnly bool            `json:"tables_only"`
	Model      string          `json:"model"`
	Repairs    []string        `json:"repairs,omitempty"`
	Session    *editor.Session `json:"session,omitempty"`
	Queued     bool            `json:"-"`
}

type MarkdownResult struct {
	Filename   string `json:"filename"`
	Markdown   string `json:"markdown"`
	Pages      int    `json:"pages"`
	Engine     string `json:"engine"`
	TablesOnly bool   `json:"tables_only"`
	Warnings   int    `json:"warnings,omitempty"`
}

// ConvertPDF converts a PDF to markdown without recording a job.
func (c *Client) ConvertPDF(ctx context.Context, filename string, r io.Reader, tablesOnly bool) (*MarkdownResult, error) {
	fields := map[string]string{}
	if tablesOnly {
		fields["tables_only"] = "true"
	}
	body, ctype, err := multipartBody(filename, r, fields)
	if err != nil {
		return nil, err
	}
	var out MarkdownResult
	if _, err := c.do(ctx, http.MethodPost, "/pdf-to-markdown", body, ctype, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPDF submits a PDF for extraction.
func (c *Client) UploadPDF(ctx context.Context, filename string, r io.Reader, opts UploadOptions) (*UploadResult, error) {
	fields := map[string]string{}
	if opts.TemplateID != "" {
		fields["template_id"] = opts.TemplateID
	}
	if opts.Async {
		fields["async"] = "true"
	}
	body, ctype, err := multipartBody(filename, r, fields)
	if err != nil {
		return nil, err
	}
	var out UploadResult
	code, err := c.do(ctx, http.MethodPost, "/extract-pdf", body, ctype, &out)
	if err != nil {
		return nil, err
	}
	out.Queued = code == http.StatusAccepted
	return &out, nil
}

func (c *Client) Job(ctx context.Context, id uuid.UUID) (*entity.ExtractJob, error) {
	var job entity.ExtractJob
	if _, err := c.getJSON(ctx, "/jobs/"+id.String(), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitJob polls a job until it reaches a terminal status or ctx ends.
func (c *Client) WaitJob(ctx context.Context, id uuid.UUID, every time.Duration) (*entity.ExtractJob, error) {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			if job.Status == constants.JobStatusFailed {
				msg := "job failed"
				if job.ErrorMessage != nil {
					msg = *job.ErrorMessage
				}
				return job, fmt.Errorf("%w: job %s: %s", common.ErrUpstream, id, msg)
			}
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-t.C:
		}
	}
}

// MarkdownToJSON runs extraction over markdown and returns the document
// with its attribute order intact.
func (c *Client) MarkdownToJSON(ctx context.Context, markdown, templateID string) (json.RawMessage, error) {
	var out struct {
		JSON json.RawMessage `json:"json"`
	}
	req := map[string]string{"markdown": markdown}
	if templateID != "" {
		req["template_id"] = templateID
	}
	if _, err := c.postJSON(ctx, "/markdown-to-json", req, &out); err != nil {
		return nil, err
	}
	return out.JSON, nil
}

// OpenSession opens an editing session over a finished job.
func (c *Client) OpenSession(ctx context.Context, jobID uuid.UUID) (*editor.Session, error) {
	var s editor.Session
	if _, err := c.postJSON(ctx, "/sessions", map[string]string{"job_id": jobID.String()}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession finalizes an editing session.
func (c *Client) SaveSession(ctx context.Context, sessionID uuid.UUID) (*documents.FinalizeResult, error) {
	var out documents.FinalizeResult
	if _, err := c.postJSON(ctx, "/sessions/"+sessionID.String()+"/save", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Finalize(ctx context.Context, req documents.FinalizeRequest) (*documents.FinalizeResult, error) {
	var out documents.FinalizeResult
	if _, err := c.postJSON(ctx, "/finalize-extracted-details", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListSaved(ctx context.Context, limit int) ([]*entity.SavedDocument, error) {
	path := "/get-saved-tables"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Tables []*entity.SavedDocument `json:"tables"`
	}
	if _, err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// Templates lists the saved configuration templates.
func (c *Client) Templates(ctx context.Context) ([]*entity.Template, error) {
	var out struct {
		Configurations []*entity.Template `json:"configurations"`
	}
	if _, err := c.getJSON(ctx, "/get-configurations", &out); err != nil {
		return nil, err
	}
	return out.Configurations, nil
}

// ExportXLSX downloads the workbook of a saved document.
func (c *Client) ExportXLSX(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.do(ctx, http.MethodGet, "/saved-tables/"+id.String()+"/export.xlsx", nil, "", &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) (int, error) {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) (int, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
}

// do sends one request. out is either a *bytes.Buffer receiving the raw
// body or a value the JSON body is decoded into.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (int, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id := common.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("client.http.send_error", "method", method, "path", path, "error", err)
		return 0, fmt.Errorf("%w: %v", common.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", common.ErrUpstream, err)
	}
	c.logger.Debug("client.http.response",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	switch o := out.(type) {
	case nil:
	case *bytes.Buffer:
		o.Write(raw)
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}

func multipartBody(filename string, r io.Reader, fields map[string]string) (io.Reader, string, error) {
	if r == nil {
		return nil, "", errors.New("upload body is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
