package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/async"
	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/editor"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
)

const multipartMemory = 8 << 20

type markdownResponse struct {
	Filename   string `json:"filename"`
	Markdown   string `json:"markdown"`
	Pages      int    `json:"pages"`
	Engine     string `json:"engine"`
	TablesOnly bool   `json:"tables_only"`
	Warnings   int    `json:"warnings,omitempty"`
}

type extractResponse struct {
	JobID      uuid.UUID      `json:"job_id"`
	PDFKey     string         `json:"pdf_key"`
	Pages      int            `json:"pages"`
	Engine     string         `json:"engine"`
	TablesOnly bool           `json:"tables_only"`
	Model      string         `json:"model"`
	Repairs    []string       `json:"repairs,omitempty"`
	Session    editor.Session `json:"session"`
}

type queuedResponse struct {
	JobID    uuid.UUID           `json:"job_id"`
	Status   constants.JobStatus `json:"status"`
	Filename string              `json:"filename"`
	PDFKey   string              `json:"pdf_key"`
}

type markdownToJSONRequest struct {
	Markdown   string `json:"markdown"`
	Filename   string `json:"filename,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
}

type markdownToJSONResponse struct {
	JSON    *attributes.Document `json:"json"`
	Model   string               `json:"model,omitempty"`
	Repairs []string             `json:"repairs,omitempty"`
}

// upload pulls the "file" part out of a multipart request. On failure the
// error response has already been written.
func (a *API) upload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "upload exceeds " + strconv.FormatInt(a.deps.MaxUploadBytes, 10) + " bytes"})
			return nil, nil, false
		}
		a.writeError(w, r, common.InvalidArgumentErrorf("invalid multipart form: %v", err))
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, common.InvalidArgumentError("file is required"))
		return nil, nil, false
	}
	if !constants.IsAllowedExt(filepath.Ext(header.Filename)) {
		file.Close()
		a.writeError(w, r, common.InvalidArgumentErrorf("unsupported file type %q: only PDF files are accepted", filepath.Ext(header.Filename)))
		return nil, nil, false
	}
	return file, header, true
}

func formBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.FormValue(key))
	return v
}

func (a *API) pdfToMarkdown(w http.ResponseWriter, r *http.Request) {
	file, header, ok := a.upload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	res, err := a.deps.Processor.ConvertUpload(r.Context(), file)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	resp := markdownResponse{
		Filename: filepath.Base(header.Filename),
		Markdown: res.Markdown,
		Pages:    res.Pages,
		Engine:   res.Engine,
		Warnings: res.Warnings,
	}
	if formBool(r, "tables_only") {
		resp.Markdown, resp.TablesOnly = markdown.TableSections(res.Markdown)
	}
	writeJSON(w, http.StatusOK, resp)
}

// extractPDF stores the upload as a job. With async=true and a queue
// configured it answers 202 and the job runs on a worker; otherwise the job
// runs inline and the result opens an editing session.
func (a *API) extractPDF(w http.ResponseWriter, r *http.Request) {
	file, header, ok := a.upload(w, r)
	if !ok {
		return
	}
	defer file.Close()
	ctx := r.Context()

	job, err := a.deps.Processor.Submit(ctx, pipeline.SubmitRequest{
		Filename:   header.Filename,
		Body:       file,
		TemplateID: r.FormValue("template_id"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if formBool(r, "async") && a.deps.Queue != nil {
		err := a.deps.Queue.Enqueue(ctx, async.Job{JobID: job.ID, RequestID: common.RequestIDFromContext(ctx)})
		if err != nil {
			if ferr := a.deps.Jobs.FinishFailure(context.WithoutCancel(ctx), job.ID, err.Error()); ferr != nil {
				common.LoggerFrom(ctx, a.logger).Error("http.extract.record_failure", "job_id", job.ID, "error", ferr)
			}
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queuedResponse{JobID: job.ID, Status: job.Status, Filename: job.Filename, PDFKey: job.PDFKey})
		return
	}

	out, err := a.deps.Processor.Process(ctx, job.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sess := a.deps.Sessions.Create(editor.NewParams{
		Filename:        out.Filename,
		SourceReference: out.PDFKey,
		JobID:           &out.JobID,
		Document:        out.Document,
	})
	writeJSON(w, http.StatusOK, extractResponse{
		JobID:      out.JobID,
		PDFKey:     out.PDFKey,
		Pages:      out.Pages,
		Engine:     out.Engine,
		TablesOnly: out.TablesOnly,
		Model:      out.Model,
		Repairs:    out.Repairs,
		Session:    sess,
	})
}

func (a *API) markdownToJSON(w http.ResponseWriter, r *http.Request) {
	var req markdownToJSONRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.deps.Processor.ExtractMarkdown(r.Context(), req.Markdown, req.Filename, req.TemplateID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markdownToJSONResponse{JSON: out.Document, Model: out.Model, Repairs: out.Repairs})
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	job, err := a.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
