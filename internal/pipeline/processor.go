package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/llm"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/repository"
	"github.com/joseph-ayodele/parsemed/internal/storage"
)

// Blobs is the slice of the blob store the pipeline needs.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	LocalPath(key string) (string, func(), error)
}

// TemplateSource resolves an optional template id into its attributes.
type TemplateSource interface {
	Attributes(ctx context.Context, id string) (*uuid.UUID, []entity.TemplateAttribute, error)
}

// Processor coordinates PDF conversion then LLM extraction.
type Processor struct {
	Logger    *slog.Logger
	Blobs     Blobs
	JobsRepo  repository.ExtractJobRepository
	Templates TemplateSource
	Convert   *ConvertStage
	Extract   *ExtractStage
}

func NewProcessor(logger *slog.Logger, blobs Blobs, jobs repository.ExtractJobRepository, templates TemplateSource, convert *ConvertStage, extract *ExtractStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Blobs: blobs, JobsRepo: jobs, Templates: templates, Convert: convert, Extract: extract}
}

// SubmitRequest is an uploaded PDF waiting to be processed.
type SubmitRequest struct {
	Filename   string
	Body       io.Reader
	TemplateID string
}

// Outcome is the result of a processed job.
type Outcome struct {
	JobID      uuid.UUID
	Filename   string
	PDFKey     string
	Markdown   string
	Pages      int
	Engine     string
	TablesOnly bool
	Document   *attributes.Document
	Model      string
	Repairs    []string
}

// Submit stores the upload and records a QUEUED job for it. The template id
// is checked here so a bad id fails the request instead of the job.
func (p *Processor) Submit(ctx context.Context, req SubmitRequest) (*entity.ExtractJob, error) {
	log := common.LoggerFrom(ctx, p.Logger)

	filename := filepath.Base(strings.TrimSpace(req.Filename))
	if filename == "." || filename == string(filepath.Separator) || filename == "" {
		return nil, common.InvalidArgumentError("filename is required")
	}
	if !constants.IsAllowedExt(filepath.Ext(filename)) {
		return nil, common.InvalidArgumentErrorf("unsupported file type %q: only PDF files are accepted", filepath.Ext(filename))
	}

	var templateID *uuid.UUID
	if p.Templates != nil {
		id, _, err := p.Templates.Attributes(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		templateID = id
	}

	key := storage.NewPDFKey()
	n, err := p.Blobs.Put(ctx, key, req.Body)
	if err != nil {
		log.Error("pipeline.submit.store_failed", "filename", filename, "error", err)
		return nil, common.ToStatus(err)
	}

	job, err := p.JobsRepo.Create(ctx, filename, key, templateID)
	if err != nil {
		return nil, common.InternalErrorf("create job: %v", err)
	}
	log.Info("pipeline.submit.ok", "job_id", job.ID, "filename", filename, "pdf_key", key, "bytes", n)
	return job, nil
}

// Process runs both stages for a submitted job.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) (*Outcome, error) {
	ctx = common.WithJobID(ctx, jobID.String())
	log := common.LoggerFrom(ctx, p.Logger)

	job, err := p.JobsRepo.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status != constants.JobStatusQueued {
		return nil, common.NewAppError("JOB_STATE", fmt.Sprintf("job %s is %s, not %s", jobID, job.Status, constants.JobStatusQueued), common.ErrConflict)
	}

	var template []entity.TemplateAttribute
	if job.TemplateID != nil && p.Templates != nil {
		if _, template, err = p.Templates.Attributes(ctx, job.TemplateID.String()); err != nil {
			_ = p.JobsRepo.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error())
			return nil, fmt.Errorf("load template: %w", err)
		}
	}

	// 1) convert stage → markdown stored on the job
	conv, err := p.Convert.Run(ctx, jobID, job.PDFKey)
	if err != nil {
		log.Error("processor.convert.failed", "error", err)
		return nil, err
	}
	log.Info("processor.convert.ok", "pages", conv.Pages, "engine", conv.Engine)

	// 2) extract stage → attributes document stored on the job
	ext, err := p.Extract.Run(ctx, jobID, conv.Markdown, job.Filename, template)
	if err != nil {
		log.Error("processor.extract.failed", "error", err)
		return nil, err
	}
	log.Info("processor.extract.ok", "attributes", ext.Document.Len())

	return &Outcome{
		JobID:      jobID,
		Filename:   job.Filename,
		PDFKey:     job.PDFKey,
		Markdown:   conv.Markdown,
		Pages:      conv.Pages,
		Engine:     conv.Engine,
		TablesOnly: conv.TablesOnly,
		Document:   ext.Document,
		Model:      ext.Model,
		Repairs:    ext.Repairs,
	}, nil
}

// ProcessJob runs Process and keeps only the error, for the async queue.
func (p *Processor) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := p.Process(ctx, jobID)
	return err
}

// ConvertUpload converts an upload to markdown without recording a job.
func (p *Processor) ConvertUpload(ctx context.Context, r io.Reader) (markdown.Result, error) {
	tmp, err := os.CreateTemp("", "parsemed-upload-*.pdf")
	if err != nil {
		return markdown.Result{}, common.InternalErrorf("temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return markdown.Result{}, common.InternalErrorf("buffer upload: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return markdown.Result{}, common.InternalErrorf("buffer upload: %v", err)
	}
	return p.Convert.Converter.ConvertFile(ctx, tmp.Name())
}

// ExtractMarkdown runs the extractor over markdown the caller already has,
// without recording a job.
func (p *Processor) ExtractMarkdown(ctx context.Context, md, filename, templateID string) (llm.Extraction, error) {
	if strings.TrimSpace(md) == "" {
		return llm.Extraction{}, common.InvalidArgumentError("No markdown provided.")
	}
	var template []entity.TemplateAttribute
	if p.Templates != nil {
		var err error
		if _, template, err = p.Templates.Attributes(ctx, templateID); err != nil {
			return llm.Extraction{}, err
		}
	}
	start := time.Now()
	out, err := p.Extract.Extractor.ExtractAttributes(ctx, llm.ExtractRequest{
		Markdown:     md,
		FilenameHint: filename,
		Template:     template,
	})
	if err != nil {
		common.LoggerFrom(ctx, p.Logger).Error("pipeline.extract_markdown.failed", "error", err)
		return out, fmt.Errorf("llm extract: %w", err)
	}
	common.LoggerFrom(ctx, p.Logger).Info("pipeline.extract_markdown.ok",
		"attributes", out.Document.Len(),
		"model", out.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
