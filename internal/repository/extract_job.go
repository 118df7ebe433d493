package repository

import (
	"context"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/constants"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

type ExtractJobRepository interface {
	Create(ctx context.Context, filename, pdfKey string, templateID *uuid.UUID) (*entity.ExtractJob, error)
	Start(ctx context.Context, jobID uuid.UUID) error
	FinishMarkdown(ctx context.Context, jobID uuid.UUID, pages int, markdown string) error
	FinishExtract(ctx context.Context, jobID uuid.UUID, extracted []byte, modelName string) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

var jobColumns = []string{
	"id", "filename", "pdf_key", "template_id", "status", "pages", "markdown",
	"extracted_json", "model_name", "error_message", "started_at", "finished_at",
}

func (r *extractJobRepo) Create(ctx context.Context, filename, pdfKey string, templateID *uuid.UUID) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:         uuid.New(),
		Filename:   filename,
		PDFKey:     pdfKey,
		TemplateID: templateID,
		Status:     constants.JobStatusQueued,
		StartedAt:  now(),
	}
	var tmpl any
	if templateID != nil {
		tmpl = templateID.String()
	}
	q, args := r.db.builder().Insert(tableExtractJob).
		Columns("id", "filename", "pdf_key", "template_id", "status", "pages", "started_at").
		Values(job.ID.String(), filename, pdfKey, tmpl, string(job.Status), 0, job.StartedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("extract_job create failed", "filename", filename, "err", err)
		return nil, err
	}
	r.log.Info("extract_job created", "job_id", job.ID, "filename", filename)
	return job, nil
}

func (r *extractJobRepo) Start(ctx context.Context, jobID uuid.UUID) error {
	err := r.update(ctx, jobID, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusRunning)).
			Set("started_at", now())
	})
	if err != nil {
		r.log.Error("extract_job start failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job started", "job_id", jobID)
	return nil
}

func (r *extractJobRepo) FinishMarkdown(ctx context.Context, jobID uuid.UUID, pages int, markdown string) error {
	err := r.update(ctx, jobID, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusMDOK)).
			Set("pages", pages).
			Set("markdown", markdown)
	})
	if err != nil {
		r.log.Error("extract_job finish(MD_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job stage done (MD_OK)", "job_id", jobID, "pages", pages)
	return nil
}

func (r *extractJobRepo) FinishExtract(ctx context.Context, jobID uuid.UUID, extracted []byte, modelName string) error {
	err := r.update(ctx, jobID, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusLLMOK)).
			Set("extracted_json", string(extracted)).
			Set("model_name", modelName).
			Set("finished_at", now())
	})
	if err != nil {
		r.log.Error("extract_job finish(LLM_OK) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Info("extract_job finished (LLM_OK)", "job_id", jobID, "model", modelName)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	err := r.update(ctx, jobID, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(constants.JobStatusFailed)).
			Set("error_message", message).
			Set("finished_at", now())
	})
	if err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Warn("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) Get(ctx context.Context, jobID uuid.UUID) (*entity.ExtractJob, error) {
	q, args := r.db.builder().Select(jobColumns...).
		From(r.db.builder().Table(tableExtractJob)).
		Where(entsql.EQ("id", jobID.String())).
		Query()
	var out *entity.ExtractJob
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		j, err := scanJob(rows)
		out = j
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, jobNotFound(jobID)
	}
	return out, nil
}

func (r *extractJobRepo) update(ctx context.Context, jobID uuid.UUID, set func(*entsql.UpdateBuilder)) error {
	u := r.db.builder().Update(tableExtractJob)
	set(u)
	q, args := u.Where(entsql.EQ("id", jobID.String())).Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return jobNotFound(jobID)
	}
	return nil
}

func scanJob(rows *entsql.Rows) (*entity.ExtractJob, error) {
	var (
		id, filename, pdfKey, status              string
		templateID, markdown, extracted, model, e entsql.NullString
		pages                                     entsql.NullInt64
		startedAt, finishedAt                     dbTime
	)
	if err := rows.Scan(&id, &filename, &pdfKey, &templateID, &status, &pages, &markdown,
		&extracted, &model, &e, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	job := &entity.ExtractJob{
		ID:         parsed,
		Filename:   filename,
		PDFKey:     pdfKey,
		Status:     constants.JobStatus(status),
		Pages:      int(pages.Int64),
		StartedAt:  startedAt.Time,
		FinishedAt: finishedAt.ptr(),
	}
	if templateID.Valid {
		tid, err := uuid.Parse(templateID.String)
		if err != nil {
			return nil, fmt.Errorf("template_id: %w", err)
		}
		job.TemplateID = &tid
	}
	if markdown.Valid {
		job.Markdown = &markdown.String
	}
	if extracted.Valid && extracted.String != "" {
		job.ExtractedJSON = []byte(extracted.String)
	}
	if model.Valid {
		job.ModelName = &model.String
	}
	if e.Valid {
		job.ErrorMessage = &e.String
	}
	return job, nil
}

func jobNotFound(id uuid.UUID) error {
	return common.NewAppError("NOT_FOUND", fmt.Sprintf("extract job %s not found", id), common.ErrNotFound)
}
