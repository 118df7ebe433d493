package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/llm"
	"github.com/joseph-ayodele/parsemed/internal/repository"
)

type ExtractStage struct {
	Logger    *slog.Logger
	JobsRepo  repository.ExtractJobRepository
	Extractor llm.AttributeExtractor
}

func NewExtractStage(logger *slog.Logger, jobs repository.ExtractJobRepository, ex llm.AttributeExtractor) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Logger: logger, JobsRepo: jobs, Extractor: ex}
}

// Run sends the markdown of a converted job to the extractor and stores the
// attributes document on the job (LLM_OK).
func (s *ExtractStage) Run(ctx context.Context, jobID uuid.UUID, md, filename string, template []entity.TemplateAttribute) (llm.Extraction, error) {
	start := time.Now()
	s.Logger.Info("pipeline.extract.start",
		"job_id", jobID,
		"markdown_bytes", len(md),
		"template_attributes", len(template),
	)

	out, err := s.Extractor.ExtractAttributes(ctx, llm.ExtractRequest{
		Markdown:     md,
		FilenameHint: filename,
		Template:     template,
	})
	if err != nil {
		if ferr := s.JobsRepo.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error()); ferr != nil {
			s.Logger.Error("pipeline.extract.record_failure", "job_id", jobID, "error", ferr)
		}
		return out, fmt.Errorf("llm extract: %w", err)
	}

	if err := s.JobsRepo.FinishExtract(ctx, jobID, out.Raw, out.Model); err != nil {
		return out, err
	}
	s.Logger.Info("pipeline.extract.ok",
		"job_id", jobID,
		"attributes", out.Document.Len(),
		"repairs", out.Repairs,
		"model", out.Model,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
