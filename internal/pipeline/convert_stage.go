package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/repository"
)

// Converter turns a PDF on disk into markdown.
type Converter interface {
	ConvertFile(ctx context.Context, path string) (markdown.Result, error)
}

// ConvertOutput is what the convert stage hands to extraction.
type ConvertOutput struct {
	Markdown string
	// Full is the converted document before table sections were cut out.
	Full   string
	Pages  int
	Engine string
	// TablesOnly is true when Markdown holds only the TABLE 1/2 sections.
	TablesOnly bool
}

type ConvertStage struct {
	Blobs      Blobs
	JobsRepo   repository.ExtractJobRepository
	Converter  Converter
	TablesOnly bool
	Logger     *slog.Logger
}

func NewConvertStage(blobs Blobs, jobs repository.ExtractJobRepository, conv Converter, tablesOnly bool, logger *slog.Logger) *ConvertStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvertStage{Blobs: blobs, JobsRepo: jobs, Converter: conv, TablesOnly: tablesOnly, Logger: logger}
}

// Run marks the job RUNNING, converts its PDF and persists the markdown
// (MD_OK). Extraction is NOT called.
func (s *ConvertStage) Run(ctx context.Context, jobID uuid.UUID, pdfKey string) (ConvertOutput, error) {
	if err := s.JobsRepo.Start(ctx, jobID); err != nil {
		return ConvertOutput{}, err
	}

	path, cleanup, err := s.Blobs.LocalPath(pdfKey)
	if err != nil {
		return ConvertOutput{}, s.fail(ctx, jobID, fmt.Errorf("load pdf: %w", err))
	}
	defer cleanup()

	res, err := s.Converter.ConvertFile(ctx, path)
	if err != nil {
		return ConvertOutput{}, s.fail(ctx, jobID, err)
	}

	out := ConvertOutput{Markdown: res.Markdown, Full: res.Markdown, Pages: res.Pages, Engine: res.Engine}
	if s.TablesOnly {
		if sections, ok := markdown.TableSections(res.Markdown); ok {
			out.Markdown, out.TablesOnly = sections, true
		} else {
			s.Logger.Warn("pipeline.convert.no_tables", "job_id", jobID, "message", sections)
		}
	}

	if err := s.JobsRepo.FinishMarkdown(ctx, jobID, out.Pages, out.Full); err != nil {
		return out, err
	}
	s.Logger.Info("pipeline.convert.ok",
		"job_id", jobID,
		"engine", out.Engine,
		"pages", out.Pages,
		"chars", len(out.Markdown),
		"tables_only", out.TablesOnly,
	)
	return out, nil
}

func (s *ConvertStage) fail(ctx context.Context, jobID uuid.UUID, err error) error {
	if ferr := s.JobsRepo.FinishFailure(context.WithoutCancel(ctx), jobID, err.Error()); ferr != nil {
		s.Logger.Error("pipeline.convert.record_failure", "job_id", jobID, "error", ferr)
	}
	return err
}
