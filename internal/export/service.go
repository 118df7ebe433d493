package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/repository"
)

const (
	attributesSheet = "Attributes"
	sourceSheet     = "Source"
	maxCellChars    = 32767
)

// Service is a tiny façade over the document repository that produces XLSX
// bytes for exports.
type Service struct {
	docs   repository.DocumentRepository
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, logger: logger}
}

// ExportDocumentXLSX returns an XLSX workbook (as bytes) for a saved
// document, together with a suggested file name.
func (s *Service) ExportDocumentXLSX(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	start := time.Now()
	saved, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	doc, err := attributes.ParseDocument(saved.ExtractedJSON)
	if err != nil {
		return nil, "", fmt.Errorf("decode document %s: %w", id, err)
	}

	b, err := Workbook(doc, saved)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("export.xlsx.ok",
		"document_id", id.String(),
		"attributes", doc.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, FileName(saved.Filename), nil
}

// FileName derives the download name from the source PDF name.
func FileName(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if base == "" || base == "." {
		base = "document"
	}
	return base + ".xlsx"
}

// Workbook lays the document out as one block per attribute: the attribute
// name, a header row with the table columns, then the table rows, then a
// blank row. meta may be nil.
func Workbook(doc *attributes.Document, meta *entity.SavedDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attributesSheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 13}})
	if err != nil {
		return nil, err
	}

	row := 1
	widest := 1
	write := func(col int, v string, style int) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(attributesSheet, cell, truncate(v, maxCellChars))
		if style != 0 {
			_ = f.SetCellStyle(attributesSheet, cell, cell, style)
		}
	}

	for _, key := range doc.Keys() {
		v, _ := doc.Get(key)
		table, shape := attributes.DeriveTable(v)

		write(1, key, title)
		write(2, shape.String(), 0)
		row++
		for i, c := range table.Columns {
			write(i+1, c, bold)
		}
		widest = max(widest, len(table.Columns))
		row++
		for _, r := range table.Rows {
			for i, cell := range r {
				write(i+1, cell, 0)
			}
			row++
		}
		row++
	}

	last, _ := excelize.ColumnNumberToName(widest)
	_ = f.SetColWidth(attributesSheet, "A", last, 24)

	if meta != nil {
		if _, err := f.NewSheet(sourceSheet); err != nil {
			return nil, err
		}
		source := ""
		if meta.SourceReference != nil {
			source = *meta.SourceReference
		}
		pairs := [][2]string{
			{"Document ID", meta.ID.String()},
			{"Filename", meta.Filename},
			{"Source reference", source},
			{"Saved at", meta.CreatedAt.UTC().Format(time.RFC3339)},
		}
		for i, p := range pairs {
			_ = f.SetCellValue(sourceSheet, fmt.Sprintf("A%d", i+1), p[0])
			_ = f.SetCellValue(sourceSheet, fmt.Sprintf("B%d", i+1), p[1])
		}
		_ = f.SetCellStyle(sourceSheet, "A1", fmt.Sprintf("A%d", len(pairs)), bold)
		_ = f.SetColWidth(sourceSheet, "A", "A", 20)
		_ = f.SetColWidth(sourceSheet, "B", "B", 60)
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
