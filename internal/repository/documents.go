package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
)

// CreateDocumentRequest wraps parameters for saving a finalized document.
type CreateDocumentRequest struct {
	ID              uuid.UUID
	Filename        string
	SourceReference *string
	JSONKey         string
	ExtractedJSON   json.RawMessage
}

type DocumentRepository interface {
	Create(ctx context.Context, req CreateDocumentRequest) (*entity.SavedDocument, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.SavedDocument, error)
	List(ctx context.Context, limit int) ([]*entity.SavedDocument, error)
}

type documentRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepository{db: db, logger: logger}
}

var documentColumns = []string{"id", "filename", "source_reference", "json_key", "extracted_json", "created_at"}

func (r *documentRepository) Create(ctx context.Context, req CreateDocumentRequest) (*entity.SavedDocument, error) {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if !json.Valid(req.ExtractedJSON) {
		return nil, common.NewAppError("INVALID_DOCUMENT", "extracted_json is not valid JSON", common.ErrInvalidInput)
	}
	doc := &entity.SavedDocument{
		ID:              req.ID,
		Filename:        req.Filename,
		SourceReference: req.SourceReference,
		JSONKey:         req.JSONKey,
		ExtractedJSON:   req.ExtractedJSON,
		CreatedAt:       now(),
	}

	q, args := r.db.builder().Insert(tableSavedDocuments).
		Columns(documentColumns...).
		Values(doc.ID.String(), doc.Filename, nullable(doc.SourceReference), doc.JSONKey, string(doc.ExtractedJSON), doc.CreatedAt).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to save document", "filename", req.Filename, "error", err)
		return nil, err
	}
	r.logger.Info("document saved", "document_id", doc.ID, "filename", doc.Filename, "bytes", len(doc.ExtractedJSON))
	return doc, nil
}

func (r *documentRepository) Get(ctx context.Context, id uuid.UUID) (*entity.SavedDocument, error) {
	q, args := r.db.builder().Select(documentColumns...).
		From(r.db.builder().Table(tableSavedDocuments)).
		Where(entsql.EQ("id", id.String())).
		Query()
	var out *entity.SavedDocument
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		d, err := scanDocument(rows)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("document %s not found", id), common.ErrNotFound)
	}
	return out, nil
}

// List returns saved documents newest first. A limit of zero or less
// returns all of them.
func (r *documentRepository) List(ctx context.Context, limit int) ([]*entity.SavedDocument, error) {
	sel := r.db.builder().Select(documentColumns...).
		From(r.db.builder().Table(tableSavedDocuments)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	q, args := sel.Query()

	var out []*entity.SavedDocument
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		d, err := scanDocument(rows)
		if err == nil {
			out = append(out, d)
		}
		return err
	})
	if err != nil {
		r.logger.Error("failed to list documents", "error", err)
		return nil, err
	}
	return out, nil
}

func scanDocument(rows *entsql.Rows) (*entity.SavedDocument, error) {
	var (
		id, filename, jsonKey, raw string
		source                     entsql.NullString
		createdAt                  dbTime
	)
	if err := rows.Scan(&id, &filename, &source, &jsonKey, &raw, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	d := &entity.SavedDocument{
		ID:            parsed,
		Filename:      filename,
		JSONKey:       jsonKey,
		ExtractedJSON: json.RawMessage(raw),
		CreatedAt:     createdAt.Time,
	}
	if source.Valid {
		d.SourceReference = &source.String
	}
	return d, nil
}
