package documents

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/repository"
	"github.com/joseph-ayodele/parsemed/internal/storage"
)

const defaultListLimit = 100

// Blobs is the part of the blob store finalized documents are written to.
type Blobs interface {
	PutBytes(ctx context.Context, key string, data []byte) error
	Exists(key string) (bool, error)
	Delete(key string) error
}

// Service handles finalized document business logic.
type Service struct {
	docs   repository.DocumentRepository
	blobs  Blobs
	logger *slog.Logger
}

func NewService(docs repository.DocumentRepository, blobs Blobs, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, blobs: blobs, logger: logger}
}

// FinalizeRequest is an edited document ready to be saved. SourceReference
// and PDFKey both point at the original upload; PDFKey wins when set.
type FinalizeRequest struct {
	Filename        string          `json:"filename"`
	SourceReference string          `json:"source_reference,omitempty"`
	PDFKey          string          `json:"pdf_key,omitempty"`
	ExtractedJSON   json.RawMessage `json:"extracted_json"`
}

type FinalizeResult struct {
	ID      uuid.UUID `json:"id"`
	JSONKey string    `json:"json_key"`
	PDFKey  string    `json:"pdf_key,omitempty"`
}

// Finalize writes the document to blob storage and records it.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*FinalizeResult, error) {
	log := common.LoggerFrom(ctx, s.logger)

	filename := strings.TrimSpace(req.Filename)
	v := common.NewValidator().
		Field("filename", filename, common.Required, common.MaxLength(255))
	if err := common.ValidateAndReturnError(v); err != nil {
		log.Error("finalize request invalid", "error", err)
		return nil, err
	}
	if len(req.ExtractedJSON) == 0 {
		return nil, status.Error(codes.InvalidArgument, "extracted_json is required")
	}
	doc, err := attributes.ParseDocument(req.ExtractedJSON)
	if err != nil {
		log.Error("finalize extracted_json invalid", "error", err)
		return nil, status.Errorf(codes.InvalidArgument, "extracted_json must be a JSON object: %v", err)
	}

	source := strings.TrimSpace(req.SourceReference)
	pdfKey := strings.TrimSpace(req.PDFKey)
	if pdfKey != "" {
		ok, err := s.blobs.Exists(pdfKey)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		if !ok {
			return nil, status.Errorf(codes.NotFound, "pdf %q not found", pdfKey)
		}
		source = pdfKey
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode document: %v", err)
	}

	id := uuid.New()
	key := storage.JSONKey(id)
	if err := s.blobs.PutBytes(ctx, key, body); err != nil {
		log.Error("failed to store document", "document_id", id, "error", err)
		return nil, common.ToStatus(err)
	}

	var sourceRef *string
	if source != "" {
		sourceRef = &source
	}
	saved, err := s.docs.Create(ctx, repository.CreateDocumentRequest{
		ID:              id,
		Filename:        filename,
		SourceReference: sourceRef,
		JSONKey:         key,
		ExtractedJSON:   body,
	})
	if err != nil {
		if derr := s.blobs.Delete(key); derr != nil {
			log.Warn("failed to remove orphaned document blob", "json_key", key, "error", derr)
		}
		log.Error("failed to save document", "document_id", id, "error", err)
		return nil, status.Errorf(codes.Internal, "save document: %v", err)
	}

	log.Info("document finalized", "document_id", saved.ID, "filename", filename, "attributes", doc.Len(), "json_key", key)
	return &FinalizeResult{ID: saved.ID, JSONKey: key, PDFKey: pdfKey}, nil
}

// List returns the most recent documents, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]*entity.SavedDocument, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	docs, err := s.docs.List(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list documents", "error", err)
		return nil, status.Errorf(codes.Internal, "list documents: %v", err)
	}
	s.logger.Info("documents listed successfully", "count", len(docs))
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.SavedDocument, error) {
	docID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return doc, nil
}
