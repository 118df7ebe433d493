package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/entity"
	"github.com/joseph-ayodele/parsemed/internal/repository"
)

const (
	maxNameLength    = 200
	maxQueryLength   = 2000
	maxAttributes    = 200
	templateSchemaID = "template.json"
)

// templateSchema describes a template body after empty rows are dropped.
var templateSchema = jsonschema.MustCompileString(templateSchemaID, fmt.Sprintf(`{
	"type": "object",
	"required": ["attributes"],
	"properties": {
		"attributes": {
			"type": "array",
			"minItems": 1,
			"maxItems": %d,
			"items": {
				"type": "object",
				"required": ["name", "query"],
				"properties": {
					"name":  {"type": "string", "minLength": 1, "maxLength": %d},
					"query": {"type": "string", "minLength": 1, "maxLength": %d}
				}
			}
		}
	}
}`, maxAttributes, maxNameLength, maxQueryLength))

// Service handles configuration template business logic.
type Service struct {
	repo   repository.TemplateRepository
	logger *slog.Logger
}

// NewService creates a new template service.
func NewService(repo repository.TemplateRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// SaveRequest represents template creation or update parameters.
type SaveRequest struct {
	Name         string              `json:"name"`
	TemplateJSON entity.TemplateJSON `json:"template_json"`
}

// Normalize trims names and queries and drops attributes missing either.
func Normalize(body entity.TemplateJSON) entity.TemplateJSON {
	out := entity.TemplateJSON{Attributes: make([]entity.TemplateAttribute, 0, len(body.Attributes))}
	for _, a := range body.Attributes {
		name, query := strings.TrimSpace(a.Name), strings.TrimSpace(a.Query)
		if name == "" || query == "" {
			continue
		}
		out.Attributes = append(out.Attributes, entity.TemplateAttribute{Name: name, Query: query})
	}
	return out
}

func (s *Service) validate(req SaveRequest) (string, entity.TemplateJSON, error) {
	validator := common.NewValidator()
	validator.Field("name", req.Name, common.Required, common.MaxLength(maxNameLength))
	if err := common.ValidateAndReturnError(validator); err != nil {
		return "", entity.TemplateJSON{}, err
	}

	body := Normalize(req.TemplateJSON)
	if len(body.Attributes) == 0 {
		return "", entity.TemplateJSON{}, common.InvalidArgumentError("template_json needs at least one attribute with a name and a query")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", entity.TemplateJSON{}, common.InternalErrorf("encode template: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", entity.TemplateJSON{}, common.InternalErrorf("decode template: %v", err)
	}
	if err := templateSchema.Validate(doc); err != nil {
		return "", entity.TemplateJSON{}, common.InvalidArgumentErrorf("template_json: %v", err)
	}

	seen := make(map[string]struct{}, len(body.Attributes))
	for _, a := range body.Attributes {
		if _, dup := seen[a.Name]; dup {
			return "", entity.TemplateJSON{}, common.InvalidArgumentErrorf("duplicate attribute name %q", a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return strings.TrimSpace(req.Name), body, nil
}

// Create validates and stores a new template.
func (s *Service) Create(ctx context.Context, req SaveRequest) (*entity.Template, error) {
	name, body, err := s.validate(req)
	if err != nil {
		s.logger.Warn("templates.create.invalid", "error", err)
		return nil, err
	}
	t, err := s.repo.Create(ctx, name, body)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.logger.Info("template saved successfully", "template_id", t.ID, "name", t.Name)
	return t, nil
}

// Update replaces the name and body of an existing template.
func (s *Service) Update(ctx context.Context, id string, req SaveRequest) (*entity.Template, error) {
	tid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	name, body, err := s.validate(req)
	if err != nil {
		s.logger.Warn("templates.update.invalid", "template_id", id, "error", err)
		return nil, err
	}
	t, err := s.repo.Update(ctx, tid, name, body)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	s.logger.Info("template updated successfully", "template_id", t.ID)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Template, error) {
	tid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.Get(ctx, tid)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return t, nil
}

// List returns all templates, newest first.
func (s *Service) List(ctx context.Context) ([]*entity.Template, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		// DB error already logged in repository layer
		return nil, common.InternalErrorf("list templates: %v", err)
	}
	s.logger.Info("templates listed successfully", "count", len(list))
	return list, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tid, err := parseID(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tid); err != nil {
		return common.ToStatus(err)
	}
	return nil
}

// Attributes resolves the attribute list of an optional template id. An
// empty id yields no attributes.
func (s *Service) Attributes(ctx context.Context, id string) (*uuid.UUID, []entity.TemplateAttribute, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil, nil
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &t.ID, t.TemplateJSON.Attributes, nil
}

func parseID(id string) (uuid.UUID, error) {
	validator := common.NewValidator()
	validator.Field("id", strings.TrimSpace(id), common.Required, common.UUID)
	if err := common.ValidateAndReturnError(validator); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(strings.TrimSpace(id)), nil
}
