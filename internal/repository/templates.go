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

type TemplateRepository interface {
	Create(ctx context.Context, name string, body entity.TemplateJSON) (*entity.Template, error)
	Update(ctx context.Context, id uuid.UUID, name string, body entity.TemplateJSON) (*entity.Template, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Template, error)
	List(ctx context.Context) ([]*entity.Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type templateRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewTemplateRepository(db *DB, logger *slog.Logger) TemplateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &templateRepository{db: db, logger: logger}
}

var templateColumns = []string{"id", "name", "template_json", "created_at", "updated_at"}

func (r *templateRepository) Create(ctx context.Context, name string, body entity.TemplateJSON) (*entity.Template, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	ts := now()
	t := &entity.Template{ID: uuid.New(), Name: name, TemplateJSON: body, CreatedAt: ts, UpdatedAt: ts}

	q, args := r.db.builder().Insert(tableTemplates).
		Columns(templateColumns...).
		Values(t.ID.String(), t.Name, string(raw), ts, ts).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.logger.Error("failed to create template", "name", name, "error", err)
		return nil, err
	}
	r.logger.Info("template created", "template_id", t.ID, "attributes", len(body.Attributes))
	return t, nil
}

func (r *templateRepository) Update(ctx context.Context, id uuid.UUID, name string, body entity.TemplateJSON) (*entity.Template, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode template: %w", err)
	}
	q, args := r.db.builder().Update(tableTemplates).
		Set("name", name).
		Set("template_json", string(raw)).
		Set("updated_at", now()).
		Where(entsql.EQ("id", id.String())).
		Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to update template", "template_id", id, "error", err)
		return nil, err
	}
	if n == 0 {
		return nil, templateNotFound(id)
	}
	r.logger.Info("template updated", "template_id", id)
	return r.Get(ctx, id)
}

func (r *templateRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Template, error) {
	q, args := r.db.builder().Select(templateColumns...).
		From(r.db.builder().Table(tableTemplates)).
		Where(entsql.EQ("id", id.String())).
		Query()
	var out *entity.Template
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		t, err := scanTemplate(rows)
		out = t
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, templateNotFound(id)
	}
	return out, nil
}

func (r *templateRepository) List(ctx context.Context) ([]*entity.Template, error) {
	q, args := r.db.builder().Select(templateColumns...).
		From(r.db.builder().Table(tableTemplates)).
		OrderBy(entsql.Desc("created_at")).
		Query()
	var out []*entity.Template
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		t, err := scanTemplate(rows)
		if err == nil {
			out = append(out, t)
		}
		return err
	})
	if err != nil {
		r.logger.Error("failed to list templates", "error", err)
		return nil, err
	}
	return out, nil
}

func (r *templateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, args := r.db.builder().Delete(tableTemplates).
		Where(entsql.EQ("id", id.String())).
		Query()
	n, err := r.db.exec(ctx, q, args)
	if err != nil {
		r.logger.Error("failed to delete template", "template_id", id, "error", err)
		return err
	}
	if n == 0 {
		return templateNotFound(id)
	}
	r.logger.Info("template deleted", "template_id", id)
	return nil
}

func scanTemplate(rows *entsql.Rows) (*entity.Template, error) {
	var (
		id, name, raw        string
		createdAt, updatedAt dbTime
	)
	if err := rows.Scan(&id, &name, &raw, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t := &entity.Template{Name: name, CreatedAt: createdAt.Time, UpdatedAt: updatedAt.Time}
	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &t.TemplateJSON); err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	return t, nil
}

func templateNotFound(id uuid.UUID) error {
	return common.NewAppError("NOT_FOUND", fmt.Sprintf("template %s not found", id), common.ErrNotFound)
}
