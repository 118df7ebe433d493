package repository

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql/schema"

	"github.com/joseph-ayodele/parsemed/internal/common"
)

const (
	tableTemplates      = "templates"
	tableSavedDocuments = "saved_documents"
	tableExtractJob     = "extract_job"
)

// Migrate creates missing tables, columns and indexes through ent's
// migration engine. Existing columns and indexes are never dropped.
func Migrate(ctx context.Context, db *DB) error {
	start := time.Now()
	m, err := schema.NewMigrate(db.Driver, schema.WithForeignKeys(false))
	if err != nil {
		db.logger.Error("migration setup failed", "dialect", db.Dialect(), "error", err)
		return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		db.logger.Error("migration failed", "dialect", db.Dialect(), "error", err)
		return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
	}
	db.logger.Info("database schema ready", "dialect", db.Dialect(), "tables", len(Tables), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// dbTime scans timestamps from drivers that return them as time.Time,
// text or unix seconds.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime{Time: v.UTC(), Valid: true}
		return nil
	case int64:
		*t = dbTime{Time: time.Unix(v, 0).UTC(), Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// now is the timestamp written for new and updated rows.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nullable turns a nil pointer into a SQL NULL.
func nullable[T any](p *T) driver.Value {
	if p == nil {
		return nil
	}
	return *p
}
