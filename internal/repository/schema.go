package repository

import (
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// long text columns; varchar is the ent default for strings on postgres
var textType = map[string]string{dialect.Postgres: "text"}

var (
	templatesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "name", Type: field.TypeString},
		{Name: "template_json", Type: field.TypeString, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	templatesTable = &schema.Table{
		Name:       tableTemplates,
		Columns:    templatesColumns,
		PrimaryKey: []*schema.Column{templatesColumns[0]},
	}

	savedDocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "filename", Type: field.TypeString},
		{Name: "source_reference", Type: field.TypeString, Nullable: true},
		{Name: "json_key", Type: field.TypeString},
		{Name: "extracted_json", Type: field.TypeString, SchemaType: textType},
		{Name: "created_at", Type: field.TypeTime},
	}
	savedDocumentsTable = &schema.Table{
		Name:       tableSavedDocuments,
		Columns:    savedDocumentsColumns,
		PrimaryKey: []*schema.Column{savedDocumentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "saved_documents_created_at", Columns: []*schema.Column{savedDocumentsColumns[5]}},
		},
	}

	extractJobColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "filename", Type: field.TypeString},
		{Name: "pdf_key", Type: field.TypeString},
		{Name: "template_id", Type: field.TypeString, Size: 36, Nullable: true},
		{Name: "status", Type: field.TypeString},
		{Name: "pages", Type: field.TypeInt, Default: 0},
		{Name: "markdown", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "extracted_json", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "model_name", Type: field.TypeString, Nullable: true},
		{Name: "error_message", Type: field.TypeString, Nullable: true, SchemaType: textType},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
	}
	extractJobTable = &schema.Table{
		Name:       tableExtractJob,
		Columns:    extractJobColumns,
		PrimaryKey: []*schema.Column{extractJobColumns[0]},
		Indexes: []*schema.Index{
			{Name: "extract_job_status_started_at", Columns: []*schema.Column{extractJobColumns[4], extractJobColumns[10]}},
		},
	}

	// Tables is every table Migrate creates, in creation order.
	Tables = []*schema.Table{templatesTable, savedDocumentsTable, extractJobTable}
)
