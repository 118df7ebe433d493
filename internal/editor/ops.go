package editor

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/parsemed/internal/attributes"
)

// OpKind names an edit command.
type OpKind string

const (
	OpSetCell         OpKind = "set_cell"
	OpRenameColumn    OpKind = "rename_column"
	OpAddColumn       OpKind = "add_column"
	OpRemoveColumn    OpKind = "remove_column"
	OpAddRow          OpKind = "add_row"
	OpRemoveRow       OpKind = "remove_row"
	OpAddAttribute    OpKind = "add_attribute"
	OpRemoveAttribute OpKind = "remove_attribute"
	OpReorder         OpKind = "reorder"
)

// Op is one edit command as sent by a client. Which fields matter depends on
// Kind.
type Op struct {
	Kind      OpKind `json:"op"`
	Attribute string `json:"attribute,omitempty"`
	Row       int    `json:"row,omitempty"`
	Col       int    `json:"col,omitempty"`
	Value     string `json:"value,omitempty"`
	Name      string `json:"name,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// Result reports what an op did. Applied is false for ops that were valid
// but had nothing to change, such as an out-of-range index.
type Result struct {
	Applied   bool   `json:"applied"`
	Attribute string `json:"attribute,omitempty"`
}

// Validate checks that the fields an op needs are present.
func (op Op) Validate() error {
	switch op.Kind {
	case OpSetCell, OpRenameColumn, OpAddColumn, OpRemoveColumn, OpAddRow, OpRemoveRow, OpRemoveAttribute:
		if strings.TrimSpace(op.Attribute) == "" {
			return fmt.Errorf("%s: attribute is required", op.Kind)
		}
	case OpAddAttribute:
	case OpReorder:
		if op.From == "" || op.To == "" {
			return fmt.Errorf("reorder: from and to are required")
		}
	default:
		return fmt.Errorf("unknown op %q", op.Kind)
	}
	if op.Kind == OpRenameColumn && strings.TrimSpace(op.Name) == "" {
		return fmt.Errorf("rename_column: name is required")
	}
	return nil
}

// Apply runs op against w.
func Apply(w *attributes.Workspace, op Op) (Result, error) {
	if err := op.Validate(); err != nil {
		return Result{}, err
	}
	doc := w.Document()
	res := Result{Attribute: op.Attribute}
	switch op.Kind {
	case OpSetCell:
		res.Applied = doc.SetCell(op.Attribute, op.Row, op.Col, op.Value)
	case OpRenameColumn:
		res.Applied = doc.RenameColumn(op.Attribute, op.Col, strings.TrimSpace(op.Name))
	case OpAddColumn:
		res.Applied = doc.AddColumn(op.Attribute)
	case OpRemoveColumn:
		res.Applied = doc.RemoveColumn(op.Attribute, op.Col)
	case OpAddRow:
		res.Applied = doc.AddRow(op.Attribute)
	case OpRemoveRow:
		res.Applied = doc.RemoveRow(op.Attribute, op.Row)
	case OpAddAttribute:
		name := strings.TrimSpace(op.Name)
		if name == "" {
			res.Attribute = w.NewAttribute()
			res.Applied = true
			break
		}
		if err := w.AddAttribute(name); err != nil {
			return Result{}, err
		}
		res.Attribute, res.Applied = name, true
	case OpRemoveAttribute:
		res.Applied = w.RemoveAttribute(op.Attribute)
	case OpReorder:
		res.Attribute = op.From
		res.Applied = w.Reorder(op.From, op.To)
	}
	return res, nil
}
