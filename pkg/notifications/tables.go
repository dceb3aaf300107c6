package notifications

import (
	"errors"
	"fmt"
	"slices"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/config"
)

// Table describes one tracked table: how to read its rows and which
// category its events belong to.
type Table struct {
	Name           string                 `yaml:"name"`
	Category       Category               `yaml:"category"`
	EntityColumn   string                 `yaml:"entity_column"`
	ActorColumn    string                 `yaml:"actor_column"`
	ReactionColumn string                 `yaml:"reaction_column,omitempty"`
	PreviewColumn  string                 `yaml:"preview_column,omitempty"`
	Operations     []changefeed.Operation `yaml:"operations,omitempty"`
}

// DefaultTables returns the reactions, bookmarks and comments tables, each
// watched for inserts only.
func DefaultTables() []Table {
	insertOnly := func() []changefeed.Operation { return []changefeed.Operation{changefeed.OpInsert} }
	return []Table{
		{
			Name:           "reactions",
			Category:       CategoryReaction,
			EntityColumn:   "entity_id",
			ActorColumn:    "actor_id",
			ReactionColumn: "type",
			Operations:     insertOnly(),
		},
		{
			Name:         "bookmarks",
			Category:     CategoryBookmark,
			EntityColumn: "entity_id",
			ActorColumn:  "actor_id",
			Operations:   insertOnly(),
		},
		{
			Name:          "comments",
			Category:      CategoryComment,
			EntityColumn:  "entity_id",
			ActorColumn:   "actor_id",
			PreviewColumn: "body",
			Operations:    insertOnly(),
		},
	}
}

// Filter is the change feed filter for the table.
func (t Table) Filter() changefeed.Filter {
	return changefeed.Filter{Table: t.Name, Operations: t.Operations}
}

// Equal reports whether both describe the same subscription and row mapping.
func (t Table) Equal(o Table) bool {
	return t.Name == o.Name &&
		t.Category == o.Category &&
		t.EntityColumn == o.EntityColumn &&
		t.ActorColumn == o.ActorColumn &&
		t.ReactionColumn == o.ReactionColumn &&
		t.PreviewColumn == o.PreviewColumn &&
		slices.Equal(t.Operations, o.Operations)
}

// Validate checks the required fields and operation names.
func (t Table) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, changefeed.ErrEmptyTable)
	}
	if t.Category == "" {
		errs = append(errs, fmt.Errorf("table %q: category is required", t.Name))
	}
	if t.EntityColumn == "" {
		errs = append(errs, fmt.Errorf("table %q: entity_column is required", t.Name))
	}
	if t.ActorColumn == "" {
		errs = append(errs, fmt.Errorf("table %q: actor_column is required", t.Name))
	}
	for _, op := range t.Operations {
		if !op.Valid() {
			errs = append(errs, fmt.Errorf("table %q: unknown operation %q", t.Name, op))
		}
	}
	return errors.Join(errs...)
}

type tablesFile struct {
	Tables []Table `yaml:"tables"`
}

// LoadTables reads a table catalog from a YAML file:
//
//	tables:
//	  - name: reactions
//	    category: reaction
//	    entity_column: entity_id
//	    actor_column: actor_id
//	    reaction_column: type
//	    operations: [INSERT]
func LoadTables(path string) ([]Table, error) {
	var f tablesFile
	if err := config.LoadYAML(path, &f); err != nil {
		return nil, err
	}
	if len(f.Tables) == 0 {
		return nil, ErrNoTables
	}

	seen := make(map[string]struct{}, len(f.Tables))
	var errs []error
	for _, t := range f.Tables {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fmt.Errorf("table %q listed twice", t.Name))
		}
		seen[t.Name] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, errors.Join(ErrInvalidTables, err)
	}
	return f.Tables, nil
}
