package notifications

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()
	require.Len(t, tables, 3)

	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		require.NoError(t, tbl.Validate())
		assert.Equal(t, []changefeed.Operation{changefeed.OpInsert}, tbl.Operations)
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"reactions", "bookmarks", "comments"}, names)

	// Each call returns fresh slices.
	tables[0].Operations[0] = changefeed.OpDelete
	assert.Equal(t, changefeed.OpInsert, DefaultTables()[0].Operations[0])
}

func TestTable_Validate(t *testing.T) {
	err := Table{Operations: []changefeed.Operation{"UPSERT"}}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, changefeed.ErrEmptyTable)
	assert.Contains(t, err.Error(), "category is required")
	assert.Contains(t, err.Error(), "entity_column is required")
	assert.Contains(t, err.Error(), "actor_column is required")
	assert.Contains(t, err.Error(), `unknown operation "UPSERT"`)
}

func TestTable_Equal(t *testing.T) {
	a := tableByName("reactions")
	b := tableByName("reactions")
	assert.True(t, a.Equal(b))

	b.Operations = append(b.Operations, changefeed.OpUpdate)
	assert.False(t, a.Equal(b))

	c := tableByName("reactions")
	c.ReactionColumn = "kind"
	assert.False(t, a.Equal(c))
}

func TestLoadTables(t *testing.T) {
	path := writeFile(t, `
tables:
  - name: reactions
    category: reaction
    entity_column: post_id
    actor_column: user_id
    reaction_column: kind
    operations: [INSERT, UPDATE]
  - name: comments
    category: comment
    entity_column: post_id
    actor_column: user_id
    preview_column: content
`)

	tables, err := LoadTables(path)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, Table{
		Name:           "reactions",
		Category:       CategoryReaction,
		EntityColumn:   "post_id",
		ActorColumn:    "user_id",
		ReactionColumn: "kind",
		Operations:     []changefeed.Operation{changefeed.OpInsert, changefeed.OpUpdate},
	}, tables[0])
	assert.Empty(t, tables[1].Operations)
	assert.Equal(t, changefeed.Filter{Table: "comments"}, tables[1].Filter())
}

func TestLoadTables_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, config.ErrReadingFile)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := LoadTables(writeFile(t, "tables:\n  - name: reactions\n    colour: red\n"))
		assert.ErrorIs(t, err, config.ErrParsingFile)
	})

	t.Run("empty catalog", func(t *testing.T) {
		_, err := LoadTables(writeFile(t, "tables: []\n"))
		assert.ErrorIs(t, err, ErrNoTables)
	})

	t.Run("invalid and duplicate tables", func(t *testing.T) {
		_, err := LoadTables(writeFile(t, `
tables:
  - name: reactions
    category: reaction
    entity_column: entity_id
    actor_column: actor_id
  - name: reactions
    category: reaction
    entity_column: entity_id
    actor_column: actor_id
  - name: bookmarks
`))
		require.ErrorIs(t, err, ErrInvalidTables)
		assert.Contains(t, err.Error(), `table "reactions" listed twice`)
		assert.Contains(t, err.Error(), `table "bookmarks": category is required`)
	})
}
