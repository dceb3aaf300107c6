package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQueries(t *testing.T) {
	q := buildQueries(Config{})

	assert.Equal(t, `SELECT id::text FROM "articles" WHERE "author_id"::text = $1`, q.owned)
	assert.Equal(t, `SELECT "title" FROM "articles" WHERE id::text = $1 LIMIT 1`, q.title)
	assert.Equal(t, `SELECT "display_name" FROM "profiles" WHERE id::text = $1 LIMIT 1`, q.name)
	assert.Equal(t, `SELECT category, enabled FROM "notification_preferences" WHERE user_id::text = $1`, q.prefs)

	custom := buildQueries(Config{EntityTable: "posts", TitleColumn: `bad"name`})
	assert.Equal(t, `SELECT "bad""name" FROM "posts" WHERE id::text = $1 LIMIT 1`, custom.title)
}
