package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/logger"
)

func TestInterestSet(t *testing.T) {
	s := NewInterestSet("b", "a", "", "a")

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.IDs())
	assert.True(t, s.Equal(NewInterestSet("a", "b")))
	assert.False(t, s.Equal(NewInterestSet("a", "c")))
	assert.False(t, s.Equal(NewInterestSet("a")))

	var zero InterestSet
	assert.True(t, zero.Empty())
	assert.False(t, zero.Has("a"))
	assert.True(t, zero.Equal(NewInterestSet()))
}

func TestInterestResolver_Resolve(t *testing.T) {
	dir := newFakeDirectory()
	dir.owned["U"] = []string{"art-1", "art-3"}
	r := NewInterestResolver(dir, logger.Discard())

	set, err := r.Resolve(context.Background(), "U")
	require.NoError(t, err)
	assert.Equal(t, []string{"art-1", "art-3"}, set.IDs())
}

func TestInterestResolver_FailureYieldsEmptySet(t *testing.T) {
	dir := newFakeDirectory()
	dir.ownedErr = errBackendDown
	r := NewInterestResolver(dir, logger.Discard())

	set, err := r.Resolve(context.Background(), "U")
	require.ErrorIs(t, err, errBackendDown)
	assert.True(t, set.Empty())
}

func TestInterestResolver_AnonymousSkipsLookup(t *testing.T) {
	dir := newFakeDirectory()
	r := NewInterestResolver(dir, logger.Discard())

	set, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, set.Empty())
	assert.Equal(t, 0, dir.Calls("owned"))
}
