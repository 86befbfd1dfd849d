package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemloop/tandem/internal/skill"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(store)
}

func TestUpsertReplacesContentKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Upsert(ctx, &skill.Skill{Name: "error-wrapping", Content: "v1", SourceIteration: 1}))
	first, err := repo.Get(ctx, "error-wrapping")
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, &skill.Skill{Name: "error-wrapping", Content: "v2", SourceIteration: 4}))
	second, err := repo.Get(ctx, "error-wrapping")
	require.NoError(t, err)

	assert.Equal(t, "v2", second.Content)
	assert.Equal(t, 4, second.SourceIteration)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	names, err := repo.Names(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 1, "re-emitting a name must not create a second document")
}

func TestSlugCollapsesEquivalentNames(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Upsert(ctx, &skill.Skill{Name: "Prefer Table Tests", Content: "a"}))
	got, err := repo.Get(ctx, "prefer table tests")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Content)
}

func TestGetMissingIsNotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestListEmpty(t *testing.T) {
	repo := newRepo(t)

	all, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
