package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemloop/tandem/internal/review"
	"github.com/tandemloop/tandem/pkg/cerr"
	"github.com/tandemloop/tandem/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(store)
}

func TestCreateAssignsID(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rv := &review.Review{Iteration: 1, Verdict: review.VerdictApprove, Score: 8}
	require.NoError(t, repo.Create(ctx, rv))
	assert.NotEmpty(t, rv.ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rv.ID, all[0].ID)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	rv := &review.Review{ID: "fixed", Iteration: 1}
	require.NoError(t, repo.Create(ctx, rv))

	err := repo.Create(ctx, &review.Review{ID: "fixed", Iteration: 2})
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))
}

func TestListSortsByIterationAndSkipsReport(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Create(ctx, &review.Review{Iteration: 6}))
	require.NoError(t, repo.Create(ctx, &review.Review{Iteration: 3}))
	require.NoError(t, repo.SaveReport(ctx, &review.Report{GeneratedAt: time.Now()}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2, "the final report must not be listed as a review")
	assert.Equal(t, 3, all[0].Iteration)
	assert.Equal(t, 6, all[1].Iteration)
}

func TestReportRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Report(ctx)
	require.Error(t, err)
	assert.True(t, cerr.IsCode(err, cerr.NotFound))

	saved := &review.Report{
		GeneratedAt: time.Now().UTC(),
		Reviews:     []review.ReportEntry{{Iteration: 2, Verdict: review.VerdictNeedsWork, Score: 5}},
		SkillNames:  []string{"error-wrapping"},
	}
	require.NoError(t, repo.SaveReport(ctx, saved))

	got, err := repo.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Reviews, got.Reviews)
	assert.Equal(t, saved.SkillNames, got.SkillNames)
}
