package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	refs     map[int64]ProductRef
	refCalls int
	optCalls int
}

func (r *countingRepo) GetRef(ctx context.Context, id int64) (ProductRef, bool, error) {
	r.refCalls++
	ref, ok := r.refs[id]
	return ref, ok, nil
}

func (r *countingRepo) GetRefs(ctx context.Context, ids []int64) (map[int64]ProductRef, error) {
	out := map[int64]ProductRef{}
	for _, id := range ids {
		if ref, ok := r.refs[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

func (r *countingRepo) Exists(ctx context.Context, id int64) (bool, error) {
	_, ok := r.refs[id]
	return ok, nil
}

func (r *countingRepo) ListOptions(ctx context.Context, search string, limit int) ([]Option, error) {
	r.optCalls++
	options := []Option{}
	for _, ref := range r.refs {
		options = append(options, Option{ID: ref.ID, Name: ref.Name})
	}
	return options, nil
}

func newCachedService(t *testing.T) (*Service, *countingRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &countingRepo{refs: map[int64]ProductRef{
		10: {ID: 10, Name: "Pinot Noir 2021", Category: "red"},
		11: {ID: 11, Name: "Riesling 2023", Category: "white"},
	}}
	return NewService(repo, NewCache(client, time.Minute)), repo
}

func TestRefsCachesLookups(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()

	refs, err := svc.Refs(ctx, []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "Pinot Noir 2021", refs[10].Name)
	assert.Equal(t, 2, repo.refCalls)

	// Second read is served from cache.
	refs, err = svc.Refs(ctx, []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, 2, repo.refCalls)
}

func TestRefsCachesAbsence(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()

	refs, err := svc.Refs(ctx, []int64{999})
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 1, repo.refCalls)

	refs, err = svc.Refs(ctx, []int64{999})
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 1, repo.refCalls)
}

func TestInvalidateBumpsVersion(t *testing.T) {
	svc, repo := newCachedService(t)
	ctx := context.Background()

	_, err := svc.OptionsForSelect(ctx, "", 50)
	require.NoError(t, err)
	_, err = svc.OptionsForSelect(ctx, "", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.optCalls)

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.OptionsForSelect(ctx, "", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.optCalls)
}

func TestServiceWithoutCache(t *testing.T) {
	repo := &countingRepo{refs: map[int64]ProductRef{10: {ID: 10, Name: "Pinot Noir 2021"}}}
	svc := NewService(repo, nil)
	ctx := context.Background()

	refs, err := svc.Refs(ctx, []int64{10})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	ok, err := svc.Exists(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.Exists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}
