package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePropagation_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	p := testPropagation("p-1", 1)
	require.NoError(t, s.WritePropagation(ctx, p))
	require.NoError(t, s.WritePropagation(ctx, p))

	props, err := s.ListPropagations(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []Propagation{p}, props)
}

func TestWritePropagation_Conflict(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	p := testPropagation("p-1", 1)
	p.Digest = "aaaa"
	require.NoError(t, s.WritePropagation(ctx, p))

	edited := p
	edited.Digest = "bbbb"
	err := s.WritePropagation(ctx, edited)
	require.ErrorIs(t, err, ErrConflict)

	got, err := s.ReadPropagation(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "aaaa", got.Digest)
}

func TestWriteTrace(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	p1 := testPropagation("p-1", 1)
	p1.Digest = "one"
	p2 := testPropagation("p-2", 3)
	p2.Digest = "two"
	steps := []Step{testStep("p-1", 1, "leaf"), testStep("p-2", 3, "leaf")}
	require.NoError(t, s.WriteTrace(ctx, []Propagation{p1, p2}, steps))
	require.NoError(t, s.WriteTrace(ctx, []Propagation{p1, p2}, steps), "same trace twice")

	props, steps2, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, props)
	assert.Equal(t, 2, steps2)

	t.Run("conflict rolls back", func(t *testing.T) {
		p3 := testPropagation("p-3", 5)
		p3.Digest = "three"
		edited := p2
		edited.Digest = "two, edited"

		err := s.WriteTrace(ctx,
			[]Propagation{p3, edited},
			[]Step{testStep("p-3", 5, "leaf"), testStep("p-2", 4, "A")},
		)
		require.ErrorIs(t, err, ErrConflict)

		_, err = s.ReadPropagation(ctx, "p-3")
		assert.ErrorIs(t, err, ErrNotFound)
		got, err := s.ReadSteps(ctx, "p-2")
		require.NoError(t, err)
		assert.Len(t, got, 1, "no steps mixed into p-2")
	})
}

func TestWriteSteps_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-1", 1)))

	steps := []Step{testStep("p-1", 1, "leaf"), testStep("p-1", 2, "A")}
	require.NoError(t, s.WriteSteps(ctx, steps))
	require.NoError(t, s.WriteSteps(ctx, steps))

	got, err := s.ReadSteps(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, steps, got)
}

func TestWriteSteps_Empty(t *testing.T) {
	s := createTestStore(t)
	assert.NoError(t, s.WriteSteps(context.Background(), nil))
}

func TestWriteSteps_UnknownPropagationRollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-1", 1)))

	err := s.WriteSteps(ctx, []Step{
		testStep("p-1", 1, "leaf"),
		testStep("p-missing", 2, "A"),
	})
	require.Error(t, err)

	got, err := s.ReadSteps(ctx, "p-1")
	require.NoError(t, err)
	assert.Empty(t, got, "first step must roll back with the failed batch")
}
