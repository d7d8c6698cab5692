package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPropagation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	p := testPropagation("p-1", 3)
	require.NoError(t, s.WritePropagation(ctx, p))

	got, err := s.ReadPropagation(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestReadPropagation_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadPropagation(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPropagations_OrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	other := Propagation{ID: "q-1", Scenario: "other", Origin: "x", Change: "2", Seq: 2}
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-b", 5)))
	require.NoError(t, s.WritePropagation(ctx, other))
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-a", 5)))

	all, err := s.ListPropagations(ctx, "")
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"q-1", "p-a", "p-b"}, ids, "seq then id")

	counter, err := s.ListPropagations(ctx, "counter")
	require.NoError(t, err)
	assert.Len(t, counter, 2)

	none, err := s.ListPropagations(ctx, "absent")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadSteps_Ordered(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-1", 1)))

	require.NoError(t, s.WriteSteps(ctx, []Step{
		testStep("p-1", 3, "R"),
		testStep("p-1", 1, "leaf"),
		testStep("p-1", 2, "A"),
	}))

	got, err := s.ReadSteps(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "leaf", got[0].Node)
	assert.Equal(t, "A", got[1].Node)
	assert.Equal(t, "R", got[2].Node)
}

func TestReadSteps_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadSteps(context.Background(), "nope")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadNodeSteps(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-1", 1)))
	require.NoError(t, s.WritePropagation(ctx, testPropagation("p-2", 3)))
	require.NoError(t, s.WriteSteps(ctx, []Step{
		testStep("p-1", 1, "leaf"),
		testStep("p-1", 2, "A"),
		testStep("p-2", 3, "leaf"),
		testStep("p-2", 4, "A"),
	}))

	got, err := s.ReadNodeSteps(ctx, "A")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p-1", got[0].Propagation)
	assert.Equal(t, "p-2", got[1].Propagation)
}
