package electron

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReserveCommitGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Reserve("b1"))

	// A reservation blocks duplicates but is invisible to Get.
	require.ErrorIs(t, r.Reserve("b1"), ErrSessionExists)
	_, err := r.Get("b1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	r.Commit(&Session{ID: "b1"})
	sess, err := r.Get("b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", sess.ID)
	require.ErrorIs(t, r.Reserve("b1"), ErrSessionExists)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReleaseFreesReservation(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Reserve("b1"))
	r.Release("b1")
	require.NoError(t, r.Reserve("b1"))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Commit(&Session{ID: "b1"})

	r.Remove("b1")
	_, err := r.Get("b1")
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Zero(t, r.Len())

	// Removing a missing ID is a no-op.
	r.Remove("b1")
}

func TestRegistryIndependentIDs(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Reserve("a"))
	require.NoError(t, r.Reserve("b"))
	r.Commit(&Session{ID: "a"})
	r.Release("b")

	_, err := r.Get("a")
	require.NoError(t, err)
	_, err = r.Get("b")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
