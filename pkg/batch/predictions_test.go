package batch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredictionStoreMergeIsIdempotentAndLastWriterWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preds.json")
	store, err := NewPredictionStore(path)
	require.NoError(t, err)

	require.False(t, store.Has("inst-1"))

	require.NoError(t, store.Merge(Prediction{InstanceID: "inst-1", ModelPatch: "patch-a", ModelNameOrPath: "team-a"}))
	require.True(t, store.Has("inst-1"))

	// Re-merging the same instance with a newer patch overwrites, it never
	// duplicates or errors.
	require.NoError(t, store.Merge(Prediction{InstanceID: "inst-1", ModelPatch: "patch-b", ModelNameOrPath: "team-a"}))

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "patch-b", snap["inst-1"].ModelPatch)
}

func TestPredictionStoreReloadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preds.json")

	first, err := NewPredictionStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Merge(Prediction{InstanceID: "inst-1", ModelPatch: "patch-a", ModelNameOrPath: "team-a"}))

	second, err := NewPredictionStore(path)
	require.NoError(t, err)
	require.True(t, second.Has("inst-1"))
}

func TestPredictionStoreMergeIsCommutativeAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preds.json")
	store, err := NewPredictionStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Merge(Prediction{InstanceID: "a", ModelPatch: "pa", ModelNameOrPath: "team"}))
	require.NoError(t, store.Merge(Prediction{InstanceID: "b", ModelPatch: "pb", ModelNameOrPath: "team"}))

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "pa", snap["a"].ModelPatch)
	require.Equal(t, "pb", snap["b"].ModelPatch)
}
