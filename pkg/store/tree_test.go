package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/firscity/zephyr-xenlib/pkg/base"
)

func newTestTree() *Tree {
	return NewTree(base.NewLogger(nil))
}

func TestWriteCreatesIntermediateNodes(t *testing.T) {
	tr := newTestTree()
	require.NoError(t, tr.Write("/a/b/c", []byte("v"), true))

	node, ok := tr.Lookup("/a/b/c")
	require.True(t, ok)
	require.True(t, node.HasValue)
	require.Equal(t, []byte("v"), node.Value)

	intermediate, ok := tr.Lookup("/a/b")
	require.True(t, ok)
	require.False(t, intermediate.HasValue)
}

func TestWriteZeroLengthValueLeavesExistingValueUntouched(t *testing.T) {
	tr := newTestTree()
	require.NoError(t, tr.Write("/a", []byte("orig"), true))
	require.NoError(t, tr.Write("/a", nil, false)) // mkdir-style write

	node, ok := tr.Lookup("/a")
	require.True(t, ok)
	require.True(t, node.HasValue)
	require.Equal(t, []byte("orig"), node.Value)
}

func TestLookupRootAlwaysExists(t *testing.T) {
	tr := newTestTree()
	node, ok := tr.Lookup("/")
	require.True(t, ok)
	require.False(t, node.HasValue)
}

func TestLookupMissingPath(t *testing.T) {
	tr := newTestTree()
	_, ok := tr.Lookup("/nope")
	require.False(t, ok)
}

func TestRemoveRejectsRoot(t *testing.T) {
	tr := newTestTree()
	_, err := tr.Remove("/")
	require.ErrorIs(t, err, errRemoveRoot)
}

func TestRemoveAbsentPathIsNotAnError(t *testing.T) {
	tr := newTestTree()
	removed, err := tr.Remove("/nope")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestRemoveDeletesWholeSubtree(t *testing.T) {
	tr := newTestTree()
	require.NoError(t, tr.Write("/a/b", []byte("v"), true))
	require.NoError(t, tr.Write("/a/c", []byte("v"), true))

	removed, err := tr.Remove("/a")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok := tr.Lookup("/a")
	require.False(t, ok)
	_, ok = tr.Lookup("/a/b")
	require.False(t, ok)
}

func TestDirectoryNamesOrdered(t *testing.T) {
	tr := newTestTree()
	require.NoError(t, tr.Write("/a/one", nil, false))
	require.NoError(t, tr.Write("/a/two", nil, false))

	node, ok := tr.Lookup("/a")
	require.True(t, ok)
	require.Equal(t, []string{"one", "two"}, DirectoryNames(node))
}

func TestVersionIncrementsOnMutation(t *testing.T) {
	tr := newTestTree()
	v0 := tr.Version()
	require.NoError(t, tr.Write("/a", []byte("v"), true))
	require.Greater(t, tr.Version(), v0)

	v1 := tr.Version()
	_, err := tr.Remove("/a")
	require.NoError(t, err)
	require.Greater(t, tr.Version(), v1)
}
