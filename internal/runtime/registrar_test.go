package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

type expectedResult struct {
	name  string
	layer int
	index int
	path  []int
}

func assertResults(t *testing.T, expected []expectedResult, results []*Result) {
	t.Helper()
	require.Len(t, results, len(expected))
	for i, e := range expected {
		r := results[i]
		assert.Equal(t, e.name, r.Name, "name of result %d", i)
		assert.Equal(t, e.layer, r.Layer, "layer of result %d", i)
		assert.Equal(t, e.index, r.Index, "index of result %d", i)
		assert.Equal(t, e.path, r.Path, "path of result %d", i)
	}
}

func TestRegistrarLinearAddressing(t *testing.T) {
	root, _ := linearPipeline(false)
	g := newRegistrar()
	require.NoError(t, g.walk(root, 0, 0, nil))

	assertResults(t, []expectedResult{
		{"SyncRead", 1, 0, []int{0}},
		{"SyncTransform", 2, 0, []int{0, 0}},
		{"SyncTransform", 3, 0, []int{0, 0, 0}},
		{"SyncTransform", 4, 0, []int{0, 0, 0, 0}},
		{"SyncWrite", 5, 0, []int{0, 0, 0, 0, 0}},
	}, g.results)
	assert.Len(t, g.nodes, 5)
}

func TestRegistrarBranchIsPreOrder(t *testing.T) {
	root, _ := branchPipeline(false)
	g := newRegistrar()
	require.NoError(t, g.walk(root, 0, 0, nil))

	assertResults(t, []expectedResult{
		{"SyncRead", 1, 0, []int{0}},
		{"SyncTransform", 2, 0, []int{0, 0}},
		{"SyncWrite", 3, 0, []int{0, 0, 0}},
		{"SyncTransform", 2, 1, []int{0, 1}},
		{"SyncWrite", 3, 0, []int{0, 1, 0}},
	}, g.results)
}

func TestRegistrarPathsDoNotAlias(t *testing.T) {
	root := stream.New(newSyncRead(1))
	for range 3 {
		root.Pipe(stream.New(SyncWrite{}))
	}
	g := newRegistrar()
	require.NoError(t, g.walk(root, 0, 0, nil))

	assert.Equal(t, []int{0, 0}, g.results[1].Path)
	assert.Equal(t, []int{0, 1}, g.results[2].Path)
	assert.Equal(t, []int{0, 2}, g.results[3].Path)
}

func TestRegistrarFanInSharesAccumulator(t *testing.T) {
	root := stream.New(newSyncRead(1))
	merge := stream.New(SyncWrite{})
	root.Pipe(stream.New(SyncTransform{})).Pipe(merge)
	root.Pipe(stream.New(SyncTransform{})).Pipe(merge)

	g := newRegistrar()
	require.NoError(t, g.walk(root, 0, 0, nil))

	assertResults(t, []expectedResult{
		{"SyncRead", 1, 0, []int{0}},
		{"SyncTransform", 2, 0, []int{0, 0}},
		{"SyncWrite", 3, 0, []int{0, 0, 0}},
		{"SyncTransform", 2, 1, []int{0, 1}},
		{"SyncWrite", 3, 0, []int{0, 1, 0}},
	}, g.results)
	assert.False(t, g.results[2].Shared)
	assert.True(t, g.results[4].Shared)
	assert.Same(t, g.results[2].Stats, g.results[4].Stats)
	assert.Len(t, g.nodes, 4, "merge node is instrumented once")
	assert.Equal(t, []int{0, 0, 0}, g.firstPath[merge])
}

func TestRegistrarRejectsCycle(t *testing.T) {
	root := stream.New(newSyncRead(1))
	a := stream.New(SyncTransform{})
	b := stream.New(SyncTransform{})
	root.Pipe(a).Pipe(b).Pipe(a)

	g := newRegistrar()
	err := g.walk(root, 0, 0, nil)
	assert.ErrorIs(t, err, errspkg.ErrCycleDetected)
}

func TestRegistrarRejectsNilPipe(t *testing.T) {
	root := stream.New(newSyncRead(1))
	root.Pipe(nil)

	g := newRegistrar()
	assert.ErrorIs(t, g.walk(root, 0, 0, nil), errspkg.ErrStageRequired)
}

func TestResultSnapshot(t *testing.T) {
	root, _ := linearPipeline(false)
	g := newRegistrar()
	require.NoError(t, g.walk(root, 0, 0, nil))

	res := g.results[2]
	res.Stats.Add(4)
	snap := res.Snapshot()

	assert.Equal(t, "SyncTransform", snap.Name)
	assert.Equal(t, "transformer", snap.Kind)
	assert.Equal(t, "0.0.0", res.PathString())
	assert.EqualValues(t, 1, snap.Stats.Count)

	snap.Path[0] = 42
	assert.Equal(t, 0, res.Path[0], "snapshot path is a copy")
}
