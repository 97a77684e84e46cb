package runtime

import (
	"fmt"

	errspkg "github.com/drblury/stagestats/internal/runtime/errors"
	loggingpkg "github.com/drblury/stagestats/internal/runtime/logging"
	"github.com/drblury/stagestats/internal/runtime/stats"
	"github.com/drblury/stagestats/internal/runtime/stream"
)

// Result addresses one discovered stage and exposes its live accumulator.
type Result struct {
	// Name is the declared type name of the stage.
	Name  string
	Kind  stream.Kind
	Layer int
	Index int
	Path  []int
	Stats *stats.Stats
	// Shared is set when the stage was already listed under another path and
	// this entry reuses that accumulator.
	Shared bool
}

// ResultSnapshot is the serialisable form of a Result.
type ResultSnapshot struct {
	Name   string         `json:"name"`
	Kind   string         `json:"kind"`
	Layer  int            `json:"layer"`
	Index  int            `json:"index"`
	Path   []int          `json:"path"`
	Shared bool           `json:"shared,omitempty"`
	Stats  stats.Snapshot `json:"stats"`
}

// PathString renders Path as dot-separated indices.
func (r *Result) PathString() string {
	return loggingpkg.FormatPath(r.Path)
}

// Snapshot copies the result and the current accumulator values.
func (r *Result) Snapshot() ResultSnapshot {
	path := make([]int, len(r.Path))
	copy(path, r.Path)
	return ResultSnapshot{
		Name:   r.Name,
		Kind:   r.Kind.String(),
		Layer:  r.Layer,
		Index:  r.Index,
		Path:   path,
		Shared: r.Shared,
		Stats:  r.Stats.Snapshot(),
	}
}

// registrar discovers the graph below a root node. It only collects; the
// reporter instruments the distinct nodes once the walk succeeded, so a
// rejected graph is left untouched.
type registrar struct {
	results   []*Result
	nodes     []*stream.Node
	accs      map[*stream.Node]*stats.Stats
	firstPath map[*stream.Node][]int
	ancestors map[*stream.Node]bool
}

func newRegistrar() *registrar {
	return &registrar{
		accs:      make(map[*stream.Node]*stats.Stats),
		firstPath: make(map[*stream.Node][]int),
		ancestors: make(map[*stream.Node]bool),
	}
}

// walk lists n and then each child subtree in pipe order (pre-order, depth
// first). A node reached again through another path is listed again with its
// own address and the accumulator of its first listing.
func (g *registrar) walk(n *stream.Node, index, parentLayer int, parentPath []int) error {
	layer := parentLayer + 1
	path := make([]int, len(parentPath)+1)
	copy(path, parentPath)
	path[len(parentPath)] = index

	if g.ancestors[n] {
		return fmt.Errorf("%s at %v: %w", n.Name(), path, errspkg.ErrCycleDetected)
	}

	res := &Result{
		Name:  n.Name(),
		Kind:  n.Kind(),
		Layer: layer,
		Index: index,
		Path:  path,
	}
	if acc, ok := g.accs[n]; ok {
		res.Stats = acc
		res.Shared = true
	} else {
		res.Stats = stats.New()
		g.accs[n] = res.Stats
		g.firstPath[n] = path
		g.nodes = append(g.nodes, n)
	}
	g.results = append(g.results, res)

	g.ancestors[n] = true
	defer delete(g.ancestors, n)

	for i, child := range n.Pipes() {
		if child == nil {
			return fmt.Errorf("%s pipe %d: %w", n.Name(), i, errspkg.ErrStageRequired)
		}
		if err := g.walk(child, i, layer, path); err != nil {
			return err
		}
	}
	return nil
}
