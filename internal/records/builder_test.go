package records

import (
	"context"
	"testing"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/synset-tree/library/log"
)

type fakeSizeLookup struct {
	sizes map[string]int64
	extra []PathSize
	calls [][]string
	err   error
}

// FetchSizesForExactNames records the requested names and answers from the sizes map.
func (f *fakeSizeLookup) FetchSizesForExactNames(_ context.Context, names []string) ([]PathSize, error) {
	f.calls = append(f.calls, append([]string(nil), names...))
	if f.err != nil {
		return nil, f.err
	}

	var out []PathSize
	for _, name := range names {
		if size, ok := f.sizes[name]; ok {
			out = append(out, PathSize{Name: name, Size: size})
		}
	}
	return append(out, f.extra...), nil
}

func newTestBuilder(sizes SizeLookup) *Builder {
	return NewBuilder(sizes, log.Logger.Named("test_builder"))
}

// findNode walks nodes by segment and returns the node at path, or nil.
func findNode(nodes []*Node, segments ...string) *Node {
	var found *Node
	for _, segment := range segments {
		found = nil
		for _, n := range nodes {
			if n.Name == segment {
				found = n
				break
			}
		}
		if found == nil {
			return nil
		}
		nodes = found.Children
	}
	return found
}

// collectPaths flattens the tree into reconstructed full paths.
func collectPaths(nodes []*Node, prefix []string, out map[string]*Node) {
	for _, n := range nodes {
		segments := append(append([]string(nil), prefix...), n.Name)
		out[JoinPath(segments)] = n
		collectPaths(n.Children, segments, out)
	}
}

func TestBuildFullRoundTripLeafPreservation(t *testing.T) {
	input := []Record{
		{ID: 1, Name: "Animal", Size: 4},
		{ID: 2, Name: "Animal > Mammal", Size: 2},
		{ID: 3, Name: "Animal > Mammal > Cat", Size: 0},
		{ID: 4, Name: "Animal > Bird", Size: 0},
		{ID: 5, Name: "Plant", Size: 0},
	}

	nodes, err := newTestBuilder(nil).Build(context.Background(), input, ModeFull)
	require.NoError(t, err)

	paths := make(map[string]*Node)
	collectPaths(nodes, nil, paths)
	for _, r := range input {
		n, ok := paths[r.Name]
		require.True(t, ok, "missing node for %q", r.Name)
		require.Equal(t, r.ID, n.ID)
		require.Equal(t, r.Size, n.Size)
		require.Equal(t, r.Name, n.Path)
	}
	require.Len(t, paths, len(input))
}

func TestBuildFullSynthesizesAncestorsWithBackfill(t *testing.T) {
	lookup := &fakeSizeLookup{sizes: map[string]int64{"A": 12, "A > B": 7}}

	nodes, err := newTestBuilder(lookup).Build(context.Background(),
		[]Record{{ID: 9, Name: "A > B > C", Size: 5}}, ModeFull)
	require.NoError(t, err)

	require.Len(t, lookup.calls, 1)
	require.Equal(t, []string{"A", "A > B"}, lookup.calls[0])

	require.Len(t, nodes, 1)
	a := nodes[0]
	require.Equal(t, "A", a.Name)
	require.Equal(t, "A", a.Path)
	require.EqualValues(t, 0, a.ID)
	require.EqualValues(t, 12, a.Size)

	require.Len(t, a.Children, 1)
	b := a.Children[0]
	require.Equal(t, "B", b.Name)
	require.Equal(t, "A > B", b.Path)
	require.EqualValues(t, 7, b.Size)

	require.Len(t, b.Children, 1)
	c := b.Children[0]
	require.Equal(t, "C", c.Name)
	require.EqualValues(t, 9, c.ID)
	require.EqualValues(t, 5, c.Size)
	require.NotNil(t, c.Children)
	require.Empty(t, c.Children)
}

func TestBuildFullWithoutLookupKeepsZeroSizes(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(),
		[]Record{{ID: 9, Name: "A > B > C", Size: 5}}, ModeFull)
	require.NoError(t, err)

	require.EqualValues(t, 0, findNode(nodes, "A").Size)
	require.EqualValues(t, 0, findNode(nodes, "A", "B").Size)
	require.EqualValues(t, 5, findNode(nodes, "A", "B", "C").Size)
}

func TestBuildFullSkipsLookupForPresentAncestors(t *testing.T) {
	lookup := &fakeSizeLookup{sizes: map[string]int64{"A": 100}}

	_, err := newTestBuilder(lookup).Build(context.Background(), []Record{
		{ID: 1, Name: "A > B", Size: 1},
		{ID: 2, Name: "A", Size: 3},
	}, ModeFull)
	require.NoError(t, err)
	require.Empty(t, lookup.calls, "ancestor present in input must not be looked up")
}

func TestBuildFullRecordOverwritesPlaceholder(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(), []Record{
		{ID: 1, Name: "A > B", Size: 1},
		{ID: 2, Name: "A", Size: 3},
	}, ModeFull)
	require.NoError(t, err)

	a := findNode(nodes, "A")
	require.NotNil(t, a)
	require.EqualValues(t, 2, a.ID)
	require.EqualValues(t, 3, a.Size)
	require.Len(t, a.Children, 1)
}

func TestBuildFullBackfillIgnoresUnknownNames(t *testing.T) {
	lookup := &fakeSizeLookup{
		sizes: map[string]int64{"A": 4},
		extra: []PathSize{{Name: "Z > Q", Size: 8}, {Name: "A > B", Size: 99}},
	}

	nodes, err := newTestBuilder(lookup).Build(context.Background(),
		[]Record{{ID: 1, Name: "A > B", Size: 1}}, ModeFull)
	require.NoError(t, err)
	require.EqualValues(t, 4, findNode(nodes, "A").Size)
	require.Len(t, nodes, 1)
	// rows are matched by full path, so an unsolicited row for a present node still lands
	require.EqualValues(t, 99, findNode(nodes, "A", "B").Size)
}

func TestBuildFullBackfillErrorSurfaces(t *testing.T) {
	lookup := &fakeSizeLookup{err: errors.New("connection reset")}

	_, err := newTestBuilder(lookup).Build(context.Background(),
		[]Record{{ID: 1, Name: "A > B", Size: 1}}, ModeFull)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestBuildFlatMode(t *testing.T) {
	lookup := &fakeSizeLookup{}
	nodes, err := newTestBuilder(lookup).Build(context.Background(), []Record{
		{ID: 7, Name: "X > Y > Z", Size: 3},
	}, ModeFlat)
	require.NoError(t, err)
	require.Empty(t, lookup.calls)

	require.Equal(t, []*Node{{ID: 7, Name: "Z", Path: "X > Y > Z", Size: 3, Children: []*Node{}}}, nodes)
}

func TestBuildFlatPreservesOrderAndTrims(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(), []Record{
		{ID: 2, Name: "P >  second ", Size: 1},
		{ID: 1, Name: "P>first", Size: 2},
		{ID: 3, Name: "solo", Size: 0},
	}, ModeFlat)
	require.NoError(t, err)

	require.Len(t, nodes, 3)
	require.Equal(t, "second", nodes[0].Name)
	require.Equal(t, "P > second", nodes[0].Path)
	require.Equal(t, "first", nodes[1].Name)
	require.Equal(t, "solo", nodes[2].Name)
}

func TestBuildEmptyInput(t *testing.T) {
	for _, mode := range []Mode{ModeFull, ModeFlat} {
		t.Run(mode.String(), func(t *testing.T) {
			nodes, err := newTestBuilder(nil).Build(context.Background(), nil, mode)
			require.NoError(t, err)
			require.NotNil(t, nodes)
			require.Empty(t, nodes)
		})
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	input := []Record{
		{ID: 1, Name: "A > B > C", Size: 5},
		{ID: 2, Name: "A > D", Size: 1},
		{ID: 3, Name: "E", Size: 2},
	}
	lookup := &fakeSizeLookup{sizes: map[string]int64{"A": 9, "A > B": 6}}
	builder := newTestBuilder(lookup)

	first, err := builder.Build(context.Background(), input, ModeFull)
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), input, ModeFull)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildFullOrderingFollowsFirstAppearance(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(), []Record{
		{ID: 1, Name: "Zebra > Stripe", Size: 0},
		{ID: 2, Name: "Apple > Seed", Size: 0},
		{ID: 3, Name: "Zebra > Hoof", Size: 0},
		{ID: 4, Name: "Zebra > Apple", Size: 0},
		{ID: 5, Name: "Mango", Size: 0},
	}, ModeFull)
	require.NoError(t, err)

	names := func(ns []*Node) []string {
		out := make([]string, 0, len(ns))
		for _, n := range ns {
			out = append(out, n.Name)
		}
		return out
	}
	require.Equal(t, []string{"Zebra", "Apple", "Mango"}, names(nodes))
	require.Equal(t, []string{"Stripe", "Hoof", "Apple"}, names(findNode(nodes, "Zebra").Children))
}

func TestBuildFullNameWithoutDelimiterIsRootLeaf(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(),
		[]Record{{ID: 3, Name: "  Solo  ", Size: 8}}, ModeFull)
	require.NoError(t, err)
	require.Equal(t, []*Node{{ID: 3, Name: "Solo", Path: "Solo", Size: 8, Children: []*Node{}}}, nodes)
}

// Duplicate full paths are not detected: the later record wins.
func TestBuildFullDuplicatePathsLastWriteWins(t *testing.T) {
	nodes, err := newTestBuilder(nil).Build(context.Background(), []Record{
		{ID: 1, Name: "A > B", Size: 10},
		{ID: 2, Name: "A > B", Size: 20},
	}, ModeFull)
	require.NoError(t, err)

	a := findNode(nodes, "A")
	require.Len(t, a.Children, 1)
	require.EqualValues(t, 2, a.Children[0].ID)
	require.EqualValues(t, 20, a.Children[0].Size)
}

func TestBuildUnknownMode(t *testing.T) {
	_, err := newTestBuilder(nil).Build(context.Background(), nil, Mode(42))
	require.Error(t, err)
}
