package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/perr"
)

// fakeSource is a minimal in-memory AncestorSource for exercising FindLCA
// without a real Tree, the same way the teacher's merge tests drive
// three-way merge against bare in-memory types.Value graphs.
type fakeSource struct {
	items map[string]*item.Item
}

func newFakeSource() *fakeSource { return &fakeSource{items: make(map[string]*item.Item)} }

func (f *fakeSource) add(v string, i uint64, pa ...string) {
	var parents [][]byte
	for _, p := range pa {
		parents = append(parents, []byte(p))
	}
	f.items[v] = &item.Item{H: item.Header{ID: []byte("doc"), V: []byte(v), I: i, Pa: parents}}
}

func (f *fakeSource) GetByVersion(ctx context.Context, v []byte) (*item.Item, error) {
	it, ok := f.items[string(v)]
	if !ok {
		return nil, perr.ErrNotFound
	}
	return it, nil
}

// fakeEquivalence maps remote versions to local versions by a static table.
type fakeEquivalence map[string]string

func (e fakeEquivalence) LocalFor(remoteV []byte) ([]byte, bool) {
	lv, ok := e[string(remoteV)]
	if !ok {
		return nil, false
	}
	return []byte(lv), true
}

// Linear history: A -> B -> C in both local and remote, with remote C
// already adopted as local C via equivalence. Re-evaluating C against
// itself is the LCA (P7 fast-path).
func TestFindLCASameHeadIsLCA(t *testing.T) {
	local := newFakeSource()
	local.add("A", 1)
	local.add("B", 2, "A")
	local.add("C", 3, "B")

	eq := fakeEquivalence{"C": "C"}

	lca, found, err := FindLCA(context.Background(), local, local, []byte("C"), []byte("C"), eq)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("C"), lca)
}

// Divergent branches from a common ancestor: local has A->L, remote has a
// distinct graph rA->rB with rA equivalent to local A.
func TestFindLCADivergentBranches(t *testing.T) {
	local := newFakeSource()
	local.add("A", 1)
	local.add("L", 2, "A")

	remote := newFakeSource()
	remote.add("rA", 1)
	remote.add("rB", 2, "rA")

	eq := fakeEquivalence{"rA": "A"}

	lca, found, err := FindLCA(context.Background(), local, remote, []byte("L"), []byte("rB"), eq)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("A"), lca)
}

// Root-vs-root: two independent histories with no equivalence anywhere.
func TestFindLCANoCommonAncestor(t *testing.T) {
	local := newFakeSource()
	local.add("A", 1)

	remote := newFakeSource()
	remote.add("rA", 1)

	_, found, err := FindLCA(context.Background(), local, remote, []byte("A"), []byte("rA"), fakeEquivalence{})
	require.NoError(t, err)
	require.False(t, found)
}

// Fast-forward case: remote's parent is exactly the current local head.
func TestFindLCAFastForwardParentIsLocalHead(t *testing.T) {
	local := newFakeSource()
	local.add("A", 1)

	remote := newFakeSource()
	remote.add("rA", 1)
	remote.add("rB", 2, "rA")

	eq := fakeEquivalence{"rA": "A"}

	lca, found, err := FindLCA(context.Background(), local, remote, []byte("A"), []byte("rB"), eq)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("A"), lca)
}

func TestFindLCANilLocalHeadIsNotFound(t *testing.T) {
	remote := newFakeSource()
	remote.add("rA", 1)

	_, found, err := FindLCA(context.Background(), newFakeSource(), remote, nil, []byte("rA"), fakeEquivalence{})
	require.NoError(t, err)
	require.False(t, found)
}
