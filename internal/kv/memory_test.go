package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MemoryStoreSuite exercises the Store contract against the in-memory
// implementation, mirroring the role the teacher's ChunkStoreTestSuite
// plays for validating multiple backends against one shared contract.
type MemoryStoreSuite struct {
	suite.Suite
	store Store
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) TestGetMissingKey() {
	ctx := context.Background()
	_, err := s.store.Get(ctx, []byte("missing"))
	s.ErrorIs(err, ErrKeyNotFound)
}

func (s *MemoryStoreSuite) TestPutThenGet() {
	ctx := context.Background()
	b := s.store.NewBatch()
	b.Put([]byte("k1"), []byte("v1"))
	require.NoError(s.T(), b.Commit())

	v, err := s.store.Get(ctx, []byte("k1"))
	s.NoError(err)
	s.Equal([]byte("v1"), v)

	has, err := s.store.Has(ctx, []byte("k1"))
	s.NoError(err)
	s.True(has)
}

func (s *MemoryStoreSuite) TestBatchIsAtomicOnCommit() {
	ctx := context.Background()
	b := s.store.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	require.NoError(s.T(), b.Commit())

	b2 := s.store.NewBatch()
	b2.Delete([]byte("a"))
	b2.Put([]byte("c"), []byte("3"))
	require.NoError(s.T(), b2.Commit())

	_, err := s.store.Get(ctx, []byte("a"))
	s.ErrorIs(err, ErrKeyNotFound)

	v, err := s.store.Get(ctx, []byte("b"))
	s.NoError(err)
	s.Equal([]byte("2"), v)
}

func (s *MemoryStoreSuite) TestIteratorPrefixAndOrder() {
	ctx := context.Background()
	b := s.store.NewBatch()
	b.Put([]byte("lddoc-1"), []byte("1"))
	b.Put([]byte("lddoc-2"), []byte("2"))
	b.Put([]byte("lvother"), []byte("x"))
	require.NoError(s.T(), b.Commit())

	it, err := s.store.NewIterator(ctx, []byte("ldd"), false)
	require.NoError(s.T(), err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Item().Key))
	}
	s.NoError(it.Err())
	s.Equal([]string{"lddoc-1", "lddoc-2"}, keys)
}

func (s *MemoryStoreSuite) TestIteratorReverse() {
	ctx := context.Background()
	b := s.store.NewBatch()
	b.Put([]byte("lddoc-1"), []byte("1"))
	b.Put([]byte("lddoc-2"), []byte("2"))
	require.NoError(s.T(), b.Commit())

	it, err := s.store.NewIterator(ctx, []byte("ldd"), true)
	require.NoError(s.T(), err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Item().Key))
	}
	s.Equal([]string{"lddoc-2", "lddoc-1"}, keys)
}

func TestCloseIsNoop(t *testing.T) {
	s := NewMemory()
	assert.NoError(t, s.Close())
}
