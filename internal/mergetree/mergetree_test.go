package mergetree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/perr"
)

// MergeTreeSuite covers end-to-end scenarios 1, 2 and 6, property P8, and
// the auto-merge/local-writer exclusion from spec.md §8 against an
// in-memory store.
type MergeTreeSuite struct {
	suite.Suite
	mt *MergeTree
}

func (s *MergeTreeSuite) SetupTest() {
	mt, err := Open(context.Background(), kv.NewMemory(), Config{Perspectives: []string{"alice"}, VSize: 8}, nil)
	require.NoError(s.T(), err)
	s.mt = mt
}

func (s *MergeTreeSuite) TearDownTest() {
	s.mt.Close()
}

func TestMergeTreeSuite(t *testing.T) {
	suite.Run(t, new(MergeTreeSuite))
}

func mustEncode(t *testing.T, it *item.Item) []byte {
	buf, err := item.Encode(it)
	require.NoError(t, err)
	return buf
}

func bodyOf(b map[string]interface{}) []byte {
	raw, _ := bson.Marshal(b)
	return raw
}

// scenario 1: two-item remote import, then autoMerge lifts them into l.
func (s *MergeTreeSuite) TestScenarioTwoItemRemoteImport() {
	ctx := context.Background()
	rs, err := s.mt.CreateRemoteWriteStream("alice")
	require.NoError(s.T(), err)

	it1 := &item.Item{H: item.Header{ID: []byte("abc"), V: []byte("Aaaa"), Pe: "alice"}, B: bodyOf(map[string]interface{}{"some": true})}
	require.NoError(s.T(), rs.Write(ctx, mustEncode(s.T(), it1)))

	it2 := &item.Item{H: item.Header{ID: []byte("abc"), V: []byte("Bbbb"), Pa: [][]byte{[]byte("Aaaa")}, Pe: "alice"}, B: bodyOf(map[string]interface{}{"some": "other"})}
	require.NoError(s.T(), rs.Write(ctx, mustEncode(s.T(), it2)))

	peTree := s.mt.pe["alice"]
	got1, err := peTree.GetByVersion(ctx, []byte("Aaaa"))
	require.NoError(s.T(), err)
	s.Equal(uint64(1), got1.H.I)
	got2, err := peTree.GetByVersion(ctx, []byte("Bbbb"))
	require.NoError(s.T(), err)
	s.Equal(uint64(2), got2.H.I)

	require.NoError(s.T(), s.mt.EngageAutoMerge(ctx))
	s.eventuallyHeadHasBody(ctx, []byte("abc"), "other")
	s.mt.DisengageAutoMerge()
}

// scenario 2: fast-forward adoption when remote publishes a direct
// descendant of the current local head.
func (s *MergeTreeSuite) TestScenarioFastForwardAdoption() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rws, err := s.mt.CreateRemoteWriteStream("alice")
	require.NoError(s.T(), err)
	ms := s.mt.StartMerge(ctx)
	defer ms.Close()

	require.NoError(s.T(), rws.Write(ctx, mustEncode(s.T(), &item.Item{
		H: item.Header{ID: []byte("x"), V: []byte("V1remote"), Pe: "alice"},
		B: bodyOf(map[string]interface{}{"a": int32(1)}),
	})))

	cand1, ok, err := ms.Next(ctx)
	require.NoError(s.T(), err)
	require.True(s.T(), ok)
	s.Nil(cand1.Item.H.Pa, "adopting a root remote head must not invent a parent")
	require.NoError(s.T(), s.mt.ApplyCandidate(ctx, cand1))
	firstLocalV := cand1.Item.H.V

	require.NoError(s.T(), rws.Write(ctx, mustEncode(s.T(), &item.Item{
		H: item.Header{ID: []byte("x"), V: []byte("V2remote"), Pa: [][]byte{[]byte("V1remote")}, Pe: "alice"},
		B: bodyOf(map[string]interface{}{"a": int32(2)}),
	})))

	cand2, ok, err := ms.Next(ctx)
	require.NoError(s.T(), err)
	require.True(s.T(), ok)
	s.Equal(FastForward, cand2.Kind)
	s.Equal([][]byte{firstLocalV}, cand2.Item.H.Pa)
	require.NoError(s.T(), s.mt.ApplyCandidate(ctx, cand2))
}

// P8: only one local-write stream may be open.
func (s *MergeTreeSuite) TestP8OnlyOneLocalWriteStreamAtOnce() {
	lws, err := s.mt.CreateLocalWriteStream()
	require.NoError(s.T(), err)
	defer lws.Close()

	_, err = s.mt.CreateLocalWriteStream()
	s.ErrorIs(err, perr.ErrLocalWriterBusy)
}

func (s *MergeTreeSuite) TestAutoMergeExcludesLocalWriter() {
	lws, err := s.mt.CreateLocalWriteStream()
	require.NoError(s.T(), err)
	defer lws.Close()

	err = s.mt.EngageAutoMerge(context.Background())
	s.ErrorIs(err, perr.ErrLocalWriterBusy)
}

func (s *MergeTreeSuite) TestLocalWriterExcludesAutoMerge() {
	ctx := context.Background()
	require.NoError(s.T(), s.mt.EngageAutoMerge(ctx))
	defer s.mt.DisengageAutoMerge()

	_, err := s.mt.CreateLocalWriteStream()
	s.ErrorIs(err, perr.ErrAlreadyAutoMerging)
}

// scenario 6: head lookup race — a lookup concurrent with a local write
// returns no error, and if it returns a head, that head is the written
// version. Whether the write is seen depends on scheduling.
func (s *MergeTreeSuite) TestScenarioHeadLookupRace() {
	ctx := context.Background()
	lws, err := s.mt.CreateLocalWriteStream()
	require.NoError(s.T(), err)
	defer lws.Close()

	done := make(chan struct{})
	go func() {
		lws.Write(ctx, &item.Item{H: item.Header{ID: []byte("y"), V: []byte("vy")}})
		close(done)
	}()

	head, err := s.mt.HeadLookup(ctx, HeadLookupOptions{ID: []byte("y")})
	<-done
	s.NoError(err)
	if head != nil {
		s.Equal([]byte("vy"), head.H.V)
	}
}

func (s *MergeTreeSuite) TestUnknownPerspectiveRejected() {
	_, err := s.mt.CreateRemoteWriteStream("bob")
	s.ErrorIs(err, perr.ErrUnknownPerspective)
}

func (s *MergeTreeSuite) eventuallyHeadHasBody(ctx context.Context, id []byte, want string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		head, err := s.mt.local.SingleHead(ctx, id)
		require.NoError(s.T(), err)
		if head != nil {
			body, err := head.DecodeBody()
			require.NoError(s.T(), err)
			if body["some"] == want {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Fail("auto-merge never produced the expected local head")
}

