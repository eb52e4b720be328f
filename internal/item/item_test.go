package item

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Netsend/persdb/internal/perr"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		it      Item
		wantErr bool
	}{
		{"ok", Item{H: Header{ID: []byte("a"), V: []byte("v")}}, false},
		{"empty id", Item{H: Header{V: []byte("v")}}, true},
		{"empty version", Item{H: Header{ID: []byte("a")}}, true},
		{"too many parents", Item{H: Header{ID: []byte("a"), V: []byte("v"), Pa: [][]byte{{1}, {2}, {3}}}}, true},
		{"tombstone with body", Item{H: Header{ID: []byte("a"), V: []byte("v"), D: true}, B: []byte{0x05, 0x00, 0x00, 0x00, 0x00}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.it.Validate()
			if c.wantErr {
				assert.ErrorIs(t, err, perr.ErrMalformedItem)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	body, err := EncodeBody(Body{"name": "alice", "age": int32(30)})
	require.NoError(t, err)

	it := &Item{
		H: Header{ID: []byte("doc1"), V: []byte("v1"), Pa: [][]byte{[]byte("v0")}, I: 7},
		B: body,
		M: map[string]interface{}{"src": "oplog"},
	}

	buf, err := Encode(it)
	require.NoError(t, err)

	out, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, it.H.ID, out.H.ID)
	assert.Equal(t, it.H.V, out.H.V)
	assert.Equal(t, it.H.I, out.H.I)

	decodedBody, err := out.DecodeBody()
	require.NoError(t, err)
	assert.Equal(t, "alice", decodedBody["name"])
}

func TestTombstoneDecodesEmptyBody(t *testing.T) {
	it := &Item{H: Header{ID: []byte("a"), V: []byte("v"), D: true}}
	b, err := it.DecodeBody()
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.True(t, it.IsTombstone())
}

func TestConflictMarker(t *testing.T) {
	it := &Item{H: Header{ID: []byte("a"), V: []byte("v"), C: true}}
	assert.True(t, it.IsConflictMarker())
}
