package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchRunsMatchingHandlerOnly(t *testing.T) {
	var got string
	d := Dispatch{
		Init:   func() { got = "init" },
		Listen: func() { got = "listen" },
		Kill:   func() { got = "kill" },
	}

	d.Run(NewInit())
	assert.Equal(t, "init", got)

	d.Run(NewListen())
	assert.Equal(t, "listen", got)

	d.Run(NewKill())
	assert.Equal(t, "kill", got)
}

func TestDispatchRemoteDataChannel(t *testing.T) {
	var gotPe string
	var gotRecv bool
	d := Dispatch{
		RemoteDataChannel: func(pe string, recv bool) {
			gotPe, gotRecv = pe, recv
		},
	}
	d.Run(NewRemoteDataChannel("alice", true))
	assert.Equal(t, "alice", gotPe)
	assert.True(t, gotRecv)
}

func TestDispatchNilHandlerIsNoop(t *testing.T) {
	d := Dispatch{}
	assert.NotPanics(t, func() { d.Run(NewKill()) })
}

func TestAccessorPanicsOnWrongKind(t *testing.T) {
	m := NewInit()
	assert.Panics(t, func() { m.Perspective() })
	assert.Panics(t, func() { m.ReceiveBeforeSend() })
}

func TestKindAccessor(t *testing.T) {
	assert.Equal(t, ControlRemoteDataChannel, NewRemoteDataChannel("bob", false).Kind())
	assert.Equal(t, ControlKill, NewKill().Kind())
}
