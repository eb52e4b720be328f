package wire

// ControlKind tags the variant of a ControlMessage. Dispatch on kind is
// exhaustive (see Dispatch), replacing a callback-typed interface{}
// switch with a compiler-checked tagged sum, per DESIGN NOTES §9 "Dynamic
// message type dispatch".
type ControlKind int

const (
	ControlInit ControlKind = iota
	ControlListen
	ControlHeadLookup
	ControlLocalDataChannel
	ControlRemoteDataChannel
	ControlAutoMerge
	ControlKill
)

// ControlMessage is the tagged sum of parent->child control-interface
// messages from spec.md §6: init, listen, {type: headLookup}, {type:
// localDataChannel}, {type: remoteDataChannel, perspective,
// receiveBeforeSend}, {type: autoMerge}, {type: kill}.
type ControlMessage struct {
	kind ControlKind

	// Only meaningful when kind == ControlRemoteDataChannel.
	perspective       string
	receiveBeforeSend bool
}

func (m ControlMessage) Kind() ControlKind { return m.kind }

// Perspective and ReceiveBeforeSend panic if called on a message whose
// Kind is not ControlRemoteDataChannel — callers are expected to switch
// on Kind first, exactly like a sum type match.
func (m ControlMessage) Perspective() string {
	mustKind(m, ControlRemoteDataChannel)
	return m.perspective
}

func (m ControlMessage) ReceiveBeforeSend() bool {
	mustKind(m, ControlRemoteDataChannel)
	return m.receiveBeforeSend
}

func mustKind(m ControlMessage, want ControlKind) {
	if m.kind != want {
		panic("wire: ControlMessage accessor called for wrong kind")
	}
}

func NewInit() ControlMessage             { return ControlMessage{kind: ControlInit} }
func NewListen() ControlMessage           { return ControlMessage{kind: ControlListen} }
func NewHeadLookup() ControlMessage       { return ControlMessage{kind: ControlHeadLookup} }
func NewLocalDataChannel() ControlMessage { return ControlMessage{kind: ControlLocalDataChannel} }
func NewAutoMerge() ControlMessage        { return ControlMessage{kind: ControlAutoMerge} }
func NewKill() ControlMessage             { return ControlMessage{kind: ControlKill} }

func NewRemoteDataChannel(perspective string, receiveBeforeSend bool) ControlMessage {
	return ControlMessage{
		kind:              ControlRemoteDataChannel,
		perspective:       perspective,
		receiveBeforeSend: receiveBeforeSend,
	}
}

// Dispatch exhaustively matches m against the seven control-message
// kinds, calling the handler registered for its kind.
type Dispatch struct {
	Init             func()
	Listen           func()
	HeadLookup       func()
	LocalDataChannel func()
	RemoteDataChannel func(perspective string, receiveBeforeSend bool)
	AutoMerge        func()
	Kill             func()
}

// Run invokes the handler in d matching m.Kind(), or does nothing if that
// handler is nil.
func (d Dispatch) Run(m ControlMessage) {
	switch m.kind {
	case ControlInit:
		if d.Init != nil {
			d.Init()
		}
	case ControlListen:
		if d.Listen != nil {
			d.Listen()
		}
	case ControlHeadLookup:
		if d.HeadLookup != nil {
			d.HeadLookup()
		}
	case ControlLocalDataChannel:
		if d.LocalDataChannel != nil {
			d.LocalDataChannel()
		}
	case ControlRemoteDataChannel:
		if d.RemoteDataChannel != nil {
			d.RemoteDataChannel(m.perspective, m.receiveBeforeSend)
		}
	case ControlAutoMerge:
		if d.AutoMerge != nil {
			d.AutoMerge()
		}
	case ControlKill:
		if d.Kill != nil {
			d.Kill()
		}
	}
}
