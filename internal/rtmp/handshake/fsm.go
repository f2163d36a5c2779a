package handshake

// Pure, transport-agnostic simple-handshake FSM. Unlike the net.Conn-driven
// ServerHandshake/ClientHandshake in server.go/client.go, FSM never blocks on
// I/O: it is fed whatever bytes happen to be available and reports back
// either that it needs more, that it's done (with any trailing bytes handed
// back to the caller), or that the peer violated the protocol.

import (
	"crypto/rand"
	"time"
)

type fsmState int

const (
	fsmWaitingC0C1 fsmState = iota
	fsmWaitingC2
	fsmComplete
	fsmFailed
)

// Outcome classifies the result of a ProcessBytes call.
type Outcome int

const (
	OutcomeIncomplete Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

// Result is what ProcessBytes reports back to the caller driving the FSM.
type Result struct {
	Outcome Outcome

	// BytesToSend is outbound handshake bytes produced by this call: S2, once
	// C0+C1 has been fully consumed (S0+S1 come from NewFSM instead). Callers
	// are expected to drain this every call regardless of Outcome.
	BytesToSend []byte

	// PeerStartTimestamp is C1's 4-byte timestamp field, valid only when
	// Outcome == OutcomeSuccess.
	PeerStartTimestamp uint32

	// Remaining is any bytes past the handshake boundary (1+1536+1536 total
	// inbound bytes) that arrived in the same ProcessBytes call; valid only
	// when Outcome == OutcomeSuccess. The chunk deframer must be fed these
	// before anything else.
	Remaining []byte

	// Err is set when Outcome == OutcomeFailure.
	Err error
}

// FSM is the pure simple-handshake state machine: one instance per session,
// entirely in-memory, no socket of its own.
type FSM struct {
	state fsmState
	inbuf []byte // bytes accumulated toward the current phase's boundary

	c1Timestamp uint32
	s1          []byte // this side's S1, kept so S2 construction/validation has it if ever needed
}

// NewFSM constructs a fresh handshake FSM and returns the bytes it wants
// sent immediately: S0 (one version byte) followed by S1 (1536 bytes).
func NewFSM() (*FSM, []byte) {
	f := &FSM{state: fsmWaitingC0C1}
	s1 := makeS1()
	f.s1 = s1
	out := make([]byte, 0, 1+PacketSize)
	out = append(out, Version)
	out = append(out, s1...)
	return f, out
}

// makeS1 builds a fresh S1 block: 4-byte local timestamp, 4 zero bytes, 1528
// bytes of pseudorandom payload.
func makeS1() []byte {
	buf := make([]byte, PacketSize)
	ts := uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
	buf[0] = byte(ts >> 24)
	buf[1] = byte(ts >> 16)
	buf[2] = byte(ts >> 8)
	buf[3] = byte(ts)
	// bytes 4..8 stay zero
	_, _ = rand.Read(buf[randomFieldOffset:])
	return buf
}

// ProcessBytes feeds incoming bytes to the FSM. It is safe to call
// repeatedly with small chunks as they arrive; the FSM accumulates internally
// until each phase boundary is reached. Once the FSM has reported Success or
// Failure, further calls are a programming error (callers must stop driving
// it and start driving the chunk deframer/framer instead).
func (f *FSM) ProcessBytes(incoming []byte) Result {
	switch f.state {
	case fsmWaitingC0C1:
		return f.processC0C1(incoming)
	case fsmWaitingC2:
		return f.processC2(incoming)
	default:
		return Result{Outcome: OutcomeFailure, Err: errHandshakeAlreadyDone}
	}
}

func (f *FSM) processC0C1(incoming []byte) Result {
	f.inbuf = append(f.inbuf, incoming...)
	want := 1 + PacketSize
	if len(f.inbuf) < want {
		return Result{Outcome: OutcomeIncomplete}
	}
	c0 := f.inbuf[0]
	c1 := f.inbuf[1:want]
	leftover := append([]byte(nil), f.inbuf[want:]...)

	if c0 != Version {
		f.state = fsmFailed
		return Result{Outcome: OutcomeFailure, Err: errUnsupportedVersion(c0)}
	}
	f.c1Timestamp = uint32(c1[0])<<24 | uint32(c1[1])<<16 | uint32(c1[2])<<8 | uint32(c1[3])

	// S2 = C1 verbatim.
	s2 := append([]byte(nil), c1...)

	f.state = fsmWaitingC2
	f.inbuf = nil
	res := f.processC2(leftover)
	res.BytesToSend = append(s2, res.BytesToSend...)
	return res
}

func (f *FSM) processC2(incoming []byte) Result {
	f.inbuf = append(f.inbuf, incoming...)
	if len(f.inbuf) < PacketSize {
		return Result{Outcome: OutcomeIncomplete}
	}
	remaining := append([]byte(nil), f.inbuf[PacketSize:]...)
	f.state = fsmComplete
	f.inbuf = nil
	return Result{
		Outcome:            OutcomeSuccess,
		PeerStartTimestamp: f.c1Timestamp,
		Remaining:          remaining,
	}
}
