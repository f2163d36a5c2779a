package handshake

import (
	"bytes"
	"testing"
)

func TestFSM_NewEmitsS0S1(t *testing.T) {
	_, out := NewFSM()
	if len(out) != 1+PacketSize {
		t.Fatalf("expected %d bytes, got %d", 1+PacketSize, len(out))
	}
	if out[0] != Version {
		t.Fatalf("expected version byte 0x%02x, got 0x%02x", Version, out[0])
	}
}

func TestFSM_FullHandshakeSingleShot(t *testing.T) {
	f, _ := NewFSM()

	c1 := make([]byte, PacketSize)
	c1[0], c1[1], c1[2], c1[3] = 0x00, 0x00, 0x00, 0x7B // timestamp 123
	for i := 8; i < PacketSize; i++ {
		c1[i] = byte(i)
	}
	c2 := make([]byte, PacketSize) // simple handshake: contents unchecked

	incoming := append([]byte{Version}, c1...)
	incoming = append(incoming, c2...)
	incoming = append(incoming, []byte("trailing-chunk-bytes")...)

	res := f.ProcessBytes(incoming)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got outcome=%v err=%v", res.Outcome, res.Err)
	}
	if res.PeerStartTimestamp != 123 {
		t.Fatalf("expected peer timestamp 123, got %d", res.PeerStartTimestamp)
	}
	if string(res.Remaining) != "trailing-chunk-bytes" {
		t.Fatalf("expected trailing bytes preserved, got %q", res.Remaining)
	}
	// S2 must echo C1 verbatim.
	if !bytes.Equal(res.BytesToSend, c1) {
		t.Fatalf("expected S2 to echo C1 verbatim")
	}
}

func TestFSM_IncrementalFeed(t *testing.T) {
	f, _ := NewFSM()

	c1 := make([]byte, PacketSize)
	c2 := make([]byte, PacketSize)
	full := append([]byte{Version}, c1...)
	full = append(full, c2...)

	var gotSuccess bool
	for i := 0; i < len(full); i += 100 {
		end := i + 100
		if end > len(full) {
			end = len(full)
		}
		res := f.ProcessBytes(full[i:end])
		if res.Outcome == OutcomeFailure {
			t.Fatalf("unexpected failure: %v", res.Err)
		}
		if res.Outcome == OutcomeSuccess {
			gotSuccess = true
		}
	}
	if !gotSuccess {
		t.Fatalf("expected eventual success feeding 100-byte chunks")
	}
}

func TestFSM_WrongVersionFails(t *testing.T) {
	f, _ := NewFSM()
	bad := append([]byte{0x06}, make([]byte, PacketSize)...)
	res := f.ProcessBytes(bad)
	if res.Outcome != OutcomeFailure {
		t.Fatalf("expected failure for bad version, got %v", res.Outcome)
	}
}

func TestFSM_ProcessAfterCompleteFails(t *testing.T) {
	f, _ := NewFSM()
	full := append([]byte{Version}, make([]byte, PacketSize*2)...)
	res := f.ProcessBytes(full)
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %v", res.Outcome)
	}
	res2 := f.ProcessBytes([]byte{0x00})
	if res2.Outcome != OutcomeFailure {
		t.Fatalf("expected failure calling ProcessBytes after completion")
	}
}
