package relay

import (
	"sync"
	"testing"

	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
)

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	published   bool
	audioCount  int
	videoCount  int
	failConnect bool
}

func (f *fakeClient) Connect() error {
	if f.failConnect {
		return errConnectFailed
	}
	f.connected = true
	return nil
}
func (f *fakeClient) Publish() error { f.published = true; return nil }
func (f *fakeClient) SendAudio(uint32, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioCount++
	return nil
}
func (f *fakeClient) SendVideo(uint32, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCount++
	return nil
}
func (f *fakeClient) Close() error { f.connected = false; return nil }

var errConnectFailed = &fakeErr{"connect failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }

func newFakeFactory(clients map[string]*fakeClient) RTMPClientFactory {
	return func(url string) (RTMPClient, error) {
		c := &fakeClient{}
		clients[url] = c
		return c, nil
	}
}

func TestDestinationManager_RelayMessageFansOutToAllDestinations(t *testing.T) {
	clients := make(map[string]*fakeClient)
	dm, err := NewDestinationManager(
		[]string{"rtmp://a.example.com/live/x", "rtmp://b.example.com/live/x"},
		logger.Discard(),
		newFakeFactory(clients),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if dm.GetDestinationCount() != 2 {
		t.Fatalf("expected 2 destinations, got %d", dm.GetDestinationCount())
	}

	dm.RelayMessage(&chunk.Message{TypeID: 8, Payload: []byte{0xAF, 0x01}})
	dm.RelayMessage(&chunk.Message{TypeID: 9, Payload: []byte{0x27, 0x01}})

	for url, c := range clients {
		if c.audioCount != 1 {
			t.Fatalf("destination %s: expected 1 audio frame, got %d", url, c.audioCount)
		}
		if c.videoCount != 1 {
			t.Fatalf("destination %s: expected 1 video frame, got %d", url, c.videoCount)
		}
	}
}

func TestDestinationManager_RelayMessageIgnoresNonMediaTypes(t *testing.T) {
	clients := make(map[string]*fakeClient)
	dm, _ := NewDestinationManager([]string{"rtmp://a.example.com/live/x"}, logger.Discard(), newFakeFactory(clients))

	dm.RelayMessage(&chunk.Message{TypeID: 20, Payload: []byte{0x01}})

	for _, c := range clients {
		if c.audioCount != 0 || c.videoCount != 0 {
			t.Fatal("expected non-media message type to be ignored")
		}
	}
}

func TestAddDestination_DuplicateRejected(t *testing.T) {
	clients := make(map[string]*fakeClient)
	dm, _ := NewDestinationManager([]string{"rtmp://a.example.com/live/x"}, logger.Discard(), newFakeFactory(clients))

	if err := dm.AddDestination("rtmp://a.example.com/live/x"); err == nil {
		t.Fatal("expected duplicate destination to be rejected")
	}
}

func TestNewDestination_RejectsNonRTMPScheme(t *testing.T) {
	if _, err := NewDestination("http://example.com/live/x", logger.Discard(), nil); err == nil {
		t.Fatal("expected error for non-rtmp:// scheme")
	}
}

func TestDestinationManager_Close(t *testing.T) {
	clients := make(map[string]*fakeClient)
	dm, _ := NewDestinationManager([]string{"rtmp://a.example.com/live/x"}, logger.Discard(), newFakeFactory(clients))

	if err := dm.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if dm.GetDestinationCount() != 0 {
		t.Fatal("expected destinations cleared after close")
	}
}
