// Package relay pushes a stream's audio/video messages out to one or more
// remote RTMP servers, so a single incoming publish can simultaneously feed
// this server's own subscribers and restream to third parties.
package relay

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
)

// RTMPClient is the subset of internal/rtmp/client.Client a Destination
// needs, kept as an interface so this package doesn't import client
// directly and tests can substitute a fake.
type RTMPClient interface {
	Connect() error
	Publish() error
	SendAudio(timestamp uint32, payload []byte) error
	SendVideo(timestamp uint32, payload []byte) error
	Close() error
}

// RTMPClientFactory builds an RTMPClient for a destination URL.
type RTMPClientFactory func(url string) (RTMPClient, error)

// DestinationStatus is the connection state of a Destination.
type DestinationStatus int

const (
	StatusDisconnected DestinationStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s DestinationStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Destination is a single outbound RTMP relay target.
type Destination struct {
	URL           string
	Client        RTMPClient
	Status        DestinationStatus
	LastError     error
	Metrics       *DestinationMetrics
	clientFactory RTMPClientFactory

	mu              sync.RWMutex
	reconnectCtx    context.Context
	reconnectCancel context.CancelFunc
	log             *logger.Entry
}

// DestinationMetrics tracks per-destination delivery counters.
type DestinationMetrics struct {
	MessagesSent    uint64
	MessagesDropped uint64
	BytesSent       uint64
	LastSentTime    time.Time
	ConnectTime     time.Time
	ReconnectCount  uint32
}

// NewDestination validates rawURL and returns an unconnected Destination.
func NewDestination(rawURL string, log *logger.Entry, clientFactory RTMPClientFactory) (*Destination, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid destination URL: %w", err)
	}
	if parsedURL.Scheme != "rtmp" {
		return nil, fmt.Errorf("destination URL must use rtmp:// scheme, got %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("destination URL must have a host")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Destination{
		URL:             rawURL,
		Status:          StatusDisconnected,
		Metrics:         &DestinationMetrics{},
		clientFactory:   clientFactory,
		reconnectCtx:    ctx,
		reconnectCancel: cancel,
		log:             log.With("destination_url", rawURL),
	}, nil
}

// Connect dials, handshakes, and starts a publish against the destination.
func (d *Destination) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Status == StatusConnected {
		return nil
	}
	d.Status = StatusConnecting

	client, err := d.clientFactory(d.URL)
	if err != nil {
		d.Status = StatusError
		d.LastError = err
		d.log.Error("failed to create relay client", "error", err)
		return fmt.Errorf("create client: %w", err)
	}
	if err := client.Connect(); err != nil {
		d.Status = StatusError
		d.LastError = err
		d.log.Error("relay client connect failed", "error", err)
		return fmt.Errorf("client connect: %w", err)
	}
	if err := client.Publish(); err != nil {
		d.Status = StatusError
		d.LastError = err
		d.log.Error("relay client publish failed", "error", err)
		return fmt.Errorf("client publish: %w", err)
	}

	d.Client = client
	d.Status = StatusConnected
	d.Metrics.ConnectTime = time.Now()
	d.LastError = nil
	d.log.Info("relay destination connected")
	return nil
}

// SendMessage forwards a media message (audio or video) to this destination.
func (d *Destination) SendMessage(msg *chunk.Message) error {
	d.mu.RLock()
	client := d.Client
	status := d.Status
	d.mu.RUnlock()

	if status != StatusConnected || client == nil {
		d.mu.Lock()
		d.Metrics.MessagesDropped++
		d.mu.Unlock()
		return fmt.Errorf("destination not connected (status: %v)", status)
	}

	var err error
	switch msg.TypeID {
	case 8:
		err = client.SendAudio(msg.Timestamp, msg.Payload)
	case 9:
		err = client.SendVideo(msg.Timestamp, msg.Payload)
	default:
		return nil
	}

	if err != nil {
		d.mu.Lock()
		d.Status = StatusError
		d.LastError = err
		d.Metrics.MessagesDropped++
		d.mu.Unlock()
		return fmt.Errorf("send message: %w", err)
	}

	d.mu.Lock()
	d.Metrics.MessagesSent++
	d.Metrics.BytesSent += uint64(len(msg.Payload))
	d.Metrics.LastSentTime = time.Now()
	d.mu.Unlock()
	return nil
}

// Close disconnects from the destination.
func (d *Destination) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconnectCancel()
	if d.Client != nil {
		err := d.Client.Close()
		d.Client = nil
		d.Status = StatusDisconnected
		return err
	}
	return nil
}

// GetMetrics returns a snapshot of the destination's counters.
func (d *Destination) GetMetrics() DestinationMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *d.Metrics
}

// GetStatus returns the current connection status.
func (d *Destination) GetStatus() DestinationStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.Status
}

// GetLastError returns the last error encountered, if any.
func (d *Destination) GetLastError() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.LastError
}
