package relay

import (
	"fmt"
	"sync"

	"github.com/alxayo/go-rtmp/internal/logger"
	"github.com/alxayo/go-rtmp/internal/rtmp/chunk"
)

// DestinationManager fans a stream's media out to every configured
// destination, connecting each one eagerly at construction time.
type DestinationManager struct {
	destinations  map[string]*Destination
	mu            sync.RWMutex
	log           *logger.Entry
	clientFactory RTMPClientFactory
}

// NewDestinationManager connects to every destination URL, logging (but not
// failing) URLs that can't be reached immediately — RelayMessage silently
// drops frames for destinations that never connect.
func NewDestinationManager(destinationURLs []string, log *logger.Entry, clientFactory RTMPClientFactory) (*DestinationManager, error) {
	dm := &DestinationManager{
		destinations:  make(map[string]*Destination),
		log:           log.With("component", "relay_manager"),
		clientFactory: clientFactory,
	}
	for _, u := range destinationURLs {
		if err := dm.AddDestination(u); err != nil {
			dm.log.Warn("failed to add relay destination", "url", u, "error", err)
		}
	}
	return dm, nil
}

// AddDestination registers and connects a new relay target.
func (dm *DestinationManager) AddDestination(url string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if _, exists := dm.destinations[url]; exists {
		return fmt.Errorf("destination already exists: %s", url)
	}
	dest, err := NewDestination(url, dm.log, dm.clientFactory)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if err := dest.Connect(); err != nil {
		dm.log.Warn("relay destination connect failed, will stay disconnected", "url", url, "error", err)
	}
	dm.destinations[url] = dest
	dm.log.Info("relay destination added", "url", url, "total", len(dm.destinations))
	return nil
}

// RelayMessage forwards an audio/video message to every destination in
// parallel, blocking until all sends finish so frame order is preserved
// across calls.
func (dm *DestinationManager) RelayMessage(msg *chunk.Message) {
	if msg == nil || (msg.TypeID != 8 && msg.TypeID != 9) {
		return
	}

	dm.mu.RLock()
	destinations := make([]*Destination, 0, len(dm.destinations))
	for _, dest := range dm.destinations {
		destinations = append(destinations, dest)
	}
	dm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, dest := range destinations {
		wg.Add(1)
		go func(d *Destination) {
			defer wg.Done()
			if err := d.SendMessage(msg); err != nil {
				dm.log.Debug("relay send failed", "url", d.URL, "error", err)
			}
		}(dest)
	}
	wg.Wait()
}

// GetStatus returns the connection status of every destination.
func (dm *DestinationManager) GetStatus() map[string]DestinationStatus {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	status := make(map[string]DestinationStatus, len(dm.destinations))
	for url, dest := range dm.destinations {
		status[url] = dest.GetStatus()
	}
	return status
}

// GetMetrics returns delivery counters for every destination.
func (dm *DestinationManager) GetMetrics() map[string]DestinationMetrics {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	metrics := make(map[string]DestinationMetrics, len(dm.destinations))
	for url, dest := range dm.destinations {
		metrics[url] = dest.GetMetrics()
	}
	return metrics
}

// Close disconnects from every destination.
func (dm *DestinationManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	var lastErr error
	for url, dest := range dm.destinations {
		if err := dest.Close(); err != nil {
			dm.log.Error("error closing relay destination", "url", url, "error", err)
			lastErr = err
		}
	}
	dm.destinations = make(map[string]*Destination)
	return lastErr
}

// GetDestinationCount returns the number of registered destinations.
func (dm *DestinationManager) GetDestinationCount() int {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return len(dm.destinations)
}
