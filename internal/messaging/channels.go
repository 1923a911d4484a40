package messaging

import (
	"log/slog"
	"sync"
	"time"

	"github.com/iskan70/my-logistic-bot/internal/models"
)

// eventChannels holds the receipt and response channels of a service and guards them
// against sends after Stop.
type eventChannels struct {
	name      string
	receipts  chan models.Receipt
	responses chan models.Response
	mu        sync.RWMutex
	stopped   bool
}

func newEventChannels(name string) *eventChannels {
	return &eventChannels{
		name:      name,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (c *eventChannels) isStopped() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopped
}

// close marks the channels stopped and closes them once. It reports false if they were
// already closed.
func (c *eventChannels) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	close(c.receipts)
	close(c.responses)
	return true
}

func (c *eventChannels) emitReceipt(r models.Receipt) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return
	}
	select {
	case c.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" receipts channel blocked, dropping receipt", "to", r.To, "status", r.Status)
	}
}

func (c *eventChannels) emitResponse(r models.Response) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		slog.Warn(c.name+" dropping inbound response (service stopped)", "from", r.From)
		return false
	}
	select {
	case c.responses <- r:
		slog.Debug(c.name+" emitted inbound response", "from", r.From, "media", len(r.Media))
		return true
	case <-time.After(DefaultChannelTimeout):
		slog.Warn(c.name+" responses channel blocked, dropping message", "from", r.From, "timeout", DefaultChannelTimeout)
		return false
	}
}

// Receipts returns a channel of receipt events.
func (c *eventChannels) Receipts() <-chan models.Receipt {
	return c.receipts
}

// Responses returns a channel of incoming response events.
func (c *eventChannels) Responses() <-chan models.Response {
	return c.responses
}
