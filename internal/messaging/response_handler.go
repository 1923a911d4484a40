package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iskan70/my-logistic-bot/internal/flow"
	"github.com/iskan70/my-logistic-bot/internal/metrics"
	"github.com/iskan70/my-logistic-bot/internal/models"
	"github.com/iskan70/my-logistic-bot/internal/store"
)

// EventHandler consumes classified inbound events. flow.Engine implements it.
type EventHandler interface {
	HandleEvent(ctx context.Context, conversationID, displayName string, ev flow.Event) error
}

var _ EventHandler = (*flow.Engine)(nil)

// ResponseHandler reads inbound responses from a Service and feeds them to the engine.
// Responses of one conversation are processed strictly in arrival order; different
// conversations are processed concurrently.
type ResponseHandler struct {
	svc       Service
	handler   EventHandler
	dedup     store.DedupRepo
	transport string

	mu     sync.Mutex
	queues map[string][]models.Response
	wg     sync.WaitGroup
}

// ResponseHandlerOption configures a ResponseHandler.
type ResponseHandlerOption func(*ResponseHandler)

// WithDedup drops responses whose message id was already recorded.
func WithDedup(repo store.DedupRepo) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.dedup = repo }
}

// WithTransportName labels the inbound metrics.
func WithTransportName(name string) ResponseHandlerOption {
	return func(rh *ResponseHandler) { rh.transport = name }
}

// NewResponseHandler creates a ResponseHandler reading from svc.
func NewResponseHandler(svc Service, handler EventHandler, opts ...ResponseHandlerOption) *ResponseHandler {
	rh := &ResponseHandler{
		svc:       svc,
		handler:   handler,
		transport: "unknown",
		queues:    make(map[string][]models.Response),
	}
	for _, opt := range opts {
		opt(rh)
	}
	return rh
}

// Start consumes the service's Responses channel until it closes or ctx is cancelled.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing", "transport", rh.transport, "dedup", rh.dedup != nil)
	go func() {
		defer slog.Info("ResponseHandler stopped response processing")
		for {
			select {
			case response, ok := <-rh.svc.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				rh.Dispatch(ctx, response)
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// Dispatch queues response behind earlier responses of the same conversation and returns
// immediately.
func (rh *ResponseHandler) Dispatch(ctx context.Context, response models.Response) {
	id, err := rh.svc.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		metrics.InboundMessage(rh.transport, "invalid")
		slog.Warn("ResponseHandler Dispatch invalid sender", "from", response.From, "error", err)
		return
	}

	rh.mu.Lock()
	if queue, busy := rh.queues[id]; busy {
		rh.queues[id] = append(queue, response)
		rh.mu.Unlock()
		return
	}
	rh.queues[id] = nil
	rh.mu.Unlock()

	rh.wg.Add(1)
	go rh.drain(ctx, id, response)
}

// drain processes the conversation's responses until its queue is empty.
func (rh *ResponseHandler) drain(ctx context.Context, id string, next models.Response) {
	defer rh.wg.Done()
	for {
		if err := rh.ProcessResponse(ctx, id, next); err != nil {
			slog.Error("ResponseHandler failed to process response", "conversation", id, "error", err)
		}
		rh.mu.Lock()
		queue := rh.queues[id]
		if len(queue) == 0 {
			delete(rh.queues, id)
			rh.mu.Unlock()
			return
		}
		next, rh.queues[id] = queue[0], queue[1:]
		rh.mu.Unlock()
	}
}

// Wait blocks until every dispatched response has been processed.
func (rh *ResponseHandler) Wait() {
	rh.wg.Wait()
}

// ProcessResponse validates, deduplicates and hands one response to the engine.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, conversationID string, response models.Response) error {
	if err := response.Validate(); err != nil {
		metrics.InboundMessage(rh.transport, "invalid")
		return fmt.Errorf("invalid response: %w", err)
	}

	if rh.dedup != nil && response.MessageID != "" {
		fresh, err := rh.dedup.RecordInbound(ctx, response.MessageID, conversationID)
		if err != nil {
			slog.Error("ResponseHandler dedup check failed, processing anyway", "conversation", conversationID, "error", err)
		} else if !fresh {
			metrics.InboundMessage(rh.transport, "duplicate")
			slog.Info("ResponseHandler dropping duplicate message", "conversation", conversationID, "message_id", response.MessageID)
			return nil
		}
	}

	ev := flow.EventFromResponse(response)
	slog.Debug("ResponseHandler processing response", "conversation", conversationID, "kind", ev.Kind, "body_length", len(response.Body), "media", len(response.Media))
	err := rh.handler.HandleEvent(ctx, conversationID, response.DisplayName, ev)
	if err != nil && !errors.Is(err, context.Canceled) {
		metrics.InboundMessage(rh.transport, "failed")
		return fmt.Errorf("engine failed: %w", err)
	}
	metrics.InboundMessage(rh.transport, "handled")

	if rh.dedup != nil && response.MessageID != "" {
		if err := rh.dedup.MarkProcessed(ctx, response.MessageID); err != nil {
			slog.Warn("ResponseHandler MarkProcessed failed", "message_id", response.MessageID, "error", err)
		}
	}
	return nil
}
