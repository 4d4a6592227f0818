package bus

import (
	"context"
	"sync"
)

// DefaultQueueDepth bounds each direction of the bus.
//
// Ingress handlers run under an external acknowledgment deadline, so pushes
// never block: when a queue is full the push fails immediately and the
// caller drops the message.
const DefaultQueueDepth = 4

// MessageBus is a pair of bounded FIFO queues decoupling the ingress,
// agent, and egress stages.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a bus with the given queue depth per direction.
// Depth values below one fall back to DefaultQueueDepth.
func New(depth int) *MessageBus {
	if depth < 1 {
		depth = DefaultQueueDepth
	}

	return &MessageBus{
		inbound:  make(chan InboundMessage, depth),
		outbound: make(chan OutboundMessage, depth),
		done:     make(chan struct{}),
	}
}

// PushInbound enqueues one inbound message without blocking.
// It returns false when the queue is full or the bus is closed; the caller
// owns the dropped message in that case.
func (mb *MessageBus) PushInbound(msg InboundMessage) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.inbound <- msg:
		return true
	default:
		return false
	}
}

// PopInbound blocks until an inbound message is available, the context is
// done, or the bus is closed.
func (mb *MessageBus) PopInbound(ctx context.Context) (InboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

// PushOutbound enqueues one outbound message without blocking.
// It returns false when the queue is full or the bus is closed.
func (mb *MessageBus) PushOutbound(msg OutboundMessage) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.outbound <- msg:
		return true
	default:
		return false
	}
}

// PopOutbound blocks until an outbound message is available, the context is
// done, or the bus is closed.
func (mb *MessageBus) PopOutbound(ctx context.Context) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

// Close releases every blocked pop. Pushes after Close fail.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)
	})
}
