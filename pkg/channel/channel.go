// Package channel defines the transport adapter contract.
package channel

import (
	"context"

	"tinyclaw/pkg/bus"
)

// Adapter is one chat transport.
//
// Run owns the ingress side: it receives user messages and pushes them
// onto the bus until the context ends. Deliver owns the egress side and is
// called by the dispatch worker for each outbound message addressed to
// this adapter.
type Adapter interface {
	Name() string
	Run(ctx context.Context, mb *bus.MessageBus) error
	Deliver(ctx context.Context, msg bus.OutboundMessage) error
}
