package channel

import (
	"context"
	"fmt"
	"sync"

	"overlaycast/internal/protocol"
	"overlaycast/internal/services"
)

// Channel is one logical subscription on the shared connection.
type Channel struct {
	client  *Client
	name    string
	mu      sync.RWMutex
	handler Handler
}

// Name returns the channel name.
func (ch *Channel) Name() string { return ch.name }

// OnMessage installs the handler for inbound envelopes.
func (ch *Channel) OnMessage(h Handler) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handler = h
}

// Send writes v to the director. It fails fast when disconnected.
func (ch *Channel) Send(_ context.Context, v any) error {
	return ch.client.send(v)
}

// SendAck acknowledges eventID. Acks produced while disconnected are
// delivered after the next resubscribe.
func (ch *Channel) SendAck(eventID string, success bool) error {
	if eventID == "" {
		return fmt.Errorf("%w: ack without event id", protocol.ErrInvalidPayload)
	}
	ch.client.sendAck(protocol.NewAck(eventID, ch.name, success))
	return nil
}

// ReportState sends a playback state report on this channel.
func (ch *Channel) ReportState(ctx context.Context, report protocol.StateReport) error {
	report.Channel = ch.name
	return ch.Send(ctx, report)
}

func (ch *Channel) call(ctx context.Context, env protocol.Envelope) (err error) {
	ch.mu.RLock()
	h := ch.handler
	ch.mu.RUnlock()
	if h == nil {
		return ErrNoHandler
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	ctx = services.WithChannel(ctx, ch.name)
	if env.ID != "" {
		ctx = services.WithEventID(ctx, env.ID)
	}
	return h(ctx, env)
}
