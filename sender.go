package ocppgw

import (
	"context"
	"errors"
	"sync"
)

// SendCallback reports the transport-level outcome of one outbound send.
// A nil error means the bytes were handed to the connection successfully.
type SendCallback func(ctx context.Context, err error)

// Connection identifies the duplex transport connection an envelope arrived
// on. The router treats it as an opaque handle passed through to filters.
type Connection interface {
	ID() string
}

// Sender is the Strategy interface for the outbound boundary (OCPP.OUT).
// Implementations frame the envelope for their wire and write it to the
// connection owning the destination's next hop. The router never retries a
// failed send; retry policy belongs to the transport.
type Sender interface {
	SendRequest(ctx context.Context, req *RequestMessage, done SendCallback) error
	SendResponse(ctx context.Context, resp *ResponseMessage, done SendCallback) error
	SendError(ctx context.Context, em *ErrorMessage, done SendCallback) error
	// Send emits a one-way send-message.
	Send(ctx context.Context, sm *SendMessage, done SendCallback) error
	// Close releases transport resources.
	Close(ctx context.Context) error
}

// SenderFactory constructs senders from a config blob.
type SenderFactory func(cfg map[string]any) (Sender, error)

var (
	senderRegistryMu sync.RWMutex
	senderRegistry   = map[string]SenderFactory{}
)

// RegisterSender registers an outbound adapter by name.
func RegisterSender(name string, factory SenderFactory) error {
	if name == "" {
		return errors.New("ocppgw: sender name must not be empty")
	}
	if factory == nil {
		return errors.New("ocppgw: sender factory must not be nil")
	}
	senderRegistryMu.Lock()
	senderRegistry[name] = factory
	senderRegistryMu.Unlock()
	return nil
}

// NewSender constructs a sender by name with config.
func NewSender(name string, cfg map[string]any) (Sender, error) {
	senderRegistryMu.RLock()
	f, ok := senderRegistry[name]
	senderRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownSender{Name: name}
	}
	return f(cfg)
}
