// Package memory provides an in-process loopback Sender: outbound envelopes
// land in a channel instead of a wire. Meant for development, benchmarks and
// tests; production gateways use a real transport adapter.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/evgrid/ocppgw"
)

const SenderName = "memory"

func init() {
	if err := ocppgw.RegisterSender(SenderName, func(cfg map[string]any) (ocppgw.Sender, error) {
		c, err := ConfigFromMap(cfg)
		if err != nil {
			return nil, err
		}
		return NewSender(c), nil
	}); err != nil {
		panic(fmt.Errorf("ocppgw/memory: failed to register sender: %w", err))
	}
}

// Outbound records one envelope handed to the sender. Exactly one of the
// pointer fields is set, matching Kind.
type Outbound struct {
	Kind     ocppgw.MessageKind
	Request  *ocppgw.RequestMessage
	Response *ocppgw.ResponseMessage
	Error    *ocppgw.ErrorMessage
	Send     *ocppgw.SendMessage
}

// Sender implements ocppgw.Sender by queuing outbound envelopes in memory.
type Sender struct {
	cfg    Config
	ch     chan Outbound
	closed atomic.Bool
}

var _ ocppgw.Sender = (*Sender)(nil)

// NewSender creates a loopback sender with the configured buffer.
func NewSender(cfg Config) *Sender {
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 256
	}
	return &Sender{cfg: cfg, ch: make(chan Outbound, cfg.BufferSize)}
}

// Outbox exposes the queued envelopes in send order.
func (s *Sender) Outbox() <-chan Outbound { return s.ch }

// Drain returns every envelope queued so far without blocking.
func (s *Sender) Drain() []Outbound {
	var out []Outbound
	for {
		select {
		case o := <-s.ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

func (s *Sender) SendRequest(ctx context.Context, req *ocppgw.RequestMessage, done ocppgw.SendCallback) error {
	return s.enqueue(ctx, Outbound{Kind: ocppgw.KindRequest, Request: req}, done)
}

func (s *Sender) SendResponse(ctx context.Context, resp *ocppgw.ResponseMessage, done ocppgw.SendCallback) error {
	return s.enqueue(ctx, Outbound{Kind: ocppgw.KindResponse, Response: resp}, done)
}

func (s *Sender) SendError(ctx context.Context, em *ocppgw.ErrorMessage, done ocppgw.SendCallback) error {
	kind := ocppgw.KindRequestError
	if em != nil && em.Kind == ocppgw.ResponseError {
		kind = ocppgw.KindResponseError
	}
	return s.enqueue(ctx, Outbound{Kind: kind, Error: em}, done)
}

func (s *Sender) Send(ctx context.Context, sm *ocppgw.SendMessage, done ocppgw.SendCallback) error {
	return s.enqueue(ctx, Outbound{Kind: ocppgw.KindSend, Send: sm}, done)
}

func (s *Sender) enqueue(ctx context.Context, o Outbound, done ocppgw.SendCallback) error {
	if s.closed.Load() {
		err := fmt.Errorf("ocppgw/memory: sender closed")
		if done != nil {
			done(ctx, err)
		}
		return err
	}
	select {
	case s.ch <- o:
		if done != nil {
			done(ctx, nil)
		}
		return nil
	default:
		err := fmt.Errorf("ocppgw/memory: outbox full")
		if done != nil {
			done(ctx, err)
		}
		return err
	}
}

// Close marks the sender closed. Queued envelopes stay readable.
func (s *Sender) Close(context.Context) error {
	s.closed.Store(true)
	return nil
}
