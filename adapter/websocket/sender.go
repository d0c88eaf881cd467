// Package websocket implements the outbound sender boundary over a
// persistent websocket connection, framing envelopes as OCPP-J arrays
// (CALL/CALLRESULT/CALLERROR and the one-way SEND). It is only the sender
// half: the inbound read loop, handshake and ping/pong live in the transport
// layer that feeds the router.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/evgrid/ocppgw"
)

const SenderName = "websocket"

func init() {
	if err := ocppgw.RegisterSender(SenderName, func(cfg map[string]any) (ocppgw.Sender, error) {
		c, err := ConfigFromMap(cfg)
		if err != nil {
			return nil, err
		}
		return NewSender(c)
	}); err != nil {
		panic(fmt.Errorf("ocppgw/websocket: failed to register sender: %w", err))
	}
}

// Sender writes framed envelopes to one websocket peer. gorilla/websocket
// allows a single concurrent writer, so all sends serialize on a mutex.
type Sender struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ ocppgw.Sender = (*Sender)(nil)

// NewSender creates a sender for the configured peer URL. The connection is
// dialed lazily on the first send.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ocppgw/websocket: config requires a URL")
	}
	return &Sender{cfg: cfg}, nil
}

// NewSenderWithConn wraps an already-established connection, e.g. one the
// transport layer accepted from a charging station.
func NewSenderWithConn(conn *websocket.Conn, cfg Config) *Sender {
	return &Sender{cfg: cfg, conn: conn}
}

func (s *Sender) dialLocked(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: s.cfg.HandshakeTimeout,
		Subprotocols:     s.cfg.Subprotocols,
	}
	header := http.Header{}
	if s.cfg.AuthorizationKey != "" {
		header.Set("Authorization", s.cfg.AuthorizationKey)
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("ocppgw/websocket: dial %s: %w", s.cfg.URL, err)
	}
	s.conn = conn
	return nil
}

func (s *Sender) write(ctx context.Context, enc ocppgw.Encoding, frame []byte, done ocppgw.SendCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.writeLocked(ctx, enc, frame)
	if done != nil {
		done(ctx, err)
	}
	return err
}

func (s *Sender) writeLocked(ctx context.Context, enc ocppgw.Encoding, frame []byte) error {
	if s.closed {
		return fmt.Errorf("ocppgw/websocket: sender closed")
	}
	if err := s.dialLocked(ctx); err != nil {
		return err
	}
	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(deadlineFrom(ctx, s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	msgType := websocket.TextMessage
	if enc == ocppgw.EncodingBinary {
		msgType = websocket.BinaryMessage
	}
	if err := s.conn.WriteMessage(msgType, frame); err != nil {
		// A failed write poisons the connection; drop it so the next send
		// redials instead of writing into a broken pipe.
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("ocppgw/websocket: write: %w", err)
	}
	return nil
}

func (s *Sender) SendRequest(ctx context.Context, req *ocppgw.RequestMessage, done ocppgw.SendCallback) error {
	frame, err := requestFrame(req, s.cfg.RelayMetadata)
	if err != nil {
		return s.fail(ctx, done, err)
	}
	return s.write(ctx, req.Encoding, frame, done)
}

func (s *Sender) SendResponse(ctx context.Context, resp *ocppgw.ResponseMessage, done ocppgw.SendCallback) error {
	frame, err := responseFrame(resp, s.cfg.RelayMetadata)
	if err != nil {
		return s.fail(ctx, done, err)
	}
	return s.write(ctx, resp.Encoding, frame, done)
}

func (s *Sender) SendError(ctx context.Context, em *ocppgw.ErrorMessage, done ocppgw.SendCallback) error {
	frame, err := errorFrame(em, s.cfg.RelayMetadata)
	if err != nil {
		return s.fail(ctx, done, err)
	}
	return s.write(ctx, em.Encoding, frame, done)
}

func (s *Sender) Send(ctx context.Context, sm *ocppgw.SendMessage, done ocppgw.SendCallback) error {
	frame, err := sendFrame(sm, s.cfg.RelayMetadata)
	if err != nil {
		return s.fail(ctx, done, err)
	}
	return s.write(ctx, sm.Encoding, frame, done)
}

func (s *Sender) fail(ctx context.Context, done ocppgw.SendCallback, err error) error {
	if done != nil {
		done(ctx, err)
	}
	return err
}

// Close sends a close frame when connected and releases the connection.
func (s *Sender) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := s.conn.Close()
	s.conn = nil
	return err
}
