package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/ocppgw"
)

type received struct {
	msgType int
	data    []byte
}

// echoPeer upgrades incoming connections and streams every message into ch.
func echoPeer(t *testing.T, ch chan<- received) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{Subprotocols: []string{"ocpp2.0.1"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			ch <- received{msgType: mt, data: data}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSenderWritesTextFrames(t *testing.T) {
	ch := make(chan received, 4)
	srv := echoPeer(t, ch)

	cfg := Defaults()
	cfg.URL = wsURL(srv)
	s, err := NewSender(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	req := &ocppgw.RequestMessage{
		RequestID: "R1",
		Action:    "Heartbeat",
		Payload:   []byte(`{}`),
	}
	require.NoError(t, s.SendRequest(context.Background(), req, nil))

	select {
	case got := <-ch:
		assert.Equal(t, websocket.TextMessage, got.msgType)
		var elems []json.RawMessage
		require.NoError(t, json.Unmarshal(got.data, &elems))
		require.Len(t, elems, 4)
		assert.JSONEq(t, "2", string(elems[0]))
		assert.JSONEq(t, `"Heartbeat"`, string(elems[2]))
	case <-time.After(time.Second):
		t.Fatal("peer did not receive the frame")
	}
}

func TestSenderWritesBinaryFrames(t *testing.T) {
	ch := make(chan received, 4)
	srv := echoPeer(t, ch)

	cfg := Defaults()
	cfg.URL = wsURL(srv)
	s, err := NewSender(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	resp := &ocppgw.ResponseMessage{
		RequestID: "R1",
		Encoding:  ocppgw.EncodingBinary,
	}
	require.NoError(t, s.SendResponse(context.Background(), resp, nil))

	select {
	case got := <-ch:
		assert.Equal(t, websocket.BinaryMessage, got.msgType)
	case <-time.After(time.Second):
		t.Fatal("peer did not receive the frame")
	}
}

func TestSenderCallbackReportsOutcome(t *testing.T) {
	ch := make(chan received, 4)
	srv := echoPeer(t, ch)

	cfg := Defaults()
	cfg.URL = wsURL(srv)
	s, err := NewSender(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var cbErr error
	called := false
	require.NoError(t, s.SendError(context.Background(), &ocppgw.ErrorMessage{
		RequestID: "R1",
		Code:      ocppgw.CodeFiltered,
	}, func(_ context.Context, err error) {
		called = true
		cbErr = err
	}))
	assert.True(t, called)
	assert.NoError(t, cbErr)
}

func TestSenderRequiresURL(t *testing.T) {
	_, err := NewSender(Config{})
	assert.Error(t, err)
}

func TestSenderClosedRefusesWrites(t *testing.T) {
	ch := make(chan received, 4)
	srv := echoPeer(t, ch)

	cfg := Defaults()
	cfg.URL = wsURL(srv)
	s, err := NewSender(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))

	err = s.Send(context.Background(), &ocppgw.SendMessage{MessageID: "S1"}, nil)
	assert.Error(t, err)
}

func TestSenderDialFailureSurfaces(t *testing.T) {
	cfg := Defaults()
	cfg.URL = "ws://127.0.0.1:1/nope"
	cfg.HandshakeTimeout = 200 * time.Millisecond
	s, err := NewSender(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	err = s.SendRequest(context.Background(), &ocppgw.RequestMessage{RequestID: "R1"}, nil)
	assert.Error(t, err)
}

func TestConfigFromMapDecodesDurations(t *testing.T) {
	c, err := ConfigFromMap(map[string]any{
		"url":            "ws://peer/ocpp",
		"write_timeout":  "3s",
		"relay_metadata": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://peer/ocpp", c.URL)
	assert.Equal(t, 3*time.Second, c.WriteTimeout)
	assert.True(t, c.RelayMetadata)
	assert.Equal(t, []string{"ocpp2.0.1", "ocpp2.1"}, c.Subprotocols)
}
