package websocket

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgrid/ocppgw"
)

func TestRequestFramePlain(t *testing.T) {
	req := &ocppgw.RequestMessage{
		RequestID: "R1",
		Action:    "BootNotification",
		Payload:   []byte(`{"reason":"PowerUp"}`),
	}
	raw, err := requestFrame(req, false)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elems))
	require.Len(t, elems, 4, "plain links speak standard OCPP-J, no relay element")
	assert.JSONEq(t, "2", string(elems[0]))
	assert.JSONEq(t, `"R1"`, string(elems[1]))
	assert.JSONEq(t, `"BootNotification"`, string(elems[2]))
	assert.JSONEq(t, `{"reason":"PowerUp"}`, string(elems[3]))
}

func TestRequestFrameRelayCarriesProvenance(t *testing.T) {
	req := &ocppgw.RequestMessage{
		RequestID:       "R1",
		Action:          "GetReport",
		Payload:         []byte(`{}`),
		Destination:     ocppgw.Destination{Target: "CS-1", NextHop: "NN-2"},
		NetworkPath:     ocppgw.NetworkPath{"CSMS", "NN-1"},
		EventTrackingID: "track-1",
	}
	raw, err := requestFrame(req, true)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elems))
	require.Len(t, elems, 5)

	var meta relayMeta
	require.NoError(t, json.Unmarshal(elems[4], &meta))
	assert.Equal(t, []ocppgw.NodeID{"CSMS", "NN-1"}, meta.NetworkPath)
	assert.Equal(t, ocppgw.NodeID("CS-1"), meta.Destination)
	assert.Equal(t, "track-1", meta.TrackingID)
}

func TestResponseFrameEmptyPayload(t *testing.T) {
	resp := &ocppgw.ResponseMessage{RequestID: "R1"}
	raw, err := responseFrame(resp, false)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elems))
	require.Len(t, elems, 3)
	assert.JSONEq(t, "3", string(elems[0]))
	assert.JSONEq(t, `{}`, string(elems[2]), "empty payload serializes as an empty object")
}

func TestErrorFrameKinds(t *testing.T) {
	em := &ocppgw.ErrorMessage{
		RequestID:   "R1",
		Kind:        ocppgw.RequestError,
		Code:        ocppgw.CodeFiltered,
		Description: "no capacity",
	}
	raw, err := errorFrame(em, false)
	require.NoError(t, err)

	var elems []json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &elems))
	require.Len(t, elems, 5)
	assert.JSONEq(t, "4", string(elems[0]))
	assert.JSONEq(t, `"Filtered"`, string(elems[2]))
	assert.JSONEq(t, `"no capacity"`, string(elems[3]))

	em.Kind = ocppgw.ResponseError
	raw, err = errorFrame(em, false)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &elems))
	assert.JSONEq(t, "5", string(elems[0]))
}

func TestSendFrameBinary(t *testing.T) {
	payload, err := cbor.Marshal(map[string]string{"stream": "s1"})
	require.NoError(t, err)

	sm := &ocppgw.SendMessage{
		MessageID: "S1",
		Action:    "NotifyPeriodicEventStream",
		Payload:   payload,
		Encoding:  ocppgw.EncodingBinary,
	}
	raw, err := sendFrame(sm, false)
	require.NoError(t, err)

	var elems []cbor.RawMessage
	require.NoError(t, cbor.Unmarshal(raw, &elems))
	require.Len(t, elems, 4)

	var ft int
	require.NoError(t, cbor.Unmarshal(elems[0], &ft))
	assert.Equal(t, frameSend, ft)

	var body map[string]string
	require.NoError(t, cbor.Unmarshal(elems[3], &body))
	assert.Equal(t, "s1", body["stream"])
}

func TestFrameKindNames(t *testing.T) {
	assert.Equal(t, "CALL", frameKindName(frameCall))
	assert.Equal(t, "CALLRESULT", frameKindName(frameCallResult))
	assert.Equal(t, "CALLERROR", frameKindName(frameCallError))
	assert.Equal(t, "CALLRESULTERROR", frameKindName(frameCallResultError))
	assert.Equal(t, "SEND", frameKindName(frameSend))
	assert.Equal(t, "UNKNOWN(9)", frameKindName(9))
}
