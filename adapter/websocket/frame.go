package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/evgrid/ocppgw"
)

// OCPP-J frame type identifiers.
const (
	frameCall            = 2
	frameCallResult      = 3
	frameCallError       = 4
	frameCallResultError = 5
	frameSend            = 6
)

// relayMeta is the vendor extension appended to frames on gateway-to-gateway
// links so the next hop can keep the provenance trail intact. Station-facing
// links omit it and speak plain OCPP-J.
type relayMeta struct {
	NetworkPath []ocppgw.NodeID `json:"networkPath,omitempty" cbor:"1,keyasint,omitempty"`
	Destination ocppgw.NodeID   `json:"destination,omitempty" cbor:"2,keyasint,omitempty"`
	TrackingID  string          `json:"eventTrackingId,omitempty" cbor:"3,keyasint,omitempty"`
}

func marshalFrame(enc ocppgw.Encoding, elems []any) ([]byte, error) {
	if enc == ocppgw.EncodingBinary {
		return cbor.Marshal(elems)
	}
	return json.Marshal(elems)
}

func rawPayload(enc ocppgw.Encoding, payload []byte) any {
	if len(payload) == 0 {
		if enc == ocppgw.EncodingBinary {
			return cbor.RawMessage(mustCBOREmptyMap)
		}
		return json.RawMessage("{}")
	}
	if enc == ocppgw.EncodingBinary {
		return cbor.RawMessage(payload)
	}
	return json.RawMessage(payload)
}

var mustCBOREmptyMap = []byte{0xa0} // cbor encoding of {}

// requestFrame builds a CALL: [2, "<id>", "<action>", payload].
func requestFrame(req *ocppgw.RequestMessage, relay bool) ([]byte, error) {
	elems := []any{frameCall, req.RequestID, req.Action, rawPayload(req.Encoding, req.Payload)}
	if relay {
		elems = append(elems, relayMeta{
			NetworkPath: req.NetworkPath,
			Destination: req.Destination.Target,
			TrackingID:  req.EventTrackingID,
		})
	}
	return marshalFrame(req.Encoding, elems)
}

// responseFrame builds a CALLRESULT: [3, "<id>", payload].
func responseFrame(resp *ocppgw.ResponseMessage, relay bool) ([]byte, error) {
	elems := []any{frameCallResult, resp.RequestID, rawPayload(resp.Encoding, resp.Payload)}
	if relay {
		elems = append(elems, relayMeta{
			NetworkPath: resp.NetworkPath,
			Destination: resp.Destination.Target,
			TrackingID:  resp.EventTrackingID,
		})
	}
	return marshalFrame(resp.Encoding, elems)
}

// errorFrame builds a CALLERROR or CALLRESULTERROR:
// [4|5, "<id>", "<code>", "<description>", details].
func errorFrame(em *ocppgw.ErrorMessage, relay bool) ([]byte, error) {
	ft := frameCallError
	if em.Kind == ocppgw.ResponseError {
		ft = frameCallResultError
	}
	elems := []any{ft, em.RequestID, string(em.Code), em.Description, rawPayload(em.Encoding, em.Details)}
	if relay {
		elems = append(elems, relayMeta{
			NetworkPath: em.NetworkPath,
			Destination: em.Destination.Target,
			TrackingID:  em.EventTrackingID,
		})
	}
	return marshalFrame(em.Encoding, elems)
}

// sendFrame builds a one-way SEND: [6, "<id>", "<action>", payload].
func sendFrame(sm *ocppgw.SendMessage, relay bool) ([]byte, error) {
	elems := []any{frameSend, sm.MessageID, sm.Action, rawPayload(sm.Encoding, sm.Payload)}
	if relay {
		elems = append(elems, relayMeta{
			NetworkPath: sm.NetworkPath,
			Destination: sm.Destination.Target,
			TrackingID:  sm.EventTrackingID,
		})
	}
	return marshalFrame(sm.Encoding, elems)
}

func frameKindName(ft int) string {
	switch ft {
	case frameCall:
		return "CALL"
	case frameCallResult:
		return "CALLRESULT"
	case frameCallError:
		return "CALLERROR"
	case frameCallResultError:
		return "CALLRESULTERROR"
	case frameSend:
		return "SEND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", ft)
	}
}
