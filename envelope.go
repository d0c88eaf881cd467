package ocppgw

import (
	"time"
)

// NodeID identifies one networking node (charging station, gateway, CSMS)
// in a multi-hop OCPP topology.
type NodeID string

// Zero is the unset node id.
const Zero NodeID = ""

// NetworkPath is the ordered provenance trail of node ids a message has
// traversed. It is append-only: every hop adds exactly one id and nothing
// ever removes one. The first element is the message origin and is used to
// route the eventual response back.
type NetworkPath []NodeID

// Source returns the node the message originated from.
func (p NetworkPath) Source() NodeID {
	if len(p) == 0 {
		return Zero
	}
	return p[0]
}

// Last returns the most recent hop, i.e. the node the message arrived from.
func (p NetworkPath) Last() NodeID {
	if len(p) == 0 {
		return Zero
	}
	return p[len(p)-1]
}

// Append returns a new path with id added as the latest hop. The receiver is
// never mutated so concurrently held references stay valid.
func (p NetworkPath) Append(id NodeID) NetworkPath {
	next := make(NetworkPath, len(p)+1)
	copy(next, p)
	next[len(p)] = id
	return next
}

// Destination addresses an envelope: the final target plus the next relay
// that should receive it on this hop.
type Destination struct {
	Target  NodeID
	NextHop NodeID
}

// IsZero reports whether no destination has been set.
func (d Destination) IsZero() bool {
	return d.Target == Zero && d.NextHop == Zero
}

// Encoding selects the wire serialization of an envelope payload.
type Encoding uint8

const (
	EncodingJSON Encoding = iota
	EncodingBinary
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// codecName maps an encoding onto the codec registry.
func (e Encoding) codecName() string {
	if e == EncodingBinary {
		return "cbor"
	}
	return "json"
}

// MessageKind discriminates the envelope variants crossing the router.
type MessageKind uint8

const (
	KindRequest MessageKind = iota
	KindResponse
	KindRequestError
	KindResponseError
	KindSend
)

func (k MessageKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindRequestError:
		return "request_error"
	case KindResponseError:
		return "response_error"
	case KindSend:
		return "send"
	default:
		return "unknown"
	}
}

// ResultCode is the protocol-level error taxonomy carried by error envelopes.
type ResultCode string

const (
	CodeGenericError       ResultCode = "GenericError"
	CodeProtocolError      ResultCode = "ProtocolError"
	CodeFormationViolation ResultCode = "FormationViolation"
	CodeFiltered           ResultCode = "Filtered"
	CodeTimeout            ResultCode = "Timeout"
)

// RequestMessage is a two-way request envelope. The payload stays opaque to
// the router; only a registered action handler knows how to parse it.
type RequestMessage struct {
	// RequestID is unique among concurrently outstanding requests at a node.
	RequestID string
	// Action is the protocol operation name, e.g. "BootNotification".
	Action string
	// Payload is the encoded action payload.
	Payload []byte
	// Encoding tells which codec produced Payload.
	Encoding Encoding
	// Destination addresses the final target and the next hop.
	Destination Destination
	// NetworkPath records every node the request has passed through.
	NetworkPath NetworkPath
	// EventTrackingID correlates log lines across hops. Assigned by the
	// router when the transport delivered none.
	EventTrackingID string
	// Timestamp is when the envelope was created at its origin.
	Timestamp time.Time
	// Deadline is the absolute point after which the caller stops waiting
	// for a response. Zero means the router's configured timeout applies.
	Deadline time.Time
}

// ResponseMessage answers a RequestMessage with the same RequestID.
type ResponseMessage struct {
	RequestID       string
	Payload         []byte
	Encoding        Encoding
	Destination     Destination
	NetworkPath     NetworkPath
	EventTrackingID string
	Timestamp       time.Time
}

// ErrorKind tells whether an error envelope faults the request leg or the
// response leg of an exchange.
type ErrorKind uint8

const (
	RequestError ErrorKind = iota
	ResponseError
)

func (k ErrorKind) String() string {
	if k == ResponseError {
		return "response_error"
	}
	return "request_error"
}

// ErrorMessage reports a protocol-level failure for an outstanding request.
type ErrorMessage struct {
	RequestID       string
	Kind            ErrorKind
	Code            ResultCode
	Description     string
	Details         []byte
	Encoding        Encoding
	Destination     Destination
	NetworkPath     NetworkPath
	EventTrackingID string
	Timestamp       time.Time
}

// SendMessage is a one-way envelope: it carries an action and payload like a
// request but no response is ever expected, so it never enters the pending
// table.
type SendMessage struct {
	MessageID       string
	Action          string
	Payload         []byte
	Encoding        Encoding
	Destination     Destination
	NetworkPath     NetworkPath
	EventTrackingID string
	Timestamp       time.Time
}
