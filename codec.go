package ocppgw

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Codec is the Strategy for encoding/decoding action payloads. The JSON
// codec serves OCPP-J text frames, the CBOR codec serves the binary frames.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default text-frame implementation.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSONCodec) Name() string                    { return "json" }

// CBORCodec serves binary envelope payloads.
type CBORCodec struct{}

func (CBORCodec) Marshal(v any) ([]byte, error)   { return cbor.Marshal(v) }
func (CBORCodec) Unmarshal(b []byte, v any) error { return cbor.Unmarshal(b, v) }
func (CBORCodec) Name() string                    { return "cbor" }

// CodecFactory constructs codecs via Factory pattern.
type CodecFactory func() Codec

var (
	codecRegistryMu sync.RWMutex
	codecRegistry   = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
		"cbor": func() Codec { return CBORCodec{} },
	}
)

// RegisterCodec registers a codec factory by name.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" {
		return errors.New("ocppgw: codec name must not be empty")
	}
	if factory == nil {
		return errors.New("ocppgw: codec factory must not be nil")
	}
	codecRegistryMu.Lock()
	codecRegistry[name] = factory
	codecRegistryMu.Unlock()
	return nil
}

// NewCodec constructs a codec by name or returns an error.
func NewCodec(name string) (Codec, error) {
	codecRegistryMu.RLock()
	f, ok := codecRegistry[name]
	codecRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ocppgw: codec %q not registered", name)
	}
	return f(), nil
}

// codecFor resolves the codec matching an envelope encoding.
func codecFor(e Encoding) Codec {
	if e == EncodingBinary {
		return CBORCodec{}
	}
	return JSONCodec{}
}

// DecodePayload unmarshals an opaque payload into a typed value using the
// codec that matches the envelope encoding.
func DecodePayload[T any](e Encoding, payload []byte) (T, error) {
	var v T
	if err := codecFor(e).Unmarshal(payload, &v); err != nil {
		return v, err
	}
	return v, nil
}
