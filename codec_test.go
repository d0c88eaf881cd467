package ocppgw

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRegistry(t *testing.T) {
	c, err := NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = NewCodec("cbor")
	require.NoError(t, err)
	assert.Equal(t, "cbor", c.Name())

	_, err = NewCodec("xml")
	assert.Error(t, err)
}

func TestCodecForEncoding(t *testing.T) {
	assert.Equal(t, "json", codecFor(EncodingJSON).Name())
	assert.Equal(t, "cbor", codecFor(EncodingBinary).Name())
}

func TestDecodePayloadByEncoding(t *testing.T) {
	type heartbeat struct {
		CustomData map[string]string `json:"customData,omitempty"`
	}

	hb, err := DecodePayload[heartbeat](EncodingJSON, []byte(`{"customData":{"vendorId":"v1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "v1", hb.CustomData["vendorId"])

	raw, err := CBORCodec{}.Marshal(heartbeat{CustomData: map[string]string{"vendorId": "v2"}})
	require.NoError(t, err)
	hb, err = DecodePayload[heartbeat](EncodingBinary, raw)
	require.NoError(t, err)
	assert.Equal(t, "v2", hb.CustomData["vendorId"])

	_, err = DecodePayload[heartbeat](EncodingJSON, []byte(`{`))
	assert.Error(t, err)
}
