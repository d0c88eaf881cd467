package websocket

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config for the websocket sender.
type Config struct {
	// URL of the peer, e.g. "wss://csms.example.com/ocpp/NN-1".
	URL string `mapstructure:"url"`
	// Subprotocols offered during the handshake (default: ocpp2.0.1, ocpp2.1).
	Subprotocols []string `mapstructure:"subprotocols"`
	// AuthorizationKey, when set, is sent verbatim in the Authorization header.
	AuthorizationKey string `mapstructure:"authorization_key"`
	// HandshakeTimeout bounds the dial (default: 10s).
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// WriteTimeout bounds each frame write (default: 10s).
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RelayMetadata appends network-path/destination metadata to frames.
	// Enable on gateway-to-gateway links, leave off toward stations.
	RelayMetadata bool `mapstructure:"relay_metadata"`
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Subprotocols:     []string{"ocpp2.0.1", "ocpp2.1"},
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// ConfigFromMap decodes a config blob as passed through the sender registry.
func ConfigFromMap(cfg map[string]any) (Config, error) {
	c := Defaults()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &c,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := dec.Decode(cfg); err != nil {
		return Config{}, fmt.Errorf("ocppgw/websocket: decode config: %w", err)
	}
	return c, nil
}

// deadlineFrom resolves the earlier of the context deadline and now+d.
func deadlineFrom(ctx interface{ Deadline() (time.Time, bool) }, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if cd, ok := ctx.Deadline(); ok && cd.Before(t) {
		return cd
	}
	return t
}
