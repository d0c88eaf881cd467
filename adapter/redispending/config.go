package redispending

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/trickstertwo/xclock"
)

// Config for the Redis pending store.
type Config struct {
	// Connection
	Addr          string `mapstructure:"addr"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	TLS           bool   `mapstructure:"tls"`
	TLSServerName string `mapstructure:"tls_server_name"`

	// KeyPrefix namespaces entries, default "ocppgw:pending:".
	KeyPrefix string `mapstructure:"key_prefix"`
	// Grace extends the key TTL past the request deadline so a response
	// arriving shortly after expiry is still classified as late rather than
	// unknown (default: 1m).
	Grace time.Duration `mapstructure:"grace"`

	// Clock override for tests; not decodable from a map.
	Clock xclock.Clock `mapstructure:"-"`
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:      "127.0.0.1:6379",
		KeyPrefix: "ocppgw:pending:",
		Grace:     time.Minute,
	}
}

// ConfigFromMap decodes a config blob.
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
		return Config{}, fmt.Errorf("ocppgw/redispending: decode config: %w", err)
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ocppgw:pending:"
	}
	if c.Grace <= 0 {
		c.Grace = time.Minute
	}
	return c, nil
}
