package memory

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Config controls the loopback sender.
type Config struct {
	// BufferSize is the outbox capacity (default: 256).
	BufferSize int `mapstructure:"buffer_size"`
}

// Defaults returns a Config with safe defaults.
func Defaults() Config {
	return Config{BufferSize: 256}
}

// ConfigFromMap decodes a config blob as passed through the sender registry.
func ConfigFromMap(cfg map[string]any) (Config, error) {
	c := Defaults()
	if len(cfg) == 0 {
		return c, nil
	}
	if err := mapstructure.WeakDecode(cfg, &c); err != nil {
		return Config{}, fmt.Errorf("ocppgw/memory: decode config: %w", err)
	}
	if c.BufferSize < 1 {
		c.BufferSize = 256
	}
	return c, nil
}
