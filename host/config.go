package host

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/caffeineduck/moru/messaging"
)

// Config describes every module the host should run, keyed by module name.
// Names are unique by construction of the TOML table.
type Config struct {
	Modules map[string]ModuleConfig `toml:"modules"`
}

// ModuleConfig is the static description of one module.
type ModuleConfig struct {
	// Path locates the module's compiled wasm bytecode.
	Path string `toml:"path"`
	// Runtime holds the module's runtime options.
	Runtime RuntimeConfig `toml:"runtime"`
}

// RuntimeConfig carries per-module runtime options. A nil Messaging block
// means the module runs without the messaging capability.
type RuntimeConfig struct {
	Messaging *messaging.Config `toml:"messaging"`
}

// LoadConfig reads and validates a TOML config file.
//
// Example:
//
//	[modules.sensor]
//	path = "sensor.wasm"
//
//	[modules.sensor.runtime.messaging]
//	url = "nats://127.0.0.1:4222"
//	subjects = ["sensor.commands"]
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	for name, mc := range cfg.Modules {
		if mc.Path == "" {
			return nil, fmt.Errorf("module %q: path is required", name)
		}
		if m := mc.Runtime.Messaging; m != nil && m.URL == "" {
			return nil, fmt.Errorf("module %q: messaging url is required", name)
		}
	}

	return &cfg, nil
}
