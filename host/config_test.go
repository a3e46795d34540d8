package host

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moru.toml", []byte(`
[modules.plain]
path = "plain.wasm"

[modules.sensor]
path = "sensor.wasm"

[modules.sensor.runtime.messaging]
url = "nats://127.0.0.1:4222"
subjects = ["sensor.commands", "sensor.config"]
queue_size = 16
`))

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Modules) != 2 {
		t.Fatalf("expected 2 modules, got %d", len(cfg.Modules))
	}

	plain := cfg.Modules["plain"]
	if plain.Path != "plain.wasm" {
		t.Errorf("plain path %q", plain.Path)
	}
	if plain.Runtime.Messaging != nil {
		t.Error("plain should have no messaging block")
	}

	sensor := cfg.Modules["sensor"]
	m := sensor.Runtime.Messaging
	if m == nil {
		t.Fatal("sensor messaging block missing")
	}
	if m.URL != "nats://127.0.0.1:4222" || len(m.Subjects) != 2 || m.QueueSize != 16 {
		t.Errorf("unexpected messaging config: %+v", m)
	}
}

func TestLoadConfigMissingPath(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moru.toml", []byte(`
[modules.broken]
`))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing module path")
	}
}

func TestLoadConfigMessagingWithoutURL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moru.toml", []byte(`
[modules.m]
path = "m.wasm"

[modules.m.runtime.messaging]
subjects = ["x"]
`))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for messaging block without url")
	}
}

func TestLoadConfigUnreadable(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
