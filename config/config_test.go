// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ik5/audroute/audio"
)

const sample = `{
  "sample_rate": 44100,
  "sample_format": "s16",
  "control": {"url": "ws://mixer.local/osc", "timeout": "2s"},
  "nodes": [
    {"name": "in", "type": "file_source", "params": {"file_path": "a.wav"}},
    {"name": "out", "type": "file_sink", "params": {"file_path": "b.wav"}}
  ],
  "connections": [{"source": "in", "sink": "out"}],
  "commands": ["/mute 1"]
}`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.SampleRate != 44100 || cfg.BufferSize != DefaultBufferSize {
		t.Errorf("rate/size = %v/%d", cfg.SampleRate, cfg.BufferSize)
	}
	if f, _ := cfg.Format(); f != audio.Int16 {
		t.Errorf("Format() = %v", f)
	}
	if l, _ := cfg.Layout(); l != audio.LayoutStereo {
		t.Errorf("Layout() = %v", l)
	}
	if time.Duration(cfg.Control.Timeout) != 2*time.Second || !cfg.Control.Enabled() {
		t.Errorf("control = %+v", cfg.Control)
	}
	if len(cfg.Commands) != 1 || cfg.Connections[0].SinkPad != 0 {
		t.Errorf("commands = %v, connections = %+v", cfg.Commands, cfg.Connections)
	}
}

func TestDuration_Seconds(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`{"control": {"timeout": 1.5}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := time.Duration(cfg.Control.Timeout); got != 1500*time.Millisecond {
		t.Errorf("timeout = %v, want 1.5s", got)
	}
	if _, err := Parse([]byte(`{"control": {"timeout": "soon"}}`)); !errors.Is(err, ErrInvalidTimeout) {
		t.Errorf("Parse(soon) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	nodes := []Node{{Name: "a", Type: "processor"}, {Name: "b", Type: "processor"}}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "no nodes", mutate: func(c *Config) { c.Nodes = nil }, wantErr: ErrNoNodes},
		{name: "rate", mutate: func(c *Config) { c.SampleRate = 0 }, wantErr: ErrInvalidSampleRate},
		{name: "buffer", mutate: func(c *Config) { c.BufferSize = -1 }, wantErr: ErrInvalidBufferSize},
		{name: "format", mutate: func(c *Config) { c.SampleFormat = "u8" }, wantErr: audio.ErrUnsupportedFormat},
		{name: "layout", mutate: func(c *Config) { c.ChannelLayout = "hexagonal" }, wantErr: audio.ErrUnsupportedLayout},
		{name: "duplicate", mutate: func(c *Config) { c.Nodes[1].Name = "a" }, wantErr: ErrDuplicateNode},
		{name: "no name", mutate: func(c *Config) { c.Nodes[0].Name = " " }, wantErr: ErrMissingNodeName},
		{name: "no type", mutate: func(c *Config) { c.Nodes[0].Type = "" }, wantErr: ErrMissingNodeType},
		{name: "unknown node", mutate: func(c *Config) {
			c.Connections = []Connection{{Source: "a", Sink: "z"}}
		}, wantErr: ErrUnknownNode},
		{name: "pad", mutate: func(c *Config) {
			c.Connections = []Connection{{Source: "a", Sink: "b", SinkPad: -1}}
		}, wantErr: ErrInvalidPad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			cfg.Nodes = append([]Node(nil), nodes...)
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"AUDROUTE_DRIVER":      "virtual",
		"AUDROUTE_SAMPLE_RATE": "96000",
		"AUDROUTE_BUFFER_SIZE": "128",
		"AUDROUTE_LOG_LEVEL":   "debug",
		"AUDROUTE_CONTROL_URL": "ws://x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.Driver != "virtual" || cfg.SampleRate != 96000 || cfg.BufferSize != 128 ||
		cfg.LogLevel != "debug" || cfg.Control.URL != "ws://x" {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}

	env["AUDROUTE_BUFFER_SIZE"] = "lots"
	if err := cfg.ApplyEnv(lookup); !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("ApplyEnv(lots) error = %v", err)
	}
}

func TestLoadAndSave(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "engine.json")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "saved.json")
	if err := cfg.Save(out); err != nil {
		t.Fatal(err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Nodes) != 2 || again.Nodes[0].Params["file_path"] != "a.wav" ||
		again.Control.Timeout != cfg.Control.Timeout {
		t.Errorf("reloaded config = %+v", again)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}
