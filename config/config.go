// SPDX-License-Identifier: EPL-2.0

// Package config loads the engine configuration: a JSON file, defaults and
// AUDROUTE_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/ik5/audroute/audio"
)

const (
	DefaultSampleRate     = 48000
	DefaultBufferSize     = 512
	DefaultSampleFormat   = "float32p"
	DefaultChannelLayout  = "stereo"
	DefaultControlTimeout = 5 * time.Second
)

type Config struct {
	// Driver selects the hardware backend; empty runs on the software clock.
	Driver        string  `json:"driver,omitempty"`
	Device        string  `json:"device,omitempty"`
	SampleRate    float64 `json:"sample_rate"`
	BufferSize    int     `json:"buffer_size"`
	SampleFormat  string  `json:"sample_format"`
	ChannelLayout string  `json:"channel_layout"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`

	Control     Control      `json:"control"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	// Commands are replayed to the controller once at startup.
	Commands []string `json:"commands,omitempty"`
}

// Control points at the external device controller. URL wins over mDNS
// discovery of Service.
type Control struct {
	URL     string   `json:"url,omitempty"`
	Service string   `json:"service,omitempty"`
	Domain  string   `json:"domain,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// Enabled reports whether a controller is configured.
func (c Control) Enabled() bool {
	return c.URL != "" || c.Service != ""
}

type Node struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

type Connection struct {
	Source    string `json:"source"`
	SourcePad int    `json:"source_pad"`
	Sink      string `json:"sink"`
	SinkPad   int    `json:"sink_pad"`
}

// Duration reads either a Go duration string ("1.5s") or a number of
// seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, x)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, b)
	}
	return nil
}

// Default returns a configuration with every default applied and no nodes.
func Default() *Config {
	return &Config{
		SampleRate:    DefaultSampleRate,
		BufferSize:    DefaultBufferSize,
		SampleFormat:  DefaultSampleFormat,
		ChannelLayout: DefaultChannelLayout,
		LogLevel:      "info",
		LogFormat:     "text",
		Control:       Control{Timeout: Duration(DefaultControlTimeout)},
	}
}

// Load reads path, applies defaults and the environment. It does not
// validate.
func Load(path string) (*Config, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes JSON over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes c as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ApplyEnv overrides fields from AUDROUTE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AUDROUTE_DRIVER"); ok {
		c.Driver = v
	}
	if v, ok := lookup("AUDROUTE_DEVICE"); ok {
		c.Device = v
	}
	if v, ok := lookup("AUDROUTE_SAMPLE_RATE"); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AUDROUTE_SAMPLE_RATE: %w", ErrInvalidSampleRate)
		}
		c.SampleRate = rate
	}
	if v, ok := lookup("AUDROUTE_BUFFER_SIZE"); ok && v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUDROUTE_BUFFER_SIZE: %w", ErrInvalidBufferSize)
		}
		c.BufferSize = size
	}
	if v, ok := lookup("AUDROUTE_LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("AUDROUTE_CONTROL_URL"); ok {
		c.Control.URL = v
	}
	return nil
}

// Format parses SampleFormat.
func (c *Config) Format() (audio.SampleFormat, error) {
	return audio.ParseSampleFormat(c.SampleFormat)
}

// Layout parses ChannelLayout.
func (c *Config) Layout() (audio.ChannelLayout, error) {
	return audio.ParseChannelLayout(c.ChannelLayout)
}

// Validate checks the configuration is internally consistent. Node types
// and parameters are checked when the engine builds the graph.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRate, c.SampleRate)
	}
	if c.BufferSize <= 0 || c.BufferSize > audio.MaxFrames {
		return fmt.Errorf("%w: %d", ErrInvalidBufferSize, c.BufferSize)
	}
	if _, err := c.Format(); err != nil {
		return err
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	if c.Control.Timeout < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, time.Duration(c.Control.Timeout))
	}

	if len(c.Nodes) == 0 {
		return ErrNoNodes
	}
	names := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		switch {
		case strings.TrimSpace(n.Name) == "":
			return fmt.Errorf("node %d: %w", i, ErrMissingNodeName)
		case strings.TrimSpace(n.Type) == "":
			return fmt.Errorf("node %q: %w", n.Name, ErrMissingNodeType)
		case names[n.Name]:
			return fmt.Errorf("%w: %q", ErrDuplicateNode, n.Name)
		}
		names[n.Name] = true
	}

	for _, conn := range c.Connections {
		if !names[conn.Source] {
			return fmt.Errorf("%w: %q", ErrUnknownNode, conn.Source)
		}
		if !names[conn.Sink] {
			return fmt.Errorf("%w: %q", ErrUnknownNode, conn.Sink)
		}
		if conn.SourcePad < 0 || conn.SinkPad < 0 {
			return fmt.Errorf("%w: %s:%d -> %s:%d", ErrInvalidPad, conn.Source, conn.SourcePad, conn.Sink, conn.SinkPad)
		}
	}
	return nil
}
