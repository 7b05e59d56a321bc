// SPDX-License-Identifier: EPL-2.0

// Package filter implements the transform stages a processor node runs.
// A chain is described by a comma separated list of stages, each written
// as name[=value][:key=value...], for example
//
//	volume=0.5,highpass=80:q=0.7,mono
//
// Stages work on interleaved float32 frames and may keep state between
// calls.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrEmptyDescription = errors.New("empty filter description")
	ErrUnknownFilter    = errors.New("unknown filter")
	ErrUnknownParameter = errors.New("unknown filter parameter")
	ErrInvalidValue     = errors.New("invalid filter parameter value")
	ErrUnsupported      = errors.New("filter not supported in this build")
	ErrChannelCount     = errors.New("sample count is not a whole number of frames")
)

// Filter is one transform stage.
type Filter interface {
	Name() string
	// Process transforms interleaved samples in place.
	Process(samples []float32) error
	// Set changes a parameter; it is safe to call between Process calls.
	Set(key, value string) error
	// Reset drops history, e.g. after a seek upstream.
	Reset()
}

type constructor struct {
	// primary is the parameter set by name=value.
	primary string
	build   func(rate float64, channels int) (Filter, error)
}

var (
	constructorsMu sync.Mutex
	constructors   = map[string]constructor{}
)

func register(name, primary string, build func(rate float64, channels int) (Filter, error)) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	constructors[name] = constructor{primary: primary, build: build}
}

func lookup(name string) (constructor, bool) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()

	c, ok := constructors[name]
	return c, ok
}

// Chain runs its stages in order.
type Chain struct {
	mu       sync.Mutex
	filters  []Filter
	channels int
	desc     string
}

// Parse builds a chain for the given stream shape.
func Parse(desc string, rate float64, channels int) (*Chain, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, ErrEmptyDescription
	}
	if channels <= 0 || rate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %v Hz", ErrInvalidValue, channels, rate)
	}

	c := &Chain{channels: channels, desc: desc}
	for stage := range strings.SplitSeq(desc, ",") {
		f, err := parseStage(strings.TrimSpace(stage), rate, channels)
		if err != nil {
			return nil, err
		}
		c.filters = append(c.filters, f)
	}
	return c, nil
}

func parseStage(stage string, rate float64, channels int) (Filter, error) {
	parts := strings.Split(stage, ":")
	name, value, hasValue := strings.Cut(parts[0], "=")
	name = strings.ToLower(strings.TrimSpace(name))

	ctor, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	f, err := ctor.build(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	if hasValue {
		if ctor.primary == "" {
			return nil, fmt.Errorf("%w: %s takes no value", ErrInvalidValue, name)
		}
		if err := f.Set(ctor.primary, value); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	for _, kv := range parts[1:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q", ErrInvalidValue, name, kv)
		}
		if err := f.Set(strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return f, nil
}

func (c *Chain) String() string { return c.desc }

func (c *Chain) Len() int { return len(c.filters) }

func (c *Chain) Channels() int { return c.channels }

// Process runs every stage over samples.
func (c *Chain) Process(samples []float32) error {
	if len(samples)%c.channels != 0 {
		return fmt.Errorf("%w: %d samples, %d channels", ErrChannelCount, len(samples), c.channels)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.filters {
		if err := f.Process(samples); err != nil {
			return fmt.Errorf("%s: %w", f.Name(), err)
		}
	}
	return nil
}

// Set changes a parameter of the first stage called name.
func (c *Chain) Set(name, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.filters {
		if f.Name() == name {
			return f.Set(key, value)
		}
	}
	return fmt.Errorf("%w: %q not in chain", ErrUnknownFilter, name)
}

func (c *Chain) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.filters {
		f.Reset()
	}
}

// Close releases stages holding external resources.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, f := range c.filters {
		if cl, ok := f.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
