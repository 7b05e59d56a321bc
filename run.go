// SPDX-License-Identifier: EPL-2.0

package audroute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/config"
	"github.com/ik5/audroute/engine"
	"github.com/ik5/audroute/graph"
)

// Run initializes an engine from cfg, runs it until ctx is done and then
// closes it.
func Run(ctx context.Context, cfg *config.Config, opts engine.Options) error {
	e := engine.New(cfg, opts)
	if err := e.Initialize(ctx); err != nil {
		return err
	}
	if err := e.Run(); err != nil {
		return errors.Join(err, e.Close())
	}

	<-ctx.Done()
	return e.Close()
}

var ErrInvalidOptions = errors.New("invalid conversion options")

type ConvertOptions struct {
	// SampleRate of the output; required.
	SampleRate int
	// Channels of the output, 1 or 2. Zero means mono.
	Channels int
	// BitDepth of the output, 16, 24 or 32. Zero means 16.
	BitDepth int
	// Filter is an optional filter description run on every block.
	Filter string
	// BufferSize is the block size in frames. Zero means 512.
	BufferSize int
}

func (o *ConvertOptions) defaults() error {
	if o.Channels == 0 {
		o.Channels = 1
	}
	if o.BitDepth == 0 {
		o.BitDepth = 16
	}
	if o.BufferSize == 0 {
		o.BufferSize = config.DefaultBufferSize
	}
	switch {
	case o.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidOptions, o.SampleRate)
	case o.Channels != 1 && o.Channels != 2:
		return fmt.Errorf("%w: %d channels", ErrInvalidOptions, o.Channels)
	case o.BufferSize < 0:
		return fmt.Errorf("%w: buffer size %d", ErrInvalidOptions, o.BufferSize)
	}
	return nil
}

// Convert renders the file at in into a WAV file at out, resampled and
// folded to the requested shape. It returns the number of frames written;
// the last block is padded with silence to a whole BufferSize.
func Convert(ctx context.Context, in, out string, opts ConvertOptions) (int64, error) {
	if err := opts.defaults(); err != nil {
		return 0, err
	}

	cfg := config.Default()
	cfg.SampleRate = float64(opts.SampleRate)
	cfg.BufferSize = opts.BufferSize
	cfg.SampleFormat = audio.Float32Planar.String()
	cfg.ChannelLayout = "mono"
	if opts.Channels == 2 {
		cfg.ChannelLayout = "stereo"
	}
	cfg.Nodes = []config.Node{
		{Name: "input", Type: graph.FileSourceType.String(), Params: map[string]string{
			"file_path":    in,
			"channel_mode": "mix",
		}},
		{Name: "output", Type: graph.FileSinkType.String(), Params: map[string]string{
			"file_path": out,
			"format":    "wav",
			"bit_depth": strconv.Itoa(opts.BitDepth),
		}},
	}
	if opts.Filter != "" {
		cfg.Nodes = append(cfg.Nodes, config.Node{Name: "filter", Type: graph.ProcessorType.String(), Params: map[string]string{
			"filter_description": opts.Filter,
		}})
		cfg.Connections = []config.Connection{
			{Source: "input", Sink: "filter"},
			{Source: "filter", Sink: "output"},
		}
	} else {
		cfg.Connections = []config.Connection{{Source: "input", Sink: "output"}}
	}

	e := engine.New(cfg, engine.Options{Manual: true})
	if err := e.Initialize(ctx); err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(in), err)
	}
	defer e.Close()
	if err := e.Run(); err != nil {
		return 0, err
	}

	// The tick that finds the source drained still moves the filter's
	// last block to the sink.
	src := e.Node("input").(*graph.FileSource)
	sink := e.Node("output").(*graph.FileSink)
	for !src.EOF() {
		if err := ctx.Err(); err != nil {
			return sink.Written(), err
		}
		if err := e.ProcessBlock(); err != nil {
			return sink.Written(), err
		}
	}

	if err := e.Stop(); err != nil {
		return sink.Written(), err
	}
	return sink.Written(), e.Close()
}
