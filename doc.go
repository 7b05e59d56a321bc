// SPDX-License-Identifier: EPL-2.0

// Package audroute is a real-time audio routing engine. It moves sample
// data between audio devices, files and in-place transform stages through
// a node graph described by a configuration.
//
// # Packages
//
//   - audio: sample formats, channel layouts, the reference counted
//     Buffer, sample conversion and streaming Source contracts
//   - formats: decoders for WAV, AIFF, MP3, Ogg Vorbis and FLAC, and the
//     WAV encoder
//   - hw: device managers (virtual, malgo, oto, portaudio)
//   - filter: transform chains used by processor nodes
//   - graph: the node variants
//   - engine: builds the graph and runs it tick by tick
//   - control: the external mixer controller link
//   - config: the JSON configuration
//
// # Quick Start
//
// Run a graph from a configuration until the context is canceled:
//
//	cfg, _ := config.Load("engine.json")
//	err := audroute.Run(ctx, cfg, engine.Options{})
//
// A configuration names nodes and the connections between them:
//
//	{
//	  "driver": "malgo",
//	  "sample_rate": 48000,
//	  "buffer_size": 256,
//	  "nodes": [
//	    {"name": "mic", "type": "hardware_source", "params": {"channels": "0,1"}},
//	    {"name": "fx", "type": "processor", "params": {"filter_description": "highpass=80,volume:db=-3"}},
//	    {"name": "out", "type": "hardware_sink", "params": {"channels": "0,1"}},
//	    {"name": "tape", "type": "file_sink", "params": {"file_path": "~/take.wav", "bit_depth": "24"}}
//	  ],
//	  "connections": [
//	    {"source": "mic", "sink": "fx"},
//	    {"source": "fx", "sink": "out"},
//	    {"source": "mic", "sink": "tape"}
//	  ]
//	}
//
// # Offline Conversion
//
// Convert runs a file through the same graph without a clock, as fast as
// the codecs allow:
//
//	frames, err := audroute.Convert(ctx, "in.mp3", "out.wav", audroute.ConvertOptions{
//		SampleRate: 8000,
//		Channels:   1,
//	})
package audroute
