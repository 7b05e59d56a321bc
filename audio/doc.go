// SPDX-License-Identifier: EPL-2.0

/*
Package audio holds the sample containers and streaming primitives the
routing engine moves between nodes.

# Buffers

A Buffer is a handle onto reference-counted storage tagged with a frame
count, sample rate, SampleFormat and ChannelLayout. Planar formats keep one
plane per channel, interleaved formats keep a single plane.

	buf, err := audio.NewBuffer(512, 48000, audio.Float32Planar, audio.LayoutStereo)
	if err != nil {
		return err
	}
	defer buf.Release()

	shared := buf.Ref()           // same storage, refcount 2
	window, _ := audio.NewView(buf, 128, 256)
	f32, _ := audio.NewConverted(buf, audio.Int16, audio.LayoutStereo)

Ref and NewView never copy samples. Clone, CopyFrom and NewConverted do.
Storage is freed when the last handle referencing it is released.

# Conversion

NewSampleConverter and ConvertSamples implement the per-sample rules used by
hardware nodes and NewConverted:

	int16  -> float    s / 32768
	int24  -> float    s / 2^23
	int32  -> float    s / 2^31
	float  -> int16    clamp, round(x * 32767)
	float  -> int32    clamp, round(x * (2^31 - 1))
	int    -> int      shift by the difference in bit width
	same   -> same     byte copy

# Streams

Source and Sink are pull/push streams of interleaved float32 samples used by
the file codecs. Resampler changes the rate with cubic interpolation and
ChannelMixer changes the channel count.
*/
package audio
