// SPDX-License-Identifier: EPL-2.0

// Package formats wires every codec package into an audio.Registry and
// maps file names to format keys.
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ik5/audroute/audio"
	"github.com/ik5/audroute/formats/aiff"
	"github.com/ik5/audroute/formats/flac"
	"github.com/ik5/audroute/formats/mp3"
	"github.com/ik5/audroute/formats/vorbis"
	"github.com/ik5/audroute/formats/wav"
)

const (
	WAV    = "wav"
	AIFF   = "aiff"
	MP3    = "mp3"
	Vorbis = "ogg vorbis"
	FLAC   = "flac"
)

var ErrUnknownFormat = errors.New("unknown audio format")

var extensions = map[string]string{
	".wav":  WAV,
	".wave": WAV,
	".aif":  AIFF,
	".aiff": AIFF,
	".mp3":  MP3,
	".ogg":  Vorbis,
	".oga":  Vorbis,
	".flac": FLAC,
}

// aliases accepts the short names used in node parameters.
var aliases = map[string]string{
	"ogg":    Vorbis,
	"vorbis": Vorbis,
	"aif":    AIFF,
	"wave":   WAV,
}

// NewRegistry returns a registry with every built-in decoder and the WAV
// encoder.
func NewRegistry() *audio.Registry {
	r := audio.NewRegistry()
	r.Register(WAV, wav.Decoder{})
	r.Register(AIFF, aiff.Decoder{})
	r.Register(MP3, mp3.Decoder{})
	r.Register(Vorbis, vorbis.Decoder{})
	r.Register(FLAC, flac.Decoder{})
	r.RegisterEncoder(WAV, wav.Encoder{})
	return r
}

// Resolve picks the format key for a node: an explicit name wins over the
// file extension.
func Resolve(name, path string) (string, error) {
	if name != "" {
		name = strings.ToLower(name)
		if key, ok := aliases[name]; ok {
			return key, nil
		}
		return name, nil
	}
	if key, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
