// SPDX-License-Identifier: EPL-2.0

//go:build !portaudio

package hw

func init() {
	Register("portaudio", func() Manager { return &unavailable{} })
}

// unavailable stands in for a backend left out of the build.
type unavailable struct {
	core
}

func (u *unavailable) LoadDriver(string) error { return ErrDriverUnavailable }
func (u *unavailable) Start() error            { return ErrDriverUnavailable }
func (u *unavailable) Stop() error             { return nil }
func (u *unavailable) Close() error            { return nil }
