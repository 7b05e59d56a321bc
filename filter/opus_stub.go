// SPDX-License-Identifier: EPL-2.0

//go:build !opus

package filter

func init() {
	register("opus", "bitrate", func(float64, int) (Filter, error) {
		return nil, ErrUnsupported
	})
}
