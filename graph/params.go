// SPDX-License-Identifier: EPL-2.0

package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Params are the textual key/value settings of one node.
type Params map[string]string

func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	return strings.TrimSpace(v), ok
}

func (p Params) Required(key string) (string, error) {
	v, ok := p.Get(key)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingParam, key)
	}
	return v, nil
}

func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidParam, key, v)
	}
	return b, nil
}

func (p Params) Int(key string, def int) (int, error) {
	v, ok := p.Get(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q", ErrInvalidParam, key, v)
	}
	return n, nil
}

// List splits a comma separated value, dropping empty items.
func (p Params) List(key string) []string {
	v, _ := p.Get(key)
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Ints parses a comma separated list of non-negative integers.
func (p Params) Ints(key string) ([]int, error) {
	items := p.List(key)
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s item %q", ErrInvalidParam, key, item)
		}
		out = append(out, n)
	}
	return out, nil
}

// Path returns a required file path with a leading ~ expanded.
func (p Params) Path(key string) (string, error) {
	v, err := p.Required(key)
	if err != nil {
		return "", err
	}
	path, err := homedir.Expand(v)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidParam, key, err)
	}
	return path, nil
}
