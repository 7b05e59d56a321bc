// SPDX-License-Identifier: EPL-2.0

package graph

import "fmt"

// Connection is a directed edge from an output pad to an input pad. It
// does not own either node.
type Connection struct {
	Source    Node
	SourcePad int
	Sink      Node
	SinkPad   int
}

// Validate checks both pads exist.
func (c Connection) Validate() error {
	if c.Source == nil || c.Sink == nil {
		return fmt.Errorf("%w: connection without node", ErrInvalidPad)
	}
	if c.SourcePad < 0 || c.SourcePad >= c.Source.Outputs() {
		return fmt.Errorf("%w: %s has no output %d", ErrInvalidPad, c.Source.Name(), c.SourcePad)
	}
	if c.SinkPad < 0 || c.SinkPad >= c.Sink.Inputs() {
		return fmt.Errorf("%w: %s has no input %d", ErrInvalidPad, c.Sink.Name(), c.SinkPad)
	}
	return nil
}

func (c Connection) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d", c.Source.Name(), c.SourcePad, c.Sink.Name(), c.SinkPad)
}
