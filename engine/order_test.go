// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"
	"slices"
	"testing"

	"github.com/ik5/audroute/graph"
)

func procs(names ...string) map[string]graph.Node {
	m := make(map[string]graph.Node, len(names))
	for _, name := range names {
		m[name] = graph.NewProcessor(name)
	}
	return m
}

func names(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func TestCalculateProcessOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		nodes   []string
		edges   [][2]string
		want    []string
		wantErr error
	}{
		{
			name:  "no edges keeps input order",
			nodes: []string{"c", "a", "b"},
			want:  []string{"c", "a", "b"},
		},
		{
			name:  "processor chain given backwards",
			nodes: []string{"p3", "p2", "p1", "src"},
			edges: [][2]string{{"src", "p1"}, {"p1", "p2"}, {"p2", "p3"}},
			want:  []string{"src", "p1", "p2", "p3"},
		},
		{
			name:  "diamond",
			nodes: []string{"out", "left", "right", "in"},
			edges: [][2]string{{"in", "left"}, {"in", "right"}, {"left", "out"}, {"right", "out"}},
			want:  []string{"in", "left", "right", "out"},
		},
		{
			name:  "two independent chains",
			nodes: []string{"b2", "a2", "b1", "a1"},
			edges: [][2]string{{"a1", "a2"}, {"b1", "b2"}},
			want:  []string{"b1", "b2", "a1", "a2"},
		},
		{
			name:    "cycle",
			nodes:   []string{"src", "x", "y"},
			edges:   [][2]string{{"src", "x"}, {"x", "y"}, {"y", "x"}},
			wantErr: ErrCycle,
		},
		{
			name:    "self loop",
			nodes:   []string{"x"},
			edges:   [][2]string{{"x", "x"}},
			wantErr: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			byName := procs(tt.nodes...)
			nodes := make([]graph.Node, len(tt.nodes))
			for i, name := range tt.nodes {
				nodes[i] = byName[name]
			}
			var conns []graph.Connection
			for _, e := range tt.edges {
				conns = append(conns, graph.Connection{Source: byName[e[0]], Sink: byName[e[1]]})
			}

			order, err := CalculateProcessOrder(nodes, conns)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CalculateProcessOrder() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := names(order); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}

			pos := map[graph.Node]int{}
			for i, n := range order {
				pos[n] = i
			}
			for _, c := range conns {
				if pos[c.Source] >= pos[c.Sink] {
					t.Errorf("%v: source after sink", c)
				}
			}
		})
	}
}

func TestCalculateProcessOrder_UnknownNode(t *testing.T) {
	t.Parallel()

	in := procs("a", "stray")
	conns := []graph.Connection{{Source: in["a"], Sink: in["stray"]}}
	if _, err := CalculateProcessOrder([]graph.Node{in["a"]}, conns); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("error = %v, want ErrUnknownNode", err)
	}
}
