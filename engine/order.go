// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ik5/audroute/graph"
)

// CalculateProcessOrder sorts nodes so that every connection's source comes
// before its sink (Kahn's algorithm). Ties keep the order nodes were given
// in. A cycle is an error naming the nodes left on it.
func CalculateProcessOrder(nodes []graph.Node, conns []graph.Connection) ([]graph.Node, error) {
	index := make(map[graph.Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	indegree := make([]int, len(nodes))
	edges := make([][]int, len(nodes))
	for _, c := range conns {
		src, ok := index[c.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, c.Source.Name())
		}
		dst, ok := index[c.Sink]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, c.Sink.Name())
		}
		edges[src] = append(edges[src], dst)
		indegree[dst]++
	}

	// ready is kept sorted by index so the result is deterministic.
	var ready []int
	for i, d := range indegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]graph.Node, 0, len(nodes))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		order = append(order, nodes[i])
		for _, j := range edges[i] {
			indegree[j]--
			if indegree[j] == 0 {
				pos, _ := slices.BinarySearch(ready, j)
				ready = slices.Insert(ready, pos, j)
			}
		}
	}

	if len(order) != len(nodes) {
		var stuck []string
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, nodes[i].Name())
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}
