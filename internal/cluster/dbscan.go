package cluster

import (
	"github.com/ObiAU/newsrag/internal/ai"
	"github.com/ObiAU/newsrag/internal/models"
)

const unvisited = -2

// DBSCAN labels each vector with a cluster id (0, 1, ...) in discovery
// order, or models.NoiseTopic. A point is core when its eps neighbourhood,
// itself included, holds at least minPts points. Border points join the
// first cluster that reaches them.
func DBSCAN(vectors [][]float32, eps float64, minPts int) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	if n == 0 {
		return labels
	}
	if minPts < 1 {
		minPts = 1
	}

	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbours[i] = append(neighbours[i], i)
		for j := i + 1; j < n; j++ {
			if ai.CosineDistance(vectors[i], vectors[j]) <= eps {
				neighbours[i] = append(neighbours[i], j)
				neighbours[j] = append(neighbours[j], i)
			}
		}
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		if len(neighbours[i]) < minPts {
			labels[i] = models.NoiseTopic
			continue
		}

		id := next
		next++
		labels[i] = id

		queue := append([]int(nil), neighbours[i]...)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]

			if labels[p] == models.NoiseTopic {
				// noise reached from a core point becomes a border point
				labels[p] = id
			}
			if labels[p] != unvisited {
				continue
			}
			labels[p] = id
			if len(neighbours[p]) >= minPts {
				queue = append(queue, neighbours[p]...)
			}
		}
	}
	return labels
}
