package index

import (
	"cmp"
	"math/rand"
	"slices"

	"github.com/ObiAU/newsrag/internal/ai"
)

const (
	maxLevel       = 16
	maxConns       = 16 // per layer above 0
	maxConns0      = 32
	efConstruction = 40
	efSearch       = 50
)

type node struct {
	level     int
	neighbors [][]int // [level][neighbors]
}

type neighbor struct {
	id   int
	dist float64
}

func byDistance(a, b neighbor) int {
	if c := cmp.Compare(a.dist, b.dist); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// hnsw is an in-memory navigable small world graph over cosine distance.
// Node ids are positions in vecs. It is built once and then only read.
type hnsw struct {
	vecs         [][]float32
	nodes        []*node
	entryPoint   int
	currentLevel int
	rng          *rand.Rand
}

func newHNSW(seed int64) *hnsw {
	return &hnsw{
		currentLevel: -1,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

func (h *hnsw) len() int {
	return len(h.nodes)
}

func (h *hnsw) add(vec []float32) int {
	id := len(h.nodes)
	level := h.randomLevel()
	n := &node{level: level, neighbors: make([][]int, level+1)}
	h.vecs = append(h.vecs, vec)
	h.nodes = append(h.nodes, n)

	if h.currentLevel == -1 {
		h.entryPoint = id
		h.currentLevel = level
		return id
	}

	ep := h.entryPoint
	for l := h.currentLevel; l > level; l-- {
		ep = h.greedy(vec, ep, l)
	}

	for l := min(level, h.currentLevel); l >= 0; l-- {
		nearest := h.searchLayer(vec, ep, efConstruction, l)

		m := maxConns
		if l == 0 {
			m = maxConns0
		}
		if len(nearest) > m {
			nearest = nearest[:m]
		}

		for _, nb := range nearest {
			n.neighbors[l] = append(n.neighbors[l], nb.id)
			h.connect(nb.id, id, l, m)
		}
		if len(nearest) > 0 {
			ep = nearest[0].id
		}
	}

	if level > h.currentLevel {
		h.entryPoint = id
		h.currentLevel = level
	}
	return id
}

// connect links from to to at level l, pruning from's list back to the m
// closest when it grows too large.
func (h *hnsw) connect(from, to, l, m int) {
	n := h.nodes[from]
	n.neighbors[l] = append(n.neighbors[l], to)
	if len(n.neighbors[l]) <= m {
		return
	}

	ranked := make([]neighbor, 0, len(n.neighbors[l]))
	for _, id := range n.neighbors[l] {
		ranked = append(ranked, neighbor{id: id, dist: h.distance(h.vecs[from], id)})
	}
	slices.SortFunc(ranked, byDistance)

	kept := make([]int, 0, m)
	for _, nb := range ranked[:m] {
		kept = append(kept, nb.id)
	}
	n.neighbors[l] = kept
}

// search returns up to k neighbours of query, nearest first. Small graphs
// are scanned exhaustively.
func (h *hnsw) search(query []float32, k int) []neighbor {
	if h.currentLevel == -1 || k <= 0 {
		return nil
	}

	var found []neighbor
	if len(h.nodes) <= efSearch {
		found = make([]neighbor, 0, len(h.nodes))
		for id := range h.nodes {
			found = append(found, neighbor{id: id, dist: h.distance(query, id)})
		}
		slices.SortFunc(found, byDistance)
	} else {
		ep := h.entryPoint
		for l := h.currentLevel; l > 0; l-- {
			ep = h.greedy(query, ep, l)
		}
		found = h.searchLayer(query, ep, max(efSearch, k), 0)
	}

	if len(found) > k {
		found = found[:k]
	}
	return found
}

// greedy walks level l towards the single node nearest to query.
func (h *hnsw) greedy(query []float32, ep, l int) int {
	curr := ep
	currDist := h.distance(query, curr)

	for changed := true; changed; {
		changed = false
		for _, id := range h.nodes[curr].neighbors[l] {
			if d := h.distance(query, id); d < currDist {
				currDist = d
				curr = id
				changed = true
			}
		}
	}
	return curr
}

// searchLayer is a best-first search at level l keeping the ef closest
// nodes seen.
func (h *hnsw) searchLayer(query []float32, ep, ef, l int) []neighbor {
	start := neighbor{id: ep, dist: h.distance(query, ep)}
	visited := map[int]bool{ep: true}
	candidates := []neighbor{start}
	results := []neighbor{start}

	for len(candidates) > 0 {
		c := candidates[0]
		candidates = candidates[1:]

		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			break
		}

		for _, id := range h.nodes[c.id].neighbors[l] {
			if visited[id] {
				continue
			}
			visited[id] = true

			d := h.distance(query, id)
			if len(results) < ef || d < results[len(results)-1].dist {
				nb := neighbor{id: id, dist: d}
				candidates = append(candidates, nb)
				results = append(results, nb)

				slices.SortFunc(results, byDistance)
				if len(results) > ef {
					results = results[:ef]
				}
				slices.SortFunc(candidates, byDistance)
			}
		}
	}
	return results
}

func (h *hnsw) distance(query []float32, id int) float64 {
	return ai.CosineDistance(query, h.vecs[id])
}

func (h *hnsw) randomLevel() int {
	lvl := 0
	for h.rng.Float64() < 0.5 && lvl < maxLevel {
		lvl++
	}
	return lvl
}
