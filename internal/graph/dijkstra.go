package graph

import (
	"container/heap"
	"fmt"

	"github.com/potholeops/backend/internal/apperr"
)

type Path struct {
	Nodes    []int   `json:"nodes"`
	Distance float64 `json:"distance_m"`
}

type frontierItem struct {
	node int
	dist float64
}

type frontier []frontierItem

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].dist == f[j].dist {
		return f[i].node < f[j].node
	}
	return f[i].dist < f[j].dist
}
func (f frontier) Swap(i, j int)  { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)    { *f = append(*f, x.(frontierItem)) }
func (f *frontier) Pop() any {
	old := *f
	item := old[len(old)-1]
	*f = old[:len(old)-1]
	return item
}

// ShortestPath runs Dijkstra from start and stops once end is settled.
// The returned distance is recomputed from the graph along the path.
func ShortestPath(g *Graph, start, end int) (Path, error) {
	if !g.has(start) {
		return Path{}, apperr.Invalid("start", start, "node not in graph")
	}
	if !g.has(end) {
		return Path{}, apperr.Invalid("end", end, "node not in graph")
	}
	if start == end {
		return Path{Nodes: []int{start}, Distance: 0}, nil
	}

	n := g.Len()
	dist := make([]float64, n)
	prev := make([]int, n)
	settled := make([]bool, n)
	for i := range dist {
		dist[i] = -1
		prev[i] = -1
	}
	dist[start] = 0

	pq := &frontier{{node: start, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(frontierItem)
		if settled[cur.node] {
			continue
		}
		settled[cur.node] = true
		if cur.node == end {
			break
		}
		for _, e := range g.Adj[cur.node] {
			if settled[e.To] {
				continue
			}
			alt := cur.dist + e.Weight
			if dist[e.To] < 0 || alt < dist[e.To] {
				dist[e.To] = alt
				prev[e.To] = cur.node
				heap.Push(pq, frontierItem{node: e.To, dist: alt})
			}
		}
	}
	if !settled[end] {
		return Path{}, apperr.ErrNoPath
	}

	var nodes []int
	for at := end; at != -1; at = prev[at] {
		nodes = append(nodes, at)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	total, err := PathDistance(g, nodes)
	if err != nil {
		return Path{}, err
	}
	return Path{Nodes: nodes, Distance: total}, nil
}

// PathDistance sums edge weights along ids; every consecutive pair must be
// joined by an edge.
func PathDistance(g *Graph, ids []int) (float64, error) {
	total := 0.0
	for i := 1; i < len(ids); i++ {
		w, ok := g.Weight(ids[i-1], ids[i])
		if !ok {
			return 0, fmt.Errorf("no edge between nodes %d and %d", ids[i-1], ids[i])
		}
		total += w
	}
	return total, nil
}
