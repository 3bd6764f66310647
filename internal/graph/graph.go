// Package graph holds the per-request road graph: nodes live in a dense
// slice and edges are adjacency lists of node indices.
package graph

import (
	"math"

	"github.com/potholeops/backend/internal/geo"
	"github.com/potholeops/backend/internal/roadinfo"
)

type Node struct {
	ID  int     `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (n Node) Point() geo.Point {
	return geo.Point{Lat: n.Lat, Lon: n.Lon}
}

type Edge struct {
	To     int
	Weight float64
}

type Graph struct {
	Nodes []Node
	Adj   [][]Edge

	index map[geo.Point]int
}

func New() *Graph {
	return &Graph{index: map[geo.Point]int{}}
}

// FromWays inserts a node per unique point and a bidirectional edge per
// consecutive point pair of every way.
func FromWays(ways []roadinfo.Way) *Graph {
	g := New()
	for _, w := range ways {
		g.AddWay(w.Geometry)
	}
	return g
}

func (g *Graph) Len() int {
	return len(g.Nodes)
}

func (g *Graph) EdgeCount() int {
	n := 0
	for _, adj := range g.Adj {
		n += len(adj)
	}
	return n / 2
}

// AddNode returns the index of the node at p, creating it if needed.
func (g *Graph) AddNode(p geo.Point) int {
	if g.index == nil {
		g.index = map[geo.Point]int{}
	}
	if id, ok := g.index[p]; ok {
		return id
	}
	id := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ID: id, Lat: p.Lat, Lon: p.Lon})
	g.Adj = append(g.Adj, nil)
	g.index[p] = id
	return id
}

func (g *Graph) AddWay(points []geo.Point) {
	prev := -1
	for _, p := range points {
		id := g.AddNode(p)
		if prev >= 0 {
			g.AddEdge(prev, id)
		}
		prev = id
	}
}

// AddEdge connects a and b weighted by their haversine distance.
func (g *Graph) AddEdge(a, b int) {
	g.AddEdgeWeighted(a, b, geo.Distance(g.Nodes[a].Point(), g.Nodes[b].Point()))
}

// AddEdgeWeighted adds an undirected edge. Self loops are ignored; a
// repeated pair keeps the lighter weight.
func (g *Graph) AddEdgeWeighted(a, b int, w float64) {
	if a == b {
		return
	}
	if !g.setLighter(a, b, w) {
		g.Adj[a] = append(g.Adj[a], Edge{To: b, Weight: w})
	}
	if !g.setLighter(b, a, w) {
		g.Adj[b] = append(g.Adj[b], Edge{To: a, Weight: w})
	}
}

func (g *Graph) setLighter(from, to int, w float64) bool {
	for i, e := range g.Adj[from] {
		if e.To == to {
			if w < e.Weight {
				g.Adj[from][i].Weight = w
			}
			return true
		}
	}
	return false
}

func (g *Graph) Weight(a, b int) (float64, bool) {
	if !g.has(a) || !g.has(b) {
		return 0, false
	}
	for _, e := range g.Adj[a] {
		if e.To == b {
			return e.Weight, true
		}
	}
	return 0, false
}

// NearestNode scans all nodes; ties go to the lowest index.
func (g *Graph) NearestNode(p geo.Point) (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for _, n := range g.Nodes {
		if d := geo.Distance(p, n.Point()); d < bestDist {
			bestDist = d
			best = n.ID
		}
	}
	return best, best >= 0
}

func (g *Graph) Points(ids []int) []geo.Point {
	out := make([]geo.Point, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.Nodes[id].Point())
	}
	return out
}

func (g *Graph) has(id int) bool {
	return id >= 0 && id < len(g.Nodes)
}
