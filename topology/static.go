package topology

import (
	"sync"

	"github.com/pkg/errors"
)

// StaticGraph is a host graph held in memory, as described by a catalog.
type StaticGraph struct {
	mu      sync.RWMutex
	links   map[string][]string
	hosts   map[string]Host
	openers int
}

// NewStaticGraph builds an undirected graph from links.
func NewStaticGraph(links map[string][]string, hosts []Host, openers int) *StaticGraph {
	g := &StaticGraph{
		links:   make(map[string][]string),
		hosts:   make(map[string]Host),
		openers: openers,
	}
	for from, tos := range links {
		for _, to := range tos {
			g.link(from, to)
		}
	}
	for _, h := range hosts {
		g.hosts[h.Name] = h
	}
	return g
}

func (g *StaticGraph) link(a, b string) {
	if a == b {
		return
	}
	for _, n := range g.links[a] {
		if n == b {
			return
		}
	}
	g.links[a] = append(g.links[a], b)
	g.links[b] = append(g.links[b], a)
}

func (g *StaticGraph) Adjacent(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.links[name]...)
}

func (g *StaticGraph) HasRootAccess(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hosts[name].Rooted
}

func (g *StaticGraph) Host(name string) (Host, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.hosts[name]
	if !ok {
		return Host{}, errors.Errorf("unknown host %s", name)
	}
	return h, nil
}

func (g *StaticGraph) PortOpeners() int {
	return g.openers
}

func (g *StaticGraph) Root(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hosts[name]
	if !ok {
		return errors.Errorf("unknown host %s", name)
	}
	h.Rooted = true
	g.hosts[name] = h
	return nil
}
