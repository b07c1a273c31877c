// Package topology walks the host graph and brings reachable hosts under
// control so they can join the fleet.
package topology

import (
	"sort"

	"github.com/golang-collections/collections/queue"
)

// Graph answers adjacency and access questions about hosts.
type Graph interface {
	Adjacent(name string) []string
	HasRootAccess(name string) bool
}

type hop struct {
	name  string
	depth int
}

// Crawl lists host and every host within maxDepth hops of it that passes f,
// sorted by name.
func Crawl(g Graph, host string, maxDepth int, f Filter) []string {
	seen := map[string]bool{host: true}
	found := []string{host}

	frontier := queue.New()
	frontier.Enqueue(hop{name: host})
	for frontier.Len() > 0 {
		cur := frontier.Dequeue().(hop)
		if cur.depth >= maxDepth {
			continue
		}
		for _, next := range g.Adjacent(cur.name) {
			if seen[next] {
				continue
			}
			seen[next] = true
			found = append(found, next)
			frontier.Enqueue(hop{name: next, depth: cur.depth + 1})
		}
	}
	sort.Strings(found)

	kept := found[:0]
	for _, name := range found {
		if f.keep(g, name) {
			kept = append(kept, name)
		}
	}
	return kept
}
