package manager

import (
	"context"
	"maps"
	"slices"

	"fleet/formulas"
	"fleet/node"
	"fleet/topology"
)

// commission roots every host the crawl reaches and returns the rooted hosts
// that have capacity but are not listed among workers. Hosts rooted in an
// earlier cycle stay rooted even though the graph is read afresh.
func (m *Manager) commission(ctx context.Context, p formulas.Profile, workers []*node.Node) []*node.Node {
	g, err := m.Source.Graph(ctx)
	if err != nil {
		m.logln("Skipping commissioning: %v", err)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.Commissioned {
		if err := g.Root(name); err != nil {
			m.logln("Forgetting commissioned host %s: %v", name, err)
			delete(m.Commissioned, name)
		}
	}

	for _, r := range topology.CommissionAll(g, g, m.Config.CommissionFrom, m.Config.CommissionDepth, p) {
		m.Metrics.commissions.WithLabelValues(r.Outcome.String()).Inc()
		if r.Outcome == topology.Succeeded {
			m.Commissioned[r.Host] = true
		}
	}

	listed := make(map[string]bool, len(workers))
	for _, n := range workers {
		listed[n.Name] = true
	}

	var joined []*node.Node
	for _, name := range slices.Sorted(maps.Keys(m.Commissioned)) {
		if listed[name] {
			continue
		}
		h, err := g.Host(name)
		if err != nil || h.Capacity <= 0 {
			continue
		}
		n := node.New(name, "", "worker")
		n.Capacity = h.Capacity
		joined = append(joined, n)
	}
	return joined
}
