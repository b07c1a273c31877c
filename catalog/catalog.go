// Package catalog reads the fleet's view of the world from a YAML file: the
// operator profile, the targets, the workers and the host graph.
package catalog

import (
	"context"
	"os"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"fleet/formulas"
	"fleet/node"
	"fleet/target"
	"fleet/topology"
)

// Worker describes one capacity-bearing host. Capacity and Used are sizes
// such as "64GiB" and are converted to GiB, the unit footprints use.
type Worker struct {
	Name     string `yaml:"name"`
	Api      string `yaml:"api,omitempty"`
	Capacity string `yaml:"capacity"`
	Used     string `yaml:"used,omitempty"`
	Cores    int    `yaml:"cores,omitempty"`
}

type Catalog struct {
	Profile     formulas.Profile    `yaml:"profile"`
	Footprints  target.Footprints   `yaml:"footprints"`
	Targets     []target.Target     `yaml:"targets"`
	Workers     []Worker            `yaml:"workers"`
	Links       map[string][]string `yaml:"links,omitempty"`
	Root        []string            `yaml:"root,omitempty"`
	Ports       map[string]int      `yaml:"ports,omitempty"`
	PortOpeners int                 `yaml:"portOpeners,omitempty"`
	// Capacities sizes hosts that are not workers yet. A host listed here
	// joins the fleet once the manager commissions it.
	Capacities map[string]string `yaml:"capacities,omitempty"`
}

// Parse decodes a catalog. Profile and footprint fields left out keep their
// defaults.
func Parse(data []byte) (*Catalog, error) {
	c := &Catalog{
		Profile:    formulas.DefaultProfile(),
		Footprints: target.DefaultFootprints(),
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "decoding catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// Validate reports every problem in the catalog at once.
func (c *Catalog) Validate() error {
	var result *multierror.Error

	if err := c.Profile.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.Footprints.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	seen := map[string]bool{}
	for i, t := range c.Targets {
		switch {
		case t.Name == "":
			result = multierror.Append(result, errors.Errorf("target %d has no name", i))
		case seen[t.Name]:
			result = multierror.Append(result, errors.Errorf("target %s listed twice", t.Name))
		}
		seen[t.Name] = true
		if t.Difficulty < 0 || t.MinDifficulty < 0 {
			result = multierror.Append(result, errors.Errorf("target %s: difficulty must not be negative", t.Name))
		}
		if t.AvailableYield < 0 || t.MaxYield < 0 {
			result = multierror.Append(result, errors.Errorf("target %s: yield must not be negative", t.Name))
		}
	}

	workers := map[string]bool{}
	for i, w := range c.Workers {
		switch {
		case w.Name == "":
			result = multierror.Append(result, errors.Errorf("worker %d has no name", i))
		case workers[w.Name]:
			result = multierror.Append(result, errors.Errorf("worker %s listed twice", w.Name))
		}
		workers[w.Name] = true
		if _, err := w.Node(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for name, size := range c.Capacities {
		if _, err := gib(size); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "host %s: capacity", name))
		}
	}

	return result.ErrorOrNil()
}

func gib(size string) (float64, error) {
	if size == "" {
		return 0, nil
	}
	b, err := units.RAMInBytes(size)
	if err != nil {
		return 0, err
	}
	return float64(b) / units.GiB, nil
}

// Node converts the entry into the scheduler's view of a worker.
func (w Worker) Node() (*node.Node, error) {
	capacity, err := gib(w.Capacity)
	if err != nil {
		return nil, errors.Wrapf(err, "worker %s: capacity", w.Name)
	}
	used, err := gib(w.Used)
	if err != nil {
		return nil, errors.Wrapf(err, "worker %s: used", w.Name)
	}

	n := node.New(w.Name, w.Api, "worker")
	n.Capacity = capacity
	n.CapacityUsed = used
	if w.Cores > 0 {
		n.Cores = w.Cores
	}
	return n, nil
}

func (c *Catalog) Nodes() ([]*node.Node, error) {
	nodes := make([]*node.Node, 0, len(c.Workers))
	for _, w := range c.Workers {
		n, err := w.Node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Graph builds the host graph. Every target and worker is a host; workers
// and hosts listed under root start rooted.
func (c *Catalog) Graph() *topology.StaticGraph {
	rooted := map[string]bool{}
	for _, name := range c.Root {
		rooted[name] = true
	}
	for _, w := range c.Workers {
		rooted[w.Name] = true
	}

	var hosts []topology.Host
	known := map[string]bool{}
	add := func(name string, level float64) {
		if known[name] {
			return
		}
		known[name] = true
		capacity, _ := gib(c.Capacities[name])
		hosts = append(hosts, topology.Host{
			Name:          name,
			RequiredLevel: level,
			PortsRequired: c.Ports[name],
			Rooted:        rooted[name],
			Capacity:      capacity,
		})
	}
	for _, t := range c.Targets {
		add(t.Name, t.RequiredLevel)
	}
	for _, w := range c.Workers {
		add(w.Name, 0)
	}
	for from, tos := range c.Links {
		add(from, 0)
		for _, to := range tos {
			add(to, 0)
		}
	}
	for name := range c.Capacities {
		add(name, 0)
	}

	return topology.NewStaticGraph(c.Links, hosts, c.PortOpeners)
}

// FileSource reads the catalog file afresh on every call, so each cycle
// sees the latest state.
type FileSource struct {
	Path string
}

var _ target.Source = FileSource{}

func (s FileSource) load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Load(s.Path)
}

func (s FileSource) Targets(ctx context.Context) ([]target.Target, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.Targets, nil
}

func (s FileSource) Profile(ctx context.Context) (formulas.Profile, error) {
	c, err := s.load(ctx)
	if err != nil {
		return formulas.Profile{}, err
	}
	return c.Profile, nil
}

func (s FileSource) Workers(ctx context.Context) ([]*node.Node, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.Nodes()
}

func (s FileSource) Footprints(ctx context.Context) (target.Footprints, error) {
	c, err := s.load(ctx)
	if err != nil {
		return target.Footprints{}, err
	}
	return c.Footprints, nil
}

func (s FileSource) Graph(ctx context.Context) (*topology.StaticGraph, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.Graph(), nil
}
