package node

import "math"

// Node is a capacity-bearing host that runs committed units of work.
// Capacity and CapacityUsed share the unit footprints are expressed in.
type Node struct {
	Name         string  `json:"name" yaml:"name"`
	Api          string  `json:"api" yaml:"api"`
	Cores        int     `json:"cores" yaml:"cores"`
	Capacity     float64 `json:"capacity" yaml:"capacity"`
	CapacityUsed float64 `json:"capacityUsed" yaml:"capacityUsed"`
	Role         string  `json:"role" yaml:"role"`
	OrderCount   int     `json:"orderCount" yaml:"orderCount"`
}

func New(worker, address, role string) *Node {
	return &Node{
		Name:  worker,
		Api:   address,
		Role:  role,
		Cores: 1,
	}
}

// Free is the capacity not yet consumed. It is never negative.
func (n *Node) Free() float64 {
	return math.Max(n.Capacity-n.CapacityUsed, 0)
}
