package order

import (
	"fmt"
	"strconv"

	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"fleet/target"
)

// Images maps every action to the container image that performs it.
type Images map[target.Action]string

func DefaultImages() Images {
	return Images{
		target.Extract:   "fleet/extract:latest",
		target.Replenish: "fleet/replenish:latest",
		target.Stabilize: "fleet/stabilize:latest",
	}
}

// Config describes the container a work order runs in.
type Config struct {
	Name          string
	Image         string
	Env           []string
	Cmd           []string
	Memory        int64
	Cpu           float64
	ExposedPorts  nat.PortSet
	RestartPolicy string
}

// NewConfig sizes the container to the capacity the order was allocated.
// Capacity is counted in GiB.
func NewConfig(o *WorkOrder, images Images) Config {
	a := o.Allocation
	return Config{
		Name:  fmt.Sprintf("fleet-%s-%s-%s", a.Action, a.Target, o.ID.String()[:8]),
		Image: images[a.Action],
		Env: []string{
			"FLEET_ORDER=" + o.ID.String(),
			"FLEET_TARGET=" + a.Target,
			"FLEET_ACTION=" + a.Action.String(),
			"FLEET_UNITS=" + strconv.Itoa(a.Units),
		},
		Cmd:           []string{a.Action.String(), a.Target},
		Memory:        int64(a.Capacity() * units.GiB),
		RestartPolicy: "no",
		ExposedPorts:  nat.PortSet{},
	}
}

// MemoryString is the container's memory limit in human form, e.g. "5.1GiB".
func (c Config) MemoryString() string {
	return units.BytesSize(float64(c.Memory))
}
