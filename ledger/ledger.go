// Package ledger tracks how much capacity each worker has left during one
// allocation pass and records what has been committed to it.
//
// A Ledger is owned by the caller and lives for a single pass: allocations are
// only ever added, never retracted, and no worker is ever booked past its
// total capacity.
package ledger

import (
	"math"

	"github.com/pkg/errors"

	"fleet/node"
	"fleet/target"
)

// capacityEpsilon absorbs float error when dividing room by fractional
// footprints, so 7/1.75 packs 4 units and not 3.
const capacityEpsilon = 1e-9

// Allocation is a committed block of units bound to one worker.
type Allocation struct {
	Worker    string        `json:"worker"`
	Target    string        `json:"target"`
	Action    target.Action `json:"action"`
	Footprint float64       `json:"footprint"`
	Units     int           `json:"units"`
	Chance    float64       `json:"chance"`
}

// Capacity is the capacity the allocation occupies on its worker.
func (a Allocation) Capacity() float64 {
	return a.Footprint * float64(a.Units)
}

type entry struct {
	name        string
	total       float64
	consumed    float64
	allocations []Allocation
}

func (e *entry) room() float64 {
	return math.Max(e.total-e.consumed, 0)
}

type Ledger struct {
	workers []*entry
}

// New snapshots the capacity of workers in the order given. That order is the
// order Allocate fills them in.
func New(workers []*node.Node) *Ledger {
	l := &Ledger{workers: make([]*entry, 0, len(workers))}
	for _, w := range workers {
		if w == nil {
			continue
		}
		l.workers = append(l.workers, &entry{
			name:     w.Name,
			total:    w.Capacity,
			consumed: math.Min(math.Max(w.CapacityUsed, 0), math.Max(w.Capacity, 0)),
		})
	}
	return l
}

func fits(room, footprint float64) int {
	return int(math.Floor(room/footprint + capacityEpsilon))
}

// AvailableCapacity is how many units of footprint could still be packed
// across the whole fleet.
func (l *Ledger) AvailableCapacity(footprint float64) (int, error) {
	if !(footprint > 0) {
		return 0, errors.Wrapf(target.ErrInvalidFootprint, "footprint %v", footprint)
	}

	total := 0
	for _, w := range l.workers {
		total += fits(w.room(), footprint)
	}
	return total, nil
}

// Allocate places up to units units of action on workers, first fit in worker
// order. It returns how many units were placed; when the fleet is short it
// places what fits and reports the smaller number.
func (l *Ledger) Allocate(
	action target.Action, footprint float64, units int, targetName string, chance float64,
) (int, error) {
	if !(footprint > 0) {
		return 0, errors.Wrapf(target.ErrInvalidFootprint, "footprint %v", footprint)
	}

	placed := 0
	for _, w := range l.workers {
		if units <= 0 {
			break
		}

		n := fits(w.room(), footprint)
		if n > units {
			n = units
		}
		if n <= 0 {
			continue
		}

		a := Allocation{
			Worker:    w.name,
			Target:    targetName,
			Action:    action,
			Footprint: footprint,
			Units:     n,
			Chance:    chance,
		}
		w.allocations = append(w.allocations, a)
		w.consumed = math.Min(w.consumed+a.Capacity(), w.total)

		units -= n
		placed += n
	}

	return placed, nil
}

// Allocations flattens every committed allocation, worker by worker in the
// order the workers were supplied.
func (l *Ledger) Allocations() []Allocation {
	var out []Allocation
	for _, w := range l.workers {
		out = append(out, w.allocations...)
	}
	return out
}

// Free reports the remaining room on a named worker.
func (l *Ledger) Free(worker string) (float64, bool) {
	for _, w := range l.workers {
		if w.name == worker {
			return w.room(), true
		}
	}
	return 0, false
}
