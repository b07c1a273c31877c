package topology

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"fleet/formulas"
)

type Outcome int

const (
	Skipped Outcome = iota
	Failed
	Succeeded
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result says what commissioning one host did and why.
type Result struct {
	Host    string
	Outcome Outcome
	Reason  string
}

// Host is what commissioning needs to know about a host.
type Host struct {
	Name          string
	RequiredLevel float64
	PortsRequired int
	Rooted        bool
	// Capacity is what the host can contribute once rooted, in GiB.
	Capacity float64
}

// Commissioner inspects hosts and acquires root on them.
type Commissioner interface {
	Host(name string) (Host, error)
	PortOpeners() int
	Root(name string) error
}

// Commission tries to take control of name. Hosts already rooted, beyond the
// profile's capability or needing more ports than can be opened are skipped.
func Commission(c Commissioner, name string, p formulas.Profile) Result {
	h, err := c.Host(name)
	if err != nil {
		return Result{Host: name, Outcome: Failed, Reason: errors.Wrap(err, "inspecting host").Error()}
	}

	switch {
	case h.Rooted:
		return Result{Host: name, Outcome: Skipped, Reason: "already rooted"}
	case h.RequiredLevel > p.Capability:
		return Result{Host: name, Outcome: Skipped,
			Reason: fmt.Sprintf("capability %.0f below required %.0f", p.Capability, h.RequiredLevel)}
	case h.PortsRequired > c.PortOpeners():
		return Result{Host: name, Outcome: Skipped,
			Reason: fmt.Sprintf("needs %d open ports, can open %d", h.PortsRequired, c.PortOpeners())}
	}

	if err := c.Root(name); err != nil {
		return Result{Host: name, Outcome: Failed, Reason: err.Error()}
	}
	return Result{Host: name, Outcome: Succeeded}
}

// CommissionAll crawls from host for hosts without root access and commissions
// each of them in name order.
func CommissionAll(g Graph, c Commissioner, host string, maxDepth int, p formulas.Profile) []Result {
	unrooted, _ := NewFilter(Rooted(false))

	var results []Result
	for _, name := range Crawl(g, host, maxDepth, unrooted) {
		r := Commission(c, name, p)
		log.WithFields(log.Fields{
			"component": "topology",
			"host":      r.Host,
			"outcome":   r.Outcome,
		}).Info(r.Reason)
		results = append(results, r)
	}
	return results
}
