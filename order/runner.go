package order

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Runner starts, stops and observes the process behind a work order.
type Runner interface {
	Start(o *WorkOrder) Result
	Stop(o *WorkOrder) Result
	Status(o *WorkOrder) Status
}

type Status struct {
	Error    error
	Running  bool
	ExitCode int
}

var _ Runner = &DockerRunner{}

// DockerRunner runs each order in a container sized to its allocation.
type DockerRunner struct {
	Images Images
}

func (r *DockerRunner) Start(o *WorkOrder) Result {
	d, err := NewDocker(NewConfig(o, r.Images))
	if err != nil {
		return Result{Error: err}
	}
	defer d.Client.Close()
	return d.Run()
}

func (r *DockerRunner) Stop(o *WorkOrder) Result {
	d, err := NewDocker(NewConfig(o, r.Images))
	if err != nil {
		return Result{Error: err}
	}
	defer d.Client.Close()
	return d.Stop(o.ContainerID)
}

func (r *DockerRunner) Status(o *WorkOrder) Status {
	d, err := NewDocker(NewConfig(o, r.Images))
	if err != nil {
		return Status{Error: err}
	}
	defer d.Client.Close()

	resp := d.Inspect(o.ContainerID)
	if resp.Error != nil {
		return Status{Error: resp.Error}
	}
	if resp.Container == nil || resp.Container.State == nil {
		return Status{Error: errors.Errorf("no container for order %s", o.ID)}
	}

	state := resp.Container.State
	return Status{Running: state.Running, ExitCode: state.ExitCode}
}

var _ Runner = &SimRunner{}

// SimRunner pretends every order finishes successfully as soon as it is
// observed. It backs `fleet worker --runtime sim` and the tests.
type SimRunner struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (r *SimRunner) Start(o *WorkOrder) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, o.ID.String())
	return Result{ContainerId: fmt.Sprintf("sim-%s", o.ID), Action: "start", Result: "success"}
}

func (r *SimRunner) Stop(o *WorkOrder) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, o.ID.String())
	return Result{Action: "stop", Result: "success"}
}

func (r *SimRunner) Status(*WorkOrder) Status {
	return Status{Running: false, ExitCode: 0}
}

func (r *SimRunner) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func (r *SimRunner) Stopped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stopped...)
}
