package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-collections/collections/queue"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"fleet/order"
)

type Worker struct {
	Name   string
	Queue  queue.Queue
	Db     map[uuid.UUID]*order.WorkOrder
	Runner order.Runner
	// Capacity caps what the worker offers the fleet. Zero offers all of the
	// host's memory.
	Capacity float64
	Stats    *Stats

	mu sync.Mutex
}

func New(name string, runner order.Runner, capacity float64) *Worker {
	return &Worker{
		Name:     name,
		Queue:    *queue.New(),
		Db:       make(map[uuid.UUID]*order.WorkOrder),
		Runner:   runner,
		Capacity: capacity,
	}
}

// CollectStats refreshes the worker's stats every interval until ctx is done.
func (w *Worker) CollectStats(ctx context.Context, interval time.Duration) {
	for {
		w.Logln("Collecting stats")
		w.RefreshStats()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (w *Worker) RefreshStats() *Stats {
	stats := GetStats()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.fillCapacity(stats)
	w.Stats = stats
	return stats
}

// CurrentStats returns the last collected stats with capacity figures
// recomputed from the orders held right now.
func (w *Worker) CurrentStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	var stats Stats
	if w.Stats != nil {
		stats = *w.Stats
	}
	w.fillCapacity(&stats)
	return stats
}

func (w *Worker) fillCapacity(s *Stats) {
	s.Capacity = w.Capacity
	if s.Capacity <= 0 {
		s.Capacity = s.MemTotalGB()
	}

	s.CapacityUsed = 0
	s.OrderCount = 0
	for _, o := range w.Db {
		if o.State.Done() {
			continue
		}
		s.CapacityUsed += o.Allocation.Capacity()
		s.OrderCount++
	}
}

func (w *Worker) GetOrders() []*order.WorkOrder {
	w.mu.Lock()
	defer w.mu.Unlock()

	orders := []*order.WorkOrder{}
	for _, o := range w.Db {
		copied := *o
		orders = append(orders, &copied)
	}

	return orders
}

func (w *Worker) GetOrder(id uuid.UUID) (order.WorkOrder, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	o, ok := w.Db[id]
	if !ok {
		return order.WorkOrder{}, false
	}
	return *o, true
}

func (w *Worker) AddOrder(o order.WorkOrder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Queue.Enqueue(o)
}

func (w *Worker) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Queue.Len()
}

// RunOrder processes the next queued order, if any.
func (w *Worker) RunOrder() order.Result {

	w.mu.Lock()
	queued := w.Queue.Dequeue()
	w.mu.Unlock()
	if queued == nil {
		w.Logln("no order in the queue")
		return order.Result{}
	}

	orderQueued := queued.(order.WorkOrder)

	w.mu.Lock()
	orderPersisted := w.Db[orderQueued.ID]
	if orderPersisted == nil {
		persisted := orderQueued
		persisted.State = order.Pending
		w.Db[orderQueued.ID] = &persisted
		orderPersisted = &persisted
	}
	src := orderPersisted.State
	w.mu.Unlock()

	var result order.Result
	if order.ValidStateTransition(src, orderQueued.State) {
		switch orderQueued.State {
		case order.Scheduled:
			result = w.StartOrder(orderQueued)
		case order.Completed:
			result = w.StopOrder(orderQueued)
		default:
			result.Error = errors.Errorf("order %s cannot be queued in state %v", orderQueued.ID, orderQueued.State)
		}
	} else {
		result.Error = fmt.Errorf("invalid transition from %v to %v", src, orderQueued.State)
	}

	return result
}

func (w *Worker) StartOrder(o order.WorkOrder) order.Result {
	o.StartTime = time.Now().UTC()
	result := w.Runner.Start(&o)
	if result.Error != nil {
		w.Logln("error starting order %s: %s", o.ID, result.Error)
		o.State = order.Failed
		w.put(&o)
		return result
	}

	o.ContainerID = result.ContainerId
	o.State = order.Running
	w.put(&o)

	w.Logln("started %s x%d against %s", o.Allocation.Action, o.Allocation.Units, o.Allocation.Target)
	return result
}

func (w *Worker) StopOrder(o order.WorkOrder) order.Result {
	result := w.Runner.Stop(&o)
	if result.Error != nil {
		w.Logln("error stopping order %s: %s", o.ID, result.Error)
		return result
	}

	o.FinishTime = time.Now().UTC()
	o.State = order.Completed
	w.put(&o)

	w.Logln("stopped %s for %s", o.ContainerID, o.ID)
	return result
}

func (w *Worker) put(o *order.WorkOrder) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Db[o.ID] = o
}

func (w *Worker) RunOrders(ctx context.Context, interval time.Duration) {
	for {
		if w.QueueLen() != 0 {
			result := w.RunOrder()
			if result.Error != nil {
				w.Logln("Error running order: %v", result.Error)
			}
		} else {
			w.Logln("No orders to process currently.")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (w *Worker) UpdateOrders(ctx context.Context, interval time.Duration) {
	for {
		w.Logln("Checking status of orders")
		w.updateOrders()
		w.Logln("Order updates completed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (w *Worker) updateOrders() {
	for _, o := range w.GetOrders() {
		if o.State != order.Running {
			continue
		}

		status := w.Runner.Status(o)
		if status.Error != nil {
			w.Logln("Error: %v", status.Error)
			continue
		}
		if status.Running {
			continue
		}

		if status.ExitCode == 0 {
			o.State = order.Completed
		} else {
			w.Logln("Order %s exited with code %d", o.ID, status.ExitCode)
			o.State = order.Failed
		}
		o.FinishTime = time.Now().UTC()
		w.put(o)
	}
}

func (w *Worker) Logln(msg string, param ...any) string {

	s := "[worker " + w.Name + "] " + msg
	if len(param) >= 1 {
		s = fmt.Sprintf(s, param...)
	}

	log.WithField("component", "worker").Debug(s)

	return s
}
