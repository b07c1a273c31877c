// Package manager runs scheduling cycles: it reads the catalog, asks the
// scheduler for allocations and hands the resulting work orders to the
// worker agents.
package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-collections/collections/queue"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"fleet/catalog"
	"fleet/formulas"
	"fleet/ledger"
	"fleet/node"
	"fleet/order"
	"fleet/scheduler"
	"fleet/store"
	"fleet/target"
	"fleet/topology"
	"fleet/worker"
)

// Source is read afresh at the start of every cycle.
type Source interface {
	target.Source
	Profile(ctx context.Context) (formulas.Profile, error)
	Footprints(ctx context.Context) (target.Footprints, error)
	Workers(ctx context.Context) ([]*node.Node, error)
	Graph(ctx context.Context) (*topology.StaticGraph, error)
}

var _ Source = catalog.FileSource{}

type Config struct {
	// Strategy names the scheduler; see scheduler.New.
	Strategy string
	// StoreType is "memory" or "persistent".
	StoreType string
	// DataDir holds the bbolt files of a persistent store.
	DataDir string
	// Cores is the core count growth projections assume.
	Cores int
	// Commission makes every cycle first root what it can reach from
	// CommissionFrom within CommissionDepth hops.
	Commission      bool
	CommissionFrom  string
	CommissionDepth int
}

// CycleReport records what one cycle decided.
type CycleReport struct {
	ID            uuid.UUID             `json:"id"`
	Time          time.Time             `json:"time"`
	Strategy      string                `json:"strategy"`
	Candidates    []scheduler.Candidate `json:"candidates"`
	Allocations   []ledger.Allocation   `json:"allocations"`
	Orders        []uuid.UUID           `json:"orders"`
	ProjectedRate float64               `json:"projectedRate"`
	Free          map[string]float64    `json:"free"`
}

type Manager struct {
	Pending        queue.Queue
	Source         Source
	Config         Config
	CycleDb        store.Store[*CycleReport]
	OrderDb        store.Store[*order.WorkOrder]
	EventDb        store.Store[*order.OrderEvent]
	WorkerNodes    map[string]*node.Node
	OrderWorkerMap map[uuid.UUID]string
	Commissioned   map[string]bool
	Metrics        *Metrics
	Client         *http.Client

	mu sync.Mutex
}

func New(source Source, c Config) (*Manager, error) {
	if c.Cores < 1 {
		c.Cores = 1
	}
	if c.CommissionFrom == "" {
		c.CommissionFrom = "home"
	}
	if c.CommissionDepth < 1 {
		c.CommissionDepth = 3
	}
	if _, err := scheduler.New(c.Strategy, scheduler.Config{Footprints: target.DefaultFootprints(), Cores: c.Cores}); err != nil {
		return nil, err
	}

	m := &Manager{
		Pending:        *queue.New(),
		Source:         source,
		Config:         c,
		WorkerNodes:    make(map[string]*node.Node),
		OrderWorkerMap: make(map[uuid.UUID]string),
		Commissioned:   make(map[string]bool),
		Metrics:        NewMetrics(),
		Client:         &http.Client{Timeout: 10 * time.Second},
	}

	var err error
	if m.CycleDb, err = store.New[*CycleReport](c.StoreType, filepath.Join(c.DataDir, "cycles.db"), "cycles"); err != nil {
		return nil, errors.Wrap(err, "opening cycle store")
	}
	if m.OrderDb, err = store.New[*order.WorkOrder](c.StoreType, filepath.Join(c.DataDir, "orders.db"), "orders"); err != nil {
		return nil, errors.Wrap(err, "opening order store")
	}
	if m.EventDb, err = store.New[*order.OrderEvent](c.StoreType, filepath.Join(c.DataDir, "events.db"), "events"); err != nil {
		return nil, errors.Wrap(err, "opening event store")
	}

	return m, nil
}

// Close releases the stores that hold files open.
func (m *Manager) Close() error {
	var result *multierror.Error
	for _, db := range []any{m.CycleDb, m.OrderDb, m.EventDb} {
		if c, ok := db.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// refreshNodes asks every worker with an agent for its capacity. Workers
// whose agent cannot be reached sit the cycle out.
func (m *Manager) refreshNodes(nodes []*node.Node) []*node.Node {
	live := make([]*node.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Api != "" {
			if _, err := node.GetStats(n); err != nil {
				m.logln("Skipping worker %s: %v", n.Name, err)
				continue
			}
		}
		live = append(live, n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerNodes = make(map[string]*node.Node, len(live))
	for _, n := range live {
		m.WorkerNodes[n.Name] = n
	}
	return live
}

// RunCycle performs one full scheduling pass and queues the orders it emits.
func (m *Manager) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	done := m.Metrics.timeCycle()
	defer func() {
		done()
		m.Metrics.observeCycle(report, err)
	}()

	p, err := m.Source.Profile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading profile")
	}
	targets, err := m.Source.Targets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading targets")
	}
	footprints, err := m.Source.Footprints(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading footprints")
	}
	nodes, err := m.Source.Workers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reading workers")
	}

	if m.Config.Commission {
		nodes = append(nodes, m.commission(ctx, p, nodes)...)
	}
	nodes = m.refreshNodes(nodes)

	s, err := scheduler.New(m.Config.Strategy, scheduler.Config{Footprints: footprints, Cores: m.Config.Cores})
	if err != nil {
		return nil, err
	}

	plan, err := scheduler.Run(s, p, targets, nodes)
	if err != nil {
		return nil, err
	}

	report = &CycleReport{
		ID:            uuid.New(),
		Time:          time.Now().UTC(),
		Strategy:      m.Config.Strategy,
		Candidates:    plan.Candidates,
		Allocations:   plan.Allocations,
		ProjectedRate: projectedRate(plan),
		Free:          plan.Free,
	}

	for _, o := range order.FromAllocations(report.ID, plan.Allocations) {
		if err := m.OrderDb.Put(o.ID.String(), &o); err != nil {
			return nil, errors.Wrapf(err, "storing order %s", o.ID)
		}
		report.Orders = append(report.Orders, o.ID)

		if m.workerApi(o.Allocation.Worker) == "" {
			m.logln("Worker %s has no agent, order %s is recorded only", o.Allocation.Worker, o.ID)
			continue
		}
		m.AddOrder(order.NewEvent(o, order.Scheduled))
	}

	if err := m.CycleDb.Put(report.ID.String(), report); err != nil {
		return nil, errors.Wrapf(err, "storing cycle %s", report.ID)
	}

	m.logln("Cycle %s: %d candidates, %d allocations, projected rate %.2f/s",
		report.ID, len(report.Candidates), len(report.Allocations), report.ProjectedRate)
	return report, nil
}

// projectedRate sums every allocation's per-unit rate times its units.
func projectedRate(p *scheduler.Plan) float64 {
	rates := make(map[string]float64, len(p.Candidates))
	for _, c := range p.Candidates {
		rates[c.Target+"/"+c.Action.String()] = c.Rate
	}

	total := 0.0
	for _, a := range p.Allocations {
		total += rates[a.Target+"/"+a.Action.String()] * float64(a.Units)
	}
	return total
}

func (m *Manager) workerApi(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.WorkerNodes[name]; ok {
		return n.Api
	}
	return ""
}

func (m *Manager) AddOrder(e order.OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pending.Enqueue(e)
	m.Metrics.pending.Set(float64(m.Pending.Len()))
}

func (m *Manager) dequeue() (order.OrderEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Pending.Len() == 0 {
		return order.OrderEvent{}, false
	}
	e := m.Pending.Dequeue().(order.OrderEvent)
	m.Metrics.pending.Set(float64(m.Pending.Len()))
	return e, true
}

func (m *Manager) PendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Pending.Len()
}

// SendWork posts the next pending order to its worker. Orders whose worker
// cannot be reached go back on the queue.
func (m *Manager) SendWork() {
	e, ok := m.dequeue()
	if !ok {
		m.logln("No work in the queue")
		return
	}

	if err := m.EventDb.Put(e.ID.String(), &e); err != nil {
		m.logln("Error attempting to store order event %s: %s", e.ID, err)
		return
	}
	m.logln("Pulled %v off pending queue", e.Order.ID)

	o := e.Order
	api := m.workerApi(o.Allocation.Worker)
	if api == "" {
		m.logln("Worker %s is gone, failing order %s", o.Allocation.Worker, o.ID)
		m.setState(o, order.Failed)
		m.Metrics.dispatches.WithLabelValues("failed").Inc()
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		m.logln("Unable to marshal order %s: %v", o.ID, err)
		return
	}

	resp, err := m.Client.Post(api+"/orders", "application/json", bytes.NewBuffer(data))
	if err != nil {
		m.logln("Error connecting to %v: %v", api, err)
		m.Metrics.dispatches.WithLabelValues("retry").Inc()
		m.AddOrder(e)
		return
	}
	defer resp.Body.Close()

	d := json.NewDecoder(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		er := worker.ErrResponse{}
		if err := d.Decode(&er); err != nil {
			m.logln("Error decoding response: %s", err)
		} else {
			m.logln("Response error (%d): %s", er.HTTPStatusCode, er.Message)
		}
		m.setState(o, order.Failed)
		m.Metrics.dispatches.WithLabelValues("failed").Inc()
		return
	}

	m.mu.Lock()
	m.OrderWorkerMap[o.ID] = o.Allocation.Worker
	m.mu.Unlock()
	m.setState(o, order.Scheduled)
	m.Metrics.dispatches.WithLabelValues("sent").Inc()
}

func (m *Manager) setState(o order.WorkOrder, s order.State) {
	persisted, err := m.OrderDb.Get(o.ID.String())
	if err != nil {
		persisted = &o
	}
	persisted.State = s
	if err := m.OrderDb.Put(o.ID.String(), persisted); err != nil {
		m.logln("Error storing order %s: %v", o.ID, err)
	}
}

func (m *Manager) GetOrders() []*order.WorkOrder {
	orders, err := m.OrderDb.List()
	if err != nil {
		m.logln("error getting list of orders: %v", err)
		return nil
	}
	return orders
}

func (m *Manager) GetCycles() []*CycleReport {
	cycles, err := m.CycleDb.List()
	if err != nil {
		m.logln("error getting list of cycles: %v", err)
		return nil
	}
	return cycles
}

// updateOrders pulls order state back from every worker agent.
func (m *Manager) updateOrders() {
	m.mu.Lock()
	apis := make(map[string]string, len(m.WorkerNodes))
	for name, n := range m.WorkerNodes {
		if n.Api != "" {
			apis[name] = n.Api
		}
	}
	m.mu.Unlock()

	for name, api := range apis {
		m.logln("Checking worker %v for order updates", name)
		resp, err := m.Client.Get(api + "/orders")
		if err != nil {
			m.logln("Error connecting to %v: %v", name, err)
			continue
		}

		var orders []*order.WorkOrder
		err = json.NewDecoder(resp.Body).Decode(&orders)
		resp.Body.Close()
		if err != nil {
			m.logln("Error unmarshalling orders: %s", err)
			continue
		}

		for _, o := range orders {
			persisted, err := m.OrderDb.Get(o.ID.String())
			if err != nil {
				m.logln("Order with ID %s not found", o.ID)
				continue
			}

			persisted.State = o.State
			persisted.ContainerID = o.ContainerID
			persisted.StartTime = o.StartTime
			persisted.FinishTime = o.FinishTime
			if err := m.OrderDb.Put(o.ID.String(), persisted); err != nil {
				m.logln("Error storing order %s: %v", o.ID, err)
			}
		}
	}
}

// ProcessCycles runs a cycle every interval until ctx is done. A failed
// cycle is logged and the loop carries on.
func (m *Manager) ProcessCycles(ctx context.Context, interval time.Duration) {
	for {
		m.logln("Running scheduling cycle")
		if _, err := m.RunCycle(ctx); err != nil {
			m.logln("Cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) ProcessOrders(ctx context.Context, interval time.Duration) {
	for {
		// Orders that go back on the queue wait for the next tick.
		for n := m.PendingLen(); n > 0 && ctx.Err() == nil; n-- {
			m.SendWork()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) UpdateOrders(ctx context.Context, interval time.Duration) {
	for {
		m.logln("Checking for order updates from workers")
		m.updateOrders()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Manager) logln(msg string, param ...any) string {

	s := "[manager] " + msg
	if len(param) >= 1 {
		s = fmt.Sprintf(s, param...)
	}

	log.WithField("component", "manager").Debug(s)

	return s
}
