package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"fleet/catalog"
	"fleet/formulas"
	"fleet/ledger"
	"fleet/node"
	"fleet/order"
	"fleet/target"
	"fleet/topology"
	"fleet/worker"
)

// staticSource serves one parsed catalog through the per-concern readers.
type staticSource struct {
	c   *catalog.Catalog
	err error
}

func (s staticSource) Targets(context.Context) ([]target.Target, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.c.Targets, nil
}

func (s staticSource) Profile(context.Context) (formulas.Profile, error) {
	if s.err != nil {
		return formulas.Profile{}, s.err
	}
	return s.c.Profile, nil
}

func (s staticSource) Footprints(context.Context) (target.Footprints, error) {
	if s.err != nil {
		return target.Footprints{}, s.err
	}
	return s.c.Footprints, nil
}

func (s staticSource) Workers(context.Context) ([]*node.Node, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.c.Nodes()
}

func (s staticSource) Graph(context.Context) (*topology.StaticGraph, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.c.Graph(), nil
}

const catalogTemplate = `
profile:
  capability: 100
targets:
  - name: %s
    requiredLevel: 1
    difficulty: 5
    minDifficulty: 5
    availableYield: 1000000
    maxYield: 1000000
    growth: 1
workers:
  - name: agent
    api: %s
    capacity: 1GiB
  - name: home
    capacity: 32GiB
`

func testCatalog(t *testing.T, agentApi string) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(fmt.Sprintf(catalogTemplate, "steady", agentApi)))
	require.NoError(t, err)
	return c
}

func newAgent(t *testing.T) (*worker.Worker, *httptest.Server) {
	t.Helper()
	w := worker.New("agent", &order.SimRunner{}, 32)
	srv := httptest.NewServer((&worker.API{Worker: w}).Handler())
	t.Cleanup(srv.Close)
	return w, srv
}

func newManager(t *testing.T, src Source) *Manager {
	t.Helper()
	m, err := New(src, Config{Strategy: "greedy", StoreType: "memory"})
	require.NoError(t, err)
	return m
}

func TestRunCycle(t *testing.T) {
	_, srv := newAgent(t)
	m := newManager(t, staticSource{c: testCatalog(t, srv.URL)})

	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, report.Allocations)
	first := report.Allocations[0]
	assert.Equal(t, "agent", first.Worker, "agent capacity comes from its stats, not the catalog")
	assert.Equal(t, target.Extract, first.Action)
	assert.Equal(t, 18, first.Units)
	assert.Greater(t, report.ProjectedRate, 0.0)
	assert.Len(t, report.Orders, len(report.Allocations))

	n, err := m.OrderDb.Count()
	require.NoError(t, err)
	assert.Equal(t, len(report.Allocations), n)

	agentOrders := 0
	for _, a := range report.Allocations {
		if a.Worker == "agent" {
			agentOrders++
		}
	}
	assert.Equal(t, agentOrders, m.PendingLen(), "only workers with an agent get orders dispatched")

	stored, err := m.CycleDb.Get(report.ID.String())
	require.NoError(t, err)
	assert.Equal(t, report.Allocations, stored.Allocations)
}

func TestRunCycleSourceError(t *testing.T) {
	m := newManager(t, staticSource{err: errors.New("catalog unavailable")})
	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading profile: catalog unavailable")

	n, err := m.CycleDb.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunCycleRereadsCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	write := func(name string) {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(catalogTemplate, name, "")), 0600))
	}
	m := newManager(t, catalog.FileSource{Path: path})

	write("first")
	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Allocations)
	assert.Equal(t, "first", report.Allocations[0].Target)

	write("second")
	report, err = m.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Allocations)
	assert.Equal(t, "second", report.Allocations[0].Target)

	require.NoError(t, os.Remove(path))
	_, err = m.RunCycle(context.Background())
	assert.ErrorContains(t, err, "reading profile")
}

func TestRunCycleCommissionsReachableHosts(t *testing.T) {
	c, err := catalog.Parse([]byte(`
profile:
  capability: 100
targets:
  - name: steady
    requiredLevel: 1
    difficulty: 5
    minDifficulty: 5
    availableYield: 1000000
    maxYield: 1000000
    growth: 1
workers:
  - name: home
    capacity: 2GiB
links:
  home: [spare, locked]
  spare: [far]
ports:
  locked: 2
capacities:
  spare: 8GiB
  locked: 8GiB
  far: 4GiB
`))
	require.NoError(t, err)

	m, err := New(staticSource{c: c}, Config{Strategy: "greedy", StoreType: "memory", Commission: true, CommissionDepth: 1})
	require.NoError(t, err)

	for range 2 {
		report, err := m.RunCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, map[string]bool{"spare": true}, m.Commissioned, "locked needs ports and far is out of reach")
		require.Contains(t, m.WorkerNodes, "spare")
		assert.Equal(t, 8.0, m.WorkerNodes["spare"].Capacity)
		assert.NotContains(t, m.WorkerNodes, "locked")

		var onSpare int
		for _, a := range report.Allocations {
			if a.Worker == "spare" {
				onSpare += a.Units
			}
		}
		assert.Equal(t, 4, onSpare, "home fits 1 unit, spare the next 4")
	}
}

func TestRunCycleWithoutCommissioning(t *testing.T) {
	c := testCatalog(t, "")
	c.Links = map[string][]string{"home": {"spare"}}
	c.Capacities = map[string]string{"spare": "8GiB"}

	m := newManager(t, staticSource{c: c})
	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.Commissioned)
	assert.NotContains(t, m.WorkerNodes, "spare")
}

func TestCloseReleasesPersistentStores(t *testing.T) {
	dir := t.TempDir()
	m, err := New(staticSource{c: testCatalog(t, "")}, Config{Strategy: "greedy", StoreType: "persistent", DataDir: dir})
	require.NoError(t, err)

	report, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	db, err := bbolt.Open(filepath.Join(dir, "cycles.db"), 0600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err, "the file lock is released")
	defer db.Close()
	require.NoError(t, db.View(func(tx *bbolt.Tx) error {
		assert.NotNil(t, tx.Bucket([]byte("cycles")).Get([]byte(report.ID.String())))
		return nil
	}))

	assert.NoError(t, newManager(t, staticSource{}).Close(), "memory stores have nothing to close")
}

func TestSendWorkAndUpdate(t *testing.T) {
	w, srv := newAgent(t)
	m := newManager(t, staticSource{c: testCatalog(t, srv.URL)})

	_, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, m.PendingLen())

	m.SendWork()
	assert.Equal(t, 0, m.PendingLen())
	require.Equal(t, 1, w.QueueLen())

	orders := m.GetOrders()
	var dispatched *order.WorkOrder
	for _, o := range orders {
		if o.Allocation.Worker == "agent" {
			dispatched = o
		}
	}
	require.NotNil(t, dispatched)
	assert.Equal(t, order.Scheduled, dispatched.State)
	assert.Equal(t, "agent", m.OrderWorkerMap[dispatched.ID])

	require.NoError(t, w.RunOrder().Error)
	m.updateOrders()

	updated, err := m.OrderDb.Get(dispatched.ID.String())
	require.NoError(t, err)
	assert.Equal(t, order.Running, updated.State)
	assert.Equal(t, "sim-"+dispatched.ID.String(), updated.ContainerID)
}

func TestSendWorkRequeuesWhenWorkerUnreachable(t *testing.T) {
	m := newManager(t, staticSource{})
	m.WorkerNodes["gone"] = node.New("gone", "http://127.0.0.1:1", "worker")

	o := order.WorkOrder{ID: uuid.New(), Allocation: ledger.Allocation{Worker: "gone", Units: 1, Footprint: 1}}
	m.AddOrder(order.NewEvent(o, order.Scheduled))

	m.SendWork()
	assert.Equal(t, 1, m.PendingLen())
}

func TestSendWorkFailsRejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(worker.ErrResponse{HTTPStatusCode: 400, Message: "no"})
	}))
	defer srv.Close()

	m := newManager(t, staticSource{})
	m.WorkerNodes["picky"] = node.New("picky", srv.URL, "worker")

	o := order.WorkOrder{ID: uuid.New(), Allocation: ledger.Allocation{Worker: "picky", Units: 1, Footprint: 1}}
	require.NoError(t, m.OrderDb.Put(o.ID.String(), &o))
	m.AddOrder(order.NewEvent(o, order.Scheduled))

	m.SendWork()
	assert.Equal(t, 0, m.PendingLen())

	got, err := m.OrderDb.Get(o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, order.Failed, got.State)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	_, err := New(staticSource{}, Config{StoreType: "etcd"})
	assert.Error(t, err)
}

func TestAPI(t *testing.T) {
	_, agent := newAgent(t)
	m := newManager(t, staticSource{c: testCatalog(t, agent.URL)})
	srv := httptest.NewServer((&API{Manager: m}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/cycles", "application/json", nil)
	require.NoError(t, err)
	var report CycleReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/cycles/" + report.ID.String())
	require.NoError(t, err)
	var got CycleReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, report.Allocations, got.Allocations)

	resp, err = http.Get(srv.URL + "/cycles/" + uuid.New().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	var orders []*order.WorkOrder
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	resp.Body.Close()
	assert.Len(t, orders, len(report.Allocations))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `fleet_manager_cycles_total{result="ok"} 1`)
	assert.Contains(t, string(body), "fleet_manager_projected_rate")
}
