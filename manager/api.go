package manager

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleet/worker"
)

type API struct {
	Address string
	Port    int
	Manager *Manager
	Router  *chi.Mux
}

func (a *API) initRouter() {
	a.Router = chi.NewRouter()
	a.Router.Route("/cycles", func(r chi.Router) {
		r.Get("/", a.GetCyclesHandler)
		r.Post("/", a.RunCycleHandler)
		r.Get("/{cycleID}", a.GetCycleHandler)
	})
	a.Router.Route("/orders", func(r chi.Router) {
		r.Get("/", a.GetOrdersHandler)
	})
	a.Router.Handle("/metrics", promhttp.HandlerFor(a.Manager.Metrics.Registry, promhttp.HandlerOpts{}))
}

func (a *API) Handler() http.Handler {
	if a.Router == nil {
		a.initRouter()
	}
	return a.Router
}

func (a *API) Start() error {
	return http.ListenAndServe(fmt.Sprintf("%s:%d", a.Address, a.Port), a.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, worker.ErrResponse{HTTPStatusCode: code, Message: msg})
}

func (a *API) GetCyclesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Manager.GetCycles())
}

func (a *API) GetCycleHandler(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "cycleID")
	id, err := uuid.Parse(param)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid cycle id %q", param))
		return
	}

	c, err := a.Manager.CycleDb.Get(id.String())
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no cycle with id %v", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RunCycleHandler runs a cycle right away instead of waiting for the loop.
func (a *API) RunCycleHandler(w http.ResponseWriter, r *http.Request) {
	report, err := a.Manager.RunCycle(r.Context())
	if err != nil {
		a.Manager.logln("Cycle failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (a *API) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Manager.GetOrders())
}
