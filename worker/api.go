package worker

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type API struct {
	Address string
	Port    int
	Worker  *Worker
	Router  *chi.Mux
}

func (a *API) initRouter() {
	a.Router = chi.NewRouter()
	a.Router.Route("/orders", func(r chi.Router) {
		r.Post("/", a.StartOrderHandler)
		r.Get("/", a.GetOrdersHandler)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", a.GetOrderHandler)
			r.Delete("/", a.StopOrderHandler)
		})
	})
	a.Router.Route("/stats", func(r chi.Router) {
		r.Get("/", a.GetStatsHandler)
	})
}

// Handler returns the routed API without binding a listener.
func (a *API) Handler() http.Handler {
	if a.Router == nil {
		a.initRouter()
	}
	return a.Router
}

func (a *API) Start() error {
	return http.ListenAndServe(fmt.Sprintf("%s:%d", a.Address, a.Port), a.Handler())
}
