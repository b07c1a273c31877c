package worker

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fleet/order"
)

type ErrResponse struct {
	HTTPStatusCode int
	Message        string
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrResponse{HTTPStatusCode: code, Message: msg})
}

func (a *API) StartOrderHandler(w http.ResponseWriter, r *http.Request) {
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()

	e := order.OrderEvent{}
	if err := d.Decode(&e); err != nil {
		msg := fmt.Sprintf("Error unmarshalling body: %v", err)
		a.Worker.Logln(msg)
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	o := e.Order
	o.State = e.State
	if o.State != order.Scheduled {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("orders are accepted in state %v, got %v", order.Scheduled, o.State))
		return
	}

	a.Worker.AddOrder(o)
	a.Worker.Logln("Added order %v", o.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(o)
}

func (a *API) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(a.Worker.GetOrders())
}

func (a *API) orderFromRequest(w http.ResponseWriter, r *http.Request) (order.WorkOrder, bool) {
	param := chi.URLParam(r, "orderID")
	id, err := uuid.Parse(param)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid order id %q", param))
		return order.WorkOrder{}, false
	}

	o, ok := a.Worker.GetOrder(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no order with id %v", id))
		return order.WorkOrder{}, false
	}
	return o, true
}

func (a *API) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := a.orderFromRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(o)
}

func (a *API) StopOrderHandler(w http.ResponseWriter, r *http.Request) {
	o, ok := a.orderFromRequest(w, r)
	if !ok {
		return
	}

	o.State = order.Completed
	a.Worker.AddOrder(o)
	a.Worker.Logln("Added order %v to stop container %v", o.ID, o.ContainerID)

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(a.Worker.CurrentStats())
}
