// Package order carries ledger allocations to the workers that run them and
// tracks each one through its lifecycle.
package order

import (
	"time"

	"github.com/google/uuid"

	"fleet/ledger"
)

// WorkOrder is one allocation dispatched to its worker.
type WorkOrder struct {
	ID          uuid.UUID         `json:"id"`
	Cycle       uuid.UUID         `json:"cycle"`
	Allocation  ledger.Allocation `json:"allocation"`
	State       State             `json:"state"`
	ContainerID string            `json:"containerId,omitempty"`
	StartTime   time.Time         `json:"startTime,omitempty"`
	FinishTime  time.Time         `json:"finishTime,omitempty"`
}

type OrderEvent struct {
	ID        uuid.UUID `json:"id"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Order     WorkOrder `json:"order"`
}

// FromAllocations wraps the allocations of one cycle into pending orders.
func FromAllocations(cycle uuid.UUID, allocs []ledger.Allocation) []WorkOrder {
	orders := make([]WorkOrder, 0, len(allocs))
	for _, a := range allocs {
		orders = append(orders, WorkOrder{
			ID:         uuid.New(),
			Cycle:      cycle,
			Allocation: a,
			State:      Pending,
		})
	}
	return orders
}

// NewEvent asks for o to move to state.
func NewEvent(o WorkOrder, state State) OrderEvent {
	return OrderEvent{
		ID:        uuid.New(),
		State:     state,
		Timestamp: time.Now().UTC(),
		Order:     o,
	}
}
