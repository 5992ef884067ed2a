// ABOUTME: Orders pack provides order lookup tools backed by an in-memory directory.
// ABOUTME: The reference stand-in for a real order-management integration.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/2389/parley/internal/catalog"
)

// Order is one entry in the order directory.
type Order struct {
	ID     string   `json:"id"`
	Status string   `json:"status"` // placed, shipped, delivered, returned
	ETA    string   `json:"eta,omitempty"`
	Items  []string `json:"items,omitempty"`
}

// OrderDirectory is a thread-safe in-memory order lookup table.
type OrderDirectory struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewOrderDirectory creates a directory seeded with the given orders.
func NewOrderDirectory(orders ...Order) *OrderDirectory {
	d := &OrderDirectory{orders: make(map[string]Order, len(orders))}
	for _, o := range orders {
		d.orders[o.ID] = o
	}
	return d
}

// Get returns an order by ID.
func (d *OrderDirectory) Get(id string) (Order, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.orders[id]
	return o, ok
}

// Put inserts or replaces an order.
func (d *OrderDirectory) Put(o Order) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[o.ID] = o
}

// OrdersPack creates the catalog of order tools.
func OrdersPack(dir *OrderDirectory) *catalog.Registry {
	h := &orderHandlers{dir: dir}
	r := catalog.NewRegistry()
	r.MustRegister(catalog.Definition{
		Name:            "order_status",
		Description:     "Look up the status and ETA of a customer order",
		InputSchemaJSON: `{"type":"object","properties":{"order_id":{"type":"string"}},"required":["order_id"]}`,
	}, h.Status)
	r.MustRegister(catalog.Definition{
		Name:            "refund_eligibility",
		Description:     "Check whether a customer order can be refunded",
		InputSchemaJSON: `{"type":"object","properties":{"order_id":{"type":"string"}},"required":["order_id"]}`,
	}, h.RefundEligibility)
	return r
}

type orderHandlers struct {
	dir *OrderDirectory
}

type orderStatusInput struct {
	OrderID string `json:"order_id"`
}

func (h *orderHandlers) Status(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in orderStatusInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.OrderID == "" {
		return nil, fmt.Errorf("order_id is required")
	}

	order, ok := h.dir.Get(in.OrderID)
	if !ok {
		return nil, fmt.Errorf("order %q not found", in.OrderID)
	}

	return json.Marshal(order)
}

type refundEligibilityResult struct {
	OrderID  string `json:"order_id"`
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

func (h *orderHandlers) RefundEligibility(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in orderStatusInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.OrderID == "" {
		return nil, fmt.Errorf("order_id is required")
	}

	order, ok := h.dir.Get(in.OrderID)
	if !ok {
		return nil, fmt.Errorf("order %q not found", in.OrderID)
	}

	res := refundEligibilityResult{OrderID: order.ID}
	switch order.Status {
	case "delivered":
		res.Eligible = true
		res.Reason = "delivered orders can be refunded"
	case "returned":
		res.Reason = "order has already been returned"
	default:
		res.Reason = fmt.Sprintf("order is still %s; refunds apply after delivery", order.Status)
	}

	return json.Marshal(res)
}
