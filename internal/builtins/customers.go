// ABOUTME: Customers pack provides customer profile lookup tools.
// ABOUTME: Backed by an in-memory directory standing in for a CRM integration.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/2389/parley/internal/catalog"
)

// Customer is one entry in the customer directory.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Tier  string `json:"tier,omitempty"` // free, standard, premium
}

// CustomerDirectory is a thread-safe in-memory customer lookup table.
type CustomerDirectory struct {
	mu        sync.RWMutex
	customers map[string]Customer
}

// NewCustomerDirectory creates a directory seeded with the given customers.
func NewCustomerDirectory(customers ...Customer) *CustomerDirectory {
	d := &CustomerDirectory{customers: make(map[string]Customer, len(customers))}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

// Get returns a customer by ID.
func (d *CustomerDirectory) Get(id string) (Customer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[id]
	return c, ok
}

// Put inserts or replaces a customer.
func (d *CustomerDirectory) Put(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
}

// CustomersPack creates the catalog of customer tools.
func CustomersPack(dir *CustomerDirectory) *catalog.Registry {
	h := &customerHandlers{dir: dir}
	r := catalog.NewRegistry()
	r.MustRegister(catalog.Definition{
		Name:            "customer_profile",
		Description:     "Look up a customer's profile and support tier",
		InputSchemaJSON: `{"type":"object","properties":{"customer_id":{"type":"string"}},"required":["customer_id"]}`,
	}, h.Profile)
	return r
}

type customerHandlers struct {
	dir *CustomerDirectory
}

type customerProfileInput struct {
	CustomerID string `json:"customer_id"`
}

func (h *customerHandlers) Profile(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in customerProfileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if in.CustomerID == "" {
		return nil, fmt.Errorf("customer_id is required")
	}

	customer, ok := h.dir.Get(in.CustomerID)
	if !ok {
		return nil, fmt.Errorf("customer %q not found", in.CustomerID)
	}

	return json.Marshal(customer)
}
