// ABOUTME: Demo fixture data for the built-in tool directories.
// ABOUTME: Gives a fresh gateway orders and customers the robot can actually find.

package builtins

// DemoOrderDirectory returns an order directory seeded with sample orders so
// the order tools work out of the box on a fresh gateway.
func DemoOrderDirectory() *OrderDirectory {
	return NewOrderDirectory(
		Order{ID: "ord-1001", Status: "shipped", ETA: "2026-09-02", Items: []string{"USB-C dock", "HDMI cable"}},
		Order{ID: "ord-1002", Status: "delivered", Items: []string{"mechanical keyboard"}},
		Order{ID: "ord-1003", Status: "placed", ETA: "2026-09-10", Items: []string{"standing desk"}},
		Order{ID: "ord-1004", Status: "returned", Items: []string{"webcam"}},
	)
}

// DemoCustomerDirectory returns a customer directory seeded with sample
// profiles matching the demo orders.
func DemoCustomerDirectory() *CustomerDirectory {
	return NewCustomerDirectory(
		Customer{ID: "cust-1", Name: "Dana Whitfield", Tier: "premium", Email: "dana@example.com"},
		Customer{ID: "cust-2", Name: "Marco Ruiz", Tier: "standard", Email: "marco@example.com"},
		Customer{ID: "cust-3", Name: "Priya Natarajan", Tier: "standard", Email: "priya@example.com"},
	)
}
