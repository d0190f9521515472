package rabbitmq

import (
	"context"
	"fmt"
)

// HealthCheck implements ports.HealthChecker for the message broker.
type HealthCheck struct {
	pub *Publisher
}

// NewHealthCheck creates a RabbitMQ health checker over the publisher's
// connection.
func NewHealthCheck(pub *Publisher) *HealthCheck {
	return &HealthCheck{pub: pub}
}

// Ping reports broker connectivity.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if h.pub == nil || h.pub.conn == nil || h.pub.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "rabbitmq"
}
