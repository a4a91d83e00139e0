package client

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Nats is a thin wrapper over a core NATS connection shared by the outbound
// publishers.
type Nats struct {
	conn *nats.Conn
}

// NewNats connects to the NATS cluster with unlimited reconnects.
func NewNats(url, name string) (*Nats, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Nats{conn: conn}, nil
}

// Publish sends data to subject. Core NATS publish is fire-and-forget; the
// context is accepted for interface symmetry with the other transports.
func (n *Nats) Publish(_ context.Context, subject string, data []byte) error {
	return n.conn.Publish(subject, data)
}

// Close drains and closes the connection.
func (n *Nats) Close() {
	if n.conn != nil {
		n.conn.Drain()
	}
}
