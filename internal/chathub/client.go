package chathub

import "peerzee/backend/internal/models"

// Client is the interface for any type of connection. It abstracts the
// underlying transport, allowing the hub to manage every connection
// uniformly.
type Client interface {
	// GetUserID returns the unique identifier for the user associated with the client.
	GetUserID() string

	// Deliver queues msg for the client's writer. It reports false when the
	// client is closed or its send buffer is full; the message is dropped.
	Deliver(msg models.Message) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	// It is safe to call more than once.
	Close()
}
