// Package queuetest provides an in-memory queue.Sink for tests.
package queuetest

import (
	"context"
	"sync"

	"github.com/telhawk-systems/telhawk-stream/streamer/internal/queue"
)

// MemorySink keeps every item in memory. Set ConnectErr or PutErr to make
// the corresponding call fail.
type MemorySink struct {
	mu          sync.Mutex
	connected   bool
	target      queue.Target
	items       []queue.Item
	connects    int
	disconnects int

	ConnectErr error
	PutErr     error
}

// Connect implements queue.Sink.
func (m *MemorySink) Connect(_ context.Context, target queue.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.connected {
		return queue.ErrAlreadyConnected
	}
	m.connected = true
	m.target = target
	m.connects++
	return nil
}

// Put implements queue.Sink.
func (m *MemorySink) Put(_ context.Context, item queue.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return queue.ErrNotConnected
	}
	if m.PutErr != nil {
		return m.PutErr
	}
	m.items = append(m.items, item)
	return nil
}

// Disconnect implements queue.Sink.
func (m *MemorySink) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.connected = false
		m.disconnects++
	}
	return nil
}

// Items returns the accepted items in order.
func (m *MemorySink) Items() []queue.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Item(nil), m.items...)
}

// Payloads returns the accepted payloads as strings.
func (m *MemorySink) Payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.items))
	for i, it := range m.items {
		out[i] = string(it.Payload)
	}
	return out
}

// Connected reports whether a session is open.
func (m *MemorySink) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Target returns the last connected target.
func (m *MemorySink) Target() queue.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target
}

// Connects returns the number of successful Connect calls.
func (m *MemorySink) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Disconnects returns the number of Disconnect calls that closed a session.
func (m *MemorySink) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}
