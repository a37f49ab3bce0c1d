package service

import (
	"sync"

	"github.com/gorilla/websocket"
)

// ConnectionManager manages the WebSocket connections that stream task
// updates to clients. One connection per user.
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

// Add registers a new connection for a user, replacing and closing any
// previous one.
func (m *ConnectionManager) Add(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[userID]; ok {
		old.Close()
	}
	m.connections[userID] = conn
}

// Remove drops the user's connection, but only if it is still the one the
// caller registered. After a reconnect the old connection's teardown runs
// late and must not take the replacement down with it.
func (m *ConnectionManager) Remove(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[userID]; ok && current == conn {
		current.Close()
		delete(m.connections, userID)
	}
}

// SendMessage sends a message to a specific user. It reports false when
// the user has no live connection — update delivery is at-most-once.
func (m *ConnectionManager) SendMessage(userID string, message []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[userID]
	if !ok {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, message) == nil
}
