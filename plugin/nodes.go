package plugin

import (
	"fmt"
	"sync"
)

// Node is one content record sourced by a plugin.
type Node struct {
	ID    string
	Type  string
	Owner string
	Data  any
}

// NodeStore holds sourced content for the duration of one build.
type NodeStore struct {
	mu    sync.RWMutex
	byID  map[string]Node
	order []string
}

// NewNodeStore creates an empty store.
func NewNodeStore() *NodeStore {
	return &NodeStore{byID: make(map[string]Node)}
}

// Add stores n. IDs are unique across types.
func (s *NodeStore) Add(n Node) error {
	if n.ID == "" || n.Type == "" {
		return fmt.Errorf("node requires an id and a type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[n.ID]; exists {
		return fmt.Errorf("node %s already exists", n.ID)
	}
	s.byID[n.ID] = n
	s.order = append(s.order, n.ID)
	return nil
}

// Get returns the node with the given id.
func (s *NodeStore) Get(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byID[id]
	return n, ok
}

// ByType returns nodes of type t in insertion order.
func (s *NodeStore) ByType(t string) []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, id := range s.order {
		if n := s.byID[id]; n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of stored nodes.
func (s *NodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
