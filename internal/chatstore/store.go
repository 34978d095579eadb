// Package chatstore tracks the shopping assistant panel for one visitor. Nothing here is persisted.
package chatstore

import (
	"fmt"
	"strings"
	"sync"
)

// State is a snapshot of the assistant panel.
type State struct {
	IsOpen         bool
	PendingMessage string
	HasPending     bool
}

// Store serialises panel transitions.
type Store struct {
	mu    sync.Mutex
	state State
}

// New returns a closed panel with no pending message.
func New() *Store {
	return &Store{}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OpenChat shows the panel.
func (s *Store) OpenChat() State {
	return s.apply(func(st State) State {
		st.IsOpen = true
		return st
	})
}

// CloseChat hides the panel.
func (s *Store) CloseChat() State {
	return s.apply(func(st State) State {
		st.IsOpen = false
		return st
	})
}

// ToggleChat flips panel visibility.
func (s *Store) ToggleChat() State {
	return s.apply(func(st State) State {
		st.IsOpen = !st.IsOpen
		return st
	})
}

// OpenChatWithMessage opens the panel and seeds message in the same transition.
func (s *Store) OpenChatWithMessage(message string) State {
	return s.apply(func(State) State {
		return State{IsOpen: true, PendingMessage: message, HasPending: true}
	})
}

// ClearPendingMessage drops the seed message.
func (s *Store) ClearPendingMessage() State {
	return s.apply(func(st State) State {
		st.PendingMessage = ""
		st.HasPending = false
		return st
	})
}

// ConsumePendingMessage returns the seed message and clears it, so it is handed out at most once.
func (s *Store) ConsumePendingMessage() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.HasPending {
		return "", false
	}
	message := s.state.PendingMessage
	s.state.PendingMessage = ""
	s.state.HasPending = false
	return message, true
}

func (s *Store) apply(transition func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = transition(s.state)
	return s.state
}

// SimilarProductsPrompt builds the seed used by the "ask for similar products" action.
func SimilarProductsPrompt(productName string) string {
	return fmt.Sprintf("Show me products similar to \"%s\"", strings.TrimSpace(productName))
}
