package storage

import (
	"fmt"
	"sync"
	"time"
)

type userState struct {
	state     string
	timestamp time.Time
}

// MemoryStateStore implements StateStore in process memory
type MemoryStateStore struct {
	userStates     map[int64]userState
	depositState   map[int64]*DepositState
	broadcastState map[int64]*BroadcastState
	mu             sync.RWMutex
}

// NewMemoryStateStore creates a new in-memory state store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		userStates:     make(map[int64]userState),
		depositState:   make(map[int64]*DepositState),
		broadcastState: make(map[int64]*BroadcastState),
	}
}

// User states
func (s *MemoryStateStore) SetUserState(userID int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userStates[userID] = userState{state: state, timestamp: time.Now()}
	return nil
}

func (s *MemoryStateStore) GetUserState(userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, exists := s.userStates[userID]
	if !exists {
		return "", fmt.Errorf("state not found for user %d", userID)
	}
	return st.state, nil
}

func (s *MemoryStateStore) DeleteUserState(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userStates, userID)
	return nil
}

// Deposit states
func (s *MemoryStateStore) SetDepositState(userID int64, state *DepositState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depositState[userID] = state
	return nil
}

func (s *MemoryStateStore) GetDepositState(userID int64) (*DepositState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, exists := s.depositState[userID]
	if !exists {
		return nil, fmt.Errorf("deposit state not found for user %d", userID)
	}
	return state, nil
}

func (s *MemoryStateStore) DeleteDepositState(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.depositState, userID)
	return nil
}

// Broadcast states
func (s *MemoryStateStore) SetBroadcastState(adminID int64, state *BroadcastState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastState[adminID] = state
	return nil
}

func (s *MemoryStateStore) GetBroadcastState(adminID int64) (*BroadcastState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, exists := s.broadcastState[adminID]
	if !exists {
		return nil, fmt.Errorf("broadcast state not found for admin %d", adminID)
	}
	return state, nil
}

func (s *MemoryStateStore) DeleteBroadcastState(adminID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.broadcastState, adminID)
	return nil
}

// CleanupExpiredStates removes states older than maxAge
func (s *MemoryStateStore) CleanupExpiredStates(maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	for id, st := range s.userStates {
		if st.timestamp.Before(cutoff) {
			delete(s.userStates, id)
		}
	}

	for id, state := range s.depositState {
		if state.Timestamp.Before(cutoff) {
			delete(s.depositState, id)
		}
	}

	for id, state := range s.broadcastState {
		if state.Timestamp.Before(cutoff) {
			delete(s.broadcastState, id)
		}
	}

	return nil
}
