// internal/game/game_store.go
package game

import (
	"sync"

	"github.com/google/uuid"
)

// GameStore is the in-memory registry of live sessions.
type GameStore struct {
	mu    sync.RWMutex
	games map[uuid.UUID]*HostGame
}

func NewGameStore() *GameStore {
	return &GameStore{games: make(map[uuid.UUID]*HostGame)}
}

func (s *GameStore) AddGame(g *HostGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *GameStore) GetGame(id uuid.UUID) (*HostGame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	return g, ok
}

// DeleteGame removes a session and releases its timers.
func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	g, ok := s.games[id]
	if ok {
		delete(s.games, id)
	}
	s.mu.Unlock()
	if ok {
		g.Cleanup()
	}
}
