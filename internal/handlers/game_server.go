// internal/handlers/game_server.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/auth"
	"github.com/gridfall/gridfall/internal/game"
	"github.com/gridfall/gridfall/internal/session"
)

// GameServer owns the live session registry and the transport-side plumbing
// around it (connection registries, session continuity records, persistence).
type GameServer struct {
	GameStore *game.GameStore
	Sessions  *session.Store // optional; nil disables continuity records
	Recorder  game.Recorder  // optional; nil disables persistence
	Logger    *logrus.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*connRegistry
}

func NewGameServer(logger *logrus.Logger) *GameServer {
	return &GameServer{
		GameStore: game.NewGameStore(),
		Logger:    logger,
		conns:     make(map[uuid.UUID]*connRegistry),
	}
}

// connRegistry tracks the live websocket per peer for one game.
type connRegistry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*websocket.Conn
}

func (r *connRegistry) set(peerID uuid.UUID, c *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[peerID] = c
}

func (r *connRegistry) remove(peerID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, peerID)
}

func (r *connRegistry) get(peerID uuid.UUID) *websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[peerID]
}

func (r *connRegistry) snapshot() map[uuid.UUID]*websocket.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*websocket.Conn, len(r.conns))
	for k, v := range r.conns {
		out[k] = v
	}
	return out
}

func (gs *GameServer) registryFor(gameID uuid.UUID) *connRegistry {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	reg, ok := gs.conns[gameID]
	if !ok {
		reg = &connRegistry{conns: make(map[uuid.UUID]*websocket.Conn)}
		gs.conns[gameID] = reg
	}
	return reg
}

func (gs *GameServer) dropRegistry(gameID uuid.UUID) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	delete(gs.conns, gameID)
}

// createGameRequest is the POST body for session creation.
type createGameRequest struct {
	Passcode string `json:"passcode,omitempty"`
}

// CreateGameHandler creates a fresh session and returns its id. An optional
// passcode gates subsequent joins.
func (gs *GameServer) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createGameRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	cfg := game.DefaultConfig()
	if req.Passcode != "" {
		hash, err := auth.HashPasscode(req.Passcode)
		if err != nil {
			gs.Logger.WithError(err).Error("passcode hash failed")
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		cfg.PasscodeHash = hash
	}

	g := game.NewHostGame(cfg, game.NoAbilities, gs.Logger)
	g.Recorder = gs.Recorder
	g.OnTerminate = func(gameID uuid.UUID) {
		gs.GameStore.DeleteGame(gameID)
		gs.dropRegistry(gameID)
		if gs.Sessions != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gs.Sessions.Clear(ctx, gameID); err != nil {
				gs.Logger.WithError(err).WithField("game", gameID).Warn("session record cleanup failed")
			}
		}
	}

	reg := gs.registryFor(g.ID)
	g.BroadcastFn = createBroadcastFunc(reg, gs.Logger, g.ID)
	g.SendFn = createSendFunc(reg, gs.Logger, g.ID)

	gs.GameStore.AddGame(g)
	gs.Logger.WithField("game", g.ID).Info("game created")

	if gs.Sessions != nil {
		go gs.publishHostPointer(g.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"gameId": g.ID.String()})
}

// publishHostPointer keeps the short-lived host rediscovery pointer fresh for
// as long as the game exists.
func (gs *GameServer) publishHostPointer(gameID uuid.UUID) {
	hostPeer := uuid.New()
	ticker := time.NewTicker(session.HostPointerTTL / 3)
	defer ticker.Stop()
	for {
		if _, ok := gs.GameStore.GetGame(gameID); !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := gs.Sessions.PublishHostPeer(ctx, gameID, hostPeer); err != nil {
			gs.Logger.WithError(err).WithField("game", gameID).Warn("host pointer publish failed")
		}
		cancel()
		<-ticker.C
	}
}
