// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/auth"
	"github.com/gridfall/gridfall/internal/game"
	"github.com/gridfall/gridfall/internal/models"
	"github.com/gridfall/gridfall/internal/session"
)

// GameWSHandler upgrades the HTTP connection to WebSocket for a specific game
// instance. The first frame must be a JOIN_REQUEST; after a successful join
// the read loop feeds every frame into the game's message router until the
// connection drops.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract game id from URL path: /game/ws/{game_id}
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}

		g, ok := gs.GameStore.GetGame(gameID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"gridfall"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "gridfall" {
			logger.Warnf("Client for game %s connected with invalid subprotocol: %s", gameID, c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'gridfall' subprotocol.")
			return
		}

		peerID, playerID, ok := gs.performJoin(r.Context(), c, g, logger)
		if !ok {
			return
		}
		logger.Infof("Player %d joined game %s from %s", playerID, gameID, r.RemoteAddr)

		reg := gs.registryFor(gameID)
		reg.set(peerID, c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readGameMessages(ctx, c, g, peerID, logger)

		reg.remove(peerID)
		g.HandleDisconnect(peerID)
		logger.Infof("Player %d read loop exited for game %s", playerID, gameID)
	}
}

// performJoin runs the join handshake: reads the JOIN_REQUEST frame, checks
// the passcode, reclaims a seat from a reconnect token or allocates a fresh
// one, and replies with JOIN_REPLY. Returns the peer and seat ids.
func (gs *GameServer) performJoin(ctx context.Context, c *websocket.Conn, g *game.HostGame, logger *logrus.Logger) (uuid.UUID, int, bool) {
	readCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, data, err := c.Read(readCtx)
	if err != nil {
		logger.Warnf("Join read failed for game %s: %v", g.ID, err)
		return uuid.Nil, 0, false
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != models.MsgJoinRequest {
		c.Close(websocket.StatusPolicyViolation, "First message must be JOIN_REQUEST.")
		return uuid.Nil, 0, false
	}
	var req models.JoinRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.Close(websocket.StatusPolicyViolation, "Malformed JOIN_REQUEST.")
		return uuid.Nil, 0, false
	}

	if g.Config.PasscodeHash != "" {
		match, err := auth.VerifyPasscode(req.Passcode, g.Config.PasscodeHash)
		if err != nil || !match {
			logger.Warnf("Passcode rejected for game %s: %v", g.ID, err)
			c.Close(websocket.StatusPolicyViolation, "Invalid passcode.")
			return uuid.Nil, 0, false
		}
	}

	peerID := req.PeerID
	if peerID == uuid.Nil {
		peerID = uuid.New()
	}

	var playerID int
	if req.ReconnectToken != "" {
		tokenGame, seat, err := auth.VerifySeatToken(req.ReconnectToken)
		if err != nil || tokenGame != g.ID {
			logger.Warnf("Reconnect token rejected for game %s: %v", g.ID, err)
			c.Close(websocket.StatusPolicyViolation, "Invalid reconnect token.")
			return uuid.Nil, 0, false
		}
		if !g.HandleReconnect(peerID, seat) {
			c.Close(websocket.StatusPolicyViolation, "Seat can no longer be reclaimed.")
			return uuid.Nil, 0, false
		}
		playerID = seat
	} else {
		name := req.PlayerName
		if name == "" {
			name = "Player"
		}
		playerID = g.AddGuestPlayer(peerID, name).ID
	}

	token, err := auth.CreateSeatToken(g.ID, playerID)
	if err != nil {
		logger.WithError(err).Warnf("Seat token mint failed for game %s", g.ID)
	}

	view := g.StateForGuest(playerID)
	viewData, err := json.Marshal(view)
	if err != nil {
		logger.WithError(err).Errorf("State projection marshal failed for game %s", g.ID)
		c.Close(websocket.StatusInternalError, "Internal error.")
		return uuid.Nil, 0, false
	}
	reply := models.Message{
		Type: models.MsgJoinReply,
		Data: models.MarshalData(models.JoinReply{
			PlayerID:       playerID,
			Color:          seatColor(view, playerID),
			ReconnectToken: token,
			State:          viewData,
		}),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := writeMessage(c, reply); err != nil {
		logger.Warnf("JOIN_REPLY write failed for game %s: %v", g.ID, err)
		return uuid.Nil, 0, false
	}

	if gs.Sessions != nil {
		go gs.saveRoleRecord(g.ID, peerID, playerID, req.PlayerName)
	}
	return peerID, playerID, true
}

func (gs *GameServer) saveRoleRecord(gameID, peerID uuid.UUID, playerID int, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := gs.Sessions.SaveRole(ctx, gameID, session.RoleRecord{
		PeerID:     peerID,
		PlayerID:   playerID,
		PlayerName: name,
	})
	if err != nil {
		gs.Logger.WithError(err).WithField("game", gameID).Warn("role record save failed")
	}
}

func seatColor(view *game.StateView, playerID int) string {
	for _, p := range view.Players {
		if p.ID == playerID {
			return p.Color
		}
	}
	return ""
}

// readGameMessages pumps frames from one client into the game router until
// the connection closes or the context cancels.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.HostGame, peerID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for peer %s in game %s.", peerID, g.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for peer %s in game %s.", peerID, g.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for peer %s in game %s: %v", peerID, g.ID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message from peer %s in game %s. Ignoring.", peerID, g.ID)
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from peer %s in game %s: %v", peerID, g.ID, err)
			continue
		}

		if msg.Type == "ping" {
			_ = writeMessage(c, models.Message{Type: "pong", Timestamp: time.Now().UnixMilli()})
			continue
		}

		g.HandleMessage(peerID, msg)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// createBroadcastFunc builds the game's all-peers channel. It is called while
// the game lock is held, so writes happen on a fresh goroutine against a
// snapshot of the registry.
func createBroadcastFunc(reg *connRegistry, logger *logrus.Logger, gameID uuid.UUID) game.BroadcastFunc {
	return func(msg models.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast message (%s) for game %s: %v", msg.Type, gameID, err)
			return
		}
		conns := reg.snapshot()
		go func() {
			for peerID, conn := range conns {
				writeRaw(conn, data, logger, gameID, peerID)
			}
		}()
	}
}

// createSendFunc builds the game's single-peer channel.
func createSendFunc(reg *connRegistry, logger *logrus.Logger, gameID uuid.UUID) game.SendFunc {
	return func(peerID uuid.UUID, msg models.Message) {
		conn := reg.get(peerID)
		if conn == nil {
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			logger.Errorf("Failed to marshal message (%s) for peer %s in game %s: %v", msg.Type, peerID, gameID, err)
			return
		}
		go writeRaw(conn, data, logger, gameID, peerID)
	}
}

func writeRaw(conn *websocket.Conn, data []byte, logger *logrus.Logger, gameID, peerID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		logger.Warnf("Failed to write message to peer %s in game %s: %v", peerID, gameID, err)
	}
}

func writeMessage(c *websocket.Conn, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.Write(ctx, websocket.MessageText, data)
}
