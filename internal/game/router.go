// internal/game/router.go
package game

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/models"
)

// HandleMessage is the single entry point for everything a guest sends after
// joining. Malformed or unauthorized messages are logged and dropped; nothing
// a guest sends can panic the session.
func (g *HostGame) HandleMessage(peerID uuid.UUID, msg models.Message) {
	g.Mu.Lock()
	senderID, known := g.peers[peerID]
	g.Mu.Unlock()
	if !known {
		g.log.WithField("peer", peerID).Warn("message from unregistered peer")
		return
	}

	switch msg.Type {
	case models.MsgPlayerReady:
		var p models.PlayerFieldPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		// A guest may only flip their own flag.
		g.SetPlayerReady(senderID, p.IsReady)

	case models.MsgChangePlayerDeck:
		var p models.PlayerFieldPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.setPlayerField(senderID, func(pl *models.Player) { pl.SelectedDeck = p.Deck })

	case models.MsgUpdatePlayerName:
		var p models.PlayerFieldPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.setPlayerField(senderID, func(pl *models.Player) { pl.Name = p.Name })

	case models.MsgChangePlayerColor:
		var p models.PlayerFieldPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.changePlayerColor(senderID, p.Color)

	case models.MsgUpdatePlayerScore:
		var p models.PlayerFieldPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.setPlayerField(senderID, func(pl *models.Player) { pl.Score = p.Score })

	case models.MsgStartReadyCheck:
		g.StartReadyCheck(senderID)

	case models.MsgAction:
		g.handleAction(peerID, senderID, msg.Data)

	case models.MsgAbilityAction:
		var action models.AbilityAction
		if !g.decode(msg.Data, &action, msg.Type) {
			return
		}
		g.DispatchAbility(senderID, action)

	case models.MsgRequestTargeting:
		var p models.TargetingRequestPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.RequestTargeting(senderID, p.Action, p.SourceCoords)

	case models.MsgNextPhase:
		g.mutatePhase(senderID, func(s *models.GameState) { NextPhase(s, g.infoFor) })

	case models.MsgPrevPhase:
		g.mutatePhase(senderID, func(s *models.GameState) { PrevPhase(s, g.infoFor) })

	case models.MsgSetPhase:
		var p models.SetPhasePayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.mutatePhase(senderID, func(s *models.GameState) { SetPhase(s, p.PhaseIndex, g.infoFor) })

	case models.MsgToggleActivePlayer:
		var p models.PlayerRefPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		g.mutatePhase(senderID, func(s *models.GameState) { ToggleActivePlayer(s, p.PlayerID, g.infoFor) })

	case models.MsgToggleAutoDraw:
		g.setPlayerField(senderID, func(pl *models.Player) { pl.AutoDrawEnabled = !pl.AutoDrawEnabled })

	case models.MsgStartNextRound:
		g.mutatePhase(senderID, func(s *models.GameState) { StartNextRound(s) })

	case models.MsgSetTargetingMode:
		var p models.TargetingPayload
		if !g.decode(msg.Data, &p, msg.Type) {
			return
		}
		if p.TargetingMode == nil {
			g.log.WithField("player", senderID).Warn("set targeting mode without a record")
			return
		}
		g.SetTargetingMode(senderID, p.TargetingMode)

	case models.MsgClearTargetingMode:
		g.ClearTargetingMode(senderID)

	case models.MsgTriggerHighlight, models.MsgTriggerFloatingText,
		models.MsgTriggerFloatingTextBatch, models.MsgTriggerNoTarget:
		// Cosmetic passthroughs never touch state; they just fan out to the
		// other peers.
		g.rebroadcast(peerID, senderID, msg)

	default:
		g.log.WithFields(logrus.Fields{"type": msg.Type, "player": senderID}).
			Warn("unhandled message type")
	}
}

// handleAction unwraps an ACTION envelope into the full-state or delta path.
func (g *HostGame) handleAction(peerID uuid.UUID, senderID int, data json.RawMessage) {
	var env models.ActionEnvelope
	if !g.decode(data, &env, models.MsgAction) {
		return
	}
	switch env.ActionType {
	case models.ActionStateUpdate:
		var state models.GameState
		if err := json.Unmarshal(env.ActionData, &state); err != nil {
			g.log.WithError(err).WithField("player", senderID).Warn("bad full-state payload")
			return
		}
		g.UpdateFromGuest(senderID, &state, peerID)

	case models.ActionStateDelta:
		var delta StateDelta
		if err := json.Unmarshal(env.ActionData, &delta); err != nil {
			g.log.WithError(err).WithField("player", senderID).Warn("bad delta payload")
			return
		}
		g.ApplyDeltaFromGuest(senderID, &delta, peerID)

	default:
		g.log.WithFields(logrus.Fields{"actionType": env.ActionType, "player": senderID}).
			Warn("unknown action sub-type")
	}
}

// setPlayerField applies a single-field change to the sender's own seat.
func (g *HostGame) setPlayerField(playerID int, fn func(p *models.Player)) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.State.PlayerByID(playerID) == nil {
		g.log.WithField("player", playerID).Warn("field change for unknown player")
		return
	}
	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		fn(s.PlayerByID(playerID))
	})
}

// changePlayerColor enforces color uniqueness across seats.
func (g *HostGame) changePlayerColor(playerID int, color string) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	for _, p := range g.State.Players {
		if p.ID != playerID && p.Color == color {
			g.log.WithFields(logrus.Fields{"player": playerID, "color": color}).
				Warn("color already taken")
			return
		}
	}
	if g.State.PlayerByID(playerID) == nil {
		return
	}
	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		s.PlayerByID(playerID).Color = color
	})
}

// mutatePhase wraps a phase/turn operation in the standard diff-and-broadcast
// flow.
func (g *HostGame) mutatePhase(senderID int, fn func(s *models.GameState)) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.mutateAndBroadcast(senderID, uuid.Nil, fn)
}

// rebroadcast forwards a cosmetic trigger untouched to everyone but the
// sender, stamping the authoritative sender id.
func (g *HostGame) rebroadcast(peerID uuid.UUID, senderID int, msg models.Message) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	msg.SenderID = senderID
	msg.Timestamp = time.Now().UnixMilli()
	g.send(peerID, msg)
	g.touchInactivity()
}

func (g *HostGame) decode(data json.RawMessage, v interface{}, t models.MessageType) bool {
	if err := json.Unmarshal(data, v); err != nil {
		g.log.WithError(err).WithField("type", t).Warn("bad message payload")
		return false
	}
	return true
}
