// internal/models/message.go
package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// MessageType tags every envelope that crosses the peer channel.
type MessageType string

const (
	// Session membership.
	MsgJoinRequest MessageType = "JOIN_REQUEST"
	MsgJoinReply   MessageType = "JOIN_REPLY"

	// Single-field player mutations, host-applied and rebroadcast as deltas.
	MsgPlayerReady       MessageType = "PLAYER_READY"
	MsgChangePlayerDeck  MessageType = "CHANGE_PLAYER_DECK"
	MsgUpdatePlayerName  MessageType = "UPDATE_PLAYER_NAME"
	MsgChangePlayerColor MessageType = "CHANGE_PLAYER_COLOR"
	MsgUpdatePlayerScore MessageType = "UPDATE_PLAYER_SCORE"

	// Bulk state flow.
	MsgAction MessageType = "ACTION"

	// Phase/turn controls.
	MsgNextPhase          MessageType = "NEXT_PHASE"
	MsgPrevPhase          MessageType = "PREV_PHASE"
	MsgSetPhase           MessageType = "SET_PHASE"
	MsgToggleActivePlayer MessageType = "TOGGLE_ACTIVE_PLAYER"
	MsgToggleAutoDraw     MessageType = "TOGGLE_AUTO_DRAW"
	MsgStartNextRound     MessageType = "START_NEXT_ROUND"

	// Ability invocations, host-validated and dispatched.
	MsgAbilityAction    MessageType = "ABILITY_ACTION"
	MsgRequestTargeting MessageType = "REQUEST_TARGETING"

	// Targeting broadcast layer.
	MsgSetTargetingMode   MessageType = "SET_TARGETING_MODE"
	MsgClearTargetingMode MessageType = "CLEAR_TARGETING_MODE"

	// Pre-game ready check.
	MsgStartReadyCheck MessageType = "START_READY_CHECK"

	// Cosmetic passthroughs, rebroadcast verbatim.
	MsgTriggerHighlight         MessageType = "TRIGGER_HIGHLIGHT"
	MsgTriggerFloatingText      MessageType = "TRIGGER_FLOATING_TEXT"
	MsgTriggerFloatingTextBatch MessageType = "TRIGGER_FLOATING_TEXT_BATCH"
	MsgTriggerNoTarget          MessageType = "TRIGGER_NO_TARGET"

	// Lifecycle notifications, host to all.
	MsgGameStart              MessageType = "GAME_START"
	MsgPlayerDisconnected     MessageType = "PLAYER_DISCONNECTED"
	MsgPlayerReconnected      MessageType = "PLAYER_RECONNECTED"
	MsgPlayerConvertedToDummy MessageType = "PLAYER_CONVERTED_TO_DUMMY"
	MsgGameTerminated         MessageType = "GAME_TERMINATED"
)

// Message is the wire envelope. Data holds the type-specific payload.
type Message struct {
	Type      MessageType     `json:"type"`
	SenderID  int             `json:"senderId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Action sub-types carried inside an ACTION envelope.
const (
	ActionStateUpdate = "STATE_UPDATE"
	ActionStateDelta  = "STATE_DELTA"
)

// ActionEnvelope wraps a full-state or delta payload.
type ActionEnvelope struct {
	ActionType string          `json:"actionType"`
	ActionData json.RawMessage `json:"actionData"`
}

// JoinRequest is the first message a connecting guest sends.
type JoinRequest struct {
	PlayerName string `json:"playerName"`
	// Passcode is required when the host configured one.
	Passcode string `json:"passcode,omitempty"`
	// ReconnectToken, when present, reclaims an existing seat instead of
	// allocating a new one.
	ReconnectToken string `json:"reconnectToken,omitempty"`
	// PeerID identifies the transport endpoint for host rediscovery.
	PeerID uuid.UUID `json:"peerId"`
}

// JoinReply carries the allocated seat and a minimal state projection.
type JoinReply struct {
	PlayerID       int             `json:"playerId"`
	Color          string          `json:"color"`
	ReconnectToken string          `json:"reconnectToken"`
	State          json.RawMessage `json:"state"`
}

// SetPhasePayload selects an explicit phase.
type SetPhasePayload struct {
	PhaseIndex int `json:"phaseIndex"`
}

// PlayerRefPayload references a player by id.
type PlayerRefPayload struct {
	PlayerID int `json:"playerId"`
}

// PlayerFieldPayload carries a single-field player mutation.
type PlayerFieldPayload struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name,omitempty"`
	Color    string `json:"color,omitempty"`
	Deck     string `json:"deck,omitempty"`
	Score    int    `json:"score,omitempty"`
	IsReady  bool   `json:"isReady,omitempty"`
}

// TargetingRequestPayload asks the host to compute and broadcast the valid
// targets for an ability the sender is about to aim.
type TargetingRequestPayload struct {
	Action       AbilityActionType `json:"action"`
	SourceCoords *Coord            `json:"sourceCoords,omitempty"`
}

// TargetingPayload carries a targeting-mode record.
type TargetingPayload struct {
	TargetingMode *TargetingModeData `json:"targetingMode"`
}

// MarshalData is a small helper for building envelopes.
func MarshalData(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
