// internal/models/player.go
package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one seat in a session. IDs are assigned sequentially on join and
// never reused within a session; turn order is derived by sorting on ID, not
// by slice position.
type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`

	// Privacy-sensitive zones. Only the owning client may originate changes
	// to these; the host never trusts a non-owner's view of them.
	Hand    []*Card `json:"hand"`
	Deck    []*Card `json:"deck"`
	Discard []*Card `json:"discard"`

	Score           int    `json:"score"`
	IsDummy         bool   `json:"isDummy"`
	IsDisconnected  bool   `json:"isDisconnected"`
	IsReady         bool   `json:"isReady"`
	SelectedDeck    string `json:"selectedDeck,omitempty"`
	TeamID          int    `json:"teamId,omitempty"`
	AutoDrawEnabled bool   `json:"autoDrawEnabled"`

	// Transport identity of the live connection, if any.
	PeerID uuid.UUID       `json:"-"`
	Conn   *websocket.Conn `json:"-"`
}

// Clone deep-copies the player. Connection fields are carried by reference;
// they are not part of replicated state.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Hand = CloneCards(p.Hand)
	cp.Deck = CloneCards(p.Deck)
	cp.Discard = CloneCards(p.Discard)
	return &cp
}
