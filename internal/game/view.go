// internal/game/view.go
package game

import (
	"github.com/google/uuid"

	"github.com/gridfall/gridfall/internal/models"
)

// PlayerView is one player as a specific viewer is allowed to see them. The
// viewer's own hand is revealed; for everyone else only zone sizes ship.
type PlayerView struct {
	ID              int            `json:"id"`
	Name            string         `json:"name"`
	Color           string         `json:"color"`
	Score           int            `json:"score"`
	IsDummy         bool           `json:"isDummy"`
	IsDisconnected  bool           `json:"isDisconnected"`
	IsReady         bool           `json:"isReady"`
	SelectedDeck    string         `json:"selectedDeck,omitempty"`
	TeamID          int            `json:"teamId,omitempty"`
	AutoDrawEnabled bool           `json:"autoDrawEnabled"`
	Hand            []*models.Card `json:"hand,omitempty"`
	HandSize        int            `json:"handSize"`
	DeckSize        int            `json:"deckSize"`
	DiscardSize     int            `json:"discardSize"`
}

// StateView is the privacy-filtered snapshot sent to a single guest, used on
// join and reconnect to seed their mirror before delta flow takes over.
type StateView struct {
	GameID  uuid.UUID     `json:"gameId"`
	Players []*PlayerView `json:"players"`
	Board   *models.Board `json:"board"`

	CurrentPhase     models.Phase `json:"currentPhase"`
	ActivePlayerID   *int         `json:"activePlayerId"`
	StartingPlayerID *int         `json:"startingPlayerId"`
	CurrentRound     int          `json:"currentRound"`
	TurnNumber       int          `json:"turnNumber"`

	RoundWinners map[int][]int `json:"roundWinners"`
	GameWinner   *int          `json:"gameWinner"`

	TargetingMode *models.TargetingModeData `json:"targetingMode,omitempty"`

	IsGameStarted       bool `json:"isGameStarted"`
	IsReadyCheckActive  bool `json:"isReadyCheckActive"`
	IsRoundEndModalOpen bool `json:"isRoundEndModalOpen"`
}

// StateForGuest projects the canonical state for one viewer. The board is
// public by definition; hidden zones collapse to counts for everyone except
// the viewer, whose hand is included in full. Decks and discards stay
// host-side for all viewers.
func (g *HostGame) StateForGuest(viewerID int) *StateView {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return projectState(g.State, viewerID)
}

func projectState(s *models.GameState, viewerID int) *StateView {
	view := &StateView{
		GameID:              s.GameID,
		Board:               s.Board.Clone(),
		CurrentPhase:        s.CurrentPhase,
		ActivePlayerID:      cloneInt(s.ActivePlayerID),
		StartingPlayerID:    cloneInt(s.StartingPlayerID),
		CurrentRound:        s.CurrentRound,
		TurnNumber:          s.TurnNumber,
		GameWinner:          cloneInt(s.GameWinner),
		TargetingMode:       s.TargetingMode.Clone(),
		IsGameStarted:       s.IsGameStarted,
		IsReadyCheckActive:  s.IsReadyCheckActive,
		IsRoundEndModalOpen: s.IsRoundEndModalOpen,
	}
	view.RoundWinners = make(map[int][]int, len(s.RoundWinners))
	for k, v := range s.RoundWinners {
		view.RoundWinners[k] = append([]int(nil), v...)
	}
	for _, p := range s.Players {
		pv := &PlayerView{
			ID:              p.ID,
			Name:            p.Name,
			Color:           p.Color,
			Score:           p.Score,
			IsDummy:         p.IsDummy,
			IsDisconnected:  p.IsDisconnected,
			IsReady:         p.IsReady,
			SelectedDeck:    p.SelectedDeck,
			TeamID:          p.TeamID,
			AutoDrawEnabled: p.AutoDrawEnabled,
			HandSize:        len(p.Hand),
			DeckSize:        len(p.Deck),
			DiscardSize:     len(p.Discard),
		}
		if p.ID == viewerID {
			pv.Hand = models.CloneCards(p.Hand)
		}
		view.Players = append(view.Players, pv)
	}
	return view
}
