// internal/game/targeting.go
package game

import (
	"time"

	"github.com/gridfall/gridfall/internal/models"
)

// BoardTargetPredicate decides whether a board cell is a valid target for an
// in-progress ability. Evaluated once, against the full authoritative state.
type BoardTargetPredicate func(state *models.GameState, coord models.Coord, card *models.Card) bool

// HandTargetPredicate decides whether a card in some player's hand is a valid
// target.
type HandTargetPredicate func(state *models.GameState, ownerID int, handIdx int, card *models.Card) bool

// TargetingForAction derives the stock target set for an ability kind: boosts
// aim at the invoker's own board cards, damage at enemy cards, status grants
// at any occupied cell, moves at empty cells, draws at the deck, discards at
// hand cards. Returns nil for an unknown kind.
func TargetingForAction(state *models.GameState, playerID int, action models.AbilityActionType, source *models.Coord) *models.TargetingModeData {
	var boardPred BoardTargetPredicate
	var handPred HandTargetPredicate
	deckSelectable := false

	switch action {
	case models.ActionBoostPower:
		boardPred = func(_ *models.GameState, _ models.Coord, card *models.Card) bool {
			return card != nil && card.OwnerID == playerID
		}
	case models.ActionDamageCard:
		boardPred = func(_ *models.GameState, _ models.Coord, card *models.Card) bool {
			return card != nil && card.OwnerID != playerID
		}
	case models.ActionGrantStatus:
		boardPred = func(_ *models.GameState, _ models.Coord, card *models.Card) bool {
			return card != nil
		}
	case models.ActionMoveCard:
		boardPred = func(_ *models.GameState, _ models.Coord, card *models.Card) bool {
			return card == nil
		}
	case models.ActionDrawCards:
		deckSelectable = true
	case models.ActionDiscardCard:
		handPred = func(_ *models.GameState, _ int, _ int, _ *models.Card) bool {
			return true
		}
	default:
		return nil
	}

	return ComputeTargetingMode(state, playerID, string(action), source, boardPred, handPred, deckSelectable)
}

// ComputeTargetingMode freezes the valid-target set for an ability into a
// broadcastable record. Targeting validity depends on ownership, statuses and
// positions across the whole state, so it is computed once here and shipped
// to every peer instead of being recomputed against possibly stale mirrors.
func ComputeTargetingMode(
	state *models.GameState,
	playerID int,
	action string,
	source *models.Coord,
	boardPred BoardTargetPredicate,
	handPred HandTargetPredicate,
	deckSelectable bool,
) *models.TargetingModeData {
	mode := &models.TargetingModeData{
		PlayerID:         playerID,
		Action:           action,
		SourceCoords:     source,
		BoardTargets:     []models.Coord{},
		IsDeckSelectable: deckSelectable,
		Timestamp:        time.Now().UnixMilli(),
	}

	if boardPred != nil {
		for r := 0; r < state.Board.Rows; r++ {
			for c := 0; c < state.Board.Cols; c++ {
				coord := models.Coord{Row: r, Col: c}
				if boardPred(state, coord, state.Board.Cells[r][c]) {
					mode.BoardTargets = append(mode.BoardTargets, coord)
				}
			}
		}
	}

	if handPred != nil {
		mode.HandTargets = make(map[int][]int)
		for _, p := range state.Players {
			for i, card := range p.Hand {
				if handPred(state, p.ID, i, card) {
					mode.HandTargets[p.ID] = append(mode.HandTargets[p.ID], i)
				}
			}
		}
		if len(mode.HandTargets) == 0 {
			mode.HandTargets = nil
		}
	}

	return mode
}
