// internal/game/phase.go
package game

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/models"
)

// RoundWinTarget is how many round wins end the game.
const RoundWinTarget = 2

// RoundThreshold is the victory score for a given round: 20 for round 1, 30
// for round 2, and so on.
func RoundThreshold(round int) int {
	return 10 + 10*round
}

// SetPhase moves the cycle to an explicit phase. Preparation delegates to
// PerformPreparationPhase; anything out of range is logged and ignored.
func SetPhase(state *models.GameState, phaseIndex int, infoFor AbilityLookup) {
	phase := models.Phase(phaseIndex)
	if !phase.Valid() {
		logrus.WithFields(logrus.Fields{"game": state.GameID, "phase": phaseIndex}).
			Warn("ignoring out-of-range phase index")
		return
	}
	if phase == models.PhasePreparation {
		state.CurrentPhase = models.PhasePreparation
		if state.ActivePlayerID != nil {
			PerformPreparationPhase(state, *state.ActivePlayerID, infoFor)
		}
		return
	}
	state.CurrentPhase = phase
}

// NextPhase advances the cycle one step, wrapping Scoring back to
// Preparation. The round counter is not touched here; rounds advance through
// the round-end flow.
func NextPhase(state *models.GameState, infoFor AbilityLookup) {
	next := int(state.CurrentPhase+1) % (int(models.PhaseScoring) + 1)
	SetPhase(state, next, infoFor)
}

// PrevPhase regresses the cycle one step.
func PrevPhase(state *models.GameState, infoFor AbilityLookup) {
	prev := int(state.CurrentPhase) - 1
	if prev < 0 {
		prev = int(models.PhaseScoring)
	}
	SetPhase(state, prev, infoFor)
}

// PerformPreparationPhase runs the active player's upkeep: draw one card
// (empty deck is a no-op, not an error), clear the player's Setup/Commit
// ready flags, move to Setup, re-derive ready statuses, then check round end.
// Deploy flags are deliberately left alone through all of this.
func PerformPreparationPhase(state *models.GameState, activePlayerID int, infoFor AbilityLookup) {
	if state.CurrentPhase != models.PhasePreparation {
		logrus.WithFields(logrus.Fields{"game": state.GameID, "phase": state.CurrentPhase}).
			Warn("preparation requested outside preparation phase")
		return
	}
	player := state.PlayerByID(activePlayerID)
	if player == nil {
		logrus.WithFields(logrus.Fields{"game": state.GameID, "player": activePlayerID}).
			Warn("preparation for unknown player")
		return
	}

	if player.AutoDrawEnabled {
		drawOne(player)
	}
	clearReadyFlagsForPlayer(state, activePlayerID)

	state.CurrentPhase = models.PhaseSetup
	refreshBoardReadyStatuses(state, infoFor)

	if winners := CheckRoundEnd(state); len(winners) > 0 {
		EndRound(state)
	}
}

// drawOne moves the top deck card into the hand. No-op on an empty deck.
func drawOne(player *models.Player) {
	if len(player.Deck) == 0 {
		return
	}
	card := player.Deck[0]
	player.Deck = player.Deck[1:]
	player.Hand = append(player.Hand, card)
}

// ToggleActivePlayer implements the select/deselect turn control. Selecting
// the currently active player deselects them (and, if they were the starting
// player during Setup, re-checks round end). Selecting anyone else makes them
// active, bumps the turn counter when a full rotation completed, and runs
// their Preparation.
func ToggleActivePlayer(state *models.GameState, targetPlayerID int, infoFor AbilityLookup) {
	target := state.PlayerByID(targetPlayerID)
	if target == nil {
		logrus.WithFields(logrus.Fields{"game": state.GameID, "player": targetPlayerID}).
			Warn("toggle for unknown player")
		return
	}

	if state.ActivePlayerID != nil && *state.ActivePlayerID == targetPlayerID {
		state.ActivePlayerID = nil
		if state.StartingPlayerID != nil && *state.StartingPlayerID == targetPlayerID &&
			state.CurrentPhase == models.PhaseSetup {
			if winners := CheckRoundEnd(state); len(winners) > 0 {
				EndRound(state)
			}
		}
		return
	}

	hadActive := state.ActivePlayerID != nil
	state.ActivePlayerID = models.IntPtr(targetPlayerID)

	if hadActive && state.StartingPlayerID != nil && *state.StartingPlayerID == targetPlayerID {
		state.TurnNumber++
	}

	state.CurrentPhase = models.PhasePreparation
	PerformPreparationPhase(state, targetPlayerID, infoFor)
}

// NextPlayerID returns the next seat in turn order after currentID. Turn
// order is every non-disconnected player (dummies included), ascending by id,
// wrapping from last to first. ok is false when nobody is eligible.
func NextPlayerID(state *models.GameState, currentID int) (next int, ok bool) {
	ids := make([]int, 0, len(state.Players))
	for _, p := range state.Players {
		if !p.IsDisconnected {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0, false
	}
	sort.Ints(ids)
	for _, id := range ids {
		if id > currentID {
			return id, true
		}
	}
	return ids[0], true
}

// PassTurnToNextPlayer performs an automatic turn pass: the outgoing player's
// cards lose their Stun statuses and turn-limited usage markers, board-wide
// entered-this-turn flags and the targeting mode are cleared, and the next
// player becomes active in Preparation.
func PassTurnToNextPlayer(state *models.GameState, infoFor AbilityLookup) {
	if state.ActivePlayerID == nil {
		logrus.WithField("game", state.GameID).Warn("pass turn with no active player")
		return
	}
	outgoing := *state.ActivePlayerID

	state.Board.EachCard(func(_ models.Coord, card *models.Card) {
		if card.OwnerID == outgoing {
			card.RemoveStatus(models.StatusStun)
		}
		card.RemoveStatus(models.StatusEnteredThisTurn)
	})
	clearTurnUsageForPlayer(state, outgoing)
	state.TargetingMode = nil

	next, ok := NextPlayerID(state, outgoing)
	if !ok {
		logrus.WithField("game", state.GameID).Warn("no eligible player to pass turn to")
		state.ActivePlayerID = nil
		return
	}

	state.ActivePlayerID = models.IntPtr(next)
	state.CurrentPhase = models.PhasePreparation
	PerformPreparationPhase(state, next, infoFor)
}

// CheckRoundEnd returns the ids of this round's winners, or nil when the
// round continues. The check only fires at the top of a full rotation: phase
// Setup with the starting player active. Dummies and disconnected players
// cannot win a round.
func CheckRoundEnd(state *models.GameState) []int {
	if state.CurrentPhase != models.PhaseSetup {
		return nil
	}
	if state.ActivePlayerID == nil || state.StartingPlayerID == nil ||
		*state.ActivePlayerID != *state.StartingPlayerID {
		return nil
	}

	threshold := RoundThreshold(state.CurrentRound)
	var winners []int
	for _, p := range state.Players {
		if p.IsDummy || p.IsDisconnected {
			continue
		}
		if p.Score >= threshold {
			winners = append(winners, p.ID)
		}
	}
	sort.Ints(winners)
	return winners
}

// EndRound records the round's winners and, once somebody holds two round
// wins, declares the game winner. Ties on the same evaluation resolve to the
// lowest player id. Idempotent: a no-op when CheckRoundEnd says the round
// should not end or the round is already recorded.
func EndRound(state *models.GameState) {
	winners := CheckRoundEnd(state)
	if len(winners) == 0 {
		return
	}
	if _, recorded := state.RoundWinners[state.CurrentRound]; recorded {
		return
	}
	state.RoundWinners[state.CurrentRound] = winners

	tally := make(map[int]int)
	for _, roundWinners := range state.RoundWinners {
		for _, id := range roundWinners {
			tally[id]++
		}
	}
	gameWinner := -1
	for id, wins := range tally {
		if wins < RoundWinTarget {
			continue
		}
		if gameWinner == -1 || id < gameWinner {
			gameWinner = id
		}
	}
	if gameWinner != -1 {
		state.GameWinner = models.IntPtr(gameWinner)
	}

	state.IsRoundEndModalOpen = true
}

// StartNextRound resets scores and the turn counter for a fresh round. Board
// contents and card statuses are preserved; only scores reset.
func StartNextRound(state *models.GameState) {
	for _, p := range state.Players {
		p.Score = 0
	}
	state.CurrentRound++
	state.TurnNumber = 0
	state.IsRoundEndModalOpen = false
}
