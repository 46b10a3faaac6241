// internal/game/ready.go
package game

import (
	"github.com/gridfall/gridfall/internal/models"
)

// AbilityLookup resolves the ability definition for a card. The effect
// catalog itself lives outside the core; the engine only needs existence and
// activation conditions.
type AbilityLookup func(card *models.Card) models.AbilityInfo

// NoAbilities is the zero lookup: every card is ability-less and the ready
// engine is a no-op for it.
func NoAbilities(*models.Card) models.AbilityInfo { return models.AbilityInfo{} }

var readyStatusTypes = []models.StatusType{
	models.StatusReadyDeploy,
	models.StatusReadySetup,
	models.StatusReadyCommit,
}

// readyTargetSet computes which ready flags the card should currently carry.
//
// Priority order: a card not owned by the active player, or stunned, gets
// nothing. A pending Deploy flag is kept in any phase until consumed or
// skipped. Otherwise Setup/Commit eligibility is phase-gated, condition-gated
// and once-per-turn.
func readyTargetSet(card *models.Card, activePlayerID *int, phase models.Phase, info models.AbilityInfo) map[models.StatusType]bool {
	target := map[models.StatusType]bool{}

	if activePlayerID == nil || card.OwnerID != *activePlayerID || card.HasStatus(models.StatusStun) {
		return target
	}

	if info.HasDeploy && card.HasStatus(models.StatusReadyDeploy) {
		target[models.StatusReadyDeploy] = true
		return target
	}

	if phase == models.PhaseSetup && info.HasSetup &&
		info.SetupCondition.Met(card) && !card.HasStatus(models.StatusSetupUsedThisTurn) {
		target[models.StatusReadySetup] = true
	}
	if phase == models.PhaseCommit && info.HasCommit &&
		info.CommitCondition.Met(card) && !card.HasStatus(models.StatusCommitUsedThisTurn) {
		target[models.StatusReadyCommit] = true
	}
	return target
}

// UpdateCardReadyStatuses syncs the card's actual ready flags to the derived
// target set, removing stale flags and adding missing ones. Non-ready
// statuses are untouched.
func UpdateCardReadyStatuses(card *models.Card, activePlayerID *int, phase models.Phase, info models.AbilityInfo) {
	target := readyTargetSet(card, activePlayerID, phase, info)
	for _, t := range readyStatusTypes {
		if target[t] && !card.HasStatus(t) {
			card.AddStatus(t, card.OwnerID)
		}
		if !target[t] && card.HasStatus(t) {
			card.RemoveStatus(t)
		}
	}
}

// InitializeCardReadyStatuses is called exactly once, when a card enters the
// board. Deploy, if present, is granted regardless of phase; otherwise the
// phase-appropriate Setup/Commit flag is granted when the current phase
// matches.
func InitializeCardReadyStatuses(card *models.Card, ownerID int, info models.AbilityInfo, phase models.Phase) {
	card.OwnerID = ownerID
	card.AddStatus(models.StatusEnteredThisTurn, ownerID)

	switch {
	case info.HasDeploy:
		card.AddStatus(models.StatusReadyDeploy, ownerID)
	case phase == models.PhaseSetup && info.HasSetup:
		card.AddStatus(models.StatusReadySetup, ownerID)
	case phase == models.PhaseCommit && info.HasCommit:
		card.AddStatus(models.StatusReadyCommit, ownerID)
	}
}

// MarkDeployAbilityUsed removes the Deploy flag productively: the ability
// fired, and a phase-appropriate successor flag may be granted immediately.
func MarkDeployAbilityUsed(card *models.Card, phase models.Phase, info models.AbilityInfo) {
	card.RemoveStatus(models.StatusReadyDeploy)

	if phase == models.PhaseSetup && info.HasSetup &&
		info.SetupCondition.Met(card) && !card.HasStatus(models.StatusSetupUsedThisTurn) {
		card.AddStatus(models.StatusReadySetup, card.OwnerID)
	}
	if phase == models.PhaseCommit && info.HasCommit &&
		info.CommitCondition.Met(card) && !card.HasStatus(models.StatusCommitUsedThisTurn) {
		card.AddStatus(models.StatusReadyCommit, card.OwnerID)
	}
}

// SkipDeployAbility removes the Deploy flag unproductively: the player chose
// not to use it, and no successor flag is granted.
func SkipDeployAbility(card *models.Card) {
	card.RemoveStatus(models.StatusReadyDeploy)
}

// MarkSetupAbilityUsed consumes the Setup flag and records the once-per-turn
// usage. The usage marker survives phase changes within the turn.
func MarkSetupAbilityUsed(card *models.Card) {
	card.RemoveStatus(models.StatusReadySetup)
	card.AddStatus(models.StatusSetupUsedThisTurn, card.OwnerID)
}

// MarkCommitAbilityUsed consumes the Commit flag and records the usage.
func MarkCommitAbilityUsed(card *models.Card) {
	card.RemoveStatus(models.StatusReadyCommit)
	card.AddStatus(models.StatusCommitUsedThisTurn, card.OwnerID)
}

// HasReadyAbilityInPhase reports whether the card has an activatable ability
// right now. A pending Deploy flag is activatable in every phase; Setup and
// Commit only in theirs.
func HasReadyAbilityInPhase(card *models.Card, phase models.Phase) bool {
	if card.HasStatus(models.StatusReadyDeploy) {
		return true
	}
	if phase == models.PhaseSetup && card.HasStatus(models.StatusReadySetup) {
		return true
	}
	if phase == models.PhaseCommit && card.HasStatus(models.StatusReadyCommit) {
		return true
	}
	return false
}

// clearReadyFlagsForPlayer strips the Setup/Commit bookkeeping flags from one
// player's board cards. Deploy flags persist until consumed or skipped.
func clearReadyFlagsForPlayer(state *models.GameState, playerID int) {
	state.Board.EachCard(func(_ models.Coord, card *models.Card) {
		if card.OwnerID != playerID {
			return
		}
		card.RemoveStatus(models.StatusReadySetup)
		card.RemoveStatus(models.StatusReadyCommit)
	})
}

// clearTurnUsageForPlayer clears the once-per-turn usage markers when the
// owning player's turn ends.
func clearTurnUsageForPlayer(state *models.GameState, playerID int) {
	state.Board.EachCard(func(_ models.Coord, card *models.Card) {
		if card.OwnerID != playerID {
			return
		}
		card.RemoveStatus(models.StatusSetupUsedThisTurn)
		card.RemoveStatus(models.StatusCommitUsedThisTurn)
	})
}

// refreshBoardReadyStatuses re-derives ready flags for every board card.
func refreshBoardReadyStatuses(state *models.GameState, infoFor AbilityLookup) {
	state.Board.EachCard(func(_ models.Coord, card *models.Card) {
		UpdateCardReadyStatuses(card, state.ActivePlayerID, state.CurrentPhase, infoFor(card))
	})
}
