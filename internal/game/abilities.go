// internal/game/abilities.go
package game

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/models"
)

// maxChainDepth bounds chained follow-ups so a miswired effect chain cannot
// spin the dispatch loop forever.
const maxChainDepth = 16

// Dispatcher routes tagged ability actions through validity checks to their
// effect handlers. Mutation itself is serialized by the session lock; the
// interaction lock instead guards the target-selection window: while one
// player has a selection pending (BeginInteraction through Dispatch or
// cancel), every other player's invocation is rejected outright, not queued.
// The loser's click simply does nothing, matching the silent-failure contract.
type Dispatcher struct {
	// pending holds the player id whose selection window is open, 0 when none.
	pending atomic.Int64

	infoFor AbilityLookup
	log     *logrus.Entry
}

func NewDispatcher(infoFor AbilityLookup, log *logrus.Entry) *Dispatcher {
	if infoFor == nil {
		infoFor = NoAbilities
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{infoFor: infoFor, log: log}
}

// BeginInteraction opens the target-selection window for a player. It fails
// while another player's window is open; re-entry by the same player is fine.
func (d *Dispatcher) BeginInteraction(playerID int) bool {
	return d.pending.CompareAndSwap(0, int64(playerID)) || d.pending.Load() == int64(playerID)
}

// EndInteraction closes the window if the given player holds it.
func (d *Dispatcher) EndInteraction(playerID int) {
	d.pending.CompareAndSwap(int64(playerID), 0)
}

// Dispatch validates and executes an ability action, including its chained
// follow-ups, against the given state. Returns whether anything executed.
// Chained actions are processed by this single loop rather than handlers
// calling back into dispatch.
func (d *Dispatcher) Dispatch(state *models.GameState, playerID int, action models.AbilityAction) bool {
	if p := d.pending.Load(); p != 0 && p != int64(playerID) {
		d.log.WithField("player", playerID).Debug("ability dispatch rejected: interaction lock held")
		return false
	}
	// The window must close on every exit path; a wedged lock would freeze
	// all further interaction.
	defer d.EndInteraction(playerID)

	source := state.Board.CardAt(action.SourceCoords)
	if source == nil || source.ID != action.SourceCardID {
		d.log.WithFields(logrus.Fields{"player": playerID, "card": action.SourceCardID}).
			Warn("ability source card not at declared coords")
		return false
	}
	if source.OwnerID != playerID {
		d.log.WithFields(logrus.Fields{"player": playerID, "owner": source.OwnerID}).
			Warn("ability dispatch for non-owned card")
		return false
	}
	if !d.modeReady(source, state.CurrentPhase, action.Mode) {
		d.log.WithFields(logrus.Fields{
			"player": playerID, "card": source.ID,
			"mode": action.Mode, "phase": state.CurrentPhase,
		}).Warn("ability not ready for current phase")
		return false
	}

	queue := []models.AbilityAction{action}
	for depth := 0; len(queue) > 0; depth++ {
		if depth >= maxChainDepth {
			d.log.WithField("player", playerID).Warn("ability chain truncated at depth limit")
			break
		}
		cur := queue[0]
		queue = queue[1:]
		d.applyEffect(state, playerID, cur)
		if cur.ChainedAction != nil {
			queue = append(queue, *cur.ChainedAction)
		}
	}

	d.consumeReadyFlag(source, state.CurrentPhase, action.Mode)
	state.TargetingMode = nil
	return true
}

// modeReady checks the consumed flag matches both the card's current ready
// set and the phase. Deploy is usable in any phase while its flag persists.
func (d *Dispatcher) modeReady(card *models.Card, phase models.Phase, mode models.ActivationMode) bool {
	switch mode {
	case models.ModeDeploy:
		return card.HasStatus(models.StatusReadyDeploy)
	case models.ModeSetup:
		return phase == models.PhaseSetup && card.HasStatus(models.StatusReadySetup)
	case models.ModeCommit:
		return phase == models.PhaseCommit && card.HasStatus(models.StatusReadyCommit)
	default:
		return false
	}
}

func (d *Dispatcher) consumeReadyFlag(card *models.Card, phase models.Phase, mode models.ActivationMode) {
	switch mode {
	case models.ModeDeploy:
		MarkDeployAbilityUsed(card, phase, d.infoFor(card))
	case models.ModeSetup:
		MarkSetupAbilityUsed(card)
	case models.ModeCommit:
		MarkCommitAbilityUsed(card)
	}
}

// applyEffect executes one effect variant. Unmet preconditions are silent
// no-ops; the action simply does not activate.
func (d *Dispatcher) applyEffect(state *models.GameState, playerID int, action models.AbilityAction) {
	switch action.Type {
	case models.ActionBoostPower:
		if card := targetCard(state, action); card != nil {
			card.BonusPower += action.Amount
		}

	case models.ActionDamageCard:
		card := targetCard(state, action)
		if card == nil {
			return
		}
		if card.HasStatus(models.StatusShield) {
			card.RemoveStatus(models.StatusShield)
			return
		}
		card.PowerModifier -= action.Amount

	case models.ActionGrantStatus:
		if card := targetCard(state, action); card != nil && action.Status != "" {
			card.AddStatus(action.Status, playerID)
		}

	case models.ActionMoveCard:
		if action.TargetCoords == nil {
			return
		}
		src := state.Board.CardAt(action.SourceCoords)
		dst := *action.TargetCoords
		if src == nil || !state.Board.InBounds(dst) || state.Board.CardAt(dst) != nil {
			return
		}
		// Exclusive ownership: the card leaves its old cell in the same step.
		state.Board.SetCard(action.SourceCoords, nil)
		state.Board.SetCard(dst, src)

	case models.ActionDrawCards:
		target := playerID
		if action.TargetPlayerID != nil {
			target = *action.TargetPlayerID
		}
		player := state.PlayerByID(target)
		if player == nil {
			return
		}
		for i := 0; i < action.Amount; i++ {
			drawOne(player)
		}

	case models.ActionDiscardCard:
		target := playerID
		if action.TargetPlayerID != nil {
			target = *action.TargetPlayerID
		}
		player := state.PlayerByID(target)
		if player == nil || action.TargetHandIdx == nil {
			return
		}
		idx := *action.TargetHandIdx
		if idx < 0 || idx >= len(player.Hand) {
			return
		}
		card := player.Hand[idx]
		player.Hand = append(player.Hand[:idx], player.Hand[idx+1:]...)
		player.Discard = append(player.Discard, card)

	default:
		d.log.WithField("type", action.Type).Warn("unknown ability action type")
	}
}

// targetCard resolves the board card an effect aims at.
func targetCard(state *models.GameState, action models.AbilityAction) *models.Card {
	if action.TargetCoords == nil {
		return nil
	}
	return state.Board.CardAt(*action.TargetCoords)
}
