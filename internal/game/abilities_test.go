// internal/game/abilities_test.go
package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridfall/gridfall/internal/models"
)

func newDispatcherState(t *testing.T) (*Dispatcher, *models.GameState, *models.Card) {
	t.Helper()
	s := newTestState(2)
	s.CurrentPhase = models.PhaseSetup
	s.ActivePlayerID = models.IntPtr(1)

	source := &models.Card{ID: "src", OwnerID: 1, Power: 2}
	source.AddStatus(models.StatusReadySetup, 1)
	s.Board.SetCard(models.Coord{Row: 0, Col: 0}, source)

	d := NewDispatcher(lookupFor(models.AbilityInfo{HasSetup: true}), nil)
	return d, s, source
}

func TestDispatch_BoostPower(t *testing.T) {
	d, s, source := newDispatcherState(t)
	target := &models.Card{ID: "tgt", OwnerID: 1, Power: 3}
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, target)

	ok := d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 1, Col: 1},
		Amount:       2,
	})

	require.True(t, ok)
	assert.Equal(t, 5, target.EffectivePower())
	assert.False(t, source.HasStatus(models.StatusReadySetup), "flag consumed")
	assert.True(t, source.HasStatus(models.StatusSetupUsedThisTurn))
}

func TestDispatch_RejectsWrongSourceOrOwner(t *testing.T) {
	d, s, _ := newDispatcherState(t)

	assert.False(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 2, Col: 2},
		SourceCardID: "src",
	}), "card not at declared coords")

	assert.False(t, d.Dispatch(s, 2, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
	}), "not the owner")
}

func TestDispatch_RejectsWrongPhaseForMode(t *testing.T) {
	d, s, _ := newDispatcherState(t)
	s.CurrentPhase = models.PhaseMain

	assert.False(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
	}), "setup activation outside Setup phase")
}

func TestDispatch_DeployUsableInAnyPhase(t *testing.T) {
	s := newTestState(2)
	s.CurrentPhase = models.PhaseScoring
	s.ActivePlayerID = models.IntPtr(1)

	source := &models.Card{ID: "src", OwnerID: 1}
	source.AddStatus(models.StatusReadyDeploy, 1)
	s.Board.SetCard(models.Coord{Row: 0, Col: 0}, source)

	d := NewDispatcher(lookupFor(models.AbilityInfo{HasDeploy: true}), nil)
	ok := d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionDrawCards,
		Mode:         models.ModeDeploy,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		Amount:       1,
	})

	require.True(t, ok)
	assert.False(t, source.HasStatus(models.StatusReadyDeploy))
}

func TestDispatch_DamageConsumesShieldFirst(t *testing.T) {
	d, s, _ := newDispatcherState(t)
	target := &models.Card{ID: "tgt", OwnerID: 2, Power: 5}
	target.AddStatus(models.StatusShield, 2)
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, target)

	action := models.AbilityAction{
		Type:         models.ActionDamageCard,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 1, Col: 1},
		Amount:       3,
	}
	require.True(t, d.Dispatch(s, 1, action))

	assert.False(t, target.HasStatus(models.StatusShield), "shield absorbed the hit")
	assert.Equal(t, 5, target.EffectivePower(), "no power lost through the shield")
}

func TestDispatch_MoveCardRequiresEmptyDestination(t *testing.T) {
	d, s, source := newDispatcherState(t)
	blocker := &models.Card{ID: "blk", OwnerID: 2}
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, blocker)

	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionMoveCard,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 1, Col: 1},
	}))
	assert.Same(t, source, s.Board.CardAt(models.Coord{Row: 0, Col: 0}), "occupied destination blocks the move")

	// Fresh flag for the second attempt.
	source.AddStatus(models.StatusReadySetup, 1)
	source.RemoveStatus(models.StatusSetupUsedThisTurn)
	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionMoveCard,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 2, Col: 3},
	}))
	assert.Nil(t, s.Board.CardAt(models.Coord{Row: 0, Col: 0}), "card left the old cell")
	assert.Same(t, source, s.Board.CardAt(models.Coord{Row: 2, Col: 3}))
}

func TestDispatch_ChainedActionsRunInOrder(t *testing.T) {
	d, s, _ := newDispatcherState(t)
	target := &models.Card{ID: "tgt", OwnerID: 1, Power: 1}
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, target)

	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 1, Col: 1},
		Amount:       2,
		ChainedAction: &models.AbilityAction{
			Type:         models.ActionGrantStatus,
			TargetCoords: &models.Coord{Row: 1, Col: 1},
			Status:       models.StatusShield,
		},
	}))

	assert.Equal(t, 3, target.EffectivePower())
	assert.True(t, target.HasStatus(models.StatusShield))
}

func TestDispatch_ClearsTargetingMode(t *testing.T) {
	d, s, _ := newDispatcherState(t)
	s.TargetingMode = &models.TargetingModeData{PlayerID: 1}
	target := &models.Card{ID: "tgt", OwnerID: 1}
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, target)

	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 1, Col: 1},
		Amount:       1,
	}))
	assert.Nil(t, s.TargetingMode)
}

func TestDispatch_DiscardCard(t *testing.T) {
	d, s, _ := newDispatcherState(t)
	p2 := s.PlayerByID(2)
	p2.Hand = deckOf(3, 2)
	victim := p2.Hand[1]

	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:           models.ActionDiscardCard,
		Mode:           models.ModeSetup,
		SourceCoords:   models.Coord{Row: 0, Col: 0},
		SourceCardID:   "src",
		TargetPlayerID: models.IntPtr(2),
		TargetHandIdx:  models.IntPtr(1),
	}))

	assert.Len(t, p2.Hand, 2)
	require.Len(t, p2.Discard, 1)
	assert.Same(t, victim, p2.Discard[0])
}

func TestDispatch_RejectedWhileAnotherSelectionPending(t *testing.T) {
	d, s, _ := newDispatcherState(t)

	require.True(t, d.BeginInteraction(2))
	assert.False(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 0, Col: 0},
		Amount:       1,
	}), "another player's selection window is open")

	d.EndInteraction(2)
	assert.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 0, Col: 0},
		Amount:       1,
	}))
}

func TestDispatch_ClosesOwnSelectionWindow(t *testing.T) {
	d, s, _ := newDispatcherState(t)

	require.True(t, d.BeginInteraction(1))
	require.True(t, d.Dispatch(s, 1, models.AbilityAction{
		Type:         models.ActionBoostPower,
		Mode:         models.ModeSetup,
		SourceCoords: models.Coord{Row: 0, Col: 0},
		SourceCardID: "src",
		TargetCoords: &models.Coord{Row: 0, Col: 0},
		Amount:       1,
	}))

	assert.True(t, d.BeginInteraction(2), "dispatch released the window on exit")
}

func TestTargetingForAction_PerActionPredicates(t *testing.T) {
	s := newTestState(2)
	s.Board.SetCard(models.Coord{Row: 0, Col: 0}, &models.Card{ID: "own", OwnerID: 1})
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, &models.Card{ID: "foe", OwnerID: 2})
	s.PlayerByID(2).Hand = deckOf(2, 2)

	boost := TargetingForAction(s, 1, models.ActionBoostPower, nil)
	require.NotNil(t, boost)
	assert.Equal(t, []models.Coord{{Row: 0, Col: 0}}, boost.BoardTargets)

	damage := TargetingForAction(s, 1, models.ActionDamageCard, nil)
	assert.Equal(t, []models.Coord{{Row: 1, Col: 1}}, damage.BoardTargets)

	move := TargetingForAction(s, 1, models.ActionMoveCard, nil)
	assert.Len(t, move.BoardTargets, 4*5-2, "every empty cell is a move target")

	draw := TargetingForAction(s, 1, models.ActionDrawCards, nil)
	assert.True(t, draw.IsDeckSelectable)
	assert.Empty(t, draw.BoardTargets)

	discard := TargetingForAction(s, 1, models.ActionDiscardCard, nil)
	assert.Equal(t, []int{0, 1}, discard.HandTargets[2])

	assert.Nil(t, TargetingForAction(s, 1, "bogus", nil))
}

func TestComputeTargetingMode_FreezesValidTargets(t *testing.T) {
	s := newTestState(2)
	s.Board.SetCard(models.Coord{Row: 0, Col: 0}, &models.Card{ID: "a", OwnerID: 1})
	s.Board.SetCard(models.Coord{Row: 1, Col: 1}, &models.Card{ID: "b", OwnerID: 2})
	s.PlayerByID(2).Hand = deckOf(2, 2)

	mode := ComputeTargetingMode(s, 1, "damageCard", &models.Coord{Row: 0, Col: 0},
		func(_ *models.GameState, _ models.Coord, card *models.Card) bool {
			return card != nil && card.OwnerID != 1
		},
		func(_ *models.GameState, ownerID int, _ int, _ *models.Card) bool {
			return ownerID != 1
		},
		false,
	)

	assert.Equal(t, 1, mode.PlayerID)
	assert.Equal(t, []models.Coord{{Row: 1, Col: 1}}, mode.BoardTargets)
	assert.Equal(t, []int{0, 1}, mode.HandTargets[2])
	assert.NotContains(t, mode.HandTargets, 1)
	assert.NotZero(t, mode.Timestamp)
}
