// internal/game/host_test.go
package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridfall/gridfall/internal/models"
)

// mockChannel collects outgoing messages instead of sending them over WS.
type mockChannel struct {
	mu         sync.Mutex
	broadcasts []models.Message
	sends      map[uuid.UUID][]models.Message
}

func newMockChannel() *mockChannel {
	return &mockChannel{sends: make(map[uuid.UUID][]models.Message)}
}

func (mc *mockChannel) broadcastFn(msg models.Message) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.broadcasts = append(mc.broadcasts, msg)
}

func (mc *mockChannel) sendFn(peerID uuid.UUID, msg models.Message) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.sends[peerID] = append(mc.sends[peerID], msg)
}

func (mc *mockChannel) clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.broadcasts = nil
	mc.sends = make(map[uuid.UUID][]models.Message)
}

// allMessages flattens broadcasts and per-peer sends, broadcasts first.
func (mc *mockChannel) allMessages() []models.Message {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := append([]models.Message(nil), mc.broadcasts...)
	for _, msgs := range mc.sends {
		out = append(out, msgs...)
	}
	return out
}

func (mc *mockChannel) messagesOfType(t models.MessageType) []models.Message {
	var out []models.Message
	for _, m := range mc.allMessages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// broadcastDeltas unwraps every STATE_DELTA carried by an ACTION broadcast.
func (mc *mockChannel) broadcastDeltas(t *testing.T) []StateDelta {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	var out []StateDelta
	for _, m := range mc.broadcasts {
		if m.Type != models.MsgAction {
			continue
		}
		var env models.ActionEnvelope
		require.NoError(t, json.Unmarshal(m.Data, &env))
		if env.ActionType != models.ActionStateDelta {
			continue
		}
		var d StateDelta
		require.NoError(t, json.Unmarshal(env.ActionData, &d))
		out = append(out, d)
	}
	return out
}

// setupHostGame builds a session with seated players and a mock channel.
// Timers that would interfere with assertions are disabled unless a test
// re-enables them.
func setupHostGame(t *testing.T, numPlayers int) (*HostGame, []uuid.UUID, *mockChannel) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.GraceDuration = 40 * time.Millisecond
	cfg.TurnDuration = 0
	cfg.InactivityDuration = 0

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	g := NewHostGame(cfg, NoAbilities, logger)
	mc := newMockChannel()
	g.BroadcastFn = mc.broadcastFn
	g.SendFn = mc.sendFn
	t.Cleanup(g.Cleanup)

	peers := make([]uuid.UUID, numPlayers)
	for i := range peers {
		peers[i] = uuid.New()
		g.AddGuestPlayer(peers[i], "p")
	}
	mc.clear()
	return g, peers, mc
}

func TestAddGuestPlayer_SequentialIDsUniqueColors(t *testing.T) {
	g, _, _ := setupHostGame(t, 3)

	require.Len(t, g.State.Players, 3)
	colors := map[string]bool{}
	for i, p := range g.State.Players {
		assert.Equal(t, i+1, p.ID)
		assert.True(t, p.AutoDrawEnabled)
		assert.False(t, colors[p.Color], "color %s reused", p.Color)
		colors[p.Color] = true
	}
}

func TestAddGuestPlayer_BroadcastExcludesJoiner(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	joiner := uuid.New()
	g.AddGuestPlayer(joiner, "late")

	mc.mu.Lock()
	defer mc.mu.Unlock()
	assert.Empty(t, mc.sends[joiner], "joiner gets the full state in JOIN_REPLY, not the delta")
	assert.NotEmpty(t, mc.sends[peers[0]])
	assert.NotEmpty(t, mc.sends[peers[1]])
}

func TestEmptyDeltaIsNeverBroadcast(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)

	g.UpdateFromLocal(g.State.Clone())
	g.SetPlayerReady(1, false) // already false

	assert.Empty(t, mc.allMessages())
}

func TestStartGame_DealsHandsAndRunsFirstPreparation(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)
	for _, p := range g.State.Players {
		p.Deck = deckOf(10, p.ID)
	}

	g.StartGame()

	assert.True(t, g.State.IsGameStarted)
	require.NotNil(t, g.State.StartingPlayerID)
	require.NotNil(t, g.State.ActivePlayerID)
	assert.Equal(t, *g.State.StartingPlayerID, *g.State.ActivePlayerID)
	assert.Equal(t, models.PhaseSetup, g.State.CurrentPhase, "first Preparation already ran")

	starter := g.State.PlayerByID(*g.State.StartingPlayerID)
	assert.Len(t, starter.Hand, 7, "opening six plus the first upkeep draw")
	for _, p := range g.State.Players {
		if p.ID != starter.ID {
			assert.Len(t, p.Hand, 6)
		}
	}

	msgs := mc.allMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, models.MsgGameStart, msgs[0].Type, "notice precedes the state delta")
	require.NotEmpty(t, mc.broadcastDeltas(t))
}

func TestStartGame_SecondStartIsNoop(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)
	g.StartGame()
	mc.clear()

	g.StartGame()
	assert.Empty(t, mc.messagesOfType(models.MsgGameStart))
}

func TestSetPlayerReady_AutoStartsWhenAllReady(t *testing.T) {
	g, _, _ := setupHostGame(t, 3)
	g.State.IsReadyCheckActive = true
	g.State.Players[2].IsDummy = true // dummies don't gate the start

	g.SetPlayerReady(1, true)
	assert.False(t, g.State.IsGameStarted, "one of two live players ready")

	g.SetPlayerReady(2, true)
	assert.True(t, g.State.IsGameStarted)
	assert.False(t, g.State.IsReadyCheckActive)
}

func TestSetPlayerReady_NoAutoStartWithoutReadyCheck(t *testing.T) {
	g, _, _ := setupHostGame(t, 2)

	g.SetPlayerReady(1, true)
	g.SetPlayerReady(2, true)
	assert.False(t, g.State.IsGameStarted)
}

func TestHandleDisconnect_GraceExpiryConvertsToDummy(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	g.HandleDisconnect(peers[1])

	p2 := g.State.PlayerByID(2)
	assert.True(t, p2.IsDisconnected)
	assert.NotEmpty(t, mc.messagesOfType(models.MsgPlayerDisconnected))

	time.Sleep(80 * time.Millisecond)

	g.Mu.Lock()
	p2 = g.State.PlayerByID(2)
	assert.True(t, p2.IsDummy)
	assert.False(t, p2.IsDisconnected, "a dummy rejoins turn rotation")
	g.Mu.Unlock()
	assert.NotEmpty(t, mc.messagesOfType(models.MsgPlayerConvertedToDummy))
}

func TestHandleReconnect_BeforeGraceRestoresSeat(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	g.HandleDisconnect(peers[1])
	ok := g.HandleReconnect(uuid.New(), 2)
	require.True(t, ok)

	assert.False(t, g.State.PlayerByID(2).IsDisconnected)
	assert.NotEmpty(t, mc.messagesOfType(models.MsgPlayerReconnected))

	time.Sleep(80 * time.Millisecond)

	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.False(t, g.State.PlayerByID(2).IsDummy, "grace timer was cancelled")
}

func TestHandleReconnect_DummySeatIsGone(t *testing.T) {
	g, peers, _ := setupHostGame(t, 2)

	g.HandleDisconnect(peers[1])
	time.Sleep(80 * time.Millisecond)

	assert.False(t, g.HandleReconnect(uuid.New(), 2), "dummy conversion is irreversible")
}

func TestHandleDisconnect_ActivePlayerPassesTurn(t *testing.T) {
	g, peers, _ := setupHostGame(t, 3)
	g.State.IsGameStarted = true
	g.State.ActivePlayerID = models.IntPtr(2)

	g.HandleDisconnect(peers[1])

	require.NotNil(t, g.State.ActivePlayerID)
	assert.Equal(t, 3, *g.State.ActivePlayerID, "turn passed over the departed seat")
}

func TestUpdateFromGuest_ExcludesSenderFromRebroadcast(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	guestView := g.State.Clone()
	guestView.PlayerByID(1).Score = 7

	g.UpdateFromGuest(1, guestView, peers[0])

	assert.Equal(t, 7, g.State.PlayerByID(1).Score)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	assert.Empty(t, mc.sends[peers[0]], "no echo back to the originator")
	assert.NotEmpty(t, mc.sends[peers[1]])
}

func TestApplyDeltaFromGuest_RederivesInsteadOfRelaying(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)
	g.State.PlayerByID(1).Deck = deckOf(10, 1)

	// Guest 1 submits a delta that also claims a fatter deck. The host must
	// apply only the legitimate part and re-derive the outgoing delta from its
	// own snapshots.
	incoming := &StateDelta{
		SourcePlayerID: 1,
		Players: map[int]*PlayerDelta{
			1: {
				Score:   models.IntPtr(3),
				Deck:    deckOf(40, 1),
				DeckSet: true,
			},
		},
	}
	g.ApplyDeltaFromGuest(1, incoming, peers[0])

	assert.Equal(t, 3, g.State.PlayerByID(1).Score)
	assert.Len(t, g.State.PlayerByID(1).Deck, 10)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	require.NotEmpty(t, mc.sends[peers[1]])
	var env models.ActionEnvelope
	require.NoError(t, json.Unmarshal(mc.sends[peers[1]][0].Data, &env))
	var out StateDelta
	require.NoError(t, json.Unmarshal(env.ActionData, &out))
	require.Contains(t, out.Players, 1)
	assert.False(t, out.Players[1].DeckSet, "re-derived delta carries no deck change")
	assert.Equal(t, 1, out.SourcePlayerID)
}

func TestSetAndClearTargetingMode(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)

	mode := &models.TargetingModeData{
		PlayerID:     1,
		Action:       "damageCard",
		BoardTargets: []models.Coord{{Row: 0, Col: 1}},
		Timestamp:    time.Now().UnixMilli(),
	}
	g.SetTargetingMode(1, mode)
	require.NotNil(t, g.State.TargetingMode)
	assert.Equal(t, "damageCard", g.State.TargetingMode.Action)
	require.NotEmpty(t, mc.broadcastDeltas(t))

	mc.clear()
	g.ClearTargetingMode(1)
	assert.Nil(t, g.State.TargetingMode)
	deltas := mc.broadcastDeltas(t)
	require.NotEmpty(t, deltas)
	require.NotNil(t, deltas[0].Targeting)
	assert.Nil(t, deltas[0].Targeting.Mode, "explicit clear ships a null mode")
}

func TestTurnTimer_ForcesPassWhenExpired(t *testing.T) {
	g, peers, _ := setupHostGame(t, 2)
	g.Config.TurnDuration = 50 * time.Millisecond
	g.State.IsGameStarted = true

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgToggleActivePlayer,
		Data: models.MarshalData(models.PlayerRefPayload{PlayerID: 1}),
	})
	g.Mu.Lock()
	require.NotNil(t, g.State.ActivePlayerID)
	require.Equal(t, 1, *g.State.ActivePlayerID)
	g.Mu.Unlock()

	time.Sleep(75 * time.Millisecond)

	g.Mu.Lock()
	defer g.Mu.Unlock()
	require.NotNil(t, g.State.ActivePlayerID)
	assert.Equal(t, 2, *g.State.ActivePlayerID, "expiry forced the pass")
}

func TestInactivityTimer_TerminatesSession(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)
	g.Config.InactivityDuration = 30 * time.Millisecond

	terminated := make(chan uuid.UUID, 1)
	g.OnTerminate = func(id uuid.UUID) { terminated <- id }

	g.SetPlayerReady(1, true) // arms the inactivity timer

	select {
	case id := <-terminated:
		assert.Equal(t, g.ID, id)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("session did not terminate on inactivity")
	}
	assert.NotEmpty(t, mc.messagesOfType(models.MsgGameTerminated))
}

func TestHandleMessage_UnknownPeerIsDropped(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)

	g.HandleMessage(uuid.New(), models.Message{
		Type: models.MsgPlayerReady,
		Data: models.MarshalData(models.PlayerFieldPayload{IsReady: true}),
	})

	assert.Empty(t, mc.allMessages())
	assert.False(t, g.State.Players[0].IsReady)
}

func TestHandleMessage_ColorUniquenessEnforced(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)
	takenColor := g.State.Players[0].Color

	g.HandleMessage(peers[1], models.Message{
		Type: models.MsgChangePlayerColor,
		Data: models.MarshalData(models.PlayerFieldPayload{Color: takenColor}),
	})

	assert.NotEqual(t, takenColor, g.State.Players[1].Color)
	assert.Empty(t, mc.allMessages())
}

func TestHandleMessage_AbilityActionDispatches(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)
	g.State.IsGameStarted = true
	g.State.CurrentPhase = models.PhaseSetup
	g.State.ActivePlayerID = models.IntPtr(1)
	source := &models.Card{ID: "src", OwnerID: 1, Power: 2}
	source.AddStatus(models.StatusReadySetup, 1)
	g.State.Board.SetCard(models.Coord{Row: 0, Col: 0}, source)
	target := &models.Card{ID: "tgt", OwnerID: 1, Power: 3}
	g.State.Board.SetCard(models.Coord{Row: 1, Col: 1}, target)
	mc.clear()

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgAbilityAction,
		Data: models.MarshalData(models.AbilityAction{
			Type:         models.ActionBoostPower,
			Mode:         models.ModeSetup,
			SourceCoords: models.Coord{Row: 0, Col: 0},
			SourceCardID: "src",
			TargetCoords: &models.Coord{Row: 1, Col: 1},
			Amount:       2,
		}),
	})

	boosted := g.State.Board.CardAt(models.Coord{Row: 1, Col: 1})
	assert.Equal(t, 5, boosted.EffectivePower())
	assert.False(t, g.State.Board.CardAt(models.Coord{Row: 0, Col: 0}).HasStatus(models.StatusReadySetup))
	require.NotEmpty(t, mc.broadcastDeltas(t), "the effect fans out as a delta")
}

func TestHandleMessage_AbilityActionGatedOnReadyFlag(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)
	g.State.IsGameStarted = true
	g.State.CurrentPhase = models.PhaseSetup
	g.State.ActivePlayerID = models.IntPtr(1)
	// No ready flag on the source card.
	g.State.Board.SetCard(models.Coord{Row: 0, Col: 0}, &models.Card{ID: "src", OwnerID: 1})
	mc.clear()

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgAbilityAction,
		Data: models.MarshalData(models.AbilityAction{
			Type:         models.ActionBoostPower,
			Mode:         models.ModeSetup,
			SourceCoords: models.Coord{Row: 0, Col: 0},
			SourceCardID: "src",
			TargetCoords: &models.Coord{Row: 0, Col: 0},
			Amount:       2,
		}),
	})

	assert.Equal(t, 0, g.State.Board.CardAt(models.Coord{Row: 0, Col: 0}).EffectivePower())
	assert.Empty(t, mc.allMessages())
}

func TestHandleMessage_RequestTargetingBroadcastsComputedTargets(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)
	g.State.Board.SetCard(models.Coord{Row: 0, Col: 0}, &models.Card{ID: "own", OwnerID: 1})
	g.State.Board.SetCard(models.Coord{Row: 1, Col: 1}, &models.Card{ID: "foe", OwnerID: 2})
	mc.clear()

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgRequestTargeting,
		Data: models.MarshalData(models.TargetingRequestPayload{
			Action:       models.ActionDamageCard,
			SourceCoords: &models.Coord{Row: 0, Col: 0},
		}),
	})

	require.NotNil(t, g.State.TargetingMode)
	assert.Equal(t, 1, g.State.TargetingMode.PlayerID)
	assert.Equal(t, []models.Coord{{Row: 1, Col: 1}}, g.State.TargetingMode.BoardTargets,
		"only the enemy card is a damage target")
	require.NotEmpty(t, mc.broadcastDeltas(t))
}

func TestRequestTargeting_SelectionWindowIsExclusive(t *testing.T) {
	g, _, _ := setupHostGame(t, 2)
	g.State.Board.SetCard(models.Coord{Row: 0, Col: 0}, &models.Card{ID: "a", OwnerID: 1})

	require.True(t, g.RequestTargeting(1, models.ActionDamageCard, nil))
	assert.False(t, g.RequestTargeting(2, models.ActionDamageCard, nil),
		"second selection rejected while the first is pending")

	g.ClearTargetingMode(1)
	assert.True(t, g.RequestTargeting(2, models.ActionDamageCard, nil),
		"clearing releases the window")
}

func TestHandleMessage_StartReadyCheckEnablesAutoStart(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	g.HandleMessage(peers[0], models.Message{Type: models.MsgStartReadyCheck})
	assert.True(t, g.State.IsReadyCheckActive)
	require.NotEmpty(t, mc.broadcastDeltas(t), "activation reaches every mirror")

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgPlayerReady,
		Data: models.MarshalData(models.PlayerFieldPayload{IsReady: true}),
	})
	g.HandleMessage(peers[1], models.Message{
		Type: models.MsgPlayerReady,
		Data: models.MarshalData(models.PlayerFieldPayload{IsReady: true}),
	})
	assert.True(t, g.State.IsGameStarted)
}

func TestStartReadyCheck_NoopAfterGameStart(t *testing.T) {
	g, _, mc := setupHostGame(t, 2)
	g.StartGame()
	mc.clear()

	g.StartReadyCheck(1)
	assert.False(t, g.State.IsReadyCheckActive)
	assert.Empty(t, mc.allMessages())
}

func TestHandleMessage_CosmeticPassthroughExcludesSender(t *testing.T) {
	g, peers, mc := setupHostGame(t, 2)

	g.HandleMessage(peers[0], models.Message{
		Type: models.MsgTriggerHighlight,
		Data: models.MarshalData(map[string]int{"row": 1, "col": 2}),
	})

	mc.mu.Lock()
	defer mc.mu.Unlock()
	assert.Empty(t, mc.sends[peers[0]])
	require.Len(t, mc.sends[peers[1]], 1)
	assert.Equal(t, models.MsgTriggerHighlight, mc.sends[peers[1]][0].Type)
	assert.Equal(t, 1, mc.sends[peers[1]][0].SenderID, "sender id stamped by the host")
}
