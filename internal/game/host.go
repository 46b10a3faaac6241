// internal/game/host.go
package game

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gridfall/gridfall/internal/models"
)

// BroadcastFunc delivers a message to every connected peer.
type BroadcastFunc func(msg models.Message)

// SendFunc delivers a message to one peer.
type SendFunc func(peerID uuid.UUID, msg models.Message)

// Recorder persists game milestones. Implementations must tolerate being
// called from short-lived goroutines; a nil Recorder disables persistence.
type Recorder interface {
	SaveSnapshot(gameID uuid.UUID, state *models.GameState)
	RecordRound(gameID uuid.UUID, round int, winners []int, scores map[int]int)
	RecordGameEnd(gameID uuid.UUID, winnerID int)
}

// Config holds per-session tunables.
type Config struct {
	BoardRows int
	BoardCols int

	// GraceDuration is how long a disconnected player keeps their seat before
	// dummy conversion.
	GraceDuration time.Duration
	// TurnDuration bounds a single turn; expiry forces a pass. Zero disables.
	TurnDuration time.Duration
	// InactivityDuration tears the whole session down when nothing happens.
	InactivityDuration time.Duration

	InitialHandSize int

	// PasscodeHash, when non-empty, is the argon2id hash guests must match on
	// join. Verification happens in the transport layer.
	PasscodeHash string
}

// DefaultConfig mirrors the stock session settings.
func DefaultConfig() Config {
	return Config{
		BoardRows:          4,
		BoardCols:          5,
		GraceDuration:      60 * time.Second,
		TurnDuration:       90 * time.Second,
		InactivityDuration: 30 * time.Minute,
		InitialHandSize:    6,
	}
}

// seatColors is the assignment palette; the first unused entry is taken.
var seatColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c",
}

// HostGame is the single authoritative owner of a session's GameState. Every
// guest-originated change passes through it before becoming canonical and
// being re-broadcast; guests only ever hold mirrors derived from its deltas.
//
// It is an explicitly constructed session object: the channel functions and
// collaborators are injected, and Cleanup releases every timer.
type HostGame struct {
	ID uuid.UUID

	Mu    sync.Mutex
	State *models.GameState

	Config     Config
	Timers     *TimerSet
	Dispatcher *Dispatcher

	// BroadcastFn sends to all connected peers; SendFn to one. Either may be
	// nil (e.g. before the first connection), in which case sends are dropped.
	BroadcastFn BroadcastFunc
	SendFn      SendFunc

	Recorder Recorder

	// OnTerminate is invoked once after the session shuts down, typically to
	// remove the game from its store.
	OnTerminate func(gameID uuid.UUID)

	infoFor      AbilityLookup
	log          *logrus.Entry
	nextPlayerID int
	peers        map[uuid.UUID]int
	terminated   bool
}

// NewHostGame builds a session with an empty board and no players.
func NewHostGame(cfg Config, infoFor AbilityLookup, logger *logrus.Logger) *HostGame {
	if infoFor == nil {
		infoFor = NoAbilities
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.New()
	entry := logger.WithField("game", id)
	g := &HostGame{
		ID:           id,
		State:        models.NewGameState(id, cfg.BoardRows, cfg.BoardCols),
		Config:       cfg,
		Timers:       NewTimerSet(),
		Dispatcher:   NewDispatcher(infoFor, entry),
		infoFor:      infoFor,
		log:          entry,
		nextPlayerID: 1,
		peers:        make(map[uuid.UUID]int),
	}
	return g
}

// Cleanup releases every timer. Idempotent.
func (g *HostGame) Cleanup() {
	g.Timers.StopAll()
}

// AddGuestPlayer allocates the next seat for a joining peer and broadcasts
// the new roster to everyone else. Returns the created player.
func (g *HostGame) AddGuestPlayer(peerID uuid.UUID, name string) *models.Player {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := &models.Player{
		ID:              g.nextPlayerID,
		Name:            name,
		Color:           g.unusedColor(),
		AutoDrawEnabled: true,
		PeerID:          peerID,
	}
	g.nextPlayerID++
	g.peers[peerID] = player.ID

	g.mutateAndBroadcast(player.ID, peerID, func(s *models.GameState) {
		s.Players = append(s.Players, player)
	})
	g.log.WithFields(logrus.Fields{"player": player.ID, "name": name}).Info("player joined")
	return player
}

// unusedColor picks the first palette color no active player holds. Assumes
// lock held.
func (g *HostGame) unusedColor() string {
	taken := make(map[string]bool)
	for _, p := range g.State.Players {
		taken[p.Color] = true
	}
	for _, c := range seatColors {
		if !taken[c] {
			return c
		}
	}
	return seatColors[0]
}

// PlayerIDForPeer resolves a transport peer to its seat.
func (g *HostGame) PlayerIDForPeer(peerID uuid.UUID) (int, bool) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	id, ok := g.peers[peerID]
	return id, ok
}

// UpdateFromLocal replaces the canonical state with a host-side mutation
// result and broadcasts the resulting delta. Host-as-player changes are
// trusted wholesale.
func (g *HostGame) UpdateFromLocal(newState *models.GameState) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	before := g.State
	g.State = newState.Clone()
	g.finishMutation(before, g.hostPlayerID(), uuid.Nil)
}

// UpdateFromGuest merges a guest's full-state submission under field-level
// authority rules and broadcasts the resulting delta, optionally excluding
// the sending peer.
func (g *HostGame) UpdateFromGuest(guestPlayerID int, guestState *models.GameState, excludePeer uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if guestState == nil || g.State.PlayerByID(guestPlayerID) == nil {
		g.log.WithField("player", guestPlayerID).Warn("state update from unknown guest")
		return
	}
	before := g.State
	g.State = MergeGuestState(g.State, guestState, guestPlayerID)
	g.finishMutation(before, guestPlayerID, excludePeer)
}

// ApplyDeltaFromGuest applies an incoming guest delta under host authority,
// then broadcasts a fresh delta re-derived from the host's own before/after
// snapshots — never a relay of the guest's delta — so privacy filtering and
// source attribution are consistently re-applied.
func (g *HostGame) ApplyDeltaFromGuest(guestPlayerID int, delta *StateDelta, senderPeer uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if delta == nil || g.State.PlayerByID(guestPlayerID) == nil {
		g.log.WithField("player", guestPlayerID).Warn("delta from unknown guest")
		return
	}
	delta.SourcePlayerID = guestPlayerID

	before := g.State
	g.State = ApplyStateDelta(g.State, delta, true)
	g.finishMutation(before, guestPlayerID, senderPeer)
}

// MergeGuestState merges a guest's full-state view into the host state.
// For the submitting guest: public fields and hand are taken from the guest,
// deck and discard are forced back to the host's copy (a guest cannot
// fabricate draws). For every other player: only isReady and score are taken.
// Board, phase bookkeeping, targeting and session flags stay host-side.
func MergeGuestState(host *models.GameState, guest *models.GameState, guestID int) *models.GameState {
	merged := host.Clone()
	for _, mp := range merged.Players {
		gp := guest.PlayerByID(mp.ID)
		if gp == nil {
			continue
		}
		if mp.ID == guestID {
			mp.Name = gp.Name
			mp.Color = gp.Color
			mp.Score = gp.Score
			mp.IsReady = gp.IsReady
			mp.SelectedDeck = gp.SelectedDeck
			mp.TeamID = gp.TeamID
			mp.AutoDrawEnabled = gp.AutoDrawEnabled
			mp.Hand = models.CloneCards(gp.Hand)
			// Deck and discard deliberately untouched.
			continue
		}
		mp.IsReady = gp.IsReady
		mp.Score = gp.Score
	}
	return merged
}

// StartGame begins the session: a uniformly random starting player among the
// non-disconnected, an opening hand for every player with an empty hand and a
// non-empty deck, and the starting player's first Preparation. A lightweight
// GAME_START notice goes out before the full state delta.
func (g *HostGame) StartGame() {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.startGameLocked()
}

func (g *HostGame) startGameLocked() {
	if g.State.IsGameStarted {
		g.log.Warn("start requested for already started game")
		return
	}
	var eligible []*models.Player
	for _, p := range g.State.Players {
		if !p.IsDisconnected {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		g.log.Warn("start requested with no connected players")
		return
	}
	starter := eligible[rand.Intn(len(eligible))]

	// Notice first: guests flip into game mode immediately, the state delta
	// follows right behind.
	g.send(uuid.Nil, models.Message{
		Type:      models.MsgGameStart,
		Data:      models.MarshalData(models.PlayerRefPayload{PlayerID: starter.ID}),
		Timestamp: time.Now().UnixMilli(),
	})

	before := g.State
	g.State = g.State.Clone()
	for _, p := range g.State.Players {
		if len(p.Hand) == 0 && len(p.Deck) > 0 {
			for i := 0; i < g.Config.InitialHandSize; i++ {
				drawOne(p)
			}
		}
	}
	g.State.IsGameStarted = true
	g.State.IsReadyCheckActive = false
	g.State.StartingPlayerID = models.IntPtr(starter.ID)
	g.State.ActivePlayerID = models.IntPtr(starter.ID)
	g.State.CurrentPhase = models.PhasePreparation
	PerformPreparationPhase(g.State, starter.ID, g.infoFor)

	g.log.WithField("starter", starter.ID).Info("game started")
	g.finishMutation(before, g.hostPlayerID(), uuid.Nil)
}

// SetPlayerReady records a ready flag and auto-starts the game once every
// non-dummy, non-disconnected player is ready during an active ready check.
func (g *HostGame) SetPlayerReady(playerID int, ready bool) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.State.PlayerByID(playerID)
	if player == nil {
		g.log.WithField("player", playerID).Warn("ready from unknown player")
		return
	}
	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		s.PlayerByID(playerID).IsReady = ready
	})

	if !ready || !g.State.IsReadyCheckActive || g.State.IsGameStarted {
		return
	}
	for _, p := range g.State.Players {
		if p.IsDummy || p.IsDisconnected {
			continue
		}
		if !p.IsReady {
			return
		}
	}
	g.startGameLocked()
}

// StartReadyCheck opens the pre-game ready check; once it is active, the
// session auto-starts when every eligible player is ready. No-op after the
// game started.
func (g *HostGame) StartReadyCheck(senderID int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.State.IsGameStarted {
		g.log.WithField("player", senderID).Warn("ready check requested after game start")
		return
	}
	if g.State.IsReadyCheckActive {
		return
	}
	g.log.WithField("player", senderID).Info("ready check started")
	g.mutateAndBroadcast(senderID, uuid.Nil, func(s *models.GameState) {
		s.IsReadyCheckActive = true
	})
}

// HandleDisconnect marks a peer's seat disconnected, broadcasts the fact, and
// arms the grace timer that converts the seat to a dummy.
func (g *HostGame) HandleDisconnect(peerID uuid.UUID) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	playerID, ok := g.peers[peerID]
	if !ok {
		return
	}
	player := g.State.PlayerByID(playerID)
	if player == nil || player.IsDisconnected {
		return
	}
	g.log.WithField("player", playerID).Info("player disconnected")

	g.mutateAndBroadcast(playerID, peerID, func(s *models.GameState) {
		p := s.PlayerByID(playerID)
		p.IsDisconnected = true
		p.Conn = nil
		// The active seat must always be a connected (or dummy) player.
		if s.ActivePlayerID != nil && *s.ActivePlayerID == playerID && s.IsGameStarted {
			PassTurnToNextPlayer(s, g.infoFor)
		}
	})
	g.notifyAll(models.MsgPlayerDisconnected, models.PlayerRefPayload{PlayerID: playerID})

	g.Timers.Schedule(graceKey(playerID), g.Config.GraceDuration, func() {
		g.convertToDummy(playerID)
	})
}

// HandleReconnect restores a seat for a returning peer before the grace timer
// fires. Dummy conversion is irreversible: a seat already converted cannot be
// reclaimed. Returns whether the seat was restored.
func (g *HostGame) HandleReconnect(peerID uuid.UUID, playerID int) bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.State.PlayerByID(playerID)
	if player == nil {
		g.log.WithField("player", playerID).Warn("reconnect for unknown seat")
		return false
	}
	if player.IsDummy {
		g.log.WithField("player", playerID).Warn("reconnect refused: seat already converted to dummy")
		return false
	}

	g.Timers.Cancel(graceKey(playerID))
	// Drop the old peer mapping if the transport identity changed.
	for pid, seat := range g.peers {
		if seat == playerID && pid != peerID {
			delete(g.peers, pid)
		}
	}
	g.peers[peerID] = playerID

	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		p := s.PlayerByID(playerID)
		p.IsDisconnected = false
		p.PeerID = peerID
	})
	g.notifyAll(models.MsgPlayerReconnected, models.PlayerRefPayload{PlayerID: playerID})
	g.log.WithField("player", playerID).Info("player reconnected")
	return true
}

// convertToDummy runs on grace expiry. The seat stays in turn rotation as a
// host-controllable placeholder; there is no path back.
func (g *HostGame) convertToDummy(playerID int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	player := g.State.PlayerByID(playerID)
	if player == nil || !player.IsDisconnected || player.IsDummy {
		return
	}
	g.log.WithField("player", playerID).Info("grace expired, converting player to dummy")

	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		p := s.PlayerByID(playerID)
		p.IsDummy = true
		// A dummy is host-driven, not absent: it rejoins turn rotation.
		p.IsDisconnected = false
	})
	g.notifyAll(models.MsgPlayerConvertedToDummy, models.PlayerRefPayload{PlayerID: playerID})
}

// RequestTargeting opens a player's selection window, computes the target set
// for the named ability against the authoritative state and broadcasts it.
// Rejected while another player's selection is pending.
func (g *HostGame) RequestTargeting(playerID int, action models.AbilityActionType, source *models.Coord) bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if !g.Dispatcher.BeginInteraction(playerID) {
		g.log.WithField("player", playerID).Debug("targeting request rejected: interaction lock held")
		return false
	}
	mode := TargetingForAction(g.State, playerID, action, source)
	if mode == nil {
		g.Dispatcher.EndInteraction(playerID)
		g.log.WithFields(logrus.Fields{"player": playerID, "action": action}).
			Warn("targeting request for unknown action")
		return false
	}
	g.mutateAndBroadcast(playerID, uuid.Nil, func(s *models.GameState) {
		s.TargetingMode = mode.Clone()
	})
	return true
}

// SetTargetingMode freezes and broadcasts a valid-target record so every peer
// highlights the same cells.
func (g *HostGame) SetTargetingMode(sourcePlayerID int, mode *models.TargetingModeData) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.mutateAndBroadcast(sourcePlayerID, uuid.Nil, func(s *models.GameState) {
		s.TargetingMode = mode.Clone()
	})
}

// ClearTargetingMode is the explicit clear; targeting never times out on its
// own. Clearing also closes the sender's selection window.
func (g *HostGame) ClearTargetingMode(sourcePlayerID int) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.Dispatcher.EndInteraction(sourcePlayerID)
	g.mutateAndBroadcast(sourcePlayerID, uuid.Nil, func(s *models.GameState) {
		s.TargetingMode = nil
	})
}

// DispatchAbility routes an ability action through the dispatcher and
// broadcasts whatever changed.
func (g *HostGame) DispatchAbility(playerID int, action models.AbilityAction) bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	before := g.State
	working := g.State.Clone()
	if !g.Dispatcher.Dispatch(working, playerID, action) {
		return false
	}
	g.State = working
	g.finishMutation(before, playerID, uuid.Nil)
	return true
}

// Terminate shuts the session down and notifies every peer.
func (g *HostGame) Terminate(reason string) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.terminateLocked(reason)
}

func (g *HostGame) terminateLocked(reason string) {
	if g.terminated {
		return
	}
	g.terminated = true
	g.log.WithField("reason", reason).Info("terminating session")

	g.notifyAll(models.MsgGameTerminated, map[string]string{"reason": reason})
	g.Timers.StopAll()

	if g.Recorder != nil {
		snapshot := g.State.Clone()
		rec := g.Recorder
		id := g.ID
		go rec.SaveSnapshot(id, snapshot)
	}
	if g.OnTerminate != nil {
		go g.OnTerminate(g.ID)
	}
}

// mutateAndBroadcast clones the state, applies fn to the clone, swaps it in,
// and finishes the mutation (delta broadcast, timers, persistence). Assumes
// lock held.
func (g *HostGame) mutateAndBroadcast(sourcePlayerID int, excludePeer uuid.UUID, fn func(s *models.GameState)) {
	before := g.State
	g.State = g.State.Clone()
	fn(g.State)
	g.finishMutation(before, sourcePlayerID, excludePeer)
}

// finishMutation diffs before/after, broadcasts a non-empty delta (empty
// deltas are never sent), reschedules the turn timer when the active seat
// changed, records round/game milestones, and re-arms the inactivity timer.
// Assumes lock held.
func (g *HostGame) finishMutation(before *models.GameState, sourcePlayerID int, excludePeer uuid.UUID) {
	delta := CreateDeltaFromStates(before, g.State, sourcePlayerID)
	if !delta.IsEmpty() {
		g.broadcastDelta(delta, excludePeer)
		if g.Recorder != nil {
			snapshot := g.State.Clone()
			rec := g.Recorder
			id := g.ID
			go rec.SaveSnapshot(id, snapshot)
		}
	}

	if !intPtrEqual(before.ActivePlayerID, g.State.ActivePlayerID) {
		g.scheduleTurnTimer()
	}

	if g.Recorder != nil {
		if _, had := before.RoundWinners[before.CurrentRound]; !had {
			if winners, have := g.State.RoundWinners[before.CurrentRound]; have {
				scores := make(map[int]int, len(g.State.Players))
				for _, p := range g.State.Players {
					scores[p.ID] = p.Score
				}
				rec := g.Recorder
				id := g.ID
				round := before.CurrentRound
				ws := append([]int(nil), winners...)
				go rec.RecordRound(id, round, ws, scores)
			}
		}
		if before.GameWinner == nil && g.State.GameWinner != nil {
			rec := g.Recorder
			id := g.ID
			winner := *g.State.GameWinner
			go rec.RecordGameEnd(id, winner)
		}
	}

	g.touchInactivity()
}

// broadcastDelta ships a delta to every peer except excludePeer (no echo back
// to the originator). Assumes lock held.
func (g *HostGame) broadcastDelta(delta *StateDelta, excludePeer uuid.UUID) {
	data, err := json.Marshal(delta)
	if err != nil {
		g.log.WithError(err).Error("marshal state delta")
		return
	}
	msg := models.Message{
		Type:     models.MsgAction,
		SenderID: delta.SourcePlayerID,
		Data: models.MarshalData(models.ActionEnvelope{
			ActionType: models.ActionStateDelta,
			ActionData: data,
		}),
		Timestamp: time.Now().UnixMilli(),
	}
	g.send(excludePeer, msg)
}

// send delivers msg to every peer except the excluded one (uuid.Nil excludes
// nobody). Assumes lock held.
func (g *HostGame) send(excludePeer uuid.UUID, msg models.Message) {
	if excludePeer == uuid.Nil {
		if g.BroadcastFn != nil {
			g.BroadcastFn(msg)
		}
		return
	}
	if g.SendFn == nil {
		return
	}
	for peerID := range g.peers {
		if peerID == excludePeer {
			continue
		}
		g.SendFn(peerID, msg)
	}
}

// notifyAll broadcasts a lifecycle notice. Assumes lock held.
func (g *HostGame) notifyAll(t models.MessageType, payload interface{}) {
	g.send(uuid.Nil, models.Message{
		Type:      t,
		Data:      models.MarshalData(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

// scheduleTurnTimer arms the forced-pass timeout for the current active
// player. Assumes lock held.
func (g *HostGame) scheduleTurnTimer() {
	if g.Config.TurnDuration <= 0 {
		return
	}
	if g.State.ActivePlayerID == nil || !g.State.IsGameStarted {
		g.Timers.Cancel("turn")
		return
	}
	activeID := *g.State.ActivePlayerID
	g.Timers.Schedule("turn", g.Config.TurnDuration, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		// Stale guard: only force the pass if the same seat is still active.
		if g.State.ActivePlayerID == nil || *g.State.ActivePlayerID != activeID {
			return
		}
		g.log.WithField("player", activeID).Info("turn timer expired, forcing pass")
		g.mutateAndBroadcast(activeID, uuid.Nil, func(s *models.GameState) {
			PassTurnToNextPlayer(s, g.infoFor)
		})
	})
}

// touchInactivity re-arms the session-wide inactivity teardown. Assumes lock
// held.
func (g *HostGame) touchInactivity() {
	if g.Config.InactivityDuration <= 0 || g.terminated {
		return
	}
	g.Timers.Schedule("inactivity", g.Config.InactivityDuration, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		g.terminateLocked("inactivity")
	})
}

// hostPlayerID is the seat attributed to host-originated changes: the lowest
// seat id, or 0 before anyone joined.
func (g *HostGame) hostPlayerID() int {
	best := 0
	for _, p := range g.State.Players {
		if best == 0 || p.ID < best {
			best = p.ID
		}
	}
	return best
}

func graceKey(playerID int) string {
	return fmt.Sprintf("grace:%d", playerID)
}
