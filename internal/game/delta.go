// internal/game/delta.go
package game

import (
	"github.com/gridfall/gridfall/internal/models"
)

// StateDelta is a minimal structured diff between two GameState snapshots.
// It is sectioned per concern so a receiver can apply partial updates without
// reconstructing unrelated parts of the state. Empty deltas are never
// broadcast.
type StateDelta struct {
	// SourcePlayerID identifies who originated the change, so the apply step
	// can enforce the same field-level authority rules as the merge path.
	SourcePlayerID int `json:"sourcePlayerId"`

	Phase     *PhaseDelta          `json:"phase,omitempty"`
	Players   map[int]*PlayerDelta `json:"players,omitempty"`
	Board     []CellDelta          `json:"board,omitempty"`
	Targeting *TargetingDelta      `json:"targeting,omitempty"`
	Session   *SessionDelta        `json:"session,omitempty"`
}

// PhaseDelta carries turn/round bookkeeping changes. Nullable ids use an
// explicit Set flag so clearing-to-null is distinguishable from no change.
type PhaseDelta struct {
	CurrentPhase *models.Phase `json:"currentPhase,omitempty"`

	ActivePlayerID  *int `json:"activePlayerId,omitempty"`
	ActivePlayerSet bool `json:"activePlayerSet,omitempty"`

	StartingPlayerID  *int `json:"startingPlayerId,omitempty"`
	StartingPlayerSet bool `json:"startingPlayerSet,omitempty"`

	CurrentRound *int `json:"currentRound,omitempty"`
	TurnNumber   *int `json:"turnNumber,omitempty"`

	RoundWinners map[int][]int `json:"roundWinners,omitempty"`

	GameWinner    *int `json:"gameWinner,omitempty"`
	GameWinnerSet bool `json:"gameWinnerSet,omitempty"`
}

// PlayerDelta carries per-player changes. Zone replacements use Set flags
// because an emptied zone is a legitimate change.
type PlayerDelta struct {
	Name            *string `json:"name,omitempty"`
	Color           *string `json:"color,omitempty"`
	Score           *int    `json:"score,omitempty"`
	IsDummy         *bool   `json:"isDummy,omitempty"`
	IsDisconnected  *bool   `json:"isDisconnected,omitempty"`
	IsReady         *bool   `json:"isReady,omitempty"`
	SelectedDeck    *string `json:"selectedDeck,omitempty"`
	TeamID          *int    `json:"teamId,omitempty"`
	AutoDrawEnabled *bool   `json:"autoDrawEnabled,omitempty"`

	Hand    []*models.Card `json:"hand,omitempty"`
	HandSet bool           `json:"handSet,omitempty"`

	Deck    []*models.Card `json:"deck,omitempty"`
	DeckSet bool           `json:"deckSet,omitempty"`

	Discard    []*models.Card `json:"discard,omitempty"`
	DiscardSet bool           `json:"discardSet,omitempty"`
}

// CellDelta replaces one board cell's occupant. A nil card empties the cell.
type CellDelta struct {
	Row  int          `json:"row"`
	Col  int          `json:"col"`
	Card *models.Card `json:"card"`
}

// TargetingDelta replaces or clears the targeting mode.
type TargetingDelta struct {
	Mode *models.TargetingModeData `json:"mode"`
}

// SessionDelta carries session lifecycle flag changes.
type SessionDelta struct {
	IsGameStarted       *bool `json:"isGameStarted,omitempty"`
	IsReadyCheckActive  *bool `json:"isReadyCheckActive,omitempty"`
	IsRoundEndModalOpen *bool `json:"isRoundEndModalOpen,omitempty"`
}

// IsEmpty reports whether no tracked sub-structure changed.
func (d *StateDelta) IsEmpty() bool {
	if d == nil {
		return true
	}
	return d.Phase == nil && len(d.Players) == 0 && len(d.Board) == 0 &&
		d.Targeting == nil && d.Session == nil
}

// CreateDeltaFromStates diffs two snapshots. Players present only in newState
// appear with every field set; players removed from the state do not occur in
// practice (seats are never deleted) and are ignored.
func CreateDeltaFromStates(oldState, newState *models.GameState, sourcePlayerID int) *StateDelta {
	d := &StateDelta{SourcePlayerID: sourcePlayerID}

	d.Phase = diffPhase(oldState, newState)
	d.Players = diffPlayers(oldState, newState)
	d.Board = diffBoard(oldState.Board, newState.Board)

	if !oldState.TargetingMode.Equal(newState.TargetingMode) {
		d.Targeting = &TargetingDelta{Mode: newState.TargetingMode.Clone()}
	}
	d.Session = diffSession(oldState, newState)

	return d
}

func diffPhase(o, n *models.GameState) *PhaseDelta {
	pd := &PhaseDelta{}
	changed := false

	if o.CurrentPhase != n.CurrentPhase {
		phase := n.CurrentPhase
		pd.CurrentPhase = &phase
		changed = true
	}
	if !intPtrEqual(o.ActivePlayerID, n.ActivePlayerID) {
		pd.ActivePlayerID = cloneInt(n.ActivePlayerID)
		pd.ActivePlayerSet = true
		changed = true
	}
	if !intPtrEqual(o.StartingPlayerID, n.StartingPlayerID) {
		pd.StartingPlayerID = cloneInt(n.StartingPlayerID)
		pd.StartingPlayerSet = true
		changed = true
	}
	if o.CurrentRound != n.CurrentRound {
		pd.CurrentRound = models.IntPtr(n.CurrentRound)
		changed = true
	}
	if o.TurnNumber != n.TurnNumber {
		pd.TurnNumber = models.IntPtr(n.TurnNumber)
		changed = true
	}
	if !roundWinnersEqual(o.RoundWinners, n.RoundWinners) {
		pd.RoundWinners = cloneRoundWinners(n.RoundWinners)
		changed = true
	}
	if !intPtrEqual(o.GameWinner, n.GameWinner) {
		pd.GameWinner = cloneInt(n.GameWinner)
		pd.GameWinnerSet = true
		changed = true
	}

	if !changed {
		return nil
	}
	return pd
}

func diffPlayers(o, n *models.GameState) map[int]*PlayerDelta {
	out := make(map[int]*PlayerDelta)
	for _, np := range n.Players {
		op := o.PlayerByID(np.ID)
		if op == nil {
			// New seat: ship everything.
			out[np.ID] = fullPlayerDelta(np)
			continue
		}
		if pd := diffPlayer(op, np); pd != nil {
			out[np.ID] = pd
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func diffPlayer(o, n *models.Player) *PlayerDelta {
	pd := &PlayerDelta{}
	changed := false

	if o.Name != n.Name {
		pd.Name = strPtr(n.Name)
		changed = true
	}
	if o.Color != n.Color {
		pd.Color = strPtr(n.Color)
		changed = true
	}
	if o.Score != n.Score {
		pd.Score = models.IntPtr(n.Score)
		changed = true
	}
	if o.IsDummy != n.IsDummy {
		pd.IsDummy = boolPtr(n.IsDummy)
		changed = true
	}
	if o.IsDisconnected != n.IsDisconnected {
		pd.IsDisconnected = boolPtr(n.IsDisconnected)
		changed = true
	}
	if o.IsReady != n.IsReady {
		pd.IsReady = boolPtr(n.IsReady)
		changed = true
	}
	if o.SelectedDeck != n.SelectedDeck {
		pd.SelectedDeck = strPtr(n.SelectedDeck)
		changed = true
	}
	if o.TeamID != n.TeamID {
		pd.TeamID = models.IntPtr(n.TeamID)
		changed = true
	}
	if o.AutoDrawEnabled != n.AutoDrawEnabled {
		pd.AutoDrawEnabled = boolPtr(n.AutoDrawEnabled)
		changed = true
	}
	if !models.CardsEqual(o.Hand, n.Hand) {
		pd.Hand = models.CloneCards(n.Hand)
		pd.HandSet = true
		changed = true
	}
	if !models.CardsEqual(o.Deck, n.Deck) {
		pd.Deck = models.CloneCards(n.Deck)
		pd.DeckSet = true
		changed = true
	}
	if !models.CardsEqual(o.Discard, n.Discard) {
		pd.Discard = models.CloneCards(n.Discard)
		pd.DiscardSet = true
		changed = true
	}

	if !changed {
		return nil
	}
	return pd
}

func fullPlayerDelta(p *models.Player) *PlayerDelta {
	return &PlayerDelta{
		Name:            strPtr(p.Name),
		Color:           strPtr(p.Color),
		Score:           models.IntPtr(p.Score),
		IsDummy:         boolPtr(p.IsDummy),
		IsDisconnected:  boolPtr(p.IsDisconnected),
		IsReady:         boolPtr(p.IsReady),
		SelectedDeck:    strPtr(p.SelectedDeck),
		TeamID:          models.IntPtr(p.TeamID),
		AutoDrawEnabled: boolPtr(p.AutoDrawEnabled),
		Hand:            models.CloneCards(p.Hand),
		HandSet:         true,
		Deck:            models.CloneCards(p.Deck),
		DeckSet:         true,
		Discard:         models.CloneCards(p.Discard),
		DiscardSet:      true,
	}
}

func diffBoard(o, n *models.Board) []CellDelta {
	if o == nil || n == nil || o.Rows != n.Rows || o.Cols != n.Cols {
		// Geometry changed or missing: ship every occupied cell.
		var out []CellDelta
		if n != nil {
			n.EachCard(func(c models.Coord, card *models.Card) {
				out = append(out, CellDelta{Row: c.Row, Col: c.Col, Card: card.Clone()})
			})
		}
		return out
	}
	var out []CellDelta
	for r := 0; r < n.Rows; r++ {
		for c := 0; c < n.Cols; c++ {
			if !o.Cells[r][c].Equal(n.Cells[r][c]) {
				out = append(out, CellDelta{Row: r, Col: c, Card: n.Cells[r][c].Clone()})
			}
		}
	}
	return out
}

func diffSession(o, n *models.GameState) *SessionDelta {
	sd := &SessionDelta{}
	changed := false
	if o.IsGameStarted != n.IsGameStarted {
		sd.IsGameStarted = boolPtr(n.IsGameStarted)
		changed = true
	}
	if o.IsReadyCheckActive != n.IsReadyCheckActive {
		sd.IsReadyCheckActive = boolPtr(n.IsReadyCheckActive)
		changed = true
	}
	if o.IsRoundEndModalOpen != n.IsRoundEndModalOpen {
		sd.IsRoundEndModalOpen = boolPtr(n.IsRoundEndModalOpen)
		changed = true
	}
	if !changed {
		return nil
	}
	return sd
}

// ApplyStateDelta applies a delta to a snapshot and returns the resulting
// state; the input state is not mutated. When asHost is true, the receiver
// holds authoritative knowledge and the delta's claims about private zones
// are filtered: zone changes for any player other than the delta's source are
// dropped, and deck/discard changes are dropped even for the source (a guest
// must never fabricate its own draws).
func ApplyStateDelta(oldState *models.GameState, delta *StateDelta, asHost bool) *models.GameState {
	state := oldState.Clone()
	if delta.IsEmpty() {
		return state
	}

	if delta.Phase != nil && !asHost {
		// Guests mirror the host's phase bookkeeping verbatim. A host
		// receiving a guest delta keeps its own authoritative values.
		applyPhaseDelta(state, delta.Phase)
	}

	for id, pd := range delta.Players {
		player := state.PlayerByID(id)
		if player == nil {
			if asHost {
				// The host never creates a seat on a guest's say-so.
				continue
			}
			// A full delta for an unknown id is a newly joined seat; mirror it.
			player = &models.Player{ID: id}
			state.Players = append(state.Players, player)
		}
		applyPlayerDelta(player, pd, asHost && id != delta.SourcePlayerID, asHost)
	}

	for _, cd := range delta.Board {
		state.Board.SetCard(models.Coord{Row: cd.Row, Col: cd.Col}, cd.Card.Clone())
	}

	if delta.Targeting != nil {
		state.TargetingMode = delta.Targeting.Mode.Clone()
	}
	if delta.Session != nil {
		applySessionDelta(state, delta.Session)
	}
	return state
}

func applyPhaseDelta(state *models.GameState, pd *PhaseDelta) {
	if pd.CurrentPhase != nil {
		state.CurrentPhase = *pd.CurrentPhase
	}
	if pd.ActivePlayerSet {
		state.ActivePlayerID = cloneInt(pd.ActivePlayerID)
	}
	if pd.StartingPlayerSet {
		state.StartingPlayerID = cloneInt(pd.StartingPlayerID)
	}
	if pd.CurrentRound != nil {
		state.CurrentRound = *pd.CurrentRound
	}
	if pd.TurnNumber != nil {
		state.TurnNumber = *pd.TurnNumber
	}
	if pd.RoundWinners != nil {
		state.RoundWinners = cloneRoundWinners(pd.RoundWinners)
	}
	if pd.GameWinnerSet {
		state.GameWinner = cloneInt(pd.GameWinner)
	}
}

// applyPlayerDelta applies one player's section. skipZones drops every
// private-zone change (non-source players under host authority); hostAuth
// additionally drops deck/discard even for the source player.
func applyPlayerDelta(p *models.Player, pd *PlayerDelta, skipZones, hostAuth bool) {
	if pd.Name != nil {
		p.Name = *pd.Name
	}
	if pd.Color != nil {
		p.Color = *pd.Color
	}
	if pd.Score != nil {
		p.Score = *pd.Score
	}
	if pd.IsDummy != nil {
		p.IsDummy = *pd.IsDummy
	}
	if pd.IsDisconnected != nil {
		p.IsDisconnected = *pd.IsDisconnected
	}
	if pd.IsReady != nil {
		p.IsReady = *pd.IsReady
	}
	if pd.SelectedDeck != nil {
		p.SelectedDeck = *pd.SelectedDeck
	}
	if pd.TeamID != nil {
		p.TeamID = *pd.TeamID
	}
	if pd.AutoDrawEnabled != nil {
		p.AutoDrawEnabled = *pd.AutoDrawEnabled
	}

	if skipZones {
		return
	}
	if pd.HandSet {
		p.Hand = models.CloneCards(pd.Hand)
	}
	if hostAuth {
		// Deck and discard are never trusted from a guest, not even the
		// guest's own.
		return
	}
	if pd.DeckSet {
		p.Deck = models.CloneCards(pd.Deck)
	}
	if pd.DiscardSet {
		p.Discard = models.CloneCards(pd.Discard)
	}
}

func applySessionDelta(state *models.GameState, sd *SessionDelta) {
	if sd.IsGameStarted != nil {
		state.IsGameStarted = *sd.IsGameStarted
	}
	if sd.IsReadyCheckActive != nil {
		state.IsReadyCheckActive = *sd.IsReadyCheckActive
	}
	if sd.IsRoundEndModalOpen != nil {
		state.IsRoundEndModalOpen = *sd.IsRoundEndModalOpen
	}
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func roundWinnersEqual(a, b map[int][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

func cloneRoundWinners(m map[int][]int) map[int][]int {
	out := make(map[int][]int, len(m))
	for k, v := range m {
		out[k] = append([]int(nil), v...)
	}
	return out
}
