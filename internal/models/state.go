// internal/models/state.go
package models

import (
	"github.com/google/uuid"
)

// Phase is one of the five cyclic stages of a turn.
type Phase int

const (
	PhasePreparation Phase = iota
	PhaseSetup
	PhaseMain
	PhaseCommit
	PhaseScoring
)

// Valid reports whether p is inside the cycle.
func (p Phase) Valid() bool { return p >= PhasePreparation && p <= PhaseScoring }

func (p Phase) String() string {
	switch p {
	case PhasePreparation:
		return "preparation"
	case PhaseSetup:
		return "setup"
	case PhaseMain:
		return "main"
	case PhaseCommit:
		return "commit"
	case PhaseScoring:
		return "scoring"
	default:
		return "invalid"
	}
}

// Coord addresses a board cell.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Board is a 2-D grid of cells, each holding at most one card. A card on the
// board is in no other zone.
type Board struct {
	Rows  int       `json:"rows"`
	Cols  int       `json:"cols"`
	Cells [][]*Card `json:"cells"`
}

// NewBoard builds an empty grid.
func NewBoard(rows, cols int) *Board {
	cells := make([][]*Card, rows)
	for r := range cells {
		cells[r] = make([]*Card, cols)
	}
	return &Board{Rows: rows, Cols: cols, Cells: cells}
}

// InBounds reports whether the coordinate addresses a real cell.
func (b *Board) InBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < b.Rows && c.Col >= 0 && c.Col < b.Cols
}

// CardAt returns the occupant of a cell, or nil.
func (b *Board) CardAt(c Coord) *Card {
	if !b.InBounds(c) {
		return nil
	}
	return b.Cells[c.Row][c.Col]
}

// SetCard places (or clears, with nil) a cell's occupant.
func (b *Board) SetCard(c Coord, card *Card) {
	if !b.InBounds(c) {
		return
	}
	b.Cells[c.Row][c.Col] = card
}

// EachCard invokes fn for every occupied cell.
func (b *Board) EachCard(fn func(c Coord, card *Card)) {
	for r := 0; r < b.Rows; r++ {
		for col := 0; col < b.Cols; col++ {
			if card := b.Cells[r][col]; card != nil {
				fn(Coord{Row: r, Col: col}, card)
			}
		}
	}
}

// Clone deep-copies the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	nb := NewBoard(b.Rows, b.Cols)
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			nb.Cells[r][c] = b.Cells[r][c].Clone()
		}
	}
	return nb
}

// TargetingModeData is a transient, globally broadcast record of an
// in-progress target selection. It is computed once by the initiating peer
// and broadcast so every peer highlights the same targets, and it is cleared
// by an explicit broadcast, never by inference.
type TargetingModeData struct {
	PlayerID     int     `json:"playerId"`
	Action       string  `json:"action"`
	SourceCoords *Coord  `json:"sourceCoords,omitempty"`
	BoardTargets []Coord `json:"boardTargets"`
	// HandTargets maps player id to selectable hand indices.
	HandTargets      map[int][]int `json:"handTargets,omitempty"`
	IsDeckSelectable bool          `json:"isDeckSelectable,omitempty"`
	Timestamp        int64         `json:"timestamp"`
}

// Clone deep-copies the record.
func (t *TargetingModeData) Clone() *TargetingModeData {
	if t == nil {
		return nil
	}
	cp := *t
	if t.SourceCoords != nil {
		sc := *t.SourceCoords
		cp.SourceCoords = &sc
	}
	cp.BoardTargets = append([]Coord(nil), t.BoardTargets...)
	if t.HandTargets != nil {
		cp.HandTargets = make(map[int][]int, len(t.HandTargets))
		for k, v := range t.HandTargets {
			cp.HandTargets[k] = append([]int(nil), v...)
		}
	}
	return &cp
}

// Equal compares two targeting records.
func (t *TargetingModeData) Equal(o *TargetingModeData) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.PlayerID != o.PlayerID || t.Action != o.Action ||
		t.IsDeckSelectable != o.IsDeckSelectable || t.Timestamp != o.Timestamp {
		return false
	}
	if (t.SourceCoords == nil) != (o.SourceCoords == nil) {
		return false
	}
	if t.SourceCoords != nil && *t.SourceCoords != *o.SourceCoords {
		return false
	}
	if len(t.BoardTargets) != len(o.BoardTargets) {
		return false
	}
	for i := range t.BoardTargets {
		if t.BoardTargets[i] != o.BoardTargets[i] {
			return false
		}
	}
	if len(t.HandTargets) != len(o.HandTargets) {
		return false
	}
	for k, v := range t.HandTargets {
		ov, ok := o.HandTargets[k]
		if !ok || len(v) != len(ov) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}

// GameState is the root aggregate. The host holds the only canonical copy;
// every other peer holds a read-mirror derived from deltas.
type GameState struct {
	GameID  uuid.UUID `json:"gameId"`
	Players []*Player `json:"players"`
	Board   *Board    `json:"board"`

	CurrentPhase     Phase `json:"currentPhase"`
	ActivePlayerID   *int  `json:"activePlayerId"`
	StartingPlayerID *int  `json:"startingPlayerId"`
	CurrentRound     int   `json:"currentRound"`
	TurnNumber       int   `json:"turnNumber"`

	// RoundWinners maps round number to the ids of players who crossed that
	// round's threshold. Append-only once a round ends.
	RoundWinners map[int][]int `json:"roundWinners"`
	GameWinner   *int          `json:"gameWinner"`

	TargetingMode *TargetingModeData `json:"targetingMode,omitempty"`

	IsGameStarted       bool `json:"isGameStarted"`
	IsReadyCheckActive  bool `json:"isReadyCheckActive"`
	IsRoundEndModalOpen bool `json:"isRoundEndModalOpen"`
}

// NewGameState builds the initial state for a session.
func NewGameState(gameID uuid.UUID, rows, cols int) *GameState {
	return &GameState{
		GameID:       gameID,
		Board:        NewBoard(rows, cols),
		CurrentRound: 1,
		RoundWinners: make(map[int][]int),
	}
}

// PlayerByID returns the player with the given id, or nil.
func (s *GameState) PlayerByID(id int) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Clone deep-copies the whole state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp.Players[i] = p.Clone()
	}
	cp.Board = s.Board.Clone()
	cp.ActivePlayerID = cloneIntPtr(s.ActivePlayerID)
	cp.StartingPlayerID = cloneIntPtr(s.StartingPlayerID)
	cp.GameWinner = cloneIntPtr(s.GameWinner)
	cp.RoundWinners = make(map[int][]int, len(s.RoundWinners))
	for k, v := range s.RoundWinners {
		cp.RoundWinners[k] = append([]int(nil), v...)
	}
	cp.TargetingMode = s.TargetingMode.Clone()
	return &cp
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IntPtr is a convenience for building optional ids.
func IntPtr(v int) *int { return &v }
