// internal/models/card.go
package models

// StatusType tags one status effect on a card. Ready flags, usage markers and
// gameplay statuses all share the status list so a single sync pass can manage
// them.
type StatusType string

const (
	// Ready flags: the card has an activatable ability of that kind.
	StatusReadyDeploy StatusType = "READY_DEPLOY"
	StatusReadySetup  StatusType = "READY_SETUP"
	StatusReadyCommit StatusType = "READY_COMMIT"

	// Turn-limited usage markers, cleared only when the owner's turn ends.
	StatusSetupUsedThisTurn  StatusType = "SETUP_USED_THIS_TURN"
	StatusCommitUsedThisTurn StatusType = "COMMIT_USED_THIS_TURN"

	// StatusEnteredThisTurn marks a card placed on the board this turn.
	StatusEnteredThisTurn StatusType = "ENTERED_THIS_TURN"

	// Gameplay statuses.
	StatusStun    StatusType = "STUN"
	StatusSupport StatusType = "SUPPORT"
	StatusShield  StatusType = "SHIELD"
)

// CardStatus is one status instance with its origin.
type CardStatus struct {
	Type            StatusType `json:"type"`
	AddedByPlayerID int        `json:"addedByPlayerId"`
}

// Card is one card anywhere in play: hand, deck, discard or board cell.
type Card struct {
	ID      string `json:"id"`
	OwnerID int    `json:"ownerId"`

	Power         int `json:"power"`
	PowerModifier int `json:"powerModifier"`
	BonusPower    int `json:"bonusPower"`

	Statuses []CardStatus `json:"statuses,omitempty"`

	ImageURL      string `json:"imageUrl,omitempty"`
	FallbackImage string `json:"fallbackImage,omitempty"`
}

// EffectivePower is the card's printed power plus every accumulated modifier.
func (c *Card) EffectivePower() int {
	return c.Power + c.PowerModifier + c.BonusPower
}

// HasStatus reports whether the card carries a status of the given type.
func (c *Card) HasStatus(t StatusType) bool {
	for _, s := range c.Statuses {
		if s.Type == t {
			return true
		}
	}
	return false
}

// HasStatusFrom reports whether a specific player applied the given status.
func (c *Card) HasStatusFrom(t StatusType, playerID int) bool {
	for _, s := range c.Statuses {
		if s.Type == t && s.AddedByPlayerID == playerID {
			return true
		}
	}
	return false
}

// AddStatus appends a status unless the same player already applied one of
// that type. Statuses are not a set: the same type from different players
// coexists and stays attributable to whoever applied it.
func (c *Card) AddStatus(t StatusType, addedBy int) {
	if c.HasStatusFrom(t, addedBy) {
		return
	}
	c.Statuses = append(c.Statuses, CardStatus{Type: t, AddedByPlayerID: addedBy})
}

// RemoveStatus strips every status of the given type.
func (c *Card) RemoveStatus(t StatusType) {
	out := c.Statuses[:0]
	for _, s := range c.Statuses {
		if s.Type != t {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		c.Statuses = nil
		return
	}
	c.Statuses = out
}

// Clone deep-copies the card.
func (c *Card) Clone() *Card {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Statuses = append([]CardStatus(nil), c.Statuses...)
	return &cp
}

// Equal compares two cards field by field, statuses included (order matters;
// statuses are append-only within a turn).
func (c *Card) Equal(o *Card) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.ID != o.ID || c.OwnerID != o.OwnerID ||
		c.Power != o.Power || c.PowerModifier != o.PowerModifier || c.BonusPower != o.BonusPower ||
		c.ImageURL != o.ImageURL || c.FallbackImage != o.FallbackImage {
		return false
	}
	if len(c.Statuses) != len(o.Statuses) {
		return false
	}
	for i := range c.Statuses {
		if c.Statuses[i] != o.Statuses[i] {
			return false
		}
	}
	return true
}

// CardsEqual compares two card slices pairwise.
func CardsEqual(a, b []*Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneCards deep-copies a card slice.
func CloneCards(cards []*Card) []*Card {
	if cards == nil {
		return nil
	}
	out := make([]*Card, len(cards))
	for i, c := range cards {
		out[i] = c.Clone()
	}
	return out
}

// ActivationCondition gates a Setup or Commit ability beyond phase and usage.
type ActivationCondition string

const (
	// ConditionNone is always met.
	ConditionNone ActivationCondition = ""
	// ConditionOwnerSupport requires a Support status applied by the owner.
	ConditionOwnerSupport ActivationCondition = "OWNER_SUPPORT"
)

// Met evaluates the condition against a card.
func (ac ActivationCondition) Met(card *Card) bool {
	switch ac {
	case ConditionNone:
		return true
	case ConditionOwnerSupport:
		return card.HasStatusFrom(StatusSupport, card.OwnerID)
	default:
		return false
	}
}

// AbilityInfo describes which activations a card's ability offers. The effect
// catalog lives with the client decks; the engine only needs this shape.
type AbilityInfo struct {
	HasDeploy bool
	HasSetup  bool
	HasCommit bool

	SetupCondition  ActivationCondition
	CommitCondition ActivationCondition
}
