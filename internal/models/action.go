// internal/models/action.go
package models

// AbilityActionType discriminates ability effects. Each variant uses only the
// AbilityAction fields it needs; anything else is ignored by its handler.
type AbilityActionType string

const (
	ActionBoostPower  AbilityActionType = "boostPower"
	ActionDamageCard  AbilityActionType = "damageCard"
	ActionGrantStatus AbilityActionType = "grantStatus"
	ActionMoveCard    AbilityActionType = "moveCard"
	ActionDrawCards   AbilityActionType = "drawCards"
	ActionDiscardCard AbilityActionType = "discardCard"
)

// ActivationMode records which ready flag an action consumes.
type ActivationMode string

const (
	ModeDeploy ActivationMode = "deploy"
	ModeSetup  ActivationMode = "setup"
	ModeCommit ActivationMode = "commit"
)

// AbilityAction is a tagged ability invocation routed through the dispatcher.
// Chained follow-ups are queued and processed by a single loop rather than
// recursing handler into handler.
type AbilityAction struct {
	Type AbilityActionType `json:"type"`
	Mode ActivationMode    `json:"mode"`

	SourceCoords Coord  `json:"sourceCoords"`
	SourceCardID string `json:"sourceCardId"`

	// Target fields; which are meaningful depends on Type.
	TargetCoords   *Coord     `json:"targetCoords,omitempty"`
	TargetPlayerID *int       `json:"targetPlayerId,omitempty"`
	TargetHandIdx  *int       `json:"targetHandIdx,omitempty"`
	Status         StatusType `json:"status,omitempty"`
	Amount         int        `json:"amount,omitempty"`

	ChainedAction *AbilityAction `json:"chainedAction,omitempty"`
}
