package engine

import (
	"errors"
	"fmt"
)

const (
	RoomSize  = 4
	MaxHealth = 20
)

var (
	// ErrIllegalAction is returned by Apply for actions that could not have
	// come from the current Legal() list (stale index, wrong card kind).
	ErrIllegalAction = errors.New("illegal action")
	// ErrRunOngoing is returned by Score while the run is still in progress.
	ErrRunOngoing = errors.New("run still in progress")
)

type ActionKind string

const (
	KindPotion ActionKind = "potion"
	KindWeapon ActionKind = "weapon"
	KindFight  ActionKind = "fight"
	KindFlee   ActionKind = "flee"
)

type FightMode string

const (
	Barehanded FightMode = "barehanded"
	WithWeapon FightMode = "weapon"
)

// Action is a closed variant: Index is the room position for potion, weapon
// and fight; Mode is only set for fight. Flee carries neither.
type Action struct {
	Kind  ActionKind `json:"action"`
	Index int        `json:"index"`
	Mode  FightMode  `json:"mode,omitempty"`
}

func Potion(i int) Action                { return Action{Kind: KindPotion, Index: i} }
func Weapon(i int) Action                { return Action{Kind: KindWeapon, Index: i} }
func Fight(i int, mode FightMode) Action { return Action{Kind: KindFight, Index: i, Mode: mode} }
func Flee() Action                       { return Action{Kind: KindFlee, Index: -1} }

func (a Action) String() string {
	switch a.Kind {
	case KindFlee:
		return "flee"
	case KindFight:
		return fmt.Sprintf("fight[%d] %s", a.Index, a.Mode)
	default:
		return fmt.Sprintf("%s[%d]", a.Kind, a.Index)
	}
}

// View is the read-only snapshot handed to presentation and agents.
type View struct {
	Room          []Card `json:"room"`
	Weapon        *Card  `json:"weapon,omitempty"`
	Slain         []Card `json:"slain"`
	Health        int    `json:"health"`
	DeckRemaining int    `json:"deck_remaining"`
}
