package agent

import (
	"fmt"
	"strings"

	"scoundrel/server/engine"
)

type Observation struct {
	RunID         string   `json:"run_id"`
	Turn          int      `json:"turn"`
	Room          []string `json:"room"`             // e.g. ["9s","4h","Td","2c"]
	Weapon        string   `json:"weapon,omitempty"` // empty when barehanded
	Slain         []string `json:"slain"`            // kills with the current weapon, oldest first
	Health        int      `json:"health"`
	MaxHealth     int      `json:"max_health"`
	DeckRemaining int      `json:"deck_remaining"`
	Legal         []string `json:"legal_actions"` // labels, same order as the engine's legal list
}

type ActionOut struct {
	Choice  int    `json:"choice"`            // index into legal_actions
	Comment string `json:"comment,omitempty"` // <=120 chars
}

// BuildObservation converts engine state into the JSON we send the model.
func BuildObservation(runID string, turn int, v engine.View, legal []engine.Action) Observation {
	labels := make([]string, len(legal))
	for i, a := range legal {
		labels[i] = Label(v, a)
	}
	o := Observation{
		RunID:         runID,
		Turn:          turn,
		Room:          cardsToStr(v.Room),
		Slain:         cardsToStr(v.Slain),
		Health:        v.Health,
		MaxHealth:     engine.MaxHealth,
		DeckRemaining: v.DeckRemaining,
		Legal:         labels,
	}
	if v.Weapon != nil {
		o.Weapon = v.Weapon.String()
	}
	return o
}

func cardsToStr(cs []engine.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

// Label renders an action against the room it was enumerated for.
func Label(v engine.View, a engine.Action) string {
	card := func() string {
		if a.Index < 0 || a.Index >= len(v.Room) {
			return "?"
		}
		return v.Room[a.Index].String()
	}
	switch a.Kind {
	case engine.KindFight:
		if a.Mode == engine.WithWeapon {
			return fmt.Sprintf("fight %s with weapon", card())
		}
		return fmt.Sprintf("fight %s barehanded", card())
	case engine.KindPotion:
		return fmt.Sprintf("drink potion %s", card())
	case engine.KindWeapon:
		return fmt.Sprintf("equip weapon %s", card())
	case engine.KindFlee:
		return "flee the room"
	}
	return string(a.Kind)
}

// Validate the agent's choice against the observation.
func Validate(o Observation, a *ActionOut) error {
	if a.Choice < 0 || a.Choice >= len(o.Legal) {
		return fmt.Errorf("choice %d out of range [0, %d)", a.Choice, len(o.Legal))
	}
	a.Comment = strings.TrimSpace(a.Comment)
	if len(a.Comment) > 120 {
		a.Comment = a.Comment[:120]
	}
	return nil
}
