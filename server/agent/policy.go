package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"scoundrel/server/engine"
)

// Agent picks one entry of the legal list for the current view.
type Agent interface {
	Name() string
	Choose(ctx context.Context, v engine.View, legal []engine.Action, obs Observation) (int, error)
}

// Parse builds an agent from its config name: "random", "greedy" or
// "llm:<model>".
func Parse(name string, seed int64) (Agent, error) {
	name = strings.TrimSpace(name)
	switch {
	case strings.EqualFold(name, "random"):
		return NewRandom(seed), nil
	case strings.EqualFold(name, "greedy"), name == "":
		return Greedy{}, nil
	case strings.HasPrefix(strings.ToLower(name), "llm:"):
		model := strings.TrimSpace(name[len("llm:"):])
		if model == "" {
			return nil, fmt.Errorf("agent %q: missing model", name)
		}
		return &LLM{Model: model}, nil
	}
	return nil, fmt.Errorf("unknown agent %q (want random, greedy or llm:<model>)", name)
}

type Random struct {
	r *rand.Rand
}

func NewRandom(seed int64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

func (a *Random) Name() string { return "random" }

func (a *Random) Choose(_ context.Context, _ engine.View, legal []engine.Action, _ Observation) (int, error) {
	if len(legal) == 0 {
		return 0, fmt.Errorf("no legal actions")
	}
	return a.r.Intn(len(legal)), nil
}

// Greedy is a one-step heuristic: it scores each legal action by the health
// it keeps plus a small value for the equipment left behind, and never walks
// into a lethal hit while anything survivable exists.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

func (g Greedy) Choose(_ context.Context, v engine.View, legal []engine.Action, _ Observation) (int, error) {
	if len(legal) == 0 {
		return 0, fmt.Errorf("no legal actions")
	}
	return Best(v, legal), nil
}

// Best returns the index of the greedy choice. Exported for the judge's
// rollouts, which need it without an Agent value.
func Best(v engine.View, legal []engine.Action) int {
	best, bestScore := 0, -1<<30
	for i, a := range legal {
		if s := rate(v, a); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

const lethal = -1000

func rate(v engine.View, a engine.Action) int {
	switch a.Kind {
	case engine.KindFlee:
		return rateFlee(v)
	case engine.KindPotion:
		c := v.Room[a.Index]
		healed := min(engine.MaxHealth, v.Health+c.Strength()) - v.Health
		// drinking at full health wastes the card
		return 3*healed - 2
	case engine.KindWeapon:
		c := v.Room[a.Index]
		cur := 0
		if v.Weapon != nil {
			cur = v.Weapon.Strength()
			if len(v.Slain) > 0 {
				// a used weapon is worth roughly its remaining reach
				cur = min(cur, v.Slain[len(v.Slain)-1].Strength()-1)
			}
		}
		return 4 * (c.Strength() - cur)
	case engine.KindFight:
		c := v.Room[a.Index]
		dmg := c.Strength()
		if a.Mode == engine.WithWeapon && v.Weapon != nil {
			dmg = max(0, c.Strength()-v.Weapon.Strength())
		}
		if dmg >= v.Health {
			return lethal
		}
		s := -4 * dmg
		if a.Mode == engine.WithWeapon {
			// a kill lowers the weapon's reach to this monster
			s -= 14 - c.Strength()
		}
		return s
	}
	return lethal
}

// rateFlee compares the cheapest way through the room against running. It is
// only attractive when every monster hit would be deep or lethal.
func rateFlee(v engine.View) int {
	worst := 0
	for _, c := range v.Room {
		if !c.IsMonster() {
			continue
		}
		dmg := c.Strength()
		if v.Weapon != nil && (len(v.Slain) == 0 || c.Strength() <= v.Slain[len(v.Slain)-1].Strength()) {
			dmg = max(0, c.Strength()-v.Weapon.Strength())
		}
		worst += dmg
	}
	if worst >= v.Health {
		return -2*v.Health - 1
	}
	return -4*worst - 40
}
