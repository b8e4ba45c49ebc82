package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"scoundrel/server/engine"
	"scoundrel/server/llm"
)

const benchSystem = `
You are playing Scoundrel, a solo dungeon crawl with a 44-card deck.

Rules you must reason with:
- Clubs and spades are monsters; their damage is the rank (2-10, J=11, Q=12, K=13, A=14).
- Hearts are potions that heal their rank up to 20 health; only one potion per room counts unless the room is all hearts.
- Diamonds are weapons. Fighting with a weapon deals max(0, monster - weapon) damage.
- After a weapon kills a monster it can only be used on monsters no stronger than its last kill.
- Fleeing sends the whole untouched room to the bottom of the deck; you cannot flee twice in a row.
- The room refills when one card is left. You win by emptying the dungeon alive.

Output format:
- Return exactly one option by its index in legal_actions.
- Do not add commentary or explanations.
`

// LLM asks a chat model to pick the action and falls back to Greedy when the
// call fails or the reply cannot be used.
type LLM struct {
	Model   string
	Timeout time.Duration
	Debug   bool
}

func (a *LLM) Name() string { return "llm:" + a.Model }

func (a *LLM) Choose(ctx context.Context, v engine.View, legal []engine.Action, obs Observation) (int, error) {
	if len(legal) == 0 {
		return 0, errors.New("no legal actions")
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obsRaw, _ := json.Marshal(obs)
	user := "Given this observation JSON:\n" + string(obsRaw) +
		"\n\nRespond ONLY with a single compact JSON object: {\"choice\": <index into legal_actions>}"
	choice, raw, err := llm.ChooseAction(ctx2, a.Model, benchSystem, user, obs.Legal, llm.PingOptions{})
	if a.Debug && raw != "" {
		log.Printf("llm raw: %s", raw)
	}
	if err == nil {
		out := ActionOut{Choice: choice}
		if err = Validate(obs, &out); err == nil {
			return out.Choice, nil
		}
	}
	if errors.Is(err, context.Canceled) {
		return 0, err
	}
	log.Printf("LLM fallback for %s: %v (legal=%v)", a.Model, err, obs.Legal)
	return Best(v, legal), nil
}
