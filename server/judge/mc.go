package judge

import (
	"errors"
	"fmt"
	"math"

	"scoundrel/server/agent"
	"scoundrel/server/engine"
)

const Solver = "MCJudge"

// Options controls the Monte Carlo evaluation. Samples is the number of deck
// determinizations per action; Eps is the EV slack (in score points) within
// which the chosen action still counts as top.
type Options struct {
	Samples int
	Seed    int64
	Eps     float64
}

type Result struct {
	EVs      []float64 `json:"evs"`
	Best     int       `json:"best"`
	BestEV   float64   `json:"best_ev"`
	Chosen   int       `json:"chosen"`
	ChosenEV float64   `json:"chosen_ev"`
	Gap      float64   `json:"gap"`
	IsTop    bool      `json:"is_top"`
}

// Evaluate estimates the expected final score of every legal action from g.
// Each sample reshuffles the hidden deck of a clone so the real order never
// leaks into the estimate, then plays the greedy policy to the end. All
// actions share the same determinizations per sample. g is not modified.
func Evaluate(g *engine.Game, legal []engine.Action, chosen int, opts Options) (Result, error) {
	if len(legal) == 0 {
		return Result{}, errors.New("no legal actions")
	}
	if chosen < 0 || chosen >= len(legal) {
		return Result{}, fmt.Errorf("chosen %d outside legal list of %d", chosen, len(legal))
	}
	if opts.Samples <= 0 {
		opts.Samples = 32
	}
	if opts.Eps <= 0 {
		opts.Eps = 0.5
	}

	evs := make([]float64, len(legal))
	for i, a := range legal {
		var total int
		for s := 0; s < opts.Samples; s++ {
			score, err := rollout(g, a, opts.Seed+int64(s)+1)
			if err != nil {
				return Result{}, fmt.Errorf("rollout %s: %w", a, err)
			}
			total += score
		}
		evs[i] = float64(total) / float64(opts.Samples)
	}

	res := Result{EVs: evs, Chosen: chosen, ChosenEV: evs[chosen], BestEV: math.Inf(-1)}
	for i, ev := range evs {
		if ev > res.BestEV {
			res.Best, res.BestEV = i, ev
		}
	}
	res.Gap = res.BestEV - res.ChosenEV
	res.IsTop = res.Gap <= opts.Eps
	return res, nil
}

func rollout(g *engine.Game, first engine.Action, seed int64) (int, error) {
	sim := g.Clone()
	sim.ShuffleDeck(seed)
	if err := sim.Apply(first); err != nil {
		return 0, err
	}
	for sim.Ongoing() {
		legal := sim.Legal()
		if len(legal) == 0 {
			break
		}
		if err := sim.Apply(legal[agent.Best(sim.View(), legal)]); err != nil {
			return 0, err
		}
	}
	score, err := sim.Score()
	if errors.Is(err, engine.ErrRunOngoing) {
		// stuck with no legal action; count what the player has left
		return sim.Health(), nil
	}
	return score, err
}
