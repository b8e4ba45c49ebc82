package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"scoundrel/server/agent"
	"scoundrel/server/engine"
	"scoundrel/server/judge"
	"scoundrel/server/store"
)

type runConfig struct {
	Mode         string
	Seed         int64
	Deck         []engine.Card // bottom to top; empty means shuffle by Seed
	AgentID      int64
	JudgeSamples int
	Coach        bool // print judge feedback after each decision
	Out          io.Writer
	StopNow      func() bool
}

type runResult struct {
	Key     string
	RunID   int64
	Score   int
	Health  int
	Turns   int
	Outcome string
	Aborted bool
	Final   engine.View
}

func (r runResult) Alive() bool { return r.Outcome != store.OutcomeDead }

// playRun deals rc.Deck, or a fresh deck shuffled by rc.Seed, and lets ag
// play it out. Store
// failures only disable recording; a rejected action is a defect and is
// returned as an error.
func playRun(ctx context.Context, ag agent.Agent, st store.Store, rc runConfig, stats *RunStats) (runResult, error) {
	key, err := uuid.NewRandom()
	if err != nil {
		return runResult{}, err
	}
	res := runResult{Key: key.String()}
	out := rc.Out
	if out == nil {
		out = io.Discard
	}

	var d *engine.Deck
	if len(rc.Deck) > 0 {
		d = engine.NewDeckFrom(rc.Deck)
	} else {
		d = engine.NewDeck()
		d.Shuffle(rc.Seed)
	}
	g := engine.NewGame(d)

	if st != nil {
		id, err := st.CreateRun(ctx, store.RunStart{Key: res.Key, AgentID: rc.AgentID, Seed: rc.Seed, Mode: rc.Mode})
		if err != nil {
			log.Printf("CreateRun failed: %v (not recording this run)", err)
			st = nil
		} else {
			res.RunID = id
		}
	}

	for g.Ongoing() {
		if rc.StopNow != nil && rc.StopNow() {
			res.Aborted = true
			break
		}
		v := g.View()
		legal := g.Legal()
		if len(legal) == 0 {
			res.Outcome = store.OutcomeStuck
			break
		}
		turn := g.Turns() + 1
		obs := agent.BuildObservation(res.Key, turn, v, legal)
		idx, err := ag.Choose(ctx, v, legal, obs)
		if err != nil {
			return res, err
		}
		if idx < 0 || idx >= len(legal) {
			return res, fmt.Errorf("%s chose %d of %d legal actions", ag.Name(), idx, len(legal))
		}
		a := legal[idx]

		var (
			verdict judge.Result
			judged  bool
		)
		if rc.JudgeSamples > 0 {
			verdict, err = judge.Evaluate(g, legal, idx, judge.Options{Samples: rc.JudgeSamples, Seed: rc.Seed + int64(turn)*7919})
			if err != nil {
				log.Printf("judge failed on turn %d: %v", turn, err)
			} else {
				judged = true
			}
		}

		if err := g.Apply(a); err != nil {
			return res, fmt.Errorf("turn %d %s: %w", turn, a, err)
		}
		after := g.View()
		if stats != nil {
			stats.addAction(a)
			if judged {
				stats.addJudge(verdict.IsTop, verdict.Gap)
			}
		}
		if debugState {
			log.Printf("[%s] turn=%d %s hp %d->%d deck=%d", ag.Name(), turn, agent.Label(v, a), v.Health, after.Health, after.DeckRemaining)
		}
		if rc.Coach && judged && !verdict.IsTop {
			fmt.Fprintf(out, "%s %s (EV %.1f vs %.1f)\n", dim("judge: better was"),
				actionText(v, legal[verdict.Best]), verdict.BestEV, verdict.ChosenEV)
		}

		if st != nil {
			l := store.ActionLog{
				RunID:         res.RunID,
				Turn:          turn,
				Action:        string(a.Kind),
				Index:         a.Index,
				Mode:          string(a.Mode),
				Label:         obs.Legal[idx],
				Choice:        idx,
				LegalCount:    len(legal),
				HealthBefore:  v.Health,
				HealthAfter:   after.Health,
				Room:          obs.Room,
				Weapon:        obs.Weapon,
				DeckRemaining: after.DeckRemaining,
			}
			if a.Index >= 0 && a.Index < len(v.Room) {
				l.Card = v.Room[a.Index].String()
			}
			logID, err := st.InsertActionLog(ctx, l)
			if err != nil {
				log.Printf("InsertActionLog failed: %v (not recording this run)", err)
				st = nil
			} else if judged {
				if err := st.InsertActionEval(ctx, store.ActionEval{
					ActionLogID: logID,
					Solver:      judge.Solver,
					Samples:     rc.JudgeSamples,
					BestLabel:   obs.Legal[verdict.Best],
					BestEV:      verdict.BestEV,
					ChosenEV:    verdict.ChosenEV,
					Gap:         verdict.Gap,
					IsTop:       verdict.IsTop,
				}); err != nil {
					log.Printf("InsertActionEval failed: %v", err)
				}
			}
		}
	}

	res.Turns = g.Turns()
	res.Health = g.Health()
	res.Final = g.View()
	if res.Aborted {
		return res, nil
	}
	score, err := g.Score()
	switch {
	case errors.Is(err, engine.ErrRunOngoing):
		// no legal action left; score what the player kept
		score = g.Health()
	case err != nil:
		return res, err
	}
	res.Score = score
	if res.Outcome == "" {
		res.Outcome = store.OutcomeCleared
		if g.Health() <= 0 {
			res.Outcome = store.OutcomeDead
		}
	}
	if stats != nil {
		stats.addRun(res.Score, res.Alive(), res.Turns)
	}
	if st != nil {
		if err := st.CompleteRun(ctx, store.RunResult{
			RunID: res.RunID, Score: res.Score, Health: res.Health, Turns: res.Turns, Outcome: res.Outcome,
		}); err != nil {
			log.Printf("CompleteRun failed: %v", err)
		}
	}
	return res, nil
}

// human reads choices from a terminal.
type human struct {
	in  *bufio.Reader
	out io.Writer
}

func (h *human) Name() string { return "human" }

func (h *human) Choose(_ context.Context, v engine.View, legal []engine.Action, _ agent.Observation) (int, error) {
	renderView(h.out, v)
	renderLegal(h.out, v, legal)
	return readChoice(h.in, h.out, len(legal))
}
