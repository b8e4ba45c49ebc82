package main

import (
	"math"
	"math/rand"
	"sort"

	"scoundrel/server/engine"
)

// RunStats aggregates finished runs for one agent.
type RunStats struct {
	Runs     int
	Alive    int
	Scores   []float64
	Best     int
	Worst    int
	Turns    int
	Actions  map[engine.ActionKind]int
	Judged   int
	JudgeTop int
	GapSum   float64
}

func newRunStats() *RunStats {
	return &RunStats{Actions: map[engine.ActionKind]int{}}
}

func (s *RunStats) addRun(score int, alive bool, turns int) {
	if s.Runs == 0 || score > s.Best {
		s.Best = score
	}
	if s.Runs == 0 || score < s.Worst {
		s.Worst = score
	}
	s.Runs++
	if alive {
		s.Alive++
	}
	s.Turns += turns
	s.Scores = append(s.Scores, float64(score))
}

func (s *RunStats) addAction(a engine.Action) {
	if s.Actions == nil {
		s.Actions = map[engine.ActionKind]int{}
	}
	s.Actions[a.Kind]++
}

func (s *RunStats) addJudge(top bool, gap float64) {
	s.Judged++
	if top {
		s.JudgeTop++
	}
	s.GapSum += gap
}

func (s *RunStats) Mean() float64 {
	if len(s.Scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Scores {
		sum += v
	}
	return sum / float64(len(s.Scores))
}

func (s *RunStats) AliveRate() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Alive) / float64(s.Runs)
}

func (s *RunStats) AvgTurns() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.Turns) / float64(s.Runs)
}

// JudgeAccuracy is the share of judged decisions that were within epsilon
// of the best estimated action.
func (s *RunStats) JudgeAccuracy() float64 {
	if s.Judged == 0 {
		return 0
	}
	return float64(s.JudgeTop) / float64(s.Judged)
}

func (s *RunStats) AvgGap() float64 {
	if s.Judged == 0 {
		return 0
	}
	return s.GapSum / float64(s.Judged)
}

// --------- CI helpers ---------

// WilsonCI95 for a Bernoulli rate; ties count as half a success.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// BootstrapCI95 for the mean of values (run scores, duel margins).
func BootstrapCI95(vals []float64, B int) (low, hi float64) {
	n := len(vals)
	if n == 0 || B <= 1 {
		return 0, 0
	}
	res := make([]float64, B)
	for b := 0; b < B; b++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += vals[rand.Intn(n)]
		}
		res[b] = sum / float64(n)
	}
	sort.Float64s(res)
	l := int(0.025 * float64(B-1))
	h := int(0.975 * float64(B-1))
	return res[l], res[h]
}
