package main

import (
	"math"
	"testing"

	"scoundrel/server/engine"
)

func TestRunStats(t *testing.T) {
	s := newRunStats()
	s.addRun(12, true, 30)
	s.addRun(-40, false, 10)
	s.addRun(4, true, 20)
	s.addAction(engine.Flee())
	s.addAction(engine.Potion(1))
	s.addAction(engine.Flee())
	s.addJudge(true, 0)
	s.addJudge(false, 3)

	if s.Runs != 3 || s.Alive != 2 {
		t.Fatalf("counts %d/%d", s.Runs, s.Alive)
	}
	if s.Best != 12 || s.Worst != -40 {
		t.Fatalf("best/worst %d/%d", s.Best, s.Worst)
	}
	if got := s.Mean(); math.Abs(got-(-8)) > 1e-9 {
		t.Fatalf("mean %v", got)
	}
	if got := s.AvgTurns(); got != 20 {
		t.Fatalf("avg turns %v", got)
	}
	if s.Actions[engine.KindFlee] != 2 || s.Actions[engine.KindPotion] != 1 {
		t.Fatalf("action mix %v", s.Actions)
	}
	if s.JudgeAccuracy() != 0.5 || s.AvgGap() != 1.5 {
		t.Fatalf("judge %v %v", s.JudgeAccuracy(), s.AvgGap())
	}
}

func TestRunStatsEmpty(t *testing.T) {
	var s RunStats
	if s.Mean() != 0 || s.AliveRate() != 0 || s.AvgTurns() != 0 || s.JudgeAccuracy() != 0 {
		t.Fatal("empty stats should be zero")
	}
	s.addAction(engine.Flee())
	if s.Actions[engine.KindFlee] != 1 {
		t.Fatal("addAction on zero value")
	}
}

func TestWilsonCI95(t *testing.T) {
	lo, hi := WilsonCI95(0, 0, 0)
	if lo != 0 || hi != 1 {
		t.Fatalf("empty interval %v %v", lo, hi)
	}
	lo, hi = WilsonCI95(50, 0, 100)
	if !(lo < 0.5 && hi > 0.5) || lo < 0.38 || hi > 0.62 {
		t.Fatalf("interval %v %v", lo, hi)
	}
	lo, hi = WilsonCI95(10, 0, 10)
	if hi > 1+1e-9 || lo < 0.6 {
		t.Fatalf("all-success interval %v %v", lo, hi)
	}
}

func TestBootstrapCI95(t *testing.T) {
	if lo, hi := BootstrapCI95(nil, 100); lo != 0 || hi != 0 {
		t.Fatal("empty input")
	}
	vals := []float64{5, 5, 5, 5}
	lo, hi := BootstrapCI95(vals, 200)
	if lo != 5 || hi != 5 {
		t.Fatalf("constant input %v %v", lo, hi)
	}
	vals = []float64{-10, 0, 10, 20}
	lo, hi = BootstrapCI95(vals, 500)
	if lo > hi || lo < -10 || hi > 20 {
		t.Fatalf("interval %v %v", lo, hi)
	}
}
