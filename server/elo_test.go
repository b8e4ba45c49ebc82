package main

import (
	"math"
	"testing"
)

func TestEloWinnerGains(t *testing.T) {
	e := NewElo(1500, 1500, 24)
	dA, dB := e.UpdateFromSeed(15, -30)
	if dA <= 0 || dB >= 0 {
		t.Fatalf("deltas %v %v", dA, dB)
	}
	if math.Abs(dA+dB) > 1e-9 {
		t.Fatalf("not zero-sum: %v %v", dA, dB)
	}
	if e.A <= 1500 || e.B >= 1500 || e.Games != 1 {
		t.Fatalf("ratings %+v", e)
	}
}

func TestEloDrawBetweenEquals(t *testing.T) {
	e := NewElo(1500, 1500, 24)
	dA, dB := e.UpdateFromSeed(7, 7)
	if dA != 0 || dB != 0 {
		t.Fatalf("draw moved ratings: %v %v", dA, dB)
	}
}

func TestEloBiggerMarginMovesMore(t *testing.T) {
	small := NewElo(1500, 1500, 24)
	big := NewElo(1500, 1500, 24)
	ds, _ := small.UpdateFromSeed(5, 3)
	db, _ := big.UpdateFromSeed(18, -60)
	if db <= ds {
		t.Fatalf("margin ignored: small %v big %v", ds, db)
	}
	if db > 24*1.35 {
		t.Fatalf("delta %v exceeds effective K", db)
	}
}
