package main

import "math"

// Elo holds ratings for agents A and B in a duel.
type Elo struct {
	A, B  float64
	K     float64
	Games int // seeds processed
}

func NewElo(a, b, k float64) Elo { return Elo{A: a, B: b, K: k} }

func (e Elo) expect() (ea, eb float64) {
	ea = 1.0 / (1.0 + math.Pow(10, (e.B-e.A)/400.0))
	return ea, 1.0 - ea
}

// UpdateFromSeed applies one seed's result, where both agents played the same
// deck, and returns the applied deltas (dA, dB).
func (e *Elo) UpdateFromSeed(scoreA, scoreB int) (dA, dB float64) {
	ea, eb := e.expect()

	// soft score from the score margin
	margin := float64(scoreA - scoreB)
	sA := 0.5 + 0.5*math.Tanh(margin/scoreLambda)
	sB := 1.0 - sA

	kEff := e.K * marginScale(margin) * decay(e.Games)

	dA = kEff * (sA - ea)
	dB = kEff * (sB - eb)

	e.A += dA
	e.B += dB
	e.Games++
	return dA, dB
}

// scoreLambda is the margin (in score points) that maps to tanh(1).
const scoreLambda = 10.0

func marginScale(margin float64) float64 {
	return 1.0 + 0.35*math.Tanh(math.Abs(margin)/(2*scoreLambda)) // <= ~1.35
}

func decay(games int) float64 {
	return 1.0 / (1.0 + 0.01*float64(games))
}
