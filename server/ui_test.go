package main

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"scoundrel/server/engine"
)

func TestParseChoice(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want int
		ok   bool
	}{
		{"1\n", 3, 0, true},
		{" 3 ", 3, 2, true},
		{"0", 3, 0, false},
		{"4", 3, 0, false},
		{"-1", 3, 0, false},
		{"two", 3, 0, false},
		{"", 3, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseChoice(tc.in, tc.n)
		if ok != tc.ok || got != tc.want {
			t.Errorf("parseChoice(%q, %d) = %d, %v", tc.in, tc.n, got, ok)
		}
	}
}

func TestReadChoiceRetries(t *testing.T) {
	var out bytes.Buffer
	idx, err := readChoice(bufio.NewReader(strings.NewReader("x\n9\n2\n")), &out, 3)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("idx = %d", idx)
	}
	if n := strings.Count(out.String(), "Invalid input!"); n != 2 {
		t.Fatalf("expected 2 rejections, got %d in %q", n, out.String())
	}
}

func TestReadChoiceEOF(t *testing.T) {
	var out bytes.Buffer
	if _, err := readChoice(bufio.NewReader(strings.NewReader("nope\n")), &out, 2); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	// a final line without newline still counts
	idx, err := readChoice(bufio.NewReader(strings.NewReader("2")), &out, 2)
	if err != nil || idx != 1 {
		t.Fatalf("got %d, %v", idx, err)
	}
}

func TestRenderView(t *testing.T) {
	useColor = false
	w, _ := engine.ParseCard("5d")
	k, _ := engine.ParseCard("3c")
	room := []engine.Card{}
	for _, s := range []string{"9s", "4h"} {
		card, _ := engine.ParseCard(s)
		room = append(room, card)
	}
	v := engine.View{Room: room, Weapon: &w, Slain: []engine.Card{k}, Health: 14, DeckRemaining: 30}
	var buf bytes.Buffer
	renderView(&buf, v)
	out := buf.String()
	for _, want := range []string{"♠Nine", "♥Four", "Cards in deck: 30", "Health: 14/20", "Weapon: ♦Five", "♣Three"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}

	buf.Reset()
	renderLegal(&buf, v, []engine.Action{engine.Fight(0, engine.WithWeapon), engine.Potion(1), engine.Flee()})
	want := "[1] - Fight ♠Nine with weapon\n[2] - Use potion: ♥Four\n[3] - Flee!\n"
	if buf.String() != want {
		t.Fatalf("legal menu = %q", buf.String())
	}
}
