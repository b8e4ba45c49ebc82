package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"scoundrel/server/engine"
)

//
// ===== pretty printing =====
//

var useColor bool
var debugState bool

const (
	colReset  = "\033[0m"
	colBold   = "\033[1m"
	colDim    = "\033[2m"
	colGreen  = "\033[32m"
	colRed    = "\033[31m"
	colYellow = "\033[33m"
	colBlue   = "\033[34m"
	colCyan   = "\033[36m"
	colGray   = "\033[90m"
	colBRed   = "\033[91m"
)

func c(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colReset
}

func bold(s string) string { return c(colBold, s) }
func dim(s string) string  { return c(colDim, s) }
func good(s string) string { return c(colGreen, s) }
func warn(s string) string { return c(colYellow, s) }
func bad(s string) string  { return c(colRed, s) }
func cyan(s string) string { return c(colCyan, s) }
func blue(s string) string { return c(colBlue, s) }

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s %s %s\n", dim("──"), bold(title), dim("──"))
}

// cardName renders a card as suit glyph plus rank name, e.g. "♠Nine".
func cardName(card engine.Card) string {
	glyph, col := "?", colGray
	switch card.Suit {
	case engine.Clubs:
		glyph = "♣"
	case engine.Spades:
		glyph = "♠"
	case engine.Diamonds:
		glyph, col = "♦", colBRed
	case engine.Hearts:
		glyph, col = "♥", colBRed
	}
	return bold(c(col, glyph+card.Rank.Name()))
}

func actionText(v engine.View, a engine.Action) string {
	card := func() string {
		if a.Index < 0 || a.Index >= len(v.Room) {
			return "?"
		}
		return cardName(v.Room[a.Index])
	}
	switch a.Kind {
	case engine.KindFight:
		if a.Mode == engine.WithWeapon {
			return fmt.Sprintf("Fight %s with weapon", card())
		}
		return fmt.Sprintf("Fight %s barehanded", card())
	case engine.KindPotion:
		return "Use potion: " + card()
	case engine.KindWeapon:
		return "Equip weapon: " + card()
	case engine.KindFlee:
		return "Flee!"
	}
	return a.String()
}

func renderView(w io.Writer, v engine.View) {
	fmt.Fprint(w, "\n============ Current room ============\n  ")
	for _, card := range v.Room {
		fmt.Fprintf(w, "%s    ", cardName(card))
	}
	fmt.Fprint(w, "\n======================================\n\n")
	fmt.Fprintf(w, "Cards in deck: %d\n", v.DeckRemaining)
	fmt.Fprintf(w, "Health: %s/%s\n", cyan(strconv.Itoa(v.Health)), cyan(strconv.Itoa(engine.MaxHealth)))
	if v.Weapon != nil {
		fmt.Fprintf(w, "Weapon: %s\n", cardName(*v.Weapon))
		for _, k := range v.Slain {
			fmt.Fprintf(w, "        %s\n", cardName(k))
		}
	}
	fmt.Fprintln(w)
}

func renderLegal(w io.Writer, v engine.View, legal []engine.Action) {
	for i, a := range legal {
		fmt.Fprintf(w, "[%s] - %s\n", blue(strconv.Itoa(i+1)), actionText(v, a))
	}
}

func renderGameOver(w io.Writer, v engine.View, score int) {
	fmt.Fprintln(w, "\n=== Game over ===")
	fmt.Fprintf(w, "Final health: %d/%d\n", v.Health, engine.MaxHealth)
	fmt.Fprintf(w, "Your score: %s\n", bold(warn(strconv.Itoa(score))))
	fmt.Fprintln(w, "=================")
	fmt.Fprintln(w)
}

// parseChoice maps a 1-based menu entry to an index into a list of n.
func parseChoice(line string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// readChoice prompts until a valid entry arrives. It returns io.EOF when the
// input closes first.
func readChoice(in *bufio.Reader, out io.Writer, n int) (int, error) {
	for {
		fmt.Fprint(out, "\nChoose action: ")
		line, err := in.ReadString('\n')
		if idx, ok := parseChoice(line, n); ok {
			return idx, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, err
		}
		fmt.Fprintln(out, "Invalid input!")
	}
}
