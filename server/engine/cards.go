package engine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type Suit byte

const (
	Diamonds Suit = 'd'
	Hearts   Suit = 'h'
	Clubs    Suit = 'c'
	Spades   Suit = 's'
)

var suits = []Suit{Diamonds, Hearts, Clubs, Spades}

func (s Suit) Red() bool { return s == Diamonds || s == Hearts }

func (s Suit) Name() string {
	switch s {
	case Diamonds:
		return "Diamonds"
	case Hearts:
		return "Hearts"
	case Clubs:
		return "Clubs"
	case Spades:
		return "Spades"
	}
	return "?"
}

// Rank values double as strength: Two=2 .. Ace=14.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

func (r Rank) Strength() int { return int(r) }

func (r Rank) Name() string {
	names := [...]string{"Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten", "Jack", "Queen", "King", "Ace"}
	if r < Two || r > Ace {
		return "?"
	}
	return names[r-Two]
}

type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
} // e.g. "Td" => Ten of Diamonds

func (c Card) String() string {
	ranks := "  23456789TJQKA"
	if c.Rank < Two || c.Rank > Ace {
		return "??"
	}
	return fmt.Sprintf("%c%c", ranks[c.Rank], c.Suit)
}

func (c Card) Strength() int   { return c.Rank.Strength() }
func (c Card) IsMonster() bool { return c.Suit == Clubs || c.Suit == Spades }
func (c Card) IsPotion() bool  { return c.Suit == Hearts }
func (c Card) IsWeapon() bool  { return c.Suit == Diamonds }

// ParseCard reads the two-character form produced by String.
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return Card{}, fmt.Errorf("bad card %q", s)
	}
	i := strings.IndexByte("23456789TJQKA", strings.ToUpper(s[:1])[0])
	if i < 0 {
		return Card{}, fmt.Errorf("bad rank in %q", s)
	}
	suit := Suit(strings.ToLower(s[1:])[0])
	switch suit {
	case Diamonds, Hearts, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("bad suit in %q", s)
	}
	return Card{Rank: Two + Rank(i), Suit: suit}, nil
}

// ParseDeck reads whitespace-separated cards listed bottom to top, the order
// NewDeckFrom expects. Repeated cards are rejected.
func ParseDeck(s string) ([]Card, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty deck")
	}
	seen := make(map[Card]bool, len(fields))
	out := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("card %s listed twice", c)
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// Deck keeps its top at the end of the slice; Deal pops from there and
// fled cards go back in at index 0.
type Deck struct {
	cards []Card
}

// NewDeck returns the unshuffled 44-card dungeon: every club and spade, and
// the Two..Ten of diamonds and hearts.
func NewDeck() *Deck {
	cards := make([]Card, 0, 44)
	for _, s := range suits {
		for r := Two; r <= Ace; r++ {
			if s.Red() && r > Ten {
				continue
			}
			cards = append(cards, Card{Rank: r, Suit: s})
		}
	}
	return &Deck{cards: cards}
}

// NewDeckFrom builds a deck from cards listed bottom to top.
func NewDeckFrom(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Shuffle replaces the order with a random permutation. Seed 0 uses the clock.
func (d *Deck) Shuffle(seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	for i := len(d.cards) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes up to n cards from the top, keeping their deck order.
func (d *Deck) Deal(n int) []Card {
	if n <= 0 {
		return nil
	}
	if n >= len(d.cards) {
		out := d.cards
		d.cards = nil
		return out
	}
	cut := len(d.cards) - n
	out := append([]Card(nil), d.cards[cut:]...)
	d.cards = d.cards[:cut]
	return out
}

// PutBottom reinserts cards as one block at the bottom, in the given order.
func (d *Deck) PutBottom(cards []Card) {
	if len(cards) == 0 {
		return
	}
	next := make([]Card, 0, len(cards)+len(d.cards))
	next = append(next, cards...)
	d.cards = append(next, d.cards...)
}

func (d *Deck) Len() int { return len(d.cards) }

// Cards returns a bottom-to-top copy.
func (d *Deck) Cards() []Card { return append([]Card(nil), d.cards...) }
