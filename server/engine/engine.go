package engine

import "fmt"

// Game is the rule engine for one run. It is not safe for concurrent use;
// callers resolve actions strictly one at a time.
type Game struct {
	deck        *Deck
	graveyard   []Card
	room        []Card
	weapon      *Card
	slain       []Card
	health      int
	history     []Action
	sinceRefill int
}

// NewGame takes ownership of an already shuffled deck and deals the first room.
func NewGame(deck *Deck) *Game {
	g := &Game{deck: deck, health: MaxHealth}
	g.fillRoom()
	return g
}

func (g *Game) View() View {
	v := View{
		Room:          append([]Card{}, g.room...),
		Slain:         append([]Card{}, g.slain...),
		Health:        g.health,
		DeckRemaining: g.deck.Len(),
	}
	if g.weapon != nil {
		w := *g.weapon
		v.Weapon = &w
	}
	return v
}

func (g *Game) alive() bool { return g.health > 0 }

func (g *Game) Ongoing() bool {
	return g.alive() && g.deck.Len() > 0 && len(g.room) > 0
}

func (g *Game) Health() int { return g.health }
func (g *Game) Turns() int  { return len(g.history) }

// LastAction reports the most recently resolved action, if any.
func (g *Game) LastAction() (Action, bool) {
	if len(g.history) == 0 {
		return Action{}, false
	}
	return g.history[len(g.history)-1], true
}

func (g *Game) Legal() []Action {
	out := make([]Action, 0, 2*RoomSize+1)
	for i, c := range g.room {
		switch {
		case c.IsMonster():
			out = append(out, Fight(i, Barehanded))
			if g.canFightWithWeapon(c) {
				out = append(out, Fight(i, WithWeapon))
			}
		case c.IsPotion():
			if g.canDrink() {
				out = append(out, Potion(i))
			}
		case c.IsWeapon():
			out = append(out, Weapon(i))
		}
	}
	if g.canFlee() {
		out = append(out, Flee())
	}
	return out
}

// Apply resolves one action. Actions are expected to come from the latest
// Legal() call; anything that could not have (index outside the room, kind
// not matching the card, a second potion, a flee Legal() would not offer) is
// rejected with ErrIllegalAction before any state changes. A with-weapon
// fight the weapon can no longer take is resolved barehanded.
func (g *Game) Apply(a Action) error {
	if err := g.check(a); err != nil {
		return err
	}
	switch a.Kind {
	case KindPotion:
		g.drink(g.take(a.Index))
	case KindWeapon:
		g.equip(g.take(a.Index))
	case KindFight:
		card := g.take(a.Index)
		if a.Mode == WithWeapon && g.canFightWithWeapon(card) {
			g.fightWithWeapon(card)
		} else {
			g.fightBarehanded(card)
		}
	case KindFlee:
		g.deck.PutBottom(g.room)
		g.room = nil
	}
	g.history = append(g.history, a)
	g.sinceRefill++

	if len(g.room) <= 1 {
		g.fillRoom()
		g.sinceRefill = 0
	}
	return nil
}

// Score is the terminal outcome: remaining health when alive, otherwise
// minus the strength of every monster left in the room and the deck.
func (g *Game) Score() (int, error) {
	if g.Ongoing() {
		return 0, ErrRunOngoing
	}
	if g.alive() {
		return g.health, nil
	}
	penalty := monsterStrength(g.room) + monsterStrength(g.deck.cards)
	return -penalty, nil
}

func monsterStrength(cards []Card) int {
	sum := 0
	for _, c := range cards {
		if c.IsMonster() {
			sum += c.Strength()
		}
	}
	return sum
}

func (g *Game) check(a Action) error {
	switch a.Kind {
	case KindFlee:
		if !g.canFlee() {
			return fmt.Errorf("%w: flee needs an untouched room and no flee just before", ErrIllegalAction)
		}
		return nil
	case KindPotion, KindWeapon, KindFight:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrIllegalAction, a.Kind)
	}
	if a.Index < 0 || a.Index >= len(g.room) {
		return fmt.Errorf("%w: %s outside room of %d", ErrIllegalAction, a, len(g.room))
	}
	c := g.room[a.Index]
	switch a.Kind {
	case KindPotion:
		if !c.IsPotion() {
			return fmt.Errorf("%w: %s is not a potion", ErrIllegalAction, c)
		}
		if !g.canDrink() {
			return fmt.Errorf("%w: potion already used in this room", ErrIllegalAction)
		}
	case KindWeapon:
		if !c.IsWeapon() {
			return fmt.Errorf("%w: %s is not a weapon", ErrIllegalAction, c)
		}
	case KindFight:
		if !c.IsMonster() {
			return fmt.Errorf("%w: %s is not a monster", ErrIllegalAction, c)
		}
		if a.Mode != Barehanded && a.Mode != WithWeapon {
			return fmt.Errorf("%w: unknown fight mode %q", ErrIllegalAction, a.Mode)
		}
	}
	return nil
}

func (g *Game) take(i int) Card {
	c := g.room[i]
	g.room = append(g.room[:i:i], g.room[i+1:]...)
	return c
}

func (g *Game) fillRoom() {
	space := RoomSize - len(g.room)
	if space <= 0 {
		return
	}
	g.room = append(g.room, g.deck.Deal(space)...)
}

func (g *Game) damage(n int) {
	g.health -= n
	if g.health < 0 {
		g.health = 0
	}
}

func (g *Game) drink(potion Card) {
	g.health += potion.Strength()
	if g.health > MaxHealth {
		g.health = MaxHealth
	}
	g.graveyard = append(g.graveyard, potion)
}

func (g *Game) equip(weapon Card) {
	g.discardWeapon()
	g.weapon = &weapon
}

// discardWeapon sends the weapon and everything it killed to the graveyard.
func (g *Game) discardWeapon() {
	g.graveyard = append(g.graveyard, g.slain...)
	g.slain = nil
	if g.weapon != nil {
		g.graveyard = append(g.graveyard, *g.weapon)
		g.weapon = nil
	}
}

// canFightWithWeapon is the durability rule: once a weapon has a kill it
// only works on monsters no stronger than its last one.
func (g *Game) canFightWithWeapon(monster Card) bool {
	if g.weapon == nil {
		return false
	}
	if len(g.slain) == 0 {
		return true
	}
	return monster.Strength() <= g.slain[len(g.slain)-1].Strength()
}

// canDrink enforces one potion per room refill, waived while the room holds
// nothing but hearts.
func (g *Game) canFlee() bool {
	if len(g.room) != RoomSize {
		return false
	}
	last, ok := g.LastAction()
	return !ok || last.Kind != KindFlee
}

func (g *Game) canDrink() bool {
	allHearts := true
	for _, c := range g.room {
		if !c.IsPotion() {
			allHearts = false
			break
		}
	}
	if allHearts {
		return true
	}
	for _, a := range g.history[len(g.history)-g.sinceRefill:] {
		if a.Kind == KindPotion {
			return false
		}
	}
	return true
}

func (g *Game) fightBarehanded(monster Card) {
	g.damage(monster.Strength())
	g.graveyard = append(g.graveyard, monster)
}

func (g *Game) fightWithWeapon(monster Card) {
	dmg := monster.Strength() - g.weapon.Strength()
	if dmg < 0 {
		dmg = 0
	}
	if dmg >= g.health {
		// the killing blow takes the weapon down with the player
		g.health = 0
		g.graveyard = append(g.graveyard, monster)
		g.discardWeapon()
		return
	}
	g.damage(dmg)
	g.slain = append(g.slain, monster)
}

// Clone returns an independent deep copy of the run.
func (g *Game) Clone() *Game {
	c := &Game{
		deck:        NewDeckFrom(g.deck.cards),
		graveyard:   append([]Card(nil), g.graveyard...),
		room:        append([]Card(nil), g.room...),
		slain:       append([]Card(nil), g.slain...),
		health:      g.health,
		history:     append([]Action(nil), g.history...),
		sinceRefill: g.sinceRefill,
	}
	if g.weapon != nil {
		w := *g.weapon
		c.weapon = &w
	}
	return c
}

// ShuffleDeck re-permutes the face-down deck. It is meant for clones used in
// search, where the real deck order must not leak into decisions.
func (g *Game) ShuffleDeck(seed int64) { g.deck.Shuffle(seed) }
