package engine

import (
	"errors"
	"math/rand"
	"testing"
)

func hasAction(actions []Action, want Action) bool {
	for _, a := range actions {
		if a == want {
			return true
		}
	}
	return false
}

func allPotions(cards []Card) bool {
	for _, c := range cards {
		if !c.IsPotion() {
			return false
		}
	}
	return true
}

func mustApply(t *testing.T, g *Game, a Action) {
	t.Helper()
	if err := g.Apply(a); err != nil {
		t.Fatalf("Apply(%s): %v", a, err)
	}
}

// checkInvariants verifies the state rules that must hold after every resolution.
func checkInvariants(t *testing.T, g *Game) {
	t.Helper()
	if g.health < 0 || g.health > MaxHealth {
		t.Fatalf("health %d out of range", g.health)
	}
	if len(g.room) > RoomSize {
		t.Fatalf("room has %d cards", len(g.room))
	}
	if len(g.slain) > 0 && g.weapon == nil {
		t.Fatal("kill history without a weapon")
	}
	if g.sinceRefill > len(g.history) {
		t.Fatalf("sinceRefill %d > history %d", g.sinceRefill, len(g.history))
	}
	all := append([]Card{}, g.deck.cards...)
	all = append(all, g.room...)
	all = append(all, g.graveyard...)
	all = append(all, g.slain...)
	if g.weapon != nil {
		all = append(all, *g.weapon)
	}
	if len(all) != 44 {
		t.Fatalf("accounted for %d cards, want 44", len(all))
	}
	seen := map[Card]bool{}
	for _, c := range all {
		if seen[c] {
			t.Fatalf("card %s appears twice", c)
		}
		seen[c] = true
	}
}

func TestNewGameDealsFirstRoom(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3d 4h 5s 6c")))
	v := g.View()
	if !sameCards(v.Room, mustCards(t, "3d 4h 5s 6c")) {
		t.Fatalf("room = %v", v.Room)
	}
	if !sameCards(g.deck.Cards(), mustCards(t, "2c")) {
		t.Fatalf("deck = %v", g.deck.Cards())
	}
	if v.Health != MaxHealth || v.DeckRemaining != 1 || v.Weapon != nil {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestWeaponThenWeakerKill(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3d 4h 5s 6c")))

	mustApply(t, g, Weapon(0))
	v := g.View()
	if v.Weapon == nil || v.Weapon.String() != "3d" {
		t.Fatalf("weapon = %v", v.Weapon)
	}
	if !sameCards(v.Room, mustCards(t, "4h 5s 6c")) || v.Health != 20 {
		t.Fatalf("after equip: %+v", v)
	}

	mustApply(t, g, Fight(1, WithWeapon))
	v = g.View()
	if v.Health != 18 {
		t.Errorf("health = %d, want 18", v.Health)
	}
	if !sameCards(v.Slain, mustCards(t, "5s")) {
		t.Errorf("slain = %v", v.Slain)
	}
	if !sameCards(v.Room, mustCards(t, "4h 6c")) {
		t.Errorf("room = %v", v.Room)
	}
	if hasAction(g.Legal(), Fight(1, WithWeapon)) {
		t.Error("6c must not be fightable with a weapon whose last kill was 5s")
	}
}

func TestDurabilityFallsBackToBarehanded(t *testing.T) {
	w := mustCards(t, "3d")[0]
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "2c 9c")),
		room:   mustCards(t, "4h 6c 7s 8d"),
		weapon: &w,
		slain:  mustCards(t, "5s"),
		health: 4,
	}
	if hasAction(g.Legal(), Fight(1, WithWeapon)) {
		t.Fatal("weapon fight offered above durability")
	}
	mustApply(t, g, Fight(1, WithWeapon))
	if g.health != 0 {
		t.Fatalf("health = %d, want 0", g.health)
	}
	if len(g.graveyard) != 1 || g.graveyard[0].String() != "6c" {
		t.Fatalf("graveyard = %v", g.graveyard)
	}
	if g.weapon == nil || len(g.slain) != 1 {
		t.Fatal("barehanded fallback must not touch the weapon")
	}
	if g.Ongoing() {
		t.Fatal("dead player still ongoing")
	}
}

func TestFatalWeaponBlowDestroysWeapon(t *testing.T) {
	w := mustCards(t, "2d")[0]
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "3c")),
		room:   mustCards(t, "Ks 4h 5h 6h"),
		weapon: &w,
		slain:  mustCards(t, "Ac"),
		health: 5,
	}
	mustApply(t, g, Fight(0, WithWeapon))
	if g.health != 0 {
		t.Fatalf("health = %d", g.health)
	}
	if g.weapon != nil || len(g.slain) != 0 {
		t.Fatal("weapon survived the killing blow")
	}
	if len(g.graveyard) != 3 {
		t.Fatalf("graveyard = %v, want monster, kills and weapon", g.graveyard)
	}
	score, err := g.Score()
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != -3 {
		t.Fatalf("score = %d, want -3", score)
	}
}

func TestWeaponFightExactDamageKills(t *testing.T) {
	w := mustCards(t, "5d")[0]
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "3c")),
		room:   mustCards(t, "9s 4h 5h 6h"),
		weapon: &w,
		health: 4,
	}
	mustApply(t, g, Fight(0, WithWeapon))
	if g.health != 0 || g.weapon != nil {
		t.Fatalf("damage equal to health must be fatal: health=%d weapon=%v", g.health, g.weapon)
	}
}

func TestWeakMonsterTakesNoDamage(t *testing.T) {
	w := mustCards(t, "9d")[0]
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "3c")),
		room:   mustCards(t, "4s 4h 5h 6h"),
		weapon: &w,
		health: 7,
	}
	mustApply(t, g, Fight(0, WithWeapon))
	if g.health != 7 {
		t.Fatalf("health = %d, want 7", g.health)
	}
	if !sameCards(g.slain, mustCards(t, "4s")) {
		t.Fatalf("slain = %v", g.slain)
	}
}

func TestEquipFlushesOldWeaponAndKills(t *testing.T) {
	w := mustCards(t, "4d")[0]
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "3c 2c")),
		room:   mustCards(t, "7d 5h 6h 9s"),
		weapon: &w,
		slain:  mustCards(t, "Ts 8c"),
		health: 12,
	}
	mustApply(t, g, Weapon(0))
	if g.weapon == nil || *g.weapon != mustCards(t, "7d")[0] {
		t.Fatalf("weapon = %v", g.weapon)
	}
	if len(g.slain) != 0 {
		t.Fatalf("slain not cleared: %v", g.slain)
	}
	if !sameCards(g.graveyard, mustCards(t, "Ts 8c 4d")) {
		t.Fatalf("graveyard = %v", g.graveyard)
	}
	if !hasAction(g.Legal(), Fight(2, WithWeapon)) {
		t.Fatal("fresh weapon should fight anything")
	}
}

func TestBarehandedDamageFloorsAtZero(t *testing.T) {
	tests := []struct {
		name   string
		health int
		want   int
	}{
		{"survives", 20, 6},
		{"exact", 14, 0},
		{"overkill", 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Game{
				deck:   NewDeckFrom(mustCards(t, "3c")),
				room:   mustCards(t, "Ac 4h 5h 6h"),
				health: tt.health,
			}
			mustApply(t, g, Fight(0, Barehanded))
			if g.health != tt.want {
				t.Fatalf("health = %d, want %d", g.health, tt.want)
			}
			if len(g.graveyard) != 1 || g.graveyard[0].String() != "Ac" {
				t.Fatalf("graveyard = %v", g.graveyard)
			}
		})
	}
}

func TestPotionHealsUpToMax(t *testing.T) {
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "3c")),
		room:   mustCards(t, "9h 2s 3s 4s"),
		health: 15,
	}
	mustApply(t, g, Potion(0))
	if g.health != MaxHealth {
		t.Fatalf("health = %d, want %d", g.health, MaxHealth)
	}
	if len(g.graveyard) != 1 {
		t.Fatalf("potion not discarded: %v", g.graveyard)
	}
}

func TestOnePotionPerRoom(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3c 4c 5c 2s 3h 4h 9s")))
	// room: 2s 3h 4h 9s
	if !hasAction(g.Legal(), Potion(1)) || !hasAction(g.Legal(), Potion(2)) {
		t.Fatalf("potions should be legal at start: %v", g.Legal())
	}
	mustApply(t, g, Potion(1))
	for _, a := range g.Legal() {
		if a.Kind == KindPotion {
			t.Fatalf("second potion offered in the same room: %v", a)
		}
	}
	// Two more actions empty the room to one card and trigger a refill.
	mustApply(t, g, Fight(0, Barehanded))
	if len(g.room) != 2 {
		t.Fatalf("room = %v", g.room)
	}
	mustApply(t, g, Fight(1, Barehanded))
	if !sameCards(g.room, mustCards(t, "4h 3c 4c 5c")) || g.sinceRefill != 0 {
		t.Fatalf("room not refilled: %v (sinceRefill %d)", g.room, g.sinceRefill)
	}
	if !hasAction(g.Legal(), Potion(0)) {
		t.Fatal("potion should be legal again after the refill")
	}
}

func TestAllHeartsRoomAllowsSecondPotion(t *testing.T) {
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "2c 3c")),
		room:   mustCards(t, "2h 3h 4h"),
		health: 5,
	}
	g.history = []Action{Fight(0, Barehanded), Potion(0)}
	g.sinceRefill = 2
	if !hasAction(g.Legal(), Potion(0)) {
		t.Fatal("all-hearts room should waive the potion limit")
	}

	g.room = mustCards(t, "2h 3h 4s")
	if hasAction(g.Legal(), Potion(0)) {
		t.Fatal("potion limit must apply once a non-heart is present")
	}
}

func TestFleeRules(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3c 4c 5c 6c 7s 8s 9s Ts")))
	if !sameCards(g.room, mustCards(t, "7s 8s 9s Ts")) {
		t.Fatalf("room = %v", g.room)
	}
	if !hasAction(g.Legal(), Flee()) {
		t.Fatal("flee should be legal in a fresh room")
	}
	mustApply(t, g, Flee())
	if !sameCards(g.room, mustCards(t, "3c 4c 5c 6c")) {
		t.Fatalf("room after flee = %v", g.room)
	}
	if !sameCards(g.deck.Cards(), mustCards(t, "7s 8s 9s Ts 2c")) {
		t.Fatalf("deck after flee = %v", g.deck.Cards())
	}
	if hasAction(g.Legal(), Flee()) {
		t.Fatal("flee twice in a row must be illegal")
	}
	mustApply(t, g, Fight(0, Barehanded))
	if hasAction(g.Legal(), Flee()) {
		t.Fatal("flee needs a full room")
	}
}

func TestFleeWithShortDeckRedrawsFledCards(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3c 7s 8s 9s Ts")))
	mustApply(t, g, Flee())
	// deck was 2c 3c, becomes 7s 8s 9s Ts 2c 3c and the top four come back
	if !sameCards(g.room, mustCards(t, "9s Ts 2c 3c")) {
		t.Fatalf("room = %v", g.room)
	}
	if !sameCards(g.deck.Cards(), mustCards(t, "7s 8s")) {
		t.Fatalf("deck = %v", g.deck.Cards())
	}
}

func TestRefillAtOneCard(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3c 4c 5c 6c 2s 3s 4s 5s")))
	mustApply(t, g, Fight(0, Barehanded))
	mustApply(t, g, Fight(0, Barehanded))
	if len(g.room) != 2 || g.sinceRefill != 2 {
		t.Fatalf("room %v sinceRefill %d", g.room, g.sinceRefill)
	}
	mustApply(t, g, Fight(0, Barehanded))
	if len(g.room) != RoomSize {
		t.Fatalf("room = %v, want refilled to %d", g.room, RoomSize)
	}
	if !sameCards(g.room, mustCards(t, "5s 4c 5c 6c")) {
		t.Fatalf("leftover card should stay first, room = %v", g.room)
	}
	if g.sinceRefill != 0 {
		t.Fatalf("sinceRefill = %d", g.sinceRefill)
	}
}

func TestApplyRejectsIllegalActions(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3d 4h 5s 6c")))
	before := g.View()
	tests := []struct {
		name string
		a    Action
	}{
		{"index past room", Fight(4, Barehanded)},
		{"negative index", Potion(-1)},
		{"potion on weapon", Potion(0)},
		{"weapon on potion", Weapon(1)},
		{"fight a potion", Fight(1, Barehanded)},
		{"bad mode", Action{Kind: KindFight, Index: 2, Mode: "kick"}},
		{"bad kind", Action{Kind: "dance", Index: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Apply(tt.a)
			if !errors.Is(err, ErrIllegalAction) {
				t.Fatalf("Apply(%s) err = %v, want ErrIllegalAction", tt.a, err)
			}
		})
	}
	after := g.View()
	if !sameCards(before.Room, after.Room) || g.Turns() != 0 {
		t.Fatal("rejected actions changed state")
	}
}

func TestApplyRejectsActionsLegalWouldNotOffer(t *testing.T) {
	tests := []struct {
		name  string
		deck  string
		setup []Action
		a     Action
	}{
		// room: 2s 3h 4h 9s
		{"second potion in room", "2c 3c 4c 5c 2s 3h 4h 9s", []Action{Potion(1)}, Potion(1)},
		// room: 7s 8s 9s Ts
		{"flee after flee", "2c 3c 4c 5c 6c 7s 8s 9s Ts", []Action{Flee()}, Flee()},
		{"flee with three cards", "2c 3c 4c 5c 6c 7s 8s 9s Ts", []Action{Fight(0, Barehanded)}, Flee()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGame(NewDeckFrom(mustCards(t, tt.deck)))
			for _, a := range tt.setup {
				mustApply(t, g, a)
			}
			if hasAction(g.Legal(), tt.a) {
				t.Fatalf("%s should not be legal here: %v", tt.a, g.Legal())
			}
			before := g.View()
			turns, buried := g.Turns(), len(g.graveyard)
			err := g.Apply(tt.a)
			if !errors.Is(err, ErrIllegalAction) {
				t.Fatalf("Apply(%s) err = %v, want ErrIllegalAction", tt.a, err)
			}
			after := g.View()
			if !sameCards(before.Room, after.Room) || before.Health != after.Health ||
				before.DeckRemaining != after.DeckRemaining || g.Turns() != turns || len(g.graveyard) != buried {
				t.Fatal("rejected action changed state")
			}
		})
	}
}

func TestScoreAlive(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3d 4h 5s 6c")))
	if _, err := g.Score(); !errors.Is(err, ErrRunOngoing) {
		t.Fatalf("Score while ongoing err = %v", err)
	}
	mustApply(t, g, Weapon(0))
	mustApply(t, g, Fight(1, WithWeapon))
	mustApply(t, g, Fight(1, Barehanded))
	// room emptied to 1 card and refilled with the last deck card
	if g.Ongoing() {
		t.Fatalf("deck is empty, run should be over: deck=%d room=%v", g.deck.Len(), g.room)
	}
	score, err := g.Score()
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score != 12 {
		t.Fatalf("score = %d, want 12", score)
	}
}

func TestScoreDeadCountsOnlyMonsters(t *testing.T) {
	g := &Game{
		deck:   NewDeckFrom(mustCards(t, "9h 8d Kc 2s")),
		room:   mustCards(t, "5h As 3c"),
		health: 0,
	}
	score, err := g.Score()
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if want := -(14 + 3 + 13 + 2); score != want {
		t.Fatalf("score = %d, want %d", score, want)
	}
}

func TestViewIsACopy(t *testing.T) {
	g := NewGame(NewDeckFrom(mustCards(t, "2c 3d 4h 5s 6c")))
	v := g.View()
	v.Room[0] = Card{Rank: Ace, Suit: Spades}
	if g.room[0].String() != "3d" {
		t.Fatal("mutating the view changed the room")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := NewDeck()
	d.Shuffle(7)
	g := NewGame(d)
	c := g.Clone()
	c.ShuffleDeck(99)
	for c.Ongoing() {
		if err := c.Apply(c.Legal()[0]); err != nil {
			t.Fatalf("clone apply: %v", err)
		}
	}
	if g.Turns() != 0 || g.Health() != MaxHealth || len(g.room) != RoomSize || g.deck.Len() != 40 {
		t.Fatal("playing the clone changed the original")
	}
	checkInvariants(t, g)
}

func TestRandomPlayoutsKeepInvariants(t *testing.T) {
	for seed := int64(1); seed <= 300; seed++ {
		d := NewDeck()
		d.Shuffle(seed)
		g := NewGame(d)
		r := rand.New(rand.NewSource(seed))
		checkInvariants(t, g)
		lastRefill := 0
		for steps := 0; g.Ongoing(); steps++ {
			if steps > 500 {
				t.Fatalf("seed %d: run did not terminate", seed)
			}
			legal := g.Legal()
			if len(legal) == 0 {
				t.Fatalf("seed %d: ongoing run with no legal actions", seed)
			}
			a := legal[r.Intn(len(legal))]
			prevHistory, prevRoom := len(g.history), len(g.room)
			mustApply(t, g, a)
			checkInvariants(t, g)
			if len(g.history) != prevHistory+1 || g.history[len(g.history)-1] != a {
				t.Fatalf("seed %d: history not appended", seed)
			}
			if a.Kind == KindFlee || prevRoom-1 <= 1 {
				lastRefill = len(g.history)
			}
			if want := len(g.history) - lastRefill; g.sinceRefill != want {
				t.Fatalf("seed %d step %d: sinceRefill = %d, want %d", seed, steps, g.sinceRefill, want)
			}
			potions := 0
			for _, h := range g.history[lastRefill:] {
				if h.Kind == KindPotion {
					potions++
				}
			}
			if potions > 1 && !allPotions(g.room) {
				t.Fatalf("seed %d step %d: %d potions since the last refill", seed, steps, potions)
			}
		}
		if _, err := g.Score(); err != nil {
			t.Fatalf("seed %d: Score after end: %v", seed, err)
		}
	}
}
