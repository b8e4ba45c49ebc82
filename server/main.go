package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"scoundrel/server/agent"
	"scoundrel/server/config"
	"scoundrel/server/engine"
	"scoundrel/server/store"
)

var stopFlag atomic.Bool

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	useColor = cfg.Color()
	debugState = cfg.Debug

	var migrate, bench, duel, serve bool
	for _, a := range os.Args[1:] {
		switch a {
		case "--migrate":
			migrate = true
		case "--bench":
			bench = true
		case "--duel":
			duel = true
		case "--serve":
			serve = true
		default:
			config.Exitf("unknown flag %q (want --bench, --duel, --serve or --migrate)", a)
		}
	}

	if bench || duel {
		names := []string{cfg.Agent}
		if duel {
			names = append(names, cfg.AgentB)
		}
		for _, s := range names {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "llm:") {
				mustEnvAny("OPENAI_API_KEY", "OPENROUTER_API_KEY")
			}
		}
	}

	gracefulOnly := !cfg.StopImmediate
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deadline time.Time
	if cfg.MaxSeconds > 0 {
		deadline = time.Now().Add(time.Duration(cfg.MaxSeconds) * time.Second)
	}
	checkStop := func() bool {
		select {
		case <-ctx.Done():
			stopFlag.Store(true)
		default:
		}
		if stopFlag.Load() {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			stopFlag.Store(true)
			return true
		}
		if cfg.StopFile != "" {
			if _, err := os.Stat(cfg.StopFile); err == nil {
				stopFlag.Store(true)
				return true
			}
		}
		return false
	}

	switch {
	case migrate:
		if cfg.DatabaseURL == "" {
			log.Fatal("--migrate needs DATABASE_URL")
		}
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			log.Fatal(err)
		}
		log.Println("migrated")

	case serve:
		if cfg.DatabaseURL == "" {
			log.Fatal("--serve needs DATABASE_URL")
		}
		st, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer st.Close()
		if cfg.AutoMigrate {
			if err := st.Migrate(ctx); err != nil {
				log.Fatal(err)
			}
			log.Println("migrated")
		}
		go watchSignals(cancel)
		runServer(ctx, st, cfg.Port)

	case bench, duel:
		go watchSignals(cancel)
		st := openStore(ctx, cfg)
		if st != nil {
			defer st.Close()
		}
		fmt.Println(dim("Ctrl+C → graceful stop by default. Set STOP_IMMEDIATE=1 for hard stop."))
		stopNow := func() bool { return !gracefulOnly && checkStop() }
		if duel {
			runDuel(ctx, cfg, st, checkStop, stopNow)
		} else {
			runBench(ctx, cfg, st, checkStop, stopNow)
		}

	default:
		st := openStore(ctx, cfg)
		if st != nil {
			defer st.Close()
		}
		if err := runInteractive(ctx, cfg, st, os.Stdin, os.Stdout); err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println("\ninput closed, leaving the dungeon")
				return
			}
			log.Fatal(err)
		}
	}
}

func watchSignals(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
	stopFlag.Store(true)
	cancel()
}

func mustEnvAny(keys ...string) {
	for _, k := range keys {
		if os.Getenv(k) != "" {
			return
		}
	}
	log.Fatalf("Missing required env var %s. Put it in .env (dev) or set it on the host (prod).", strings.Join(keys, " or "))
}

// openStore returns nil when DATABASE_URL is unset or unusable; play goes on
// without recording.
func openStore(ctx context.Context, cfg config.Config) store.Store {
	if cfg.DatabaseURL == "" {
		return nil
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Printf("DB disabled (open failed): %v", err)
		return nil
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			log.Printf("migrate failed (continuing without DB): %v", err)
			st.Close()
			return nil
		}
	}
	return st
}

func registerAgent(ctx context.Context, st store.Store, name string) (store.Store, int64) {
	if st == nil {
		return nil, 0
	}
	id, err := st.UpsertAgent(ctx, name)
	if err != nil {
		log.Printf("UpsertAgent(%s) failed: %v (disabling DB this session)", name, err)
		return nil, 0
	}
	return st, id
}

//
// ===== randomness =====
//

type seedStream struct{ state uint64 }

func newSeedStream(base uint64) seedStream { return seedStream{state: base} }

// next is splitmix64; the result is masked to a positive int64 so a seed of
// zero (which means "use the clock") never comes out.
func (s *seedStream) next() int64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z ^= z >> 30
	z *= 0xBF58476D1CE4E5B9
	z ^= z >> 27
	z *= 0x94D049BB133111EB
	z ^= z >> 31
	return int64(z>>1) | 1
}

func secureBaseSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:]) ^ uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())
	}
	return uint64(time.Now().UnixNano()) ^ 0xA5A5A5A5A5A5A5A5
}

func baseSeed(cfg config.Config) uint64 {
	if cfg.DeckSeed != 0 {
		return uint64(cfg.DeckSeed)
	}
	return secureBaseSeed()
}

// fixedDeck parses DECK; nil means every run shuffles its own deck.
func fixedDeck(cfg config.Config) ([]engine.Card, error) {
	if strings.TrimSpace(cfg.Deck) == "" {
		return nil, nil
	}
	deck, err := engine.ParseDeck(cfg.Deck)
	if err != nil {
		return nil, fmt.Errorf("DECK: %w", err)
	}
	return deck, nil
}

//
// ===== modes =====
//

func runInteractive(ctx context.Context, cfg config.Config, st store.Store, in io.Reader, out io.Writer) error {
	st, agentID := registerAgent(ctx, st, "human")
	seed := cfg.DeckSeed
	if seed == 0 {
		sm := newSeedStream(secureBaseSeed())
		seed = sm.next()
	}
	deck, err := fixedDeck(cfg)
	if err != nil {
		return err
	}
	h := &human{in: bufio.NewReader(in), out: out}
	res, err := playRun(ctx, h, st, runConfig{
		Mode:         "play",
		Seed:         seed,
		Deck:         deck,
		AgentID:      agentID,
		JudgeSamples: cfg.JudgeSamples,
		Coach:        true,
		Out:          out,
	}, nil)
	if err != nil {
		return err
	}
	renderGameOver(out, res.Final, res.Score)
	return nil
}

func runBench(ctx context.Context, cfg config.Config, st store.Store, checkStop, stopNow func() bool) {
	section(os.Stdout, "BENCH")

	base := baseSeed(cfg)
	sm := newSeedStream(base)
	ag, err := agent.Parse(cfg.Agent, int64(base))
	if err != nil {
		log.Fatal(err)
	}
	deck, err := fixedDeck(cfg)
	if err != nil {
		log.Fatal(err)
	}
	st, agentID := registerAgent(ctx, st, ag.Name())
	stats := newRunStats()
	log.Printf("Bench seed base: %d (agent=%s runs=%d judge=%d)", base, ag.Name(), cfg.Runs, cfg.JudgeSamples)

	for i := 0; i < cfg.Runs; i++ {
		if checkStop() {
			fmt.Println(warn("stop requested; finishing early"))
			break
		}
		seed := sm.next()
		res, err := playRun(ctx, ag, st, runConfig{
			Mode: "bench", Seed: seed, Deck: deck, AgentID: agentID, JudgeSamples: cfg.JudgeSamples, StopNow: stopNow,
		}, stats)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Fatalf("run %d (seed %d): %v", i+1, seed, err)
		}
		if res.Aborted {
			fmt.Printf("%s run %d/%d aborted\n", warn("!"), i+1, cfg.Runs)
			break
		}
		fmt.Printf("%s run %d/%d seed=%d %s hp=%d turns=%d\n",
			dim("✓"), i+1, cfg.Runs, seed, scoreTag(res), res.Health, res.Turns)
	}

	printRunStats(os.Stdout, ag.Name(), stats)
}

func runDuel(ctx context.Context, cfg config.Config, st store.Store, checkStop, stopNow func() bool) {
	section(os.Stdout, "DUEL")

	base := baseSeed(cfg)
	sm := newSeedStream(base)
	a, err := agent.Parse(cfg.Agent, int64(base))
	if err != nil {
		log.Fatal(err)
	}
	b, err := agent.Parse(cfg.AgentB, int64(base)+1)
	if err != nil {
		log.Fatal(err)
	}
	nameA, nameB := a.Name(), b.Name()
	if nameA == nameB {
		log.Printf("both sides are %s; ratings will not be persisted", nameA)
	}

	st, idA := registerAgent(ctx, st, nameA)
	st, idB := registerAgent(ctx, st, nameB)

	startA, startB := cfg.EloStart, cfg.EloStart
	if st != nil {
		if r, _, err := st.GetOrInitRating(ctx, idA, cfg.EloStart); err != nil {
			log.Printf("GetOrInitRating(%s) failed: %v", nameA, err)
		} else {
			startA = r
		}
		if r, _, err := st.GetOrInitRating(ctx, idB, cfg.EloStart); err != nil {
			log.Printf("GetOrInitRating(%s) failed: %v", nameB, err)
		} else {
			startB = r
		}
	}
	deck, err := fixedDeck(cfg)
	if err != nil {
		log.Fatal(err)
	}
	elo := NewElo(startA, startB, cfg.EloK)
	statsA, statsB := newRunStats(), newRunStats()

	var winsA, ties, total int
	var margins []float64

	log.Printf("Duel seed base: %d (%s vs %s, seeds=%d)", base, nameA, nameB, cfg.Runs)

	for i := 0; i < cfg.Runs; i++ {
		if checkStop() {
			fmt.Println(warn("stop requested; finishing early"))
			break
		}
		seed := sm.next()
		ra, err := playRun(ctx, a, st, runConfig{Mode: "duel", Seed: seed, Deck: deck, AgentID: idA, JudgeSamples: cfg.JudgeSamples, StopNow: stopNow}, statsA)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Fatalf("seed %d (%s): %v", seed, nameA, err)
		}
		rb, err := playRun(ctx, b, st, runConfig{Mode: "duel", Seed: seed, Deck: deck, AgentID: idB, JudgeSamples: cfg.JudgeSamples, StopNow: stopNow}, statsB)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Fatalf("seed %d (%s): %v", seed, nameB, err)
		}
		if ra.Aborted || rb.Aborted {
			fmt.Printf("%s seed %d/%d aborted\n", warn("!"), i+1, cfg.Runs)
			break
		}

		dA, _ := elo.UpdateFromSeed(ra.Score, rb.Score)
		total++
		switch {
		case ra.Score > rb.Score:
			winsA++
		case ra.Score == rb.Score:
			ties++
		}
		margins = append(margins, float64(ra.Score-rb.Score))

		fmt.Printf("%s seed %d/%d  A %s  B %s  Elo A %.1f (%+.1f)\n",
			dim("✓"), i+1, cfg.Runs, scoreTag(ra), scoreTag(rb), elo.A, dA)
	}

	fmt.Printf("\n%s A(%s) wins=%d | B(%s) wins=%d | ties=%d | seeds=%d\n",
		bold("RESULTS →"), nameA, winsA, nameB, total-winsA-ties, ties, total)
	fmt.Printf("%s A:%.1f | B:%.1f (seeds=%d)\n", bold("Elo final →"), elo.A, elo.B, elo.Games)
	lo, hi := WilsonCI95(winsA, ties, total)
	fmt.Printf("%s seeds=%d → A win-prob 95%% CI=[%.3f, %.3f]\n", bold("CI (Wilson) →"), total, lo, hi)
	blo, bhi := BootstrapCI95(margins, 1000)
	fmt.Printf("%s score margin mean 95%% CI=[%.2f, %.2f]\n", bold("CI (bootstrap) →"), blo, bhi)

	printRunStats(os.Stdout, "A "+nameA, statsA)
	printRunStats(os.Stdout, "B "+nameB, statsB)

	if st != nil && nameA != nameB && elo.Games > 0 {
		if err := st.UpdateAgentRating(ctx, idA, elo.A, elo.Games); err != nil {
			log.Printf("UpdateAgentRating(%s) failed: %v", nameA, err)
		}
		if err := st.UpdateAgentRating(ctx, idB, elo.B, elo.Games); err != nil {
			log.Printf("UpdateAgentRating(%s) failed: %v", nameB, err)
		}
	}
}

func runServer(ctx context.Context, st store.Store, port string) {
	srv := &http.Server{Addr: ":" + port, Handler: Router(st), ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("listening on http://localhost:%s (Ctrl+C to stop)", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

//
// ===== summaries =====
//

func scoreTag(r runResult) string {
	s := fmt.Sprintf("score=%d", r.Score)
	if r.Outcome == store.OutcomeDead {
		return bad(s)
	}
	return good(s)
}

func printRunStats(w io.Writer, name string, s *RunStats) {
	fmt.Fprintf(w, "\n%s %s runs=%d\n", bold("Stats →"), name, s.Runs)
	if s.Runs == 0 {
		return
	}
	lo, hi := BootstrapCI95(s.Scores, 1000)
	fmt.Fprintf(w, "  score mean=%.2f 95%% CI=[%.2f, %.2f] best=%d worst=%d\n", s.Mean(), lo, hi, s.Best, s.Worst)
	alo, ahi := WilsonCI95(s.Alive, 0, s.Runs)
	fmt.Fprintf(w, "  alive=%d (%.0f%%) 95%% CI=[%.3f, %.3f] avg turns=%.1f\n", s.Alive, 100*s.AliveRate(), alo, ahi, s.AvgTurns())

	kinds := make([]string, 0, len(s.Actions))
	total := 0
	for k, n := range s.Actions {
		kinds = append(kinds, string(k))
		total += n
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		n := s.Actions[engine.ActionKind(k)]
		parts = append(parts, fmt.Sprintf("%s=%d (%d%%)", k, n, 100*n/total))
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  actions %s\n", strings.Join(parts, " "))
	}
	if s.Judged > 0 {
		fmt.Fprintf(w, "  judge top=%d/%d (%.0f%%) avg gap=%.2f\n", s.JudgeTop, s.Judged, 100*s.JudgeAccuracy(), s.AvgGap())
	}
}
