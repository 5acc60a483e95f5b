// Command backtest replays a CSV of historical game/market snapshots through
// the live probability registry and reports simulated P&L by edge threshold
// and time bucket, generalizing the teacher's cmd/hockey_backtest from one
// hard-coded sport and model family to every sport registered in
// risk_limits.yaml.
package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/predikt-markets/engine/internal/core/probability"
	"github.com/predikt-markets/engine/internal/core/probability/sport"
	"github.com/predikt-markets/engine/internal/domain"
)

// snapshot is one eligible row: a live game/event state joined with the
// venue's quoted price at that instant and the eventual outcome.
type snapshot struct {
	gameID        string
	sportName     string
	league        string
	homeScore     int
	awayScore     int
	secondsRemain float64
	pregameHome   float64
	pregameAway   float64
	marketHome    float64
	marketAway    float64
	actualOutcome string // "home_win" or "away_win"
}

type trade struct {
	side    string
	cost    float64
	pnl     float64
	edge    float64
	tBucket string
}

type bucketStats struct {
	trades int
	wins   int
	pnl    float64
	edge   float64
}

func timeBucket(secondsRemain, gameSeconds float64) string {
	if gameSeconds <= 0 {
		gameSeconds = 3600
	}
	frac := secondsRemain / gameSeconds
	switch {
	case frac > 0.8:
		return "80-100%"
	case frac > 0.6:
		return "60-80%"
	case frac > 0.4:
		return "40-60%"
	case frac > 0.2:
		return "20-40%"
	default:
		return " 0-20%"
	}
}

var bucketOrder = []string{"80-100%", "60-80%", "40-60%", "20-40%", " 0-20%"}

func skipOutcome(outcome string) bool {
	return outcome == "" || outcome == "push" || outcome == "shootout"
}

func parseCSV(path string) ([]snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	// Outcomes are only populated on a game's final row; join by game_id
	// the same as the teacher's two-pass CSV reader.
	outcomes := make(map[string]string)
	for _, row := range records {
		if o := row[idx["actual_outcome"]]; o != "" {
			outcomes[row[idx["game_id"]]] = o
		}
	}

	var snaps []snapshot
	for _, row := range records {
		gid := row[idx["game_id"]]
		outcome := outcomes[gid]
		if skipOutcome(outcome) {
			continue
		}

		hs, _ := strconv.Atoi(row[idx["home_score"]])
		as, _ := strconv.Atoi(row[idx["away_score"]])
		sr, _ := strconv.ParseFloat(row[idx["seconds_remain"]], 64)
		ph, _ := strconv.ParseFloat(row[idx["pregame_home_pct"]], 64)
		pa, _ := strconv.ParseFloat(row[idx["pregame_away_pct"]], 64)
		mh, _ := strconv.ParseFloat(row[idx["market_home_pct"]], 64)
		ma, _ := strconv.ParseFloat(row[idx["market_away_pct"]], 64)

		snaps = append(snaps, snapshot{
			gameID:        gid,
			sportName:     row[idx["sport"]],
			league:        row[idx["league"]],
			homeScore:     hs,
			awayScore:     as,
			secondsRemain: sr,
			pregameHome:   ph,
			pregameAway:   pa,
			marketHome:    mh,
			marketAway:    ma,
			actualOutcome: outcome,
		})
	}
	return snaps, nil
}

// registry mirrors cmd/engine's sport model wiring; backtesting never needs
// the crypto models since the CSV format only carries scored, clock-driven
// games.
func newRegistry() *probability.Registry {
	r := probability.NewRegistry()
	r.Register(domain.SportMarket{Sport: "hockey", League: "nhl"}.Key(), sport.NewHockeyModel())
	r.Register(domain.SportMarket{Sport: "basketball", League: "nba"}.Key(), sport.NewBasketballModel())
	r.Register(domain.SportMarket{Sport: "football", League: "nfl"}.Key(), sport.NewFootballModel())
	for _, league := range []string{"epl", "ucl"} {
		r.Register(domain.SportMarket{Sport: "soccer", League: league}.Key(), sport.NewSoccerModel())
	}
	return r
}

// gameSecondsFor returns each model's regulation length, used only to turn
// secondsRemain into a comparable fraction across sports of different
// lengths for bucketing.
func gameSecondsFor(sportName string) float64 {
	switch sportName {
	case "hockey":
		return sport.Hockey.GameMinutes * 60
	case "basketball":
		return sport.Basketball.GameMinutes * 60
	case "football":
		return sport.Football.GameMinutes * 60
	case "soccer":
		return sport.Soccer.GameMinutes * 60
	default:
		return 3600
	}
}

func runBacktest(name string, snaps []snapshot, registry *probability.Registry, fee domain.FeeSchedule, minEdge float64) {
	var trades []trade
	buckets := make(map[string]*bucketStats)
	for _, b := range bucketOrder {
		buckets[b] = &bucketStats{}
	}
	rate := fee.RatePct()

	for _, s := range snaps {
		model, ok := registry.Get(domain.SportMarket{Sport: s.sportName, League: s.league})
		if !ok {
			continue
		}
		ev := domain.Event{
			EventID:    s.gameID,
			MarketType: domain.SportMarket{Sport: s.sportName, League: s.league},
			EntityA:    "home",
			EntityB:    "away",
		}
		state := domain.EventState{
			EventID:        s.gameID,
			HomeScore:      s.homeScore,
			AwayScore:      s.awayScore,
			SecondsRemain:  s.secondsRemain,
			FetchTimestamp: time.Time{},
		}
		tb := timeBucket(s.secondsRemain, gameSecondsFor(s.sportName))

		evalSide := func(entity string, pregamePct, marketPct float64, wins bool) {
			pregame := domain.Probability{EventID: s.gameID, ForEntity: entity, P: pregamePct}
			live := model.Estimate(ev, state, entity, pregame)
			if live.IsUnknown() {
				return
			}
			edge := live.P - marketPct
			if edge < minEdge {
				return
			}

			cost := marketPct
			feeAmt := cost * rate
			var pnl float64
			if wins {
				pnl = 1.0 - cost - feeAmt
			} else {
				pnl = -cost - feeAmt
			}
			trades = append(trades, trade{side: entity, cost: cost, pnl: pnl, edge: edge, tBucket: tb})
			b := buckets[tb]
			b.trades++
			b.pnl += pnl
			b.edge += edge
			if pnl > 0 {
				b.wins++
			}
		}

		evalSide("home", s.pregameHome, s.marketHome, s.actualOutcome == "home_win")
		evalSide("away", s.pregameAway, s.marketAway, s.actualOutcome == "away_win")
	}

	total := len(trades)
	if total == 0 {
		fmt.Printf("\n=== %s ===\nNo trades fired.\n", name)
		return
	}

	var wins int
	var totalPnL, totalEdge, totalFees float64
	for _, t := range trades {
		totalPnL += t.pnl
		totalEdge += t.edge
		totalFees += t.cost * rate
		if t.pnl > 0 {
			wins++
		}
	}

	fmt.Printf("\n=== %s ===\n", name)
	fmt.Printf("Min edge:      %.0f%%\n", minEdge*100)
	fmt.Printf("Fee rate:      %.0f%%\n", rate*100)
	fmt.Printf("Total trades:  %d\n", total)
	fmt.Printf("Wins / Losses: %d / %d  (%.1f%%)\n", wins, total-wins, 100*float64(wins)/float64(total))
	fmt.Printf("Total P&L:     $%.2f  (fees: $%.2f)\n", totalPnL, totalFees)
	fmt.Printf("Avg edge:      %.2f%%\n", 100*totalEdge/float64(total))
	fmt.Println()

	fmt.Printf("  %-8s  %6s  %6s  %8s  %9s  %9s\n", "Time", "Trades", "Wins", "Win%", "P&L", "Avg Edge")
	fmt.Printf("  %-8s  %6s  %6s  %8s  %9s  %9s\n", "--------", "------", "------", "--------", "---------", "---------")
	for _, bk := range bucketOrder {
		b := buckets[bk]
		if b.trades == 0 {
			fmt.Printf("  %-8s  %6d  %6d  %8s  %9s  %9s\n", bk, 0, 0, "-", "-", "-")
			continue
		}
		wr := 100 * float64(b.wins) / float64(b.trades)
		ae := 100 * b.edge / float64(b.trades)
		fmt.Printf("  %-8s  %6d  %6d  %7.1f%%  $%8.2f  %8.2f%%\n", bk, b.trades, b.wins, wr, b.pnl, ae)
	}
}

func main() {
	csvPath := "data/backtest_snapshots.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}

	snaps, err := parseCSV(csvPath)
	if err != nil {
		log.Fatalf("failed to parse CSV: %v", err)
	}
	fmt.Printf("Loaded %d eligible rows\n", len(snaps))

	registry := newRegistry()
	thresholds := []float64{0.01, 0.02, 0.03, 0.05, 0.07, 0.10}
	venues := []struct {
		name string
		fee  domain.FeeSchedule
	}{
		{"Direct", domain.DirectFeeSchedule{}},
		{"Proxied", domain.ProxiedFeeSchedule{}},
	}

	for _, v := range venues {
		for _, t := range thresholds {
			runBacktest(fmt.Sprintf("%s  (edge >= %2.0f%%)", v.name, t*100), snaps, registry, v.fee, t)
		}
	}
}
