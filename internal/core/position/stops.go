package position

// StopConfig tunes how far stop-loss/take-profit sit from entry, and how
// much they tighten as a game runs down (spec §4.H: "tighter stops late in
// games").
type StopConfig struct {
	// StopLossPct and TakeProfitPct are fractions of entry price (cents)
	// applied at the start of a game (max time remaining).
	StopLossPct   float64
	TakeProfitPct float64
	// LateGameTightenFloor is the minimum fraction of the full-game stop
	// distance retained once the clock nears zero — stops never collapse
	// to the entry price itself.
	LateGameTightenFloor float64
}

// DefaultStopConfig sets a 15%/20% stop/target band off entry price. The
// teacher has no stop-loss concept (it holds to settlement), but its
// soccer odds model dampens/amplifies win probability by an "urgency"
// factor as the clock runs down (projected_odds.go); the same clock-driven
// tightening is applied here to the stop distance instead of a
// probability.
func DefaultStopConfig() StopConfig {
	return StopConfig{
		StopLossPct:          0.15,
		TakeProfitPct:        0.20,
		LateGameTightenFloor: 0.35,
	}
}

// timeFraction returns secondsRemain/gameSeconds clamped to [0,1]; 1 at
// kickoff, 0 at the final whistle. gameSeconds<=0 (crypto markets, or a
// sport with no clock) disables tightening entirely.
func timeFraction(secondsRemain, gameSeconds float64) float64 {
	if gameSeconds <= 0 {
		return 1
	}
	f := secondsRemain / gameSeconds
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// StopLossCents and TakeProfitCents compute the exit trigger prices for a
// long-YES position entered at entryPriceCents, given how much game clock
// remains. The stop distance shrinks linearly toward
// LateGameTightenFloor×full-distance as secondsRemain runs to zero, so a
// position opened in the final minute gets a tighter stop and target than
// one opened early in the game.
func (c StopConfig) StopLossCents(entryPriceCents int, secondsRemain, gameSeconds float64) int {
	frac := timeFraction(secondsRemain, gameSeconds)
	tighten := c.LateGameTightenFloor + (1-c.LateGameTightenFloor)*frac
	dist := float64(entryPriceCents) * c.StopLossPct * tighten
	stop := float64(entryPriceCents) - dist
	if stop < 0 {
		stop = 0
	}
	return int(stop)
}

func (c StopConfig) TakeProfitCents(entryPriceCents int, secondsRemain, gameSeconds float64) int {
	frac := timeFraction(secondsRemain, gameSeconds)
	tighten := c.LateGameTightenFloor + (1-c.LateGameTightenFloor)*frac
	dist := float64(entryPriceCents) * c.TakeProfitPct * tighten
	target := float64(entryPriceCents) + dist
	if target > 100 {
		target = 100
	}
	return int(target)
}
