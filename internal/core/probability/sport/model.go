package sport

import (
	"math"

	"github.com/predikt-markets/engine/internal/domain"
)

// Model adapts a PoissonModel into the probability.Model interface.
//
// VolatilityDecayExponent tunes how fast the live estimate's uncertainty
// collapses as the clock runs down (spec §4.D: "the decay exponent is
// sport-specific, not a single square-root"). It scales the minutes fed
// into the Poisson model: effective_minutes = minutes_remain *
// (minutes_remain/game_minutes)^(exponent-1). At exponent=1 this is the
// identity (plain time-proportional variance); above 1, probabilities
// converge to certainty faster as the game nears its end; below 1,
// slower.
type Model struct {
	Poisson                 PoissonModel
	VolatilityDecayExponent float64

	// HomeCourtAdvantagePts is added to the home entity's lead (and
	// subtracted from the away entity's) in points before the Poisson
	// win-probability lookup; spec §4.D names this for basketball only,
	// so it is zero for every other sport.
	HomeCourtAdvantagePts float64

	// PossessionValuePts is the average point value of holding the ball
	// right now, added to whichever entity currently has possession.
	// Zero for sports where state.Possession is never populated.
	PossessionValuePts float64

	// PossessionsPerGame is the average number of meaningful possessions
	// one team gets across the full game, used by the catch-up
	// difficulty check below to scale possessions by time remaining.
	PossessionsPerGame float64

	// CatchUpExponent and CatchUpThresholdPpp implement spec §4.D's
	// catch-up difficulty: once the trailing entity needs more than
	// CatchUpThresholdPpp points per remaining possession to catch up,
	// its live probability is shrunk by
	// (required_ppp/threshold)^CatchUpExponent. CatchUpExponent<=0
	// disables the adjustment.
	CatchUpExponent     float64
	CatchUpThresholdPpp float64
}

func (m Model) Estimate(ev domain.Event, state domain.EventState, entity string, pregame domain.Probability) domain.Probability {
	lead := float64(state.HomeScore - state.AwayScore)
	if entity == ev.EntityB {
		lead = -lead
	}
	isHome := entity == ev.EntityA
	lead += m.hcaPoints(isHome)
	lead += m.possessionPoints(ev, state, entity)

	pregameStrength := 0.5
	havePregame := !pregame.IsUnknown()
	if havePregame {
		pregameStrength = pregame.P
	}

	minutesRemain := float64(state.SecondsRemain) / 60.0
	live := m.Poisson.WinProb(pregameStrength, m.decayedMinutes(minutesRemain), lead)
	live = m.catchUpAdjust(live, lead, minutesRemain)

	if !havePregame {
		return domain.Probability{
			EventID:     ev.EventID,
			ForEntity:   entity,
			P:           domain.Clamp01(live),
			ComputedUTC: state.FetchTimestamp,
		}
	}

	// blend_w decays linearly from 0.5 at kickoff to 0 by 25% game
	// elapsed (spec §4.D); beyond that point the live estimate stands
	// alone.
	elapsedFraction := 1 - minutesRemain/m.Poisson.GameMinutes
	elapsedFraction = math.Max(0, math.Min(1, elapsedFraction))
	weight := math.Max(0, 0.5*(1-elapsedFraction/0.25))

	blended := weight*pregameStrength + (1-weight)*live

	return domain.Probability{
		EventID:          ev.EventID,
		ForEntity:        entity,
		P:                domain.Clamp01(blended),
		ComputedUTC:      state.FetchTimestamp,
		UsedPregameBlend: weight > 0,
		BlendWeight:      weight,
		PWithoutBlend:    live,
	}
}

func (m Model) decayedMinutes(minutesRemain float64) float64 {
	if minutesRemain <= 0 || m.Poisson.GameMinutes <= 0 {
		return minutesRemain
	}
	exp := m.VolatilityDecayExponent
	if exp == 0 {
		exp = 1
	}
	return minutesRemain * math.Pow(minutesRemain/m.Poisson.GameMinutes, exp-1)
}

// hcaPoints returns the home-court point adjustment for the home entity,
// its negation for the away entity.
func (m Model) hcaPoints(isHome bool) float64 {
	if isHome {
		return m.HomeCourtAdvantagePts
	}
	return -m.HomeCourtAdvantagePts
}

// possessionPoints returns the point-equivalent edge of currently holding
// the ball: positive for the possessing entity, negative for its
// opponent, zero when possession is unknown or this sport has no
// meaningful possession value. For football, the raw value is scaled by
// field position and down-and-distance (spec §4.D's "(yard_line, down,
// distance)" lookup).
func (m Model) possessionPoints(ev domain.Event, state domain.EventState, entity string) float64 {
	if m.PossessionValuePts == 0 || state.Possession == domain.PossessionNone {
		return 0
	}

	value := m.PossessionValuePts
	if state.YardLine > 0 {
		value *= footballFieldPositionFactor(state.YardLine, state.Down, state.Distance)
	}

	possessingEntity := ev.EntityA
	if state.Possession == domain.PossessionAway {
		possessingEntity = ev.EntityB
	}
	if entity == possessingEntity {
		return value
	}
	return -value
}

// footballFieldPositionFactor scales possession value by how close the
// ball is to scoring range and how likely the drive is to continue: deep
// in opponent territory is worth more, a long-distance 3rd/4th down is
// worth less.
func footballFieldPositionFactor(yardLine, down, distance int) float64 {
	factor := 0.5 + float64(yardLine)/100.0 // 0.5 at own goal line, 1.5 at opponent's
	switch down {
	case 3, 4:
		if distance >= 7 {
			factor *= 0.6
		} else {
			factor *= 0.85
		}
	}
	return factor
}

// catchUpAdjust shrinks the trailing entity's live probability once the
// comeback it needs exceeds CatchUpThresholdPpp points per remaining
// possession (spec §4.D). The leading entity and sports with no
// catch-up tuning configured are unaffected.
func (m Model) catchUpAdjust(live, lead, minutesRemain float64) float64 {
	if m.CatchUpExponent <= 0 || m.CatchUpThresholdPpp <= 0 || m.PossessionsPerGame <= 0 {
		return live
	}
	if lead >= 0 || m.Poisson.GameMinutes <= 0 {
		return live
	}

	possessionsRemain := m.PossessionsPerGame * (minutesRemain / m.Poisson.GameMinutes)
	if possessionsRemain < 1 {
		possessionsRemain = 1
	}
	requiredPpp := -lead / possessionsRemain
	if requiredPpp <= m.CatchUpThresholdPpp {
		return live
	}

	factor := math.Pow(requiredPpp/m.CatchUpThresholdPpp, m.CatchUpExponent)
	return live / factor
}

// Default volatility decay exponents per sport: basketball's frequent
// scoring collapses uncertainty fastest late in the game; hockey's sparse
// scoring collapses it slowest.
const (
	HockeyVolatilityDecayExponent     = 0.8
	BasketballVolatilityDecayExponent = 1.6
	FootballVolatilityDecayExponent   = 1.2
	// SoccerVolatilityDecayExponent sits near the identity: soccer's
	// scoring is sparser than basketball's but steadier than hockey's.
	SoccerVolatilityDecayExponent = 1.0
)

// NewHockeyModel returns the registry-ready hockey model. Hockey has no
// home-ice point adjustment; possession (puck control) carries a small
// value, and catch-up difficulty applies above 0.35 goals per remaining
// possession.
func NewHockeyModel() Model {
	return Model{
		Poisson:                 Hockey,
		VolatilityDecayExponent: HockeyVolatilityDecayExponent,
		PossessionValuePts:      0.15,
		PossessionsPerGame:      60,
		CatchUpExponent:         1.5,
		CatchUpThresholdPpp:     0.35,
	}
}

// NewBasketballModel returns the registry-ready basketball model: the only
// sport spec §4.D names for home-court advantage, plus the highest
// possession value given basketball's near-certain per-possession scoring.
func NewBasketballModel() Model {
	return Model{
		Poisson:                 Basketball,
		VolatilityDecayExponent: BasketballVolatilityDecayExponent,
		HomeCourtAdvantagePts:   2.5,
		PossessionValuePts:      1.0,
		PossessionsPerGame:      96,
		CatchUpExponent:         2.0,
		CatchUpThresholdPpp:     2.2,
	}
}

// NewFootballModel returns the registry-ready football model; possession
// value is further scaled per play by footballFieldPositionFactor when
// EventState carries yard line/down/distance.
func NewFootballModel() Model {
	return Model{
		Poisson:                 Football,
		VolatilityDecayExponent: FootballVolatilityDecayExponent,
		PossessionValuePts:      2.2,
		PossessionsPerGame:      22,
		CatchUpExponent:         1.8,
		CatchUpThresholdPpp:     1.6,
	}
}

// NewSoccerModel returns the registry-ready soccer model. Soccer has no
// discrete possession count worth modeling as "possessions per game", so
// catch-up difficulty is left disabled (CatchUpExponent 0) rather than
// faked against a meaningless denominator.
func NewSoccerModel() Model {
	return Model{
		Poisson:                 Soccer,
		VolatilityDecayExponent: SoccerVolatilityDecayExponent,
		PossessionValuePts:      0.08,
	}
}
