// Package sport implements sport-specific win-probability models.
package sport

import "math"

const maxGoals = 15

var logFact [maxGoals + 1]float64

func init() {
	for i := 1; i <= maxGoals; i++ {
		logFact[i] = logFact[i-1] + math.Log(float64(i))
	}
}

func poissPMF(mu float64, k int) float64 {
	if mu <= 0 {
		if k == 0 {
			return 1.0
		}
		return 0.0
	}
	if k > maxGoals {
		return 0.0
	}
	return math.Exp(float64(k)*math.Log(mu) - mu - logFact[k])
}

// poissonWinProb computes P(team wins) given expected future goals for each
// side and the current integer lead. Ties at the scoring horizon split 50/50.
func poissonWinProb(muTeam, muOpp float64, lead int) float64 {
	var pWin, pTie float64
	for x := 0; x <= maxGoals; x++ {
		px := poissPMF(muTeam, x)
		for y := 0; y <= maxGoals; y++ {
			final := lead + x - y
			py := poissPMF(muOpp, y)
			switch {
			case final > 0:
				pWin += px * py
			case final == 0:
				pTie += px * py
			}
		}
	}
	return pWin + 0.5*pTie
}

// findScoringShare binary-searches for the fraction of the total scoring
// rate attributable to a team such that a full-length, 0-0 Poisson
// simulation reproduces the pregame win probability exactly.
func findScoringShare(totalRate, gameMinutes, pregamePct float64) float64 {
	lo, hi := 0.01, 0.99
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		mu1 := totalRate * mid * gameMinutes
		mu2 := totalRate * (1 - mid) * gameMinutes
		if poissonWinProb(mu1, mu2, 0) < pregamePct {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// PoissonModel parameterises an independent two-team Poisson scoring
// process. TotalRatePerMin and GameMinutes are the only free constants —
// sport-specific rather than fitted per team.
type PoissonModel struct {
	TotalRatePerMin float64
	GameMinutes     float64
}

// hockey: ~6 goals per 60 regulation minutes.
var Hockey = PoissonModel{TotalRatePerMin: 6.0 / 60.0, GameMinutes: 60}

// basketball: ~220 points per 48 minutes, rescaled to "scoring events" so
// the same Poisson machinery applies; possessions, not points, are the
// Poisson unit (~100 possessions/team/48 min).
var Basketball = PoissonModel{TotalRatePerMin: 200.0 / 48.0, GameMinutes: 48}

// football: ~45 points per 60 minutes across both teams, scored in
// bursts (touchdowns/field goals) rather than single goals; treated as a
// coarser Poisson process over scoring drives (~9 drives/team/60 min).
var Football = PoissonModel{TotalRatePerMin: 18.0 / 60.0, GameMinutes: 60}

// soccer: ~2.7 goals per 90 minutes across both teams.
var Soccer = PoissonModel{TotalRatePerMin: 2.7 / 90.0, GameMinutes: 90}

// WinProb returns the live win probability for the team with strength
// pregameStrength (its vig-free pregame win probability), given the
// current goal/point lead and minutes remaining.
func (m PoissonModel) WinProb(pregameStrength, minutesRemain, lead float64) float64 {
	strength := math.Max(0.001, math.Min(0.999, pregameStrength))

	if minutesRemain <= 0 {
		switch {
		case lead > 0:
			return 1.0
		case lead < 0:
			return 0.0
		default:
			return 0.5
		}
	}

	share := findScoringShare(m.TotalRatePerMin, m.GameMinutes, strength)
	muTeam := m.TotalRatePerMin * share * minutesRemain
	muOpp := m.TotalRatePerMin * (1 - share) * minutesRemain
	return poissonWinProb(muTeam, muOpp, int(math.Round(lead)))
}
