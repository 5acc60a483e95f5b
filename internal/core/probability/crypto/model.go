// Package crypto implements the strike/expiry win-probability model for
// crypto "will X be above/below Y at time Z" markets. It has no teacher
// precedent (the teacher trades sports only); the lognormal-diffusion
// shape follows standard options-pricing practice, parameterised from a
// rolling realised-volatility estimate rather than a quoted implied vol.
package crypto

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predikt-markets/engine/internal/domain"
)

// RealizedVolTracker keeps a rolling window of log returns per asset and
// reports an annualised realised volatility. decimal carries the raw
// prices so a long-running process never accumulates float64 drift on
// repeated append/evict cycles over a strike that can sit at an arbitrary
// number of decimal places.
type RealizedVolTracker struct {
	mu       sync.Mutex
	window   time.Duration
	samples  map[string][]sample
}

type sample struct {
	at    time.Time
	price decimal.Decimal
}

func NewRealizedVolTracker(window time.Duration) *RealizedVolTracker {
	return &RealizedVolTracker{window: window, samples: make(map[string][]sample)}
}

// Observe records a spot print for an asset.
func (t *RealizedVolTracker) Observe(asset string, price decimal.Decimal, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.samples[asset]
	s = append(s, sample{at: at, price: price})
	cutoff := at.Add(-t.window)
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	t.samples[asset] = s[i:]
}

// AnnualizedVol returns the realised volatility annualised from the
// sample window's log returns, or a fallback if too few samples exist.
func (t *RealizedVolTracker) AnnualizedVol(asset string, fallback float64) float64 {
	t.mu.Lock()
	s := append([]sample(nil), t.samples[asset]...)
	t.mu.Unlock()

	if len(s) < 3 {
		return fallback
	}

	var sumSq float64
	var sum float64
	n := 0
	for i := 1; i < len(s); i++ {
		prev, _ := s[i-1].price.Float64()
		cur, _ := s[i].price.Float64()
		if prev <= 0 || cur <= 0 {
			continue
		}
		r := math.Log(cur / prev)
		sum += r
		sumSq += r * r
		n++
	}
	if n < 2 {
		return fallback
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance <= 0 {
		return fallback
	}
	elapsed := s[len(s)-1].at.Sub(s[0].at)
	if elapsed <= 0 {
		return fallback
	}
	samplesPerYear := float64(n) / elapsed.Hours() * 24 * 365
	return math.Sqrt(variance * samplesPerYear)
}

// WinProb returns the risk-neutral probability that spot finishes above
// (Direction Up) or below (Direction Down) the strike at expiry, under a
// lognormal-diffusion assumption with zero drift (spot markets over
// sub-daily horizons: drift is negligible next to realised vol).
func WinProb(m domain.CryptoMarket, spot decimal.Decimal, vol float64, now time.Time) domain.Probability {
	if !m.HasStrike || vol <= 0 {
		return domain.Unknown
	}
	t := m.ExpiryUTC.Sub(now).Hours() / (24 * 365)
	if t <= 0 {
		spotF, _ := spot.Float64()
		strikeF, _ := m.Strike.Float64()
		p := 0.0
		if spotF > strikeF {
			p = 1.0
		}
		if m.Direction == domain.DirectionDown {
			p = 1 - p
		}
		return domain.Probability{ForEntity: m.Asset, P: p, ComputedUTC: now}
	}

	spotF, _ := spot.Float64()
	strikeF, _ := m.Strike.Float64()
	if spotF <= 0 || strikeF <= 0 {
		return domain.Unknown
	}

	d2 := (math.Log(spotF/strikeF) - 0.5*vol*vol*t) / (vol * math.Sqrt(t))
	pUp := normalCDF(d2)

	p := pUp
	if m.Direction == domain.DirectionDown {
		p = 1 - pUp
	}

	return domain.Probability{
		ForEntity:   m.Asset,
		P:           domain.Clamp01(p),
		ComputedUTC: now,
	}
}

// normalCDF is the standard normal CDF via the Abramowitz-Stegun erf
// approximation (accurate to ~1e-7, plenty for edge sizing at cent
// granularity).
func normalCDF(x float64) float64 {
	return 0.5 * (1 + erf(x/math.Sqrt2))
}

func erf(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	const a1, a2, a3, a4, a5, p = 0.254829592, -0.284496736, 1.421413741, -1.453152027, 1.061405429, 0.3275911
	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)
	return sign * y
}
