package crypto

import (
	"github.com/predikt-markets/engine/internal/domain"
)

// Model adapts RealizedVolTracker + WinProb into the probability.Model
// interface (defined in the parent probability package; Model satisfies
// it structurally to avoid an import cycle). One Model per asset is
// registered at startup under CryptoMarket.Key() ("crypto:BTC"); every
// event on that asset shares it, since the strike and expiry that vary
// per event live on ev.MarketType rather than on the Model itself.
type Model struct {
	Vol         *RealizedVolTracker
	FallbackVol float64
}

func (m Model) Estimate(ev domain.Event, state domain.EventState, entity string, _ domain.Probability) domain.Probability {
	mt, ok := ev.MarketType.(domain.CryptoMarket)
	if !ok {
		return domain.Unknown
	}
	vol := m.Vol.AnnualizedVol(mt.Asset, m.FallbackVol)
	return WinProb(mt, state.Spot, vol, state.FetchTimestamp)
}
