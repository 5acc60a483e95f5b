package domain

import "math"

// DirectFeeSchedule implements the Direct venue's integer-cent tiered fee:
// a flat 1c per contract on notional of $1 or less, else ~1% of notional,
// rounded up to the next whole cent (fees always round in the venue's
// favour, never the trader's).
type DirectFeeSchedule struct{}

func (DirectFeeSchedule) FeeCents(priceCents, quantity int) int {
	notional := priceCents * quantity
	if notional <= 100 {
		return quantity
	}
	return int(math.Ceil(float64(notional) * 0.01))
}

func (DirectFeeSchedule) RatePct() float64 { return 0.01 }

// ProxiedFeeSchedule implements the Proxied venue's flat 2% taker fee,
// charged on both entry and exit.
type ProxiedFeeSchedule struct{}

func (ProxiedFeeSchedule) FeeCents(priceCents, quantity int) int {
	notional := priceCents * quantity
	return int(math.Ceil(float64(notional) * 0.02))
}

func (ProxiedFeeSchedule) RatePct() float64 { return 0.02 }

// FeeScheduleFor returns the fee schedule for a venue. Paper trading uses
// the Direct schedule so simulated P&L reflects a real venue's economics
// (spec §4.G).
func FeeScheduleFor(v Venue) FeeSchedule {
	switch v {
	case VenueProxied:
		return ProxiedFeeSchedule{}
	default:
		return DirectFeeSchedule{}
	}
}
