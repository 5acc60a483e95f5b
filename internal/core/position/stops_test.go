package position

import "testing"

func TestStopLossTightensLateInGame(t *testing.T) {
	cfg := DefaultStopConfig()
	early := cfg.StopLossCents(50, 59*60, 60*60) // 59 of 60 minutes left
	late := cfg.StopLossCents(50, 1*60, 60*60)   // 1 of 60 minutes left

	earlyDist := 50 - early
	lateDist := 50 - late
	if lateDist >= earlyDist {
		t.Errorf("late-game stop distance = %d, want < early-game distance %d", lateDist, earlyDist)
	}
}

func TestTakeProfitNeverExceedsHundred(t *testing.T) {
	cfg := DefaultStopConfig()
	tp := cfg.TakeProfitCents(95, 60*60, 60*60)
	if tp > 100 {
		t.Errorf("take profit = %d, want <= 100", tp)
	}
}

func TestStopLossNeverNegative(t *testing.T) {
	cfg := DefaultStopConfig()
	sl := cfg.StopLossCents(2, 60*60, 60*60)
	if sl < 0 {
		t.Errorf("stop loss = %d, want >= 0", sl)
	}
}

func TestTimeFractionDisabledWithoutGameClock(t *testing.T) {
	if f := timeFraction(30, 0); f != 1 {
		t.Errorf("timeFraction with gameSeconds<=0 = %v, want 1 (no tightening)", f)
	}
}
