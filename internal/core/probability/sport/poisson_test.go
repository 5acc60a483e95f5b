package sport

import "testing"

func TestWinProbFavoriteAtZeroZero(t *testing.T) {
	p := Hockey.WinProb(0.65, 60, 0)
	if p <= 0.5 || p >= 0.70 {
		t.Errorf("p = %v, want roughly 0.65 (matches pregame strength at 0-0 full time)", p)
	}
}

func TestWinProbLeadIncreasesAsClockRunsDown(t *testing.T) {
	early := Hockey.WinProb(0.5, 55, 1)
	late := Hockey.WinProb(0.5, 2, 1)
	if late <= early {
		t.Errorf("late game p = %v, want > early game p = %v for the same 1-goal lead", late, early)
	}
}

func TestWinProbZeroTimeRemainingIsDeterministic(t *testing.T) {
	if p := Hockey.WinProb(0.5, 0, 1); p != 1.0 {
		t.Errorf("p = %v, want 1.0 for a lead with no time left", p)
	}
	if p := Hockey.WinProb(0.5, 0, -1); p != 0.0 {
		t.Errorf("p = %v, want 0.0 for a deficit with no time left", p)
	}
	if p := Hockey.WinProb(0.5, 0, 0); p != 0.5 {
		t.Errorf("p = %v, want 0.5 for a tie with no time left", p)
	}
}

func TestRemoveVig2SumsToOne(t *testing.T) {
	a, b := RemoveVig2(1.91, 1.91)
	if got := a + b; got < 0.999 || got > 1.001 {
		t.Errorf("a+b = %v, want ~1.0", got)
	}
	if a < 0.49 || a > 0.51 {
		t.Errorf("a = %v, want ~0.5 for symmetric odds", a)
	}
}
