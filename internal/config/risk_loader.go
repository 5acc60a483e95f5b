package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LeagueLimits bounds exposure for a single sport league, generalising the
// teacher's risk_limits.yaml leaf.
type LeagueLimits struct {
	MaxEventCents int   `mapstructure:"max_event_cents"`
	CooldownMs    int64 `mapstructure:"cooldown_ms"`
}

// SportLimits bounds exposure for a sport, and holds its per-league table.
type SportLimits struct {
	MaxSportCents int                     `mapstructure:"max_sport_cents"`
	Leagues       map[string]LeagueLimits `mapstructure:"leagues"`
}

// AssetLimits bounds exposure for a single crypto asset.
type AssetLimits struct {
	MaxAssetCents int   `mapstructure:"max_asset_cents"`
	CooldownMs    int64 `mapstructure:"cooldown_ms"`
}

// RiskLimits is the full nested risk-limit tree: per-market-kind exposure
// caps plus the global gates the signal processor enforces on every
// candidate signal (spec §4.F).
type RiskLimits struct {
	DailyLossCapCents   int64                  `mapstructure:"daily_loss_cap_cents"`
	DrawdownPauseFrac   float64                `mapstructure:"drawdown_pause_fraction"`
	MaxOpenPositions    int                    `mapstructure:"max_open_positions"`
	MinNetEdgePct       float64                `mapstructure:"min_net_edge_pct"`
	KillSwitch          bool                   `mapstructure:"kill_switch"`
	Sports              map[string]SportLimits `mapstructure:"sports"`
	Assets              map[string]AssetLimits `mapstructure:"assets"`
}

// LoadRiskLimits parses the nested risk-limit tree with viper, which gives
// operators env-var overrides (RISK_SPORTS_HOCKEY_MAX_SPORT_CENTS=...) on
// top of the YAML file for free.
func LoadRiskLimits(path string) (RiskLimits, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return RiskLimits{}, fmt.Errorf("read risk limits: %w", err)
	}

	var limits RiskLimits
	if err := v.Unmarshal(&limits); err != nil {
		return RiskLimits{}, fmt.Errorf("parse risk limits: %w", err)
	}

	return limits, nil
}

// SportLimit looks up a sport's limits.
func (rl RiskLimits) SportLimit(sport string) (SportLimits, bool) {
	sl, ok := rl.Sports[sport]
	return sl, ok
}

// LeagueLimit looks up a league's limits within a sport.
func (rl RiskLimits) LeagueLimit(sport, league string) (LeagueLimits, bool) {
	sl, ok := rl.Sports[sport]
	if !ok {
		return LeagueLimits{}, false
	}
	ll, ok := sl.Leagues[league]
	return ll, ok
}

// AssetLimit looks up a crypto asset's limits.
func (rl RiskLimits) AssetLimit(asset string) (AssetLimits, bool) {
	al, ok := rl.Assets[asset]
	return al, ok
}
