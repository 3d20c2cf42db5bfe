package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
)

// EngineSettings is the operator-tunable part of the configuration. It can
// change while the engine runs, so components read it through a Store.
type EngineSettings struct {
	RiskLow          int  `json:"risk_low"`
	RiskHigh         int  `json:"risk_high"`
	CooldownMinutes  int  `json:"alert_cooldown_minutes"`
	CooldownEnforced bool `json:"alert_cooldown_enforced"`
	MaxAlertsPerDay  int  `json:"max_alerts_per_day"`
	ScoreBanding     bool `json:"score_banding"`
}

func (s EngineSettings) Validate() error {
	if err := risk.Bands(s.Bands()).Validate(); err != nil {
		return err
	}
	if s.CooldownMinutes < 0 {
		return fmt.Errorf("alert cooldown must not be negative")
	}
	if s.MaxAlertsPerDay < 0 {
		return fmt.Errorf("max alerts per day must not be negative")
	}
	return nil
}

func (s EngineSettings) Bands() models.RiskBands {
	return models.RiskBands{Low: s.RiskLow, High: s.RiskHigh}
}

func (s EngineSettings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// Store holds the current EngineSettings. Reads are cheap and always return
// the latest value written by Update.
type Store struct {
	mu       sync.RWMutex
	settings EngineSettings
}

func NewStore(initial EngineSettings) *Store {
	return &Store{settings: initial}
}

func (s *Store) Current() EngineSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Store) Update(next EngineSettings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = next
	s.mu.Unlock()
	return nil
}
