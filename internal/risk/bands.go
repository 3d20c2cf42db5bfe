package risk

import (
	"fmt"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

var DefaultBands = models.RiskBands{Low: 40, High: 70}

type Bands models.RiskBands

func (b Bands) Validate() error {
	if b.Low < 0 || b.High > 100 {
		return fmt.Errorf("risk bands must be within 0-100, got low=%d high=%d", b.Low, b.High)
	}
	if b.Low >= b.High {
		return fmt.Errorf("risk_low (%d) must be below risk_high (%d)", b.Low, b.High)
	}
	return nil
}

// LevelFor bands a score: up to Low is Low, up to High is Medium, above is High.
func (b Bands) LevelFor(score int) models.RiskLevel {
	switch {
	case score <= b.Low:
		return models.RiskLevelLow
	case score <= b.High:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelHigh
	}
}
