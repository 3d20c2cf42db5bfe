package models

type RiskBands struct {
	Low  int `json:"risk_low" yaml:"risk_low"`
	High int `json:"risk_high" yaml:"risk_high"`
}

type Region struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Population int64      `json:"population" yaml:"population"`
	Latitude   float64    `json:"latitude" yaml:"latitude"`
	Longitude  float64    `json:"longitude" yaml:"longitude"`
	Bands      *RiskBands `json:"risk_bands,omitempty" yaml:"risk_bands,omitempty"`
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (r *Region) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// BandsOr returns the region override when set, otherwise the global bands.
func (r *Region) BandsOr(global RiskBands) RiskBands {
	if r != nil && r.Bands != nil {
		return *r.Bands
	}
	return global
}
