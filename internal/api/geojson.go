package api

import (
	"github.com/mr1hm/go-disaster-risk/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders regions as points. Regions with a recent assessment
// carry its score, level and disaster styling; the rest show as calm.
func toGeoJSON(regions []models.Region, latest map[string]models.RiskAssessment, active map[string]bool) FeatureCollection {
	features := make([]Feature, 0, len(regions))

	for _, r := range regions {
		typ := models.DisasterTypeNone
		props := map[string]any{
			"id":               r.ID,
			"name":             r.Name,
			"population":       r.Population,
			"risk_score":       0,
			"risk_level":       models.RiskLevelLow,
			"has_active_alert": active[r.ID],
		}
		if a, ok := latest[r.ID]; ok {
			typ = a.DisasterType
			props["risk_score"] = a.Score
			props["risk_level"] = a.Level
			props["assessed_at"] = a.AssessedAt
		}
		props["disaster_type"] = typ.String()
		props["color"] = typ.Color()
		props["icon"] = typ.Icon()

		coords := r.Coordinates()
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{coords.Longitude, coords.Latitude},
			},
			Properties: props,
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
