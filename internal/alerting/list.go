package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
)

type SortKey string

const (
	SortByDate     SortKey = "date"
	SortBySeverity SortKey = "severity"
	SortByRegion   SortKey = "region"
)

func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(s)) {
	case "", SortByDate:
		return SortByDate, nil
	case SortBySeverity:
		return SortBySeverity, nil
	case SortByRegion:
		return SortByRegion, nil
	default:
		return "", fmt.Errorf("unknown sort key %q", s)
	}
}

type ListFilter struct {
	Status   *models.AlertStatus
	Severity *models.AlertSeverity
	RegionID string
	// Search matches title, message or region name, case-insensitively.
	Search string
	SortBy SortKey
	Desc   bool
	Limit  int
}

// List returns alerts matching the filter, sorted stably by the chosen key.
// Ties keep the store's newest-first order.
func (m *Manager) List(ctx context.Context, f ListFilter) ([]models.Alert, error) {
	alerts, err := m.repo.ListAlerts(ctx, repository.AlertFilter{
		Status:   f.Status,
		RegionID: f.RegionID,
	})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := alerts[:0]
	for _, a := range alerts {
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if needle != "" && !matches(a, needle) {
			continue
		}
		out = append(out, a)
	}

	sortAlerts(out, f.SortBy, f.Desc)

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(a models.Alert, needle string) bool {
	return strings.Contains(strings.ToLower(a.Title), needle) ||
		strings.Contains(strings.ToLower(a.Message), needle) ||
		strings.Contains(strings.ToLower(a.RegionName), needle)
}

func sortAlerts(alerts []models.Alert, key SortKey, desc bool) {
	var less func(a, b models.Alert) bool
	switch key {
	case SortBySeverity:
		less = func(a, b models.Alert) bool { return a.Severity.Priority() < b.Severity.Priority() }
	case SortByRegion:
		less = func(a, b models.Alert) bool { return strings.ToLower(a.RegionName) < strings.ToLower(b.RegionName) }
	default:
		less = func(a, b models.Alert) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if desc {
			return less(alerts[j], alerts[i])
		}
		return less(alerts[i], alerts[j])
	})
}
