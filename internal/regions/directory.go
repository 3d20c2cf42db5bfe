// Package regions is the read-mostly region directory shared by the alerting
// and broadcast components. Lookups always go to the backing store so callers
// see the latest population and band overrides.
package regions

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
)

var ErrInvalidRegion = errors.New("invalid region")

type Directory struct {
	repo repository.RegionRepository
}

func NewDirectory(repo repository.RegionRepository) *Directory {
	return &Directory{repo: repo}
}

// Get returns nil, nil for an unknown region.
func (d *Directory) Get(ctx context.Context, id string) (*models.Region, error) {
	return d.repo.GetRegion(ctx, id)
}

func (d *Directory) List(ctx context.Context) ([]models.Region, error) {
	return d.repo.ListRegions(ctx)
}

func (d *Directory) Upsert(ctx context.Context, r *models.Region) error {
	if err := validate(r); err != nil {
		return err
	}
	return d.repo.UpsertRegion(ctx, r)
}

type seedFile struct {
	Regions []models.Region `yaml:"regions"`
}

// LoadFile upserts every region listed in a YAML seed file and returns the count.
func (d *Directory) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read regions file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse regions file: %w", err)
	}

	for i := range seed.Regions {
		if err := d.Upsert(ctx, &seed.Regions[i]); err != nil {
			return i, err
		}
	}
	return len(seed.Regions), nil
}

func validate(r *models.Region) error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidRegion)
	case r.Name == "":
		return fmt.Errorf("%w: name is required for %s", ErrInvalidRegion, r.ID)
	case r.Population < 0:
		return fmt.Errorf("%w: negative population for %s", ErrInvalidRegion, r.ID)
	case r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180:
		return fmt.Errorf("%w: coordinates out of range for %s", ErrInvalidRegion, r.ID)
	}
	if r.Bands != nil {
		if err := risk.Bands(*r.Bands).Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRegion, r.ID, err)
		}
	}
	return nil
}
