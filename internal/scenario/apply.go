package scenario

import (
	"fmt"
	"log/slog"

	"github.com/tmacphail/suzerain/internal/sim"
	"github.com/tmacphail/suzerain/internal/world"
)

// Apply bulk-loads a scenario into a fresh context and finalizes it.
// Zero-valued capacities in cfg are sized to the scenario.
//
// Entities are added in file order, which fixes the digest iteration
// order: two machines loading the same file always agree on the digest
// before the first command runs.
func Apply(s *Scenario, cfg sim.Config) (*sim.Context, error) {
	if cfg.ProvinceCapacity == 0 {
		cfg.ProvinceCapacity = len(s.Provinces)
	}
	if cfg.CountryCapacity == 0 {
		cfg.CountryCapacity = len(s.Countries)
	}

	ctx, err := sim.NewContext(cfg)
	if err != nil {
		return nil, fmt.Errorf("apply scenario %s: %w", s.Name, err)
	}

	byTag := make(map[string]world.ID, len(s.Countries))
	for i, c := range s.Countries {
		tag, err := world.ParseTag(c.Tag)
		if err != nil {
			return nil, fmt.Errorf("apply scenario: countries[%d]: %w", i, err)
		}
		treasury, err := parseDecimal("treasury", c.Treasury)
		if err != nil {
			return nil, fmt.Errorf("apply scenario: countries[%d]: %w", i, err)
		}

		hot := world.CountryHot{
			Tag:       tag,
			Stability: c.Stability,
			Treasury:  treasury,
		}
		warm := world.CountryWarm{
			Color:     c.Color,
			CultureID: c.Culture,
		}
		if err := ctx.Countries.Add(world.ID(c.ID), hot, warm); err != nil {
			return nil, fmt.Errorf("apply scenario: countries[%d] (%s): %w", i, c.Tag, err)
		}
		byTag[c.Tag] = world.ID(c.ID)
	}

	for i, p := range s.Provinces {
		terrain, ok := world.ParseTerrain(p.Terrain)
		if !ok {
			return nil, fmt.Errorf("apply scenario: provinces[%d]: unknown terrain %q", i, p.Terrain)
		}
		development, err := parseDecimal("development", p.Development)
		if err != nil {
			return nil, fmt.Errorf("apply scenario: provinces[%d]: %w", i, err)
		}

		owner := world.None
		if p.Owner != "" {
			owner = byTag[p.Owner] // resolvable, validateReferences ran
		}

		hot := world.ProvinceHot{
			Owner:      owner,
			Controller: owner,
			Terrain:    terrain,
		}
		warm := world.ProvinceWarm{
			Development: development,
			CultureID:   p.Culture,
		}
		if p.Coastal {
			warm.Flags |= world.FlagCoastal
		}
		if err := ctx.Provinces.Add(world.ID(p.ID), hot, warm); err != nil {
			return nil, fmt.Errorf("apply scenario: provinces[%d]: %w", i, err)
		}
	}

	if err := ctx.Finalize(); err != nil {
		return nil, fmt.Errorf("apply scenario: %w", err)
	}

	slog.Info("scenario loaded",
		"name", s.Name,
		"countries", len(s.Countries),
		"provinces", len(s.Provinces),
	)
	return ctx, nil
}
