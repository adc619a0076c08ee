// Package tuning loads the conversion profile (tuning.yaml).
package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/raster"
	"voxelsmith.ai/internal/voxel"
)

type Tuning struct {
	Raster Raster `yaml:"raster"`
	Assign Assign `yaml:"assign"`
	Export Export `yaml:"export"`
}

type Raster struct {
	ConstraintAxis string `yaml:"constraint_axis"`
	Size           int    `yaml:"size"`
	Multisample    int    `yaml:"multisample"`
	MergePolicy    string `yaml:"merge_policy"`
	Workers        int    `yaml:"workers"`
	Seed           int64  `yaml:"seed"`
}

type Assign struct {
	Resolution          int       `yaml:"resolution"`
	Dithering           Dithering `yaml:"dithering"`
	ErrorWeight         float64   `yaml:"error_weight"`
	ContextualAveraging bool      `yaml:"contextual_averaging"`
	Fallable            string    `yaml:"fallable"`
	Exclude             []string  `yaml:"exclude,omitempty"`
	Lighting            Lighting  `yaml:"lighting"`
	Seed                int64     `yaml:"seed"`
}

type Dithering struct {
	Mode      string  `yaml:"mode"`
	Magnitude float64 `yaml:"magnitude"`
}

type Lighting struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"`
}

type Export struct {
	Format string `yaml:"format"`
	Name   string `yaml:"name"`
	Author string `yaml:"author"`
}

func Defaults() Tuning {
	return Tuning{
		Raster: Raster{
			ConstraintAxis: "y",
			Size:           80,
			MergePolicy:    "average",
			Workers:        1,
		},
		Assign: Assign{
			Resolution:          32,
			Dithering:           Dithering{Mode: "ordered", Magnitude: 0.125},
			ContextualAveraging: true,
			Fallable:            "replace-falling",
		},
		Export: Export{
			Format: "litematic",
			Name:   "voxelsmith",
			Author: "voxelsmith",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Raster.ConstraintAxis = strings.ToLower(strings.TrimSpace(t.Raster.ConstraintAxis))
	t.Raster.MergePolicy = strings.ToLower(strings.TrimSpace(t.Raster.MergePolicy))
	t.Assign.Dithering.Mode = strings.ToLower(strings.TrimSpace(t.Assign.Dithering.Mode))
	t.Assign.Fallable = strings.ToLower(strings.TrimSpace(t.Assign.Fallable))
	t.Export.Format = strings.ToLower(strings.TrimSpace(t.Export.Format))
	if t.Raster.Workers < 1 {
		t.Raster.Workers = 1
	}
	ex := t.Assign.Exclude[:0]
	for _, n := range t.Assign.Exclude {
		if n = strings.TrimSpace(n); n != "" {
			ex = append(ex, n)
		}
	}
	t.Assign.Exclude = ex
}

// Validate checks everything that can be checked without a palette.
func (t Tuning) Validate() error {
	p, err := t.RasterParams()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c, err := t.AssignConfig()
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if t.Export.Format == "" {
		return fmt.Errorf("export.format is required")
	}
	return nil
}

func (t Tuning) RasterParams() (raster.Params, error) {
	axis, err := geom.ParseAxis(t.Raster.ConstraintAxis)
	if err != nil {
		return raster.Params{}, fmt.Errorf("raster.constraint_axis: %w", err)
	}
	merge, err := voxel.ParseMergePolicy(t.Raster.MergePolicy)
	if err != nil {
		return raster.Params{}, fmt.Errorf("raster.merge_policy: %w", err)
	}
	return raster.Params{
		ConstraintAxis: axis,
		Size:           t.Raster.Size,
		Multisample:    t.Raster.Multisample,
		MergePolicy:    merge,
		Workers:        t.Raster.Workers,
		Seed:           t.Raster.Seed,
	}, nil
}

func (t Tuning) AssignConfig() (assign.Config, error) {
	mode, err := assign.ParseDitherMode(t.Assign.Dithering.Mode)
	if err != nil {
		return assign.Config{}, fmt.Errorf("assign.dithering.mode: %w", err)
	}
	fallable, err := assign.ParseFallablePolicy(t.Assign.Fallable)
	if err != nil {
		return assign.Config{}, fmt.Errorf("assign.fallable: %w", err)
	}
	return assign.Config{
		Resolution:          t.Assign.Resolution,
		Dithering:           assign.Dithering{Mode: mode, Magnitude: t.Assign.Dithering.Magnitude},
		ErrorWeight:         t.Assign.ErrorWeight,
		ContextualAveraging: t.Assign.ContextualAveraging,
		Fallable:            fallable,
		Exclude:             append([]string(nil), t.Assign.Exclude...),
		Lighting:            assign.Lighting{Enabled: t.Assign.Lighting.Enabled, Threshold: t.Assign.Lighting.Threshold},
		Seed:                t.Assign.Seed,
	}, nil
}
