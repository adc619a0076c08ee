package main

import (
	"testing"

	"voxelsmith.ai/internal/tuning"
)

func TestApplyOverrides(t *testing.T) {
	tu := tuning.Defaults()
	applyOverrides(&tu, overrides{format: "schem", size: 12, axis: "Z", dither: "off"})
	tu.Normalize()
	if tu.Export.Format != "schem" || tu.Raster.Size != 12 || tu.Raster.ConstraintAxis != "z" || tu.Assign.Dithering.Mode != "off" {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Raster.Workers != tuning.Defaults().Raster.Workers || tu.Export.Name != tuning.Defaults().Export.Name {
		t.Fatalf("unset flags changed tuning: %+v", tu)
	}
	if err := tu.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
