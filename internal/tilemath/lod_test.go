package tilemath

import (
	"math"
	"testing"
)

func TestBuildLODs_NearmapRange(t *testing.T) {
	lods := BuildLODs(12, 24)
	if len(lods) != 13 {
		t.Fatalf("BuildLODs(12, 24) returned %d levels, want 13", len(lods))
	}

	for i, lod := range lods {
		if lod.Level != 12+i {
			t.Errorf("lods[%d].Level = %d, want %d", i, lod.Level, 12+i)
		}
		if want := lod.Resolution * 96 * 39.37; lod.Scale != want {
			t.Errorf("lods[%d].Scale = %v, want %v", i, lod.Scale, want)
		}
		if i == 0 {
			continue
		}
		if lod.Resolution != lods[i-1].Resolution/2 {
			t.Errorf("lods[%d].Resolution = %v, want half of %v", i, lod.Resolution, lods[i-1].Resolution)
		}
	}
}

func TestBuildLODs_SingleLevel(t *testing.T) {
	lods := BuildLODs(17, 17)
	if len(lods) != 1 || lods[0].Level != 17 {
		t.Fatalf("BuildLODs(17, 17) = %+v", lods)
	}
}

func TestBuildLODs_ReversedBoundsIsEmpty(t *testing.T) {
	lods := BuildLODs(20, 15)
	if lods == nil {
		t.Fatal("BuildLODs(20, 15) returned nil, want an empty slice")
	}
	if len(lods) != 0 {
		t.Fatalf("BuildLODs(20, 15) = %+v, want empty", lods)
	}
}

func TestBuildLODs_GoldenScale(t *testing.T) {
	tests := []struct {
		zoom       int
		resolution float64
		scale      float64
	}{
		{12, 38.21851414257812, 144447.63857215684},
		{17, 1.1943285669555664, 4513.988705379901},
		{24, 0.009330691929340362, 35.26553676078048},
	}

	for _, tt := range tests {
		lod := BuildLODs(tt.zoom, tt.zoom)[0]
		if rel := math.Abs(lod.Resolution-tt.resolution) / tt.resolution; rel > 1e-9 {
			t.Errorf("z%d resolution = %v, want %v", tt.zoom, lod.Resolution, tt.resolution)
		}
		if rel := math.Abs(lod.Scale-tt.scale) / tt.scale; rel > 1e-6 {
			t.Errorf("z%d scale = %v, want %v", tt.zoom, lod.Scale, tt.scale)
		}
	}
}

func TestResolution(t *testing.T) {
	if got := Resolution(0); got != EarthCircumference/256 {
		t.Errorf("Resolution(0) = %v, want %v", got, EarthCircumference/256.0)
	}
	if got, want := Resolution(12), EarthCircumference/256/4096; math.Abs(got-want) > 1e-12 {
		t.Errorf("Resolution(12) = %v, want %v", got, want)
	}
}
