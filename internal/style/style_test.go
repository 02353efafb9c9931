package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"
)

func TestDefaultClassifier(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	tests := []struct {
		name string
		tags osm.Tags
		want uint64
	}{
		{"protected area", osm.Tags{{Key: "source", Value: "bing"}, {Key: "boundary", Value: "protected_area"}, {Key: "tiger:cfcc", Value: "A41"}}, 174},
		{"exact value", osm.Tags{{Key: "highway", Value: "primary"}}, 62},
		{"wildcard", osm.Tags{{Key: "highway", Value: "bus_stop"}}, 79},
		{"first tag wins", osm.Tags{{Key: "building", Value: "yes"}, {Key: "amenity", Value: "school"}}, 40},
		{"no match", osm.Tags{{Key: "foo", Value: "bar"}}, 277},
		{"no tags", nil, 277},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Class(tt.tags); got != tt.want {
				t.Errorf("Class() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := c.Name(174); got != "boundary.protected_area" {
		t.Errorf("Name(174) = %q", got)
	}
	if c.Default() != 277 {
		t.Errorf("Default() = %d, want 277", c.Default())
	}

	class, lbl := c.Classify(osm.Tags{{Key: "name", Value: "Park"}, {Key: "leisure", Value: "park"}})
	if class != 120 {
		t.Errorf("Classify() class = %d, want 120", class)
	}
	if string(lbl) != "\x05=Park\x00" {
		t.Errorf("Classify() label = %q", lbl)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
default_class: other
classes:
  other: 1
  highway.*: 2
areas:
  highway: {only: [pedestrian]}
filters:
  points:
    require_any: [name]
`))
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.Areas["highway"].Only[0] != "pedestrian" {
		t.Errorf("area rules not parsed: %+v", cfg.Areas)
	}
	if cfg.Filters.Points == nil || cfg.Filters.Points.RequireAny[0] != "name" {
		t.Errorf("filters not parsed: %+v", cfg.Filters)
	}

	if _, err := ParseConfig([]byte("default_class: x\nclasses: {y: 1}\n")); err == nil {
		t.Error("expected error for unknown default class")
	}
	if _, err := ParseConfig([]byte("classes: [")); err == nil {
		t.Error("expected YAML error")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.yaml")
	if err := os.WriteFile(path, []byte("default_class: a\nclasses: {a: 3}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if NewClassifier(cfg).Default() != 3 {
		t.Errorf("default class not loaded")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		cfg  *FilterConfig
		tags map[string]string
		want bool
	}{
		{"nil config", nil, map[string]string{"a": "b"}, true},
		{"require present", &FilterConfig{RequireAny: []string{"name"}}, map[string]string{"name": "x"}, true},
		{"require missing", &FilterConfig{RequireAny: []string{"name"}}, map[string]string{"a": "b"}, false},
		{"include any value", &FilterConfig{Include: map[string][]string{"highway": nil}}, map[string]string{"highway": "x"}, true},
		{"include value", &FilterConfig{Include: map[string][]string{"highway": {"primary"}}}, map[string]string{"highway": "track"}, false},
		{"exclude value", &FilterConfig{Exclude: map[string][]string{"access": {"private"}}}, map[string]string{"access": "private"}, false},
		{"exclude wildcard", &FilterConfig{Exclude: map[string][]string{"disused": {"*"}}}, map[string]string{"disused": "yes"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.cfg)
			if got := f.Match(tt.tags); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}

	if NewFilter(nil).HasFilter() {
		t.Error("empty filter reports HasFilter")
	}
}

func TestTagged(t *testing.T) {
	if Tagged(osm.Tags{{Key: "created_by", Value: "JOSM"}, {Key: "source", Value: "bing"}}) {
		t.Error("bookkeeping tags only should not count")
	}
	if !Tagged(osm.Tags{{Key: "source", Value: "bing"}, {Key: "amenity", Value: "bench"}}) {
		t.Error("amenity should count")
	}
}
