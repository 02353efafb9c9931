package areatag

import (
	"github.com/paulmach/osm"
)

// KeyRule decides whether a key implies an area for a given value
// With Only set, just those values imply an area; otherwise every value
// except the ones in Except does.
type KeyRule struct {
	Only   []string `yaml:"only,omitempty"`
	Except []string `yaml:"except,omitempty"`
}

func (r KeyRule) matches(value string) bool {
	if value == "no" {
		return false
	}
	if len(r.Only) > 0 {
		return contains(r.Only, value)
	}
	return !contains(r.Except, value)
}

// Rules maps tag keys to their area rule
type Rules map[string]KeyRule

// DefaultRules is the area key table used by renderers and editors:
// closed ways with one of these keys are filled, linear values excepted
func DefaultRules() Rules {
	return Rules{
		"building":         {},
		"building:part":    {},
		"landuse":          {},
		"amenity":          {},
		"shop":             {},
		"tourism":          {Except: []string{"artwork", "attraction"}},
		"leisure":          {Except: []string{"picnic_table", "slipway", "track"}},
		"man_made":         {Except: []string{"breakwater", "cutline", "dyke", "embankment", "groyne", "pier", "pipeline"}},
		"military":         {},
		"office":           {},
		"place":            {},
		"public_transport": {Only: []string{"station", "platform"}},
		"power":            {Only: []string{"plant", "substation", "generator", "transformer"}},
		"historic":         {},
		"aeroway":          {Except: []string{"jet_bridge", "taxiway", "runway", "parking_position"}},
		"area:highway":     {},
		"boundary":         {Only: []string{"protected_area", "national_park"}},
		"craft":            {},
		"golf":             {},
		"indoor":           {},
		"natural":          {Except: []string{"arete", "cliff", "coastline", "ridge", "tree_row", "valley"}},
		"waterway":         {Only: []string{"riverbank", "dock", "boatyard", "dam"}},
		"highway":          {Only: []string{"services", "rest_area", "escape", "elevator"}},
		"railway":          {Only: []string{"station", "turntable", "roundhouse", "platform"}},
		"barrier":          {Only: []string{"city_wall", "ditch", "hedge", "retaining_wall", "wall", "spikes"}},
	}
}

// Classifier decides area-vs-line for a way
type Classifier struct {
	rules Rules
}

// New creates a classifier; nil rules select DefaultRules
func New(rules Rules) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// IsArea reports whether a way with these tags and node refs is a filled area
// The chain must be closed (at least 4 refs, first == last). An explicit
// area=yes/no wins; otherwise the first key with a rule decides.
func (c *Classifier) IsArea(tags osm.Tags, refs []int64) bool {
	if len(refs) < 4 || refs[0] != refs[len(refs)-1] {
		return false
	}

	if v := tags.Find("area"); v != "" {
		return v == "yes"
	}

	for _, tag := range tags {
		if rule, ok := c.rules[tag.Key]; ok && rule.matches(tag.Value) {
			return true
		}
	}
	return false
}

var defaultClassifier = New(nil)

// IsArea classifies with DefaultRules
func IsArea(tags osm.Tags, refs []int64) bool {
	return defaultClassifier.IsArea(tags, refs)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
