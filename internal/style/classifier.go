// Package style maps OSM tags to feature classes and labels.
//
// The class table comes from YAML (an embedded default or a user style
// file). Tags are examined in order; the first one with a "key.value" or
// "key.*" entry sets the class.
package style

import (
	"sort"
	"strings"

	"github.com/paulmach/osm"

	"github.com/wegman-software/georender-go/internal/label"
)

// Classifier is a label.Classifier backed by a class table
type Classifier struct {
	classes      map[string]uint64
	names        map[uint64]string
	defaultClass uint64
}

var _ label.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier from a parsed style
func NewClassifier(cfg *Config) *Classifier {
	c := &Classifier{
		classes:      cfg.Classes,
		names:        make(map[uint64]string, len(cfg.Classes)),
		defaultClass: cfg.Classes[cfg.DefaultClass],
	}
	// sorted so that a class shared by several names resolves the same way every run
	keys := make([]string, 0, len(cfg.Classes))
	for k := range cfg.Classes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := c.names[cfg.Classes[k]]; !ok {
			c.names[cfg.Classes[k]] = k
		}
	}
	return c
}

// Classify returns the feature class and the name label for tags
func (c *Classifier) Classify(tags osm.Tags) (uint64, []byte) {
	return c.Class(tags), label.Build(tags)
}

// Class returns the feature class alone
func (c *Classifier) Class(tags osm.Tags) uint64 {
	for _, tag := range tags {
		if class, ok := c.classes[tag.Key+"."+tag.Value]; ok {
			return class
		}
		if class, ok := c.classes[tag.Key+".*"]; ok {
			return class
		}
	}
	return c.defaultClass
}

// Lookup returns the class for a "key.value" name
func (c *Classifier) Lookup(name string) (uint64, bool) {
	class, ok := c.classes[name]
	return class, ok
}

// Name returns the table name for a class, or "" if unknown
func (c *Classifier) Name(class uint64) string {
	return c.names[class]
}

// Default returns the fallback class
func (c *Classifier) Default() uint64 {
	return c.defaultClass
}

// Tagged reports whether tags carry anything beyond bookkeeping keys
func Tagged(tags osm.Tags) bool {
	for _, tag := range tags {
		switch {
		case tag.Key == "created_by", tag.Key == "source", tag.Key == "note",
			strings.EqualFold(tag.Key, "fixme"), strings.HasPrefix(tag.Key, "source:"):
			continue
		}
		return true
	}
	return false
}
