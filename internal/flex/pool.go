package flex

import (
	"fmt"
	"os"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/style"
)

// Pool holds one Lua runtime per worker so classification does not
// serialise the whole pipeline on a single interpreter
type Pool struct {
	runtimes chan *Runtime
	all      []*Runtime
	hasArea  bool
}

var _ label.Classifier = (*Pool)(nil)

// NewPool loads the script at path into n runtimes
func NewPool(path string, n int, classes *style.Classifier, log *zap.Logger) (*Pool, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read Lua file: %w", err)
	}
	return NewPoolFromString(string(code), n, classes, log)
}

// NewPoolFromString loads code into n runtimes
func NewPoolFromString(code string, n int, classes *style.Classifier, log *zap.Logger) (*Pool, error) {
	if n <= 0 {
		n = 1
	}
	p := &Pool{runtimes: make(chan *Runtime, n)}
	for i := 0; i < n; i++ {
		r := NewRuntime(classes, log)
		if err := r.LoadString(code); err != nil {
			r.Close()
			p.Close()
			return nil, err
		}
		p.hasArea = r.HasIsArea()
		p.all = append(p.all, r)
		p.runtimes <- r
	}
	return p, nil
}

// Classify borrows a runtime and runs classify(tags)
func (p *Pool) Classify(tags osm.Tags) (uint64, []byte) {
	r := <-p.runtimes
	defer func() { p.runtimes <- r }()
	return r.Class(tags), label.Build(tags)
}

// HasIsArea reports whether the script defines is_area
func (p *Pool) HasIsArea() bool {
	return p.hasArea
}

// IsArea runs the script's is_area for a way's tags and refs
// Open chains are never areas; without is_area the rules decide, via fallback.
func (p *Pool) IsArea(fallback func(osm.Tags, []int64) bool) func(osm.Tags, []int64) bool {
	if !p.hasArea {
		return fallback
	}
	return func(tags osm.Tags, refs []int64) bool {
		closed := len(refs) >= 4 && refs[0] == refs[len(refs)-1]
		if !closed {
			return false
		}
		r := <-p.runtimes
		defer func() { p.runtimes <- r }()
		area, ok := r.IsArea(tags, closed)
		if !ok {
			return fallback(tags, refs)
		}
		return area
	}
}

// Close releases every runtime
func (p *Pool) Close() {
	for _, r := range p.all {
		r.Close()
	}
	p.all = nil
}
