// Package expire collects the web map tiles covered by encoded records so
// a tile server can re-render them after a change file is applied.
package expire

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"go.uber.org/zap"

	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/sink"
)

const (
	// MaxZoom is the deepest zoom a tracker accepts
	MaxZoom = 20

	maxMercatorLat = 85.0511
	// bounds covering more tiles than this at one zoom are skipped there
	maxTilesPerBound = 1 << 16
)

// Tracker collects expired tiles; safe for concurrent use
type Tracker struct {
	mu      sync.Mutex
	tiles   maptile.Set
	minZoom maptile.Zoom
	maxZoom maptile.Zoom
	skipped int
}

// NewTracker creates a tracker for zooms minZoom..maxZoom inclusive
func NewTracker(minZoom, maxZoom int) (*Tracker, error) {
	if minZoom < 0 || maxZoom > MaxZoom || minZoom > maxZoom {
		return nil, fmt.Errorf("invalid expire zoom range %d-%d (allowed 0-%d)", minZoom, maxZoom, MaxZoom)
	}
	return &Tracker{
		tiles:   make(maptile.Set),
		minZoom: maptile.Zoom(minZoom),
		maxZoom: maptile.Zoom(maxZoom),
	}, nil
}

// ParseZoomRange parses "z" or "min-max"
func ParseZoomRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	minZoom, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid zoom %q: %w", lo, err)
	}
	if !found {
		return minZoom, minZoom, nil
	}
	maxZoom, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid zoom %q: %w", hi, err)
	}
	return minZoom, maxZoom, nil
}

// Bound expires every tile b touches at each tracked zoom
func (t *Tracker) Bound(b orb.Bound) {
	b = clamp(b)

	t.mu.Lock()
	defer t.mu.Unlock()
	for z := t.minZoom; z <= t.maxZoom; z++ {
		topLeft := at(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
		bottomRight := at(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)

		n := (int(bottomRight.X) - int(topLeft.X) + 1) * (int(bottomRight.Y) - int(topLeft.Y) + 1)
		if n > maxTilesPerBound {
			t.skipped++
			continue
		}
		for x := topLeft.X; x <= bottomRight.X; x++ {
			for y := topLeft.Y; y <= bottomRight.Y; y++ {
				t.tiles[maptile.New(x, y, z)] = true
			}
		}
	}
}

// Point expires the tiles containing p
func (t *Tracker) Point(p orb.Point) {
	t.Bound(p.Bound())
}

// Count returns the number of unique expired tiles
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tiles)
}

// CountByZoom returns the count of tiles at each zoom level
func (t *Tracker) CountByZoom() map[int]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[int]int)
	for tile := range t.tiles {
		counts[int(tile.Z)]++
	}
	return counts
}

// Tiles returns the expired tiles ordered by zoom, x, y
func (t *Tracker) Tiles() []maptile.Tile {
	t.mu.Lock()
	tiles := make([]maptile.Tile, 0, len(t.tiles))
	for tile := range t.tiles {
		tiles = append(tiles, tile)
	}
	t.mu.Unlock()

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Z != tiles[j].Z {
			return tiles[i].Z < tiles[j].Z
		}
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	return tiles
}

// AppendToFile appends the tiles to path as z/x/y lines
func (t *Tracker) AppendToFile(path string, log *zap.Logger) error {
	tiles := t.Tiles()
	if len(tiles) == 0 {
		log.Info("No tiles to expire")
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open expire file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, tile := range tiles {
		fmt.Fprintf(w, "%d/%d/%d\n", tile.Z, tile.X, tile.Y)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write expire file: %w", err)
	}

	counts := t.CountByZoom()
	zooms := make([]int, 0, len(counts))
	for z := range counts {
		zooms = append(zooms, z)
	}
	sort.Ints(zooms)

	fields := []zap.Field{zap.String("file", path)}
	for _, z := range zooms {
		fields = append(fields, zap.Int(fmt.Sprintf("z%d", z), counts[z]))
	}
	fields = append(fields, zap.Int("total", len(tiles)))
	if t.skipped > 0 {
		fields = append(fields, zap.Int("oversized_bounds", t.skipped))
	}
	log.Info("Wrote expire tiles", fields...)
	return nil
}

// Writer passes entries on to a sink and expires the tiles under each
// record's positions
type Writer struct {
	sink.Writer
	dec     record.Decoder
	tracker *Tracker
}

// Wrap returns a Writer feeding t; dec must match the records' point format
func (t *Tracker) Wrap(w sink.Writer, dec record.Decoder) *Writer {
	return &Writer{Writer: w, dec: dec, tracker: t}
}

// Write expires the record's tiles, then forwards it
func (w *Writer) Write(e sink.Entry) error {
	rec, err := w.dec.Decode(e.Data)
	if err != nil {
		return fmt.Errorf("failed to decode %s%d for expiry: %w", e.OsmType, e.OsmID, err)
	}
	if len(rec.Positions) > 0 {
		w.tracker.Bound(orb.MultiPoint(rec.Positions).Bound())
	}
	return w.Writer.Write(e)
}

func clamp(b orb.Bound) orb.Bound {
	for _, p := range []*orb.Point{&b.Min, &b.Max} {
		p[0] = min(max(p[0], -180), 180)
		p[1] = min(max(p[1], -maxMercatorLat), maxMercatorLat)
	}
	return b
}

// at is maptile.At with the eastern edge folded onto the last column
func at(p orb.Point, z maptile.Zoom) maptile.Tile {
	t := maptile.At(p, z)
	last := uint32(1)<<uint32(z) - 1
	t.X = min(t.X, last)
	t.Y = min(t.Y, last)
	return t
}
