// Package pipeline turns an OSM PBF file into a stream of georender records.
//
// The input is read twice. Pass 1 fills the node index, encodes tagged
// nodes and collects multipolygon and boundary relations. Pass 2 encodes
// ways and keeps the node chains of relation member ways. Relations are
// assembled last, once every member chain is known.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/georender-go/internal/config"
	"github.com/wegman-software/georender-go/internal/dispatch"
	"github.com/wegman-software/georender-go/internal/member"
	"github.com/wegman-software/georender-go/internal/metrics"
	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/sink"
	"github.com/wegman-software/georender-go/internal/style"
)

const (
	channelBuffer    = 10000
	progressInterval = 10 * time.Second
)

// Encoder runs the two-pass PBF to record pipeline
type Encoder struct {
	cfg  *config.Config
	disp *dispatch.Dispatcher
	log  *zap.Logger

	pointFilter *style.Filter
	lineFilter  *style.Filter
	areaFilter  *style.Filter

	index nodeindex.Index

	// relations collected in pass 1 and the member ways they need
	relations []*osm.Relation
	needed    map[int64]struct{}
	// way id -> node refs, filled in pass 2 for needed ways only
	chains sync.Map

	stats counters
}

// NewEncoder creates a pipeline encoding with disp, filtered by filters
func NewEncoder(cfg *config.Config, disp *dispatch.Dispatcher, filters style.Filters, log *zap.Logger) *Encoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Encoder{
		cfg:         cfg,
		disp:        disp,
		log:         log,
		pointFilter: style.NewFilter(filters.Points),
		lineFilter:  style.NewFilter(filters.Lines),
		areaFilter:  style.NewFilter(filters.Areas),
		needed:      make(map[int64]struct{}),
	}
}

// Run encodes cfg.InputFile into w and closes w
func (e *Encoder) Run(ctx context.Context, w sink.Writer) (*Stats, error) {
	start := time.Now()

	f, err := os.Open(e.cfg.InputFile)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		w.Close()
		return nil, err
	}

	idx, err := e.openIndex()
	if err != nil {
		w.Close()
		return nil, err
	}
	e.index = idx
	defer e.index.Close()

	if e.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(e.cfg.MetricsInterval, e.log)
		collector.Track("records", func() int64 {
			s := e.stats.snapshot()
			return s.Records()
		})
		go collector.Start(metricsCtx)
		e.log.Info("System metrics collection started",
			zap.Duration("interval", e.cfg.MetricsInterval))
	}

	out := make(chan sink.Entry, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.write(w, out)
	})

	g.Go(func() error {
		defer close(out)

		e.log.Info("Pass 1: indexing nodes")
		passStart := time.Now()
		if err := e.nodePass(gctx, f, info.Size(), out); err != nil {
			return fmt.Errorf("node pass failed: %w", err)
		}
		e.log.Info("Pass 1 complete",
			zap.Int64("nodes", e.stats.nodes.Load()),
			zap.Int("relations", len(e.relations)),
			zap.Duration("duration", time.Since(passStart).Round(time.Millisecond)))

		if e.cfg.SkipWays && len(e.needed) == 0 {
			return nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}

		e.log.Info("Pass 2: encoding ways")
		passStart = time.Now()
		if err := e.wayPass(gctx, f, info.Size(), out); err != nil {
			return fmt.Errorf("way pass failed: %w", err)
		}
		e.log.Info("Pass 2 complete",
			zap.Int64("ways", e.stats.ways.Load()),
			zap.Duration("duration", time.Since(passStart).Round(time.Millisecond)))

		if len(e.relations) == 0 {
			return nil
		}
		e.log.Info("Assembling relations", zap.Int("relations", len(e.relations)))
		return e.relationPass(gctx, out)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := e.stats.snapshot()
	stats.BytesRead = info.Size()
	stats.Duration = time.Since(start)
	return &stats, nil
}

func (e *Encoder) openIndex() (nodeindex.Index, error) {
	if e.cfg.FlatNodesFile == "" {
		return nodeindex.NewMapIndex(), nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.FlatNodesFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create flat nodes directory: %w", err)
	}
	return nodeindex.NewMmapIndex(e.cfg.FlatNodesFile, e.cfg.MaxNodeID)
}

func (e *Encoder) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.NumCPU()
}

// write drains out into w, then closes w
func (e *Encoder) write(w sink.Writer, out <-chan sink.Entry) error {
	for entry := range out {
		if err := w.Write(entry); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s%d: %w", entry.OsmType, entry.OsmID, err)
		}
		e.stats.written(entry.Kind, entry.OsmType == "R")
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}

// nodePass fills the node index, encodes tagged nodes and collects relations
func (e *Encoder) nodePass(ctx context.Context, r io.Reader, size int64, out chan<- sink.Entry) error {
	scanner := osmpbf.New(ctx, r, runtime.NumCPU())
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = e.cfg.SkipRelations

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go reportProgress(progressCtx, e.log, progressInterval,
		NewProgressTracker(size, "nodes"), scanner, e.stats.nodes.Load)

	nodes := make(chan *osm.Node, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)
	startWorkers(gctx, g, e.workers(), nodes, out, e.encodeNode)

scan:
	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			e.index.Put(int64(o.ID), orb.Point{o.Lon, o.Lat})
			e.stats.nodes.Add(1)
			if e.cfg.SkipNodes || !style.Tagged(o.Tags) {
				continue
			}
			select {
			case nodes <- o:
			case <-gctx.Done():
				break scan
			}
		case *osm.Relation:
			e.collectRelation(o)
		}
	}
	close(nodes)

	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	if s, ok := e.index.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

func (e *Encoder) collectRelation(rel *osm.Relation) {
	if !isAreaRelation(rel) {
		return
	}
	e.relations = append(e.relations, rel)
	e.stats.relations.Add(1)
	for _, id := range memberWays(rel) {
		e.needed[id] = struct{}{}
	}
}

// wayPass encodes ways and caches the chains relation members need
func (e *Encoder) wayPass(ctx context.Context, r io.Reader, size int64, out chan<- sink.Entry) error {
	scanner := osmpbf.New(ctx, r, runtime.NumCPU())
	defer scanner.Close()
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go reportProgress(progressCtx, e.log, progressInterval,
		NewProgressTracker(size, "ways"), scanner, e.stats.ways.Load)

	ways := make(chan *osm.Way, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)
	startWorkers(gctx, g, e.workers(), ways, out, e.processWay)

scan:
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		select {
		case ways <- w:
		case <-gctx.Done():
			break scan
		}
	}
	close(ways)

	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (e *Encoder) processWay(w *osm.Way) (sink.Entry, bool) {
	e.stats.ways.Add(1)

	refs := make([]int64, len(w.Nodes))
	for i, n := range w.Nodes {
		refs[i] = int64(n.ID)
	}
	if _, ok := e.needed[int64(w.ID)]; ok {
		e.chains.Store(int64(w.ID), refs)
	}

	if e.cfg.SkipWays || !style.Tagged(w.Tags) {
		return sink.Entry{}, false
	}
	return e.encodeWay(int64(w.ID), w.Tags, refs)
}

// relationPass assembles and encodes the collected relations
func (e *Encoder) relationPass(ctx context.Context, out chan<- sink.Entry) error {
	rels := make(chan *osm.Relation, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)
	startWorkers(gctx, g, e.workers(), rels, out, e.encodeRelation)

feed:
	for _, rel := range e.relations {
		select {
		case rels <- rel:
		case <-gctx.Done():
			break feed
		}
	}
	close(rels)
	return g.Wait()
}

func (e *Encoder) encodeNode(n *osm.Node) (sink.Entry, bool) {
	if !e.cfg.BBox.Contains(n.Lat, n.Lon) {
		e.stats.outside.Add(1)
		return sink.Entry{}, false
	}
	if e.pointFilter.HasFilter() && !e.pointFilter.Match(n.Tags.Map()) {
		e.stats.filtered.Add(1)
		return sink.Entry{}, false
	}
	data := e.disp.Node(uint64(n.ID), n.Tags, orb.Point{n.Lon, n.Lat})
	return sink.Entry{OsmID: int64(n.ID), OsmType: "N", Kind: record.KindNode, Data: data}, true
}

func (e *Encoder) encodeWay(id int64, tags osm.Tags, refs []int64) (sink.Entry, bool) {
	filter := e.lineFilter
	if e.disp.IsArea(tags, refs) {
		filter = e.areaFilter
	}
	if filter.HasFilter() && !filter.Match(tags.Map()) {
		e.stats.filtered.Add(1)
		return sink.Entry{}, false
	}
	if !e.refsInBBox(refs) {
		e.stats.outside.Add(1)
		return sink.Entry{}, false
	}

	data, kind := e.disp.Way(uint64(id), tags, refs, e.index)
	if kind == record.KindNone {
		e.stats.empty.Add(1)
		return sink.Entry{}, false
	}
	return sink.Entry{OsmID: id, OsmType: "W", Kind: kind, Data: data}, true
}

func (e *Encoder) encodeRelation(rel *osm.Relation) (sink.Entry, bool) {
	if e.areaFilter.HasFilter() && !e.areaFilter.Match(rel.Tags.Map()) {
		e.stats.filtered.Add(1)
		return sink.Entry{}, false
	}

	chains := make(member.Chains)
	for _, id := range memberWays(rel) {
		refs, ok := e.chains.Load(id)
		if !ok {
			e.stats.absent.Add(1)
			continue
		}
		chains[uint64(id)] = refs.([]int64)
	}

	mp := assemble(rel, chains, func(refs []int64) []orb.Point {
		return e.disp.Resolve(uint64(rel.ID), refs, e.index)
	})
	if len(mp) == 0 {
		e.log.Debug("Relation has no closed outer ring", zap.Int64("relation_id", int64(rel.ID)))
		e.stats.empty.Add(1)
		return sink.Entry{}, false
	}
	if !e.polygonsInBBox(mp) {
		e.stats.outside.Add(1)
		return sink.Entry{}, false
	}

	data := e.disp.MultiArea(uint64(rel.ID), rel.Tags, mp)
	return sink.Entry{OsmID: int64(rel.ID), OsmType: "R", Kind: record.KindArea, Data: data}, true
}

// refsInBBox reports whether any resolvable ref lies in the bbox
func (e *Encoder) refsInBBox(refs []int64) bool {
	if e.cfg.BBox == nil || !e.cfg.BBox.IsSet {
		return true
	}
	for _, ref := range refs {
		if p, ok := e.index.Get(ref); ok && e.cfg.BBox.Contains(p.Lat(), p.Lon()) {
			return true
		}
	}
	return false
}

func (e *Encoder) polygonsInBBox(mp orb.MultiPolygon) bool {
	if e.cfg.BBox == nil || !e.cfg.BBox.IsSet {
		return true
	}
	for _, poly := range mp {
		for _, p := range poly[0] {
			if e.cfg.BBox.Contains(p.Lat(), p.Lon()) {
				return true
			}
		}
	}
	return false
}

// startWorkers runs n goroutines on g that encode items from in and send
// the results to out
func startWorkers[T any](ctx context.Context, g *errgroup.Group, n int, in <-chan T, out chan<- sink.Entry, encode func(T) (sink.Entry, bool)) {
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for item := range in {
				entry, ok := encode(item)
				if !ok {
					continue
				}
				select {
				case out <- entry:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
}
