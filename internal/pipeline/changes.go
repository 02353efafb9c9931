package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/osc"
	"github.com/wegman-software/georender-go/internal/sink"
	"github.com/wegman-software/georender-go/internal/style"
)

// RunChanges encodes the created and modified elements of a change stream
// into w and closes w. Node positions come from the change itself first,
// then from base, usually the flat nodes file of an earlier encode.
//
// Only elements present in the change are encoded; a way whose nodes moved
// is not re-encoded unless the way itself is in the change.
func (e *Encoder) RunChanges(ctx context.Context, changes <-chan osc.Change, errs <-chan error, base nodeindex.Lookup, w sink.Writer) (*Stats, error) {
	start := time.Now()

	overlay := nodeindex.NewOverlay(base)
	e.index = overlay
	defer overlay.Close()

	var nodes []*osm.Node
	var ways []*osm.Way
	for c := range changes {
		switch {
		case c.Deleted():
			e.stats.deleted.Add(1)
			if c.Node != nil {
				overlay.Delete(int64(c.Node.ID))
			}
		case c.Node != nil:
			overlay.Put(int64(c.Node.ID), orb.Point{c.Node.Lon, c.Node.Lat})
			e.stats.nodes.Add(1)
			if !e.cfg.SkipNodes && style.Tagged(c.Node.Tags) {
				nodes = append(nodes, c.Node)
			}
		case c.Way != nil:
			ways = append(ways, c.Way)
		case c.Relation != nil:
			if !e.cfg.SkipRelations {
				e.collectRelation(c.Relation)
			}
		}
	}
	if err := firstError(errs); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}

	e.log.Info("Change file read",
		zap.Int("tagged_nodes", len(nodes)),
		zap.Int("ways", len(ways)),
		zap.Int("relations", len(e.relations)),
		zap.Int64("deleted", e.stats.deleted.Load()))

	out := make(chan sink.Entry, channelBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.write(w, out)
	})

	g.Go(func() error {
		defer close(out)
		if err := emitAll(gctx, nodes, out, e.encodeNode); err != nil {
			return err
		}
		// chains of member ways are stored while ways are encoded
		if err := emitAll(gctx, ways, out, e.processWay); err != nil {
			return err
		}
		return emitAll(gctx, e.relations, out, e.encodeRelation)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := e.stats.snapshot()
	stats.Duration = time.Since(start)
	return &stats, nil
}

// emitAll encodes items in order on the calling goroutine
func emitAll[T any](ctx context.Context, items []T, out chan<- sink.Entry, encode func(T) (sink.Entry, bool)) error {
	for _, item := range items {
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
}

func firstError(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	return <-errs
}
