package dispatch

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wegman-software/georender-go/internal/label"
	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/record"
)

var fixedClass = label.ClassifierFunc(func(tags osm.Tags) (uint64, []byte) {
	return 5, label.Build(tags)
})

func newIndex() *nodeindex.MapIndex {
	idx := nodeindex.NewMapIndex()
	idx.Put(1, orb.Point{0, 0})
	idx.Put(2, orb.Point{1, 0})
	idx.Put(3, orb.Point{1, 1})
	idx.Put(4, orb.Point{0, 1})
	return idx
}

func newDispatcher(isArea bool) (*Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := New(record.NewEncoder(point.Float32), fixedClass, zap.New(core))
	d.IsArea = func(osm.Tags, []int64) bool { return isArea }
	return d, logs
}

func TestWaySinglePositionIsEmpty(t *testing.T) {
	d, _ := newDispatcher(false)

	buf, kind := d.Way(10, nil, []int64{1}, newIndex())

	assert.Empty(t, buf)
	assert.Equal(t, record.KindNone, kind)
}

func TestWayAreaPositionCount(t *testing.T) {
	d, _ := newDispatcher(true)

	buf, kind := d.Way(10, nil, []int64{1, 2, 3, 1}, newIndex())
	require.Equal(t, record.KindArea, kind)

	rec, err := record.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, record.KindArea, rec.Kind)
	assert.Len(t, rec.Positions, 4)
	assert.Equal(t, uint64(5), rec.Class)
	assert.Equal(t, uint64(10), rec.ID)
}

func TestWayLine(t *testing.T) {
	d, _ := newDispatcher(false)
	tags := osm.Tags{{Key: "name", Value: "Main"}}

	buf, kind := d.Way(11, tags, []int64{1, 2, 3}, newIndex())
	require.Equal(t, record.KindLine, kind)

	rec, err := record.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []orb.Point{{0, 0}, {1, 0}, {1, 1}}, rec.Positions)
	assert.Equal(t, label.Build(tags), rec.Label)
}

func TestWayMissingRefsSkipped(t *testing.T) {
	d, logs := newDispatcher(false)

	buf, kind := d.Way(12, nil, []int64{1, 99, 2}, newIndex())
	require.Equal(t, record.KindLine, kind)

	rec, err := record.Decode(buf)
	require.NoError(t, err)
	assert.Len(t, rec.Positions, 2)

	entries := logs.FilterField(zap.Int64("node_id", 99)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestWayOnlyOneResolvedIsEmpty(t *testing.T) {
	d, logs := newDispatcher(false)

	buf, kind := d.Way(13, nil, []int64{1, 98, 99}, newIndex())

	assert.Empty(t, buf)
	assert.Equal(t, record.KindNone, kind)
	assert.Equal(t, 2, logs.Len())
}

func TestWayDefaultAreaRules(t *testing.T) {
	d := New(record.NewEncoder(point.Float32), fixedClass, nil)
	tags := osm.Tags{{Key: "building", Value: "yes"}}

	_, kind := d.Way(14, tags, []int64{1, 2, 3, 4, 1}, newIndex())
	assert.Equal(t, record.KindArea, kind)

	_, kind = d.Way(14, tags, []int64{1, 2, 3, 4}, newIndex())
	assert.Equal(t, record.KindLine, kind)
}

func TestNodeAndArea(t *testing.T) {
	d, _ := newDispatcher(false)

	rec, err := record.Decode(d.Node(3, nil, orb.Point{2, 3}))
	require.NoError(t, err)
	assert.Equal(t, record.KindNode, rec.Kind)
	assert.Equal(t, []orb.Point{{2, 3}}, rec.Positions)

	poly := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}
	rec, err = record.Decode(d.Area(4, nil, poly))
	require.NoError(t, err)
	assert.Equal(t, record.KindArea, rec.Kind)
	assert.Len(t, rec.Positions, 5)
	assert.Len(t, rec.Cells, 6)
}

func TestMultiArea(t *testing.T) {
	d, _ := newDispatcher(false)
	mp := orb.MultiPolygon{
		{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}},
		{{{10, 10}, {14, 10}, {14, 14}, {10, 14}, {10, 10}}},
	}

	rec, err := record.Decode(d.MultiArea(8, osm.Tags{{Key: "name", Value: "Twin"}}, mp))
	require.NoError(t, err)
	assert.Equal(t, record.KindArea, rec.Kind)
	assert.Equal(t, uint64(5), rec.Class)
	assert.Len(t, rec.Positions, 10)
	require.Len(t, rec.Cells, 12)
	for _, c := range rec.Cells[6:] {
		assert.GreaterOrEqual(t, c, 5)
	}
}
