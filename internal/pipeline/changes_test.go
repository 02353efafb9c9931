package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/georender-go/internal/config"
	"github.com/wegman-software/georender-go/internal/osc"
	"github.com/wegman-software/georender-go/internal/record"
	"github.com/wegman-software/georender-go/internal/style"
)

const testChange = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6">
  <create>
    <node id="20" lat="5" lon="5">
      <tag k="amenity" v="cafe"/>
    </node>
    <way id="30">
      <nd ref="1"/><nd ref="2"/><nd ref="3"/>
      <tag k="highway" v="primary"/>
    </way>
    <way id="31">
      <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    </way>
    <way id="32">
      <nd ref="3"/><nd ref="4"/><nd ref="1"/>
    </way>
    <way id="33">
      <nd ref="5"/><nd ref="6"/><nd ref="7"/>
      <tag k="highway" v="residential"/>
    </way>
    <relation id="40">
      <member type="way" ref="31" role="outer"/>
      <member type="way" ref="32" role="outer"/>
      <tag k="type" v="multipolygon"/>
      <tag k="leisure" v="park"/>
    </relation>
  </create>
  <modify>
    <node id="2" lat="0" lon="12"/>
  </modify>
  <delete>
    <node id="7"/>
    <way id="99"/>
  </delete>
</osmChange>`

func runTestChanges(t *testing.T, cfg *config.Config) (*Stats, *memWriter) {
	t.Helper()
	e := testEncoder(t, cfg, style.Filters{})
	base := e.index

	ctx := context.Background()
	changes, errs := osc.NewParser().ParseReader(ctx, strings.NewReader(testChange))
	w := &memWriter{}
	stats, err := e.RunChanges(ctx, changes, errs, base, w)
	require.NoError(t, err)
	assert.True(t, w.closed)
	return stats, w
}

func TestRunChanges(t *testing.T) {
	stats, w := runTestChanges(t, nil)

	require.Len(t, w.entries, 4)
	var ids []string
	for _, e := range w.entries {
		ids = append(ids, fmt.Sprintf("%s%d", e.OsmType, e.OsmID))
	}
	assert.Equal(t, []string{"N20", "W30", "W33", "R40"}, ids)

	line, err := record.Decode(w.entries[1].Data)
	require.NoError(t, err)
	assert.Equal(t, record.KindLine, line.Kind)
	require.Len(t, line.Positions, 3)
	assert.Equal(t, orb.Point{12, 0}, line.Positions[1], "modified node position wins over the base")

	deleted, err := record.Decode(w.entries[2].Data)
	require.NoError(t, err)
	assert.Len(t, deleted.Positions, 2, "deleted node no longer resolves")

	area, err := record.Decode(w.entries[3].Data)
	require.NoError(t, err)
	assert.Equal(t, record.KindArea, area.Kind)
	assert.Len(t, area.Positions, 5)

	assert.Equal(t, int64(2), stats.Nodes)
	assert.Equal(t, int64(2), stats.Deleted)
	assert.Equal(t, int64(1), stats.Points)
	assert.Equal(t, int64(2), stats.Lines)
	assert.Equal(t, int64(1), stats.RelationAreas)
}

func TestRunChangesSkips(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SkipNodes = true
	cfg.SkipRelations = true

	stats, w := runTestChanges(t, cfg)
	require.Len(t, w.entries, 2)
	assert.Equal(t, "W", w.entries[0].OsmType)
	assert.Equal(t, int64(0), stats.RelationAreas)
}

func TestRunChangesParseError(t *testing.T) {
	e := testEncoder(t, nil, style.Filters{})
	ctx := context.Background()
	changes, errs := osc.NewParser().ParseReader(ctx, strings.NewReader(`<osmChange><create><node id="x"/></create></osmChange>`))

	w := &memWriter{}
	_, err := e.RunChanges(ctx, changes, errs, nil, w)
	assert.Error(t, err)
	assert.True(t, w.closed)
}
