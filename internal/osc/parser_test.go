package osc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOSC(t *testing.T) {
	oscData := `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="test">
  <create>
    <node id="1" lat="43.7384" lon="7.4246" version="1" changeset="123" timestamp="2024-01-15T12:00:00Z" user="testuser" uid="1">
      <tag k="name" v="Test Node"/>
      <tag k="amenity" v="cafe"/>
    </node>
    <way id="100" version="1" changeset="124">
      <nd ref="1"/>
      <nd ref="2"/>
      <nd ref="3"/>
      <tag k="highway" v="primary"/>
    </way>
  </create>
  <modify>
    <node id="2" lat="43.7390" lon="7.4250" version="2">
      <tag k="name" v="Modified Node"/>
    </node>
    <relation id="200" version="2">
      <member type="way" ref="100" role="outer"/>
      <member type="way" ref="101" role="inner"/>
      <tag k="type" v="multipolygon"/>
    </relation>
  </modify>
  <delete>
    <node id="999"/>
    <relation id="997"/>
    <way id="998"/>
  </delete>
</osmChange>`

	parser := NewParser()
	ctx := context.Background()
	changes, errChan := parser.ParseReader(ctx, strings.NewReader(oscData))

	var allChanges []Change
	for change := range changes {
		allChanges = append(allChanges, change)
	}

	// Check for errors
	for err := range errChan {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Verify counts
	stats := parser.Stats()
	if stats.NodesCreated != 1 {
		t.Errorf("expected 1 node created, got %d", stats.NodesCreated)
	}
	if stats.NodesModified != 1 {
		t.Errorf("expected 1 node modified, got %d", stats.NodesModified)
	}
	if stats.NodesDeleted != 1 {
		t.Errorf("expected 1 node deleted, got %d", stats.NodesDeleted)
	}
	if stats.WaysCreated != 1 {
		t.Errorf("expected 1 way created, got %d", stats.WaysCreated)
	}
	if stats.WaysDeleted != 1 {
		t.Errorf("expected 1 way deleted, got %d", stats.WaysDeleted)
	}
	if stats.RelationsModified != 1 {
		t.Errorf("expected 1 relation modified, got %d", stats.RelationsModified)
	}

	// Verify we got all changes
	if len(allChanges) != 7 {
		t.Fatalf("expected 7 changes, got %d", len(allChanges))
	}
	if stats.Total() != 7 {
		t.Errorf("expected 7 changes in stats, got %d", stats.Total())
	}

	// Verify first node
	change := allChanges[0]
	if change.Action != ActionCreate {
		t.Errorf("expected create action, got %s", change.Action)
	}
	if change.Type() != osm.TypeNode {
		t.Errorf("expected node type, got %s", change.Type())
	}
	if change.Node == nil {
		t.Fatal("expected node data")
	}
	if change.Node.ID != 1 {
		t.Errorf("expected node ID 1, got %d", change.Node.ID)
	}
	if change.Node.Lat != 43.7384 || change.Node.Lon != 7.4246 {
		t.Errorf("unexpected position %f,%f", change.Node.Lat, change.Node.Lon)
	}
	if name := change.Node.Tags.Find("name"); name != "Test Node" {
		t.Errorf("expected name 'Test Node', got '%s'", name)
	}

	// Verify way
	for _, change := range allChanges {
		if change.Type() == osm.TypeWay && change.Action == ActionCreate {
			if change.Way.ID != 100 {
				t.Errorf("expected way ID 100, got %d", change.Way.ID)
			}
			if len(change.Way.Nodes) != 3 {
				t.Errorf("expected 3 node refs, got %d", len(change.Way.Nodes))
			}
		}
	}

	// Verify relation
	for _, change := range allChanges {
		if change.Type() == osm.TypeRelation && change.Action == ActionModify {
			if change.Relation.ID != 200 {
				t.Errorf("expected relation ID 200, got %d", change.Relation.ID)
			}
			if len(change.Relation.Members) != 2 {
				t.Fatalf("expected 2 members, got %d", len(change.Relation.Members))
			}
			if change.Relation.Members[0].Type != osm.TypeWay {
				t.Errorf("expected member type 'way', got '%s'", change.Relation.Members[0].Type)
			}
			if change.Relation.Members[1].Role != "inner" {
				t.Errorf("expected inner role, got '%s'", change.Relation.Members[1].Role)
			}
		}
	}

	last := allChanges[len(allChanges)-1]
	assert.True(t, last.Deleted())
	assert.Equal(t, osm.TypeWay, last.ObjectID().Type())
	assert.Equal(t, int64(998), last.ObjectID().Ref())
}

func TestParseFileGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "change.osc.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(`<osmChange version="0.6"><modify><node id="5" lat="1.5" lon="2.5"/></modify></osmChange>`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	parser := NewParser()
	changes, errChan := parser.ParseFile(context.Background(), path)

	var got []Change
	for c := range changes {
		got = append(got, c)
	}
	require.NoError(t, <-errChan)
	require.Len(t, got, 1)
	assert.Equal(t, ActionModify, got[0].Action)
	assert.Equal(t, osm.NodeID(5), got[0].Node.ID)
	assert.Equal(t, int64(1), parser.Stats().NodesModified)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"element outside action", `<osmChange><node id="1" lat="0" lon="0"/></osmChange>`},
		{"malformed", `<osmChange><create><node id="1"`},
		{"bad attribute", `<osmChange><create><node id="x" lat="0" lon="0"/></create></osmChange>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changes, errChan := NewParser().ParseReader(context.Background(), strings.NewReader(tt.data))
			for range changes {
			}
			assert.Error(t, <-errChan)
		})
	}

	_, errChan := NewParser().ParseFile(context.Background(), "does-not-exist.osc")
	assert.Error(t, <-errChan)
}
