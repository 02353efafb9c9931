// Package osc streams the elements of OsmChange (.osc) files.
package osc

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/osm"
)

// Parser parses OSC (OSM Change) files
type Parser struct {
	stats Stats
}

// NewParser creates a new OSC parser
func NewParser() *Parser {
	return &Parser{}
}

// Stats returns parsing statistics. Only valid once the change channel
// is drained.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseFile parses an OSC file and streams changes to a channel.
// Files ending in .gz are gunzipped.
func (p *Parser) ParseFile(ctx context.Context, filename string) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		f, err := os.Open(filename)
		if err != nil {
			errChan <- fmt.Errorf("failed to open OSC file: %w", err)
			return
		}
		defer f.Close()

		var reader io.Reader = f
		if strings.HasSuffix(filename, ".gz") {
			gz, err := gzip.NewReader(f)
			if err != nil {
				errChan <- fmt.Errorf("failed to create gzip reader: %w", err)
				return
			}
			defer gz.Close()
			reader = gz
		}

		if err := p.parse(ctx, reader, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

// ParseReader parses OSC data from r
func (p *Parser) ParseReader(ctx context.Context, r io.Reader) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errChan)

		if err := p.parse(ctx, r, changes); err != nil {
			errChan <- err
		}
	}()

	return changes, errChan
}

func (p *Parser) parse(ctx context.Context, r io.Reader, changes chan<- Change) error {
	decoder := xml.NewDecoder(r)
	var action Action

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("XML parse error: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			change := Change{Action: action}
			switch t.Name.Local {
			case "create", "modify", "delete":
				action = Action(t.Name.Local)
				continue
			case "node":
				change.Node = new(osm.Node)
				err = decoder.DecodeElement(change.Node, &t)
			case "way":
				change.Way = new(osm.Way)
				err = decoder.DecodeElement(change.Way, &t)
			case "relation":
				change.Relation = new(osm.Relation)
				err = decoder.DecodeElement(change.Relation, &t)
			default:
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to parse %s: %w", t.Name.Local, err)
			}
			if action == "" {
				return fmt.Errorf("%s %d is outside of an action block", change.Type(), change.ObjectID().Ref())
			}

			p.stats.add(change)
			select {
			case changes <- change:
			case <-ctx.Done():
				return ctx.Err()
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "create", "modify", "delete":
				action = ""
			}
		}
	}
}
