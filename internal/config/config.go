package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/wegman-software/georender-go/internal/nodeindex"
	"github.com/wegman-software/georender-go/internal/point"
	"github.com/wegman-software/georender-go/internal/sink"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
// A nil or unset box contains everything.
func (b *BBox) Contains(lat, lon float64) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Config holds the settings shared by the encode, dump and load commands
type Config struct {
	// Input settings
	InputFile string
	BBox      *BBox

	// Output settings
	OutputFile  string
	Format      string // frames, parquet or postgres
	Compression string // none or zstd, frames only
	PointFormat string // float32 or fixed
	StyleFile   string // class table (.yaml) or classify script (.lua)

	// Node index
	FlatNodesFile string // mmap node index path; empty keeps nodes in memory
	MaxNodeID     int64

	// Database settings
	DBHost       string
	DBPort       int
	DBName       string
	DBUser       string
	DBPassword   string
	DBSchema     string
	DropExisting bool
	CreateIndex  bool

	// Processing settings
	Workers   int
	BatchSize int

	// Feature flags
	SkipNodes     bool
	SkipWays      bool
	SkipRelations bool
	Verbose       bool

	// Logging and metrics
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Format:          string(sink.FormatFrames),
		Compression:     string(sink.CompressionNone),
		PointFormat:     point.Float32.String(),
		MaxNodeID:       nodeindex.DefaultMaxNodeID,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		CreateIndex:     true,
		Workers:         runtime.NumCPU(),
		BatchSize:       100000,
		MetricsInterval: 30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks the settings used by the encode command
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	format, err := sink.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	if format != sink.FormatPostgres && c.OutputFile == "" {
		return fmt.Errorf("output file is required for %s output", format)
	}
	if _, err := sink.ParseCompression(c.Compression); err != nil {
		return err
	}
	if _, err := point.ParseFormat(c.PointFormat); err != nil {
		return err
	}
	if c.FlatNodesFile != "" && c.MaxNodeID < 1 {
		return fmt.Errorf("max node id must be positive")
	}
	if c.SkipNodes && c.SkipWays && c.SkipRelations {
		return fmt.Errorf("nothing to encode: nodes, ways and relations are all skipped")
	}
	return nil
}
